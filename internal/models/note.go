// Package models defines the persisted index schema for fleeting notes.
package models

import "time"

// CurrentVersion is the schema tag written by every save.
const CurrentVersion = 2

// Status is the derived lifecycle state of a note.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// StatusFor derives a status from the archival timestamp. It is the only
// place a Status value is computed.
func StatusFor(archivedAt *time.Time) Status {
	if archivedAt == nil {
		return StatusActive
	}
	return StatusArchived
}

// AppInfo describes the index document itself.
type AppInfo struct {
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	RebuildAt *time.Time `json:"rebuildAt,omitempty"`
}

// WindowInfo is an opaque placement payload owned by the window shell.
type WindowInfo struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FileRef locates the backing text file relative to the application root.
type FileRef struct {
	RelativePath string `json:"relativePath"`
}

// NoteEntry is one cached note record.
type NoteEntry struct {
	ID            string      `json:"id"`
	CreatedAt     time.Time   `json:"createdAt"`
	LastActiveAt  time.Time   `json:"lastActiveAt"`
	ExpireAt      *time.Time  `json:"expireAt,omitempty"`
	CachedPreview string      `json:"cachedPreview,omitempty"`
	Status        Status      `json:"status"`
	ArchivedAt    *time.Time  `json:"archivedAt,omitempty"`
	Pinned        bool        `json:"pinned"`
	Window        *WindowInfo `json:"window,omitempty"`
	File          FileRef     `json:"file"`
}

// Archived reports whether the entry is archived.
func (e *NoteEntry) Archived() bool {
	return e.ArchivedAt != nil
}

// IndexFile is the whole persisted index document.
type IndexFile struct {
	Version int         `json:"version"`
	App     AppInfo     `json:"app"`
	Notes   []NoteEntry `json:"notes"`
}

// Find returns a pointer to the entry with the given id, or nil.
func (f *IndexFile) Find(id string) *NoteEntry {
	for i := range f.Notes {
		if f.Notes[i].ID == id {
			return &f.Notes[i]
		}
	}
	return nil
}

// Normalize fixes up the derived fields just before persisting:
// status follows archivedAt and archived entries carry no expiry.
func (f *IndexFile) Normalize() {
	f.Version = CurrentVersion
	if f.Notes == nil {
		f.Notes = []NoteEntry{}
	}
	for i := range f.Notes {
		e := &f.Notes[i]
		if e.ArchivedAt != nil {
			e.ExpireAt = nil
		}
		e.Status = StatusFor(e.ArchivedAt)
	}
}

// Clone returns a deep copy of the document.
func (f *IndexFile) Clone() *IndexFile {
	out := &IndexFile{Version: f.Version, App: f.App}
	out.App.RebuildAt = cloneTime(f.App.RebuildAt)
	out.Notes = make([]NoteEntry, len(f.Notes))
	for i, e := range f.Notes {
		out.Notes[i] = e.Clone()
	}
	return out
}

// Clone returns a deep copy of the entry.
func (e NoteEntry) Clone() NoteEntry {
	e.ExpireAt = cloneTime(e.ExpireAt)
	e.ArchivedAt = cloneTime(e.ArchivedAt)
	if e.Window != nil {
		w := *e.Window
		e.Window = &w
	}
	return e
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
