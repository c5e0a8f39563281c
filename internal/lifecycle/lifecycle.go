// Package lifecycle implements the Active/Archived state machine of a note
// entry. Transitions only touch archivedAt, expireAt, lastActiveAt and
// pinned; status is derived when the index is saved.
package lifecycle

import (
	"time"

	"github.com/starford/fleeting/internal/models"
)

// Archiver relocates the backing file of a newly archived entry and returns
// its new relative path.
type Archiver interface {
	Archive(e *models.NoteEntry) (string, error)
}

// Transition records one Active to Archived change made by Expire.
type Transition struct {
	ID      string
	From    string // relative path before relocation
	To      string // relative path after relocation; equals From when the move failed
	MoveErr error
}

// Expired reports whether the expire pass should archive e at now: the entry
// is active, unpinned, and its expiry lies strictly before now.
func Expired(e *models.NoteEntry, now time.Time) bool {
	return !e.Archived() && !e.Pinned && e.ExpireAt != nil && e.ExpireAt.Before(now)
}

// Expire archives every eligible entry of idx. The state change is made
// before the file move is attempted and stands even when the move fails,
// so a broken file is never retried on later passes.
func Expire(idx *models.IndexFile, now time.Time, a Archiver) []Transition {
	var out []Transition
	for i := range idx.Notes {
		e := &idx.Notes[i]
		if !Expired(e, now) {
			continue
		}
		archive(e, now)

		tr := Transition{ID: e.ID, From: e.File.RelativePath, To: e.File.RelativePath}
		if a != nil {
			to, err := a.Archive(e)
			if err != nil {
				tr.MoveErr = err
			} else if to != "" {
				e.File.RelativePath = to
				tr.To = to
			}
		}
		out = append(out, tr)
	}
	return out
}

func archive(e *models.NoteEntry, now time.Time) {
	at := now
	e.ArchivedAt = &at
	e.ExpireAt = nil
}

// Restore returns an archived entry to Active with a fresh expiry. It
// reports false and changes nothing when e is already active.
func Restore(e *models.NoteEntry, now time.Time, ttl time.Duration) bool {
	if !e.Archived() {
		return false
	}
	e.ArchivedAt = nil
	Touch(e, now, ttl)
	return true
}

// Touch records activity: lastActiveAt moves to now and the expiry is pushed
// to now+ttl. Callers reject archived entries before touching them.
func Touch(e *models.NoteEntry, now time.Time, ttl time.Duration) {
	e.LastActiveAt = now
	exp := now.Add(ttl)
	e.ExpireAt = &exp
}

// SetPinned toggles the pin flag. It reports whether the value changed.
func SetPinned(e *models.NoteEntry, pinned bool) bool {
	if e.Pinned == pinned {
		return false
	}
	e.Pinned = pinned
	return true
}
