// Package reconcile merges a directory scan into the index document.
//
// Merge handles the ordinary pass over a readable index; Rebuild
// reconstructs the document when the persisted one is missing or
// unreadable. Neither touches the filesystem.
package reconcile

import (
	"sort"
	"time"

	"github.com/starford/fleeting/internal/models"
	"github.com/starford/fleeting/internal/preview"
	"github.com/starford/fleeting/internal/scanner"
)

// Snapshot is the last known good set of entries, keyed by id. It feeds the
// lifecycle of ids that vanish from the index and later reappear on disk.
type Snapshot map[string]models.NoteEntry

// SnapshotOf copies every entry of idx.
func SnapshotOf(idx *models.IndexFile) Snapshot {
	snap := make(Snapshot, len(idx.Notes))
	for _, e := range idx.Notes {
		if _, ok := snap[e.ID]; !ok {
			snap[e.ID] = e.Clone()
		}
	}
	return snap
}

// Options tune a merge.
type Options struct {
	AppName       string
	PreviewLength int
	// DropMissingArchived removes archived entries whose backing file was not
	// found. Active entries are always retained.
	DropMissingArchived bool
}

// Report describes what a merge or rebuild changed.
type Report struct {
	Added      []string // ids synthesized from disk
	Relocated  []string // ids whose relative path was refreshed
	Missing    []string // ids retained without a backing file
	Dropped    []string // ids removed by DropMissingArchived
	Duplicates int      // repeated ids removed from the loaded document
}

// Changed reports whether the merge altered the document.
func (r Report) Changed() bool {
	return len(r.Added) > 0 || len(r.Relocated) > 0 || len(r.Dropped) > 0 || r.Duplicates > 0
}

// Merge folds observations into idx in place. Known ids keep their
// lifecycle and have their path refreshed from disk; unknown ids are
// synthesized, inheriting lifecycle fields from snap when present. Entries
// whose file is missing are kept.
func Merge(idx *models.IndexFile, snap Snapshot, obs []scanner.Observation, opts Options) Report {
	var rep Report
	rep.Duplicates = dedupe(idx)

	observed := make(map[string]scanner.Observation, len(obs))
	for _, o := range obs {
		observed[o.ID] = o
	}

	kept := idx.Notes[:0]
	known := make(map[string]struct{}, len(idx.Notes))
	for _, e := range idx.Notes {
		known[e.ID] = struct{}{}
		o, ok := observed[e.ID]
		if !ok {
			if opts.DropMissingArchived && e.Archived() {
				rep.Dropped = append(rep.Dropped, e.ID)
				continue
			}
			rep.Missing = append(rep.Missing, e.ID)
			kept = append(kept, e)
			continue
		}
		if e.File.RelativePath != o.RelativePath {
			e.File.RelativePath = o.RelativePath
			rep.Relocated = append(rep.Relocated, e.ID)
		}
		kept = append(kept, e)
	}
	idx.Notes = kept

	for _, o := range obs {
		if _, ok := known[o.ID]; ok {
			continue
		}
		e := synthesize(o, opts)
		if prior, ok := snap[o.ID]; ok {
			inheritLifecycle(&e, prior)
		}
		idx.Notes = append(idx.Notes, e)
		rep.Added = append(rep.Added, o.ID)
	}
	return rep
}

// Rebuild reconstructs an index from the scan. prior is whatever could be
// salvaged from the unreadable document (nil when there was none); its
// entries and snap supply createdAt, lastActiveAt, expireAt, archivedAt,
// pinned and window for ids still found on disk; timestamps a salvaged entry
// lacks come from the scan. History entries without a file are retained,
// subject to DropMissingArchived. app.rebuildAt is set to now.
func Rebuild(prior *models.IndexFile, snap Snapshot, obs []scanner.Observation, now time.Time, opts Options) (*models.IndexFile, Report) {
	var rep Report

	out := &models.IndexFile{
		Version: models.CurrentVersion,
		App:     models.AppInfo{Name: opts.AppName, CreatedAt: now},
		Notes:   make([]models.NoteEntry, 0, len(obs)),
	}
	rebuildAt := now
	out.App.RebuildAt = &rebuildAt

	history, order := historyOf(prior, snap)
	if prior != nil {
		if prior.App.Name != "" {
			out.App.Name = prior.App.Name
		}
		if !prior.App.CreatedAt.IsZero() {
			out.App.CreatedAt = prior.App.CreatedAt
		}
	}

	seen := make(map[string]struct{}, len(obs))
	for _, o := range obs {
		seen[o.ID] = struct{}{}
		e := synthesize(o, opts)
		if h, ok := history[o.ID]; ok {
			if !h.CreatedAt.IsZero() {
				e.CreatedAt = h.CreatedAt
			}
			if !h.LastActiveAt.IsZero() {
				e.LastActiveAt = h.LastActiveAt
			}
			inheritLifecycle(&e, h)
			backfill(&e, o.ModifiedAt)
		}
		out.Notes = append(out.Notes, e)
		rep.Added = append(rep.Added, o.ID)
	}

	for _, id := range order {
		if _, ok := seen[id]; ok {
			continue
		}
		h := history[id]
		if opts.DropMissingArchived && h.Archived() {
			rep.Dropped = append(rep.Dropped, id)
			continue
		}
		e := h.Clone()
		backfill(&e, now)
		out.Notes = append(out.Notes, e)
		rep.Missing = append(rep.Missing, id)
	}
	return out, rep
}

// historyOf overlays salvaged entries on the snapshot. order lists salvaged
// ids in document order followed by snapshot-only ids sorted.
func historyOf(prior *models.IndexFile, snap Snapshot) (map[string]models.NoteEntry, []string) {
	history := make(map[string]models.NoteEntry, len(snap))
	var order []string
	if prior != nil {
		for _, e := range prior.Notes {
			if _, dup := history[e.ID]; dup {
				continue
			}
			history[e.ID] = e.Clone()
			order = append(order, e.ID)
		}
	}
	var rest []string
	for id, e := range snap {
		if _, ok := history[id]; ok {
			continue
		}
		history[id] = e.Clone()
		rest = append(rest, id)
	}
	sort.Strings(rest)
	return history, append(order, rest...)
}

// synthesize builds a fresh entry from disk metadata. No expiry is imposed:
// expiry is assigned at creation time only. A file sitting in the archive
// with no history is taken as archived when it was last modified.
func synthesize(o scanner.Observation, opts Options) models.NoteEntry {
	e := models.NoteEntry{
		ID:            o.ID,
		CreatedAt:     o.CreatedAt,
		LastActiveAt:  o.ModifiedAt,
		CachedPreview: preview.FromBody(o.Body, opts.PreviewLength),
		File:          models.FileRef{RelativePath: o.RelativePath},
	}
	if e.LastActiveAt.Before(e.CreatedAt) {
		e.LastActiveAt = e.CreatedAt
	}
	if o.InArchive {
		at := o.ModifiedAt
		e.ArchivedAt = &at
	}
	e.Status = models.StatusFor(e.ArchivedAt)
	return e
}

func inheritLifecycle(e *models.NoteEntry, prior models.NoteEntry) {
	p := prior.Clone()
	e.ArchivedAt = p.ArchivedAt
	e.ExpireAt = p.ExpireAt
	e.Pinned = p.Pinned
	if p.Window != nil {
		e.Window = p.Window
	}
	e.Status = models.StatusFor(e.ArchivedAt)
}

// backfill replaces timestamps a damaged index left zero with at.
func backfill(e *models.NoteEntry, at time.Time) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = at
	}
	if e.LastActiveAt.IsZero() {
		e.LastActiveAt = e.CreatedAt
	}
	if e.ArchivedAt != nil && e.ArchivedAt.IsZero() {
		t := at
		e.ArchivedAt = &t
	}
}

// dedupe removes repeated ids from idx, keeping the first, and returns how
// many were removed.
func dedupe(idx *models.IndexFile) int {
	seen := make(map[string]struct{}, len(idx.Notes))
	kept := idx.Notes[:0]
	removed := 0
	for _, e := range idx.Notes {
		if _, dup := seen[e.ID]; dup {
			removed++
			continue
		}
		seen[e.ID] = struct{}{}
		kept = append(kept, e)
	}
	idx.Notes = kept
	return removed
}
