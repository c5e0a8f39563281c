package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/fleeting/internal/apperr"
	"github.com/starford/fleeting/internal/header"
	"github.com/starford/fleeting/internal/lifecycle"
	"github.com/starford/fleeting/internal/models"
	"github.com/starford/fleeting/internal/preview"
	"github.com/starford/fleeting/internal/scanner"
	"github.com/starford/fleeting/internal/search"
	"github.com/starford/fleeting/internal/storage"
)

// CreateNote writes a new empty note under today's bucket and indexes it as
// active with expireAt = now + TTL. placement may be nil.
func (s *Service) CreateNote(ctx context.Context, placement *models.WindowInfo) (string, error) {
	defer s.lock()()

	idx, _, err := s.reconcileLocked(ctx)
	if err != nil {
		return "", err
	}

	now := s.now()
	id := uuid.NewString()
	rel := bucketPath(now, id+scanner.Ext)
	if exists, err := s.fs.Exists(rel); err != nil {
		return "", err
	} else if exists {
		return "", fmt.Errorf("noteservice: create %s: %w", rel, apperr.ErrAlreadyExists)
	}

	content := header.BuildContent(id, now, "")
	if placement != nil {
		content = embedWindow(content, *placement)
	}
	if err := s.fs.Write(rel, []byte(content)); err != nil {
		return "", err
	}

	e := models.NoteEntry{
		ID:        id,
		CreatedAt: now,
		File:      models.FileRef{RelativePath: rel},
	}
	if placement != nil {
		w := *placement
		e.Window = &w
	}
	lifecycle.Touch(&e, now, s.ttl)
	idx.Notes = append(idx.Notes, e)

	if err := s.persist(idx); err != nil {
		return "", err
	}
	s.logger.Info("noteservice: note created", slog.String("id", id), slog.String("path", rel))
	s.emit(EventCreated, id)
	return id, nil
}

// LoadBody returns the body of a note without its header. It fails with
// apperr.ErrNotFound when the id is unknown or its file is gone.
func (s *Service) LoadBody(ctx context.Context, id string) (string, error) {
	defer s.lock()()

	idx, _, err := s.reconcileLocked(ctx)
	if err != nil {
		return "", err
	}
	e := idx.Find(id)
	if e == nil {
		return "", fmt.Errorf("noteservice: note %q: %w", id, apperr.ErrNotFound)
	}
	data, err := s.fs.Read(e.File.RelativePath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("noteservice: note %q file %s: %w", id, e.File.RelativePath, apperr.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return header.ExtractBody(string(data)), nil
}

// SaveBody rewrites the note file with a canonical header and body, then
// refreshes lastActiveAt, expireAt and cachedPreview. Archived notes are
// rejected with apperr.ErrArchived.
func (s *Service) SaveBody(ctx context.Context, id, body string) error {
	defer s.lock()()

	idx, e, err := s.activeEntry(ctx, id)
	if err != nil {
		return err
	}

	content := header.BuildContent(e.ID, e.CreatedAt, body)
	if e.Window != nil {
		content = embedWindow(content, *e.Window)
	}
	if err := s.fs.Write(e.File.RelativePath, []byte(content)); err != nil {
		return err
	}

	lifecycle.Touch(e, s.now(), s.ttl)
	e.CachedPreview = preview.FromBody(body, s.previewLen)
	if err := s.persist(idx); err != nil {
		return err
	}
	s.emit(EventUpdated, id)
	return nil
}

// TouchActivity records activity on an active note.
func (s *Service) TouchActivity(ctx context.Context, id string) error {
	defer s.lock()()

	idx, e, err := s.activeEntry(ctx, id)
	if err != nil {
		return err
	}
	lifecycle.Touch(e, s.now(), s.ttl)
	return s.persist(idx)
}

// SetPinned sets the pin flag. It applies to archived notes too; pinning
// does not restore them.
func (s *Service) SetPinned(ctx context.Context, id string, pinned bool) error {
	defer s.lock()()

	idx, _, err := s.reconcileLocked(ctx)
	if err != nil {
		return err
	}
	e := idx.Find(id)
	if e == nil {
		return fmt.Errorf("noteservice: note %q: %w", id, apperr.ErrNotFound)
	}
	if !lifecycle.SetPinned(e, pinned) {
		return nil
	}
	if err := s.persist(idx); err != nil {
		return err
	}
	s.emit(EventPinned, id)
	return nil
}

// Restore returns an archived note to active and moves its file back out of
// the archive into today's bucket. Restoring an active note is a no-op.
// A failed move is logged; the note is restored where it lies.
func (s *Service) Restore(ctx context.Context, id string) error {
	defer s.lock()()

	idx, _, err := s.reconcileLocked(ctx)
	if err != nil {
		return err
	}
	e := idx.Find(id)
	if e == nil {
		return fmt.Errorf("noteservice: note %q: %w", id, apperr.ErrNotFound)
	}
	now := s.now()
	if !lifecycle.Restore(e, now, s.ttl) {
		return nil
	}

	if inArchive(e.File.RelativePath) {
		to := bucketPath(now, path.Base(e.File.RelativePath))
		if err := s.fs.Move(e.File.RelativePath, to); err != nil {
			s.logger.Warn("noteservice: restore move failed",
				slog.String("id", id),
				slog.String("path", e.File.RelativePath),
				slog.String("error", err.Error()))
		} else {
			e.File.RelativePath = to
		}
	}

	if err := s.persist(idx); err != nil {
		return err
	}
	s.metrics.Restored()
	s.logger.Info("noteservice: note restored", slog.String("id", id))
	s.emit(EventRestored, id)
	return nil
}

// SetWindow stores the placement on the entry and embeds it in the note
// header. Archived notes are rejected with apperr.ErrArchived.
func (s *Service) SetWindow(ctx context.Context, id string, w models.WindowInfo) error {
	defer s.lock()()

	idx, e, err := s.activeEntry(ctx, id)
	if err != nil {
		return err
	}

	data, err := s.fs.Read(e.File.RelativePath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	content := string(data)
	if _, ok := header.ParseField(content, header.KeyID); !ok {
		// Placement keys alone would not form a recognizable header.
		content = header.BuildContent(e.ID, e.CreatedAt, header.ExtractBody(content))
	}
	if err := s.fs.Write(e.File.RelativePath, []byte(embedWindow(content, w))); err != nil {
		return err
	}

	e.Window = &w
	if err := s.persist(idx); err != nil {
		return err
	}
	s.emit(EventUpdated, id)
	return nil
}

// Get returns a copy of one entry.
func (s *Service) Get(ctx context.Context, id string) (models.NoteEntry, error) {
	defer s.lock()()

	idx, _, err := s.reconcileLocked(ctx)
	if err != nil {
		return models.NoteEntry{}, err
	}
	e := idx.Find(id)
	if e == nil {
		return models.NoteEntry{}, fmt.Errorf("noteservice: note %q: %w", id, apperr.ErrNotFound)
	}
	return e.Clone(), nil
}

// ListActive returns copies of all active entries in index order.
func (s *Service) ListActive(ctx context.Context) ([]models.NoteEntry, error) {
	return s.list(ctx, models.StatusActive)
}

// ListArchived returns copies of all archived entries in index order.
func (s *Service) ListArchived(ctx context.Context) ([]models.NoteEntry, error) {
	return s.list(ctx, models.StatusArchived)
}

func (s *Service) list(ctx context.Context, status models.Status) ([]models.NoteEntry, error) {
	defer s.lock()()

	idx, _, err := s.reconcileLocked(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.NoteEntry{}
	for _, e := range idx.Notes {
		if models.StatusFor(e.ArchivedAt) == status {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// Search queries the full-text mirror. It fails with apperr.ErrInvalid when
// no indexer is configured or the query is blank.
func (s *Service) Search(_ context.Context, query string, limit int) ([]search.Hit, error) {
	if s.indexer == nil {
		return nil, fmt.Errorf("noteservice: search disabled: %w", apperr.ErrInvalid)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("noteservice: empty query: %w", apperr.ErrInvalid)
	}
	hits, err := s.indexer.Search(query, limit)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	return hits, nil
}

// activeEntry reconciles and returns the entry for id, rejecting unknown
// and archived notes.
func (s *Service) activeEntry(ctx context.Context, id string) (*models.IndexFile, *models.NoteEntry, error) {
	idx, _, err := s.reconcileLocked(ctx)
	if err != nil {
		return nil, nil, err
	}
	e := idx.Find(id)
	if e == nil {
		return nil, nil, fmt.Errorf("noteservice: note %q: %w", id, apperr.ErrNotFound)
	}
	if e.Archived() {
		return nil, nil, fmt.Errorf("noteservice: note %q: %w", id, apperr.ErrArchived)
	}
	return idx, e, nil
}

// expire runs the lifecycle pass, relocating archived files into archive/.
func (s *Service) expire(idx *models.IndexFile) []lifecycle.Transition {
	trs := lifecycle.Expire(idx, s.now(), archiver{fs: s.fs})
	for _, tr := range trs {
		if tr.MoveErr != nil {
			s.logger.Warn("noteservice: archive move failed",
				slog.String("id", tr.ID),
				slog.String("path", tr.From),
				slog.String("error", tr.MoveErr.Error()))
			continue
		}
		s.logger.Info("noteservice: note archived", slog.String("id", tr.ID), slog.String("path", tr.To))
	}
	return trs
}

type archiver struct {
	fs *storage.FS
}

// Archive moves the backing file to archive/<filename>.
func (a archiver) Archive(e *models.NoteEntry) (string, error) {
	from := e.File.RelativePath
	if from == "" {
		return "", fmt.Errorf("noteservice: note %q has no file", e.ID)
	}
	if inArchive(from) {
		return from, nil
	}
	to := path.Join(scanner.ArchiveDir, path.Base(from))
	if err := a.fs.Move(from, to); err != nil {
		return "", err
	}
	return to, nil
}

func inArchive(rel string) bool {
	return strings.HasPrefix(rel, scanner.ArchiveDir+"/")
}

func bucketPath(t time.Time, name string) string {
	return path.Join(scanner.NotesDir, t.Format(time.DateOnly), name)
}

func embedWindow(content string, w models.WindowInfo) string {
	content = header.UpdateField(content, header.KeyX, formatFloat(w.X))
	content = header.UpdateField(content, header.KeyY, formatFloat(w.Y))
	content = header.UpdateField(content, header.KeyWidth, formatFloat(w.Width))
	return header.UpdateField(content, header.KeyHeight, formatFloat(w.Height))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
