// Package noteservice implements the note operations over one application
// root. Every operation reconciles the index against the directory tree
// first, then mutates and persists it as a single unit.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/fleeting/internal/indexstore"
	"github.com/starford/fleeting/internal/metrics"
	"github.com/starford/fleeting/internal/models"
	"github.com/starford/fleeting/internal/preview"
	"github.com/starford/fleeting/internal/reconcile"
	"github.com/starford/fleeting/internal/scanner"
	"github.com/starford/fleeting/internal/search"
	"github.com/starford/fleeting/internal/storage"
)

// DefaultTTL is how long a note stays active without activity.
const DefaultTTL = 7 * 24 * time.Hour

// AppName is written into app.name of new index documents.
const AppName = "fleeting"

// Event kinds passed to a Notifier.
const (
	EventCreated  = "note.created"
	EventUpdated  = "note.updated"
	EventArchived = "note.archived"
	EventRestored = "note.restored"
	EventPinned   = "note.pinned"
	EventIndex    = "index.updated"
	EventRebuilt  = "index.rebuilt"
)

// Notifier receives note events after they are persisted. id is empty for
// index-wide events.
type Notifier func(kind, id string)

// Indexer mirrors the index into a searchable store.
type Indexer interface {
	Sync(fsys *storage.FS, idx *models.IndexFile, logger *slog.Logger) error
	Search(query string, limit int) ([]search.Hit, error)
}

// Option configures a Service.
type Option func(*Service)

// WithTTL sets the activity window assigned on create, edit, touch and restore.
func WithTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

// WithPreviewLength sets the cachedPreview length in runes.
func WithPreviewLength(n int) Option {
	return func(s *Service) { s.previewLen = n }
}

// WithDropMissingArchived enables garbage collection of archived entries
// whose backing file no longer exists.
func WithDropMissingArchived(on bool) Option {
	return func(s *Service) { s.dropMissingArchived = on }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNotifier registers fn for note events.
func WithNotifier(fn Notifier) Option {
	return func(s *Service) { s.notify = fn }
}

// WithIndexer keeps ix in sync after every persisted change.
func WithIndexer(ix Indexer) Option {
	return func(s *Service) { s.indexer = ix }
}

// Service owns the index of one application root. All operations are
// serialised by mu; the last full-document write wins. The search mirror is
// refreshed after mu is released, from a copy of the persisted document.
type Service struct {
	mu      sync.Mutex
	fs      *storage.FS
	store   *indexstore.Store
	snap    reconcile.Snapshot
	pending *models.IndexFile // persisted but not yet mirrored; guarded by mu

	syncMu sync.Mutex // orders indexer syncs

	ttl                 time.Duration
	previewLen          int
	dropMissingArchived bool
	now                 func() time.Time
	logger              *slog.Logger
	metrics             *metrics.Metrics
	notify              Notifier
	indexer             Indexer
}

// EnsureLayout resolves root to an absolute path and creates the notes and
// archive directories beneath it.
func EnsureLayout(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("noteservice: resolve root: %w", err)
	}
	for _, dir := range []string{scanner.NotesDir, scanner.ArchiveDir} {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return "", fmt.Errorf("noteservice: create %s: %w", dir, err)
		}
	}
	return abs, nil
}

// New returns a Service for root, creating its layout when needed.
func New(root string, opts ...Option) (*Service, error) {
	abs, err := EnsureLayout(root)
	if err != nil {
		return nil, err
	}
	fsys, err := storage.NewFS(abs)
	if err != nil {
		return nil, err
	}
	s := &Service{
		fs:         fsys,
		store:      indexstore.New(fsys),
		snap:       reconcile.Snapshot{},
		ttl:        DefaultTTL,
		previewLen: preview.DefaultLength,
		now:        time.Now,
		logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute application root.
func (s *Service) Root() string {
	return s.fs.Root()
}

// FS returns the storage layer rooted at Root.
func (s *Service) FS() *storage.FS {
	return s.fs
}

// Summary reports what one reconciliation pass did.
type Summary struct {
	Path         string `json:"path"` // merge, rebuild or fresh
	Added        int    `json:"added"`
	Relocated    int    `json:"relocated"`
	Missing      int    `json:"missing"`
	Dropped      int    `json:"dropped"`
	Duplicates   int    `json:"duplicates"`
	Skipped      int    `json:"skipped"`
	Salvaged     int    `json:"salvaged,omitempty"`
	Archived     int    `json:"archived"`
	MoveFailures int    `json:"moveFailures"`
	Active       int    `json:"active"`
	Inactive     int    `json:"inactive"`

	changed bool // the merge altered the document
}

// Reconcile scans the tree, merges it into the index, runs the expire pass
// and persists the result. It returns a copy of the persisted document.
func (s *Service) Reconcile(ctx context.Context) (*models.IndexFile, error) {
	defer s.lock()()

	idx, _, err := s.reconcileLocked(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Clone(), nil
}

// Pass runs one reconciliation and reports its counts.
func (s *Service) Pass(ctx context.Context) (Summary, error) {
	defer s.lock()()

	_, sum, err := s.reconcileLocked(ctx)
	return sum, err
}

// Rebuild reconstructs the index from the tree regardless of the state of
// the persisted document, carrying forward whatever history it still holds.
func (s *Service) Rebuild(ctx context.Context) (Summary, error) {
	defer s.lock()()

	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	res, err := scanner.Scan(s.fs)
	if err != nil {
		return Summary{}, err
	}

	var prior *models.IndexFile
	var sum Summary
	idx, err := s.store.Load()
	var perr *indexstore.ParseError
	switch {
	case err == nil:
		prior = idx
	case errors.As(err, &perr):
		prior, sum.Salvaged = s.salvage(perr)
	case !errors.Is(err, fs.ErrNotExist):
		return Summary{}, err
	}

	idx, sum = s.rebuildLocked(prior, res, sum)
	return s.finish(idx, res, sum)
}

func (s *Service) reconcileLocked(ctx context.Context) (*models.IndexFile, Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, Summary{}, err
	}
	res, err := scanner.Scan(s.fs)
	if err != nil {
		return nil, Summary{}, err
	}

	var sum Summary
	idx, err := s.store.Load()
	if err == nil && blank(idx) {
		// Nothing to migrate or merge.
		idx, err = nil, fs.ErrNotExist
	}
	var perr *indexstore.ParseError
	switch {
	case err == nil && idx.Version < models.CurrentVersion:
		s.logger.Info("noteservice: migrating index",
			slog.Int("from", idx.Version),
			slog.Int("to", models.CurrentVersion))
		idx, sum = s.rebuildLocked(idx, res, sum)
	case err == nil:
		rep := reconcile.Merge(idx, s.snap, res.Observations, s.reconcileOptions())
		sum = summarize(metrics.PathMerge, rep)
		sum.changed = rep.Changed()
		if rep.Duplicates > 0 {
			s.logger.Warn("noteservice: removed duplicate entries", slog.Int("count", rep.Duplicates))
		}
	case errors.Is(err, fs.ErrNotExist) && len(res.Observations) == 0:
		idx = &models.IndexFile{
			Version: models.CurrentVersion,
			App:     models.AppInfo{Name: AppName, CreatedAt: s.now()},
			Notes:   []models.NoteEntry{},
		}
		sum.Path = metrics.PathFresh
		s.logger.Info("noteservice: created index", slog.String("path", s.store.Path()))
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Warn("noteservice: index missing, rebuilding from notes", slog.Int("files", len(res.Observations)))
		idx, sum = s.rebuildLocked(nil, res, sum)
	case errors.As(err, &perr):
		s.logger.Warn("noteservice: index unreadable, rebuilding", slog.String("error", perr.Err.Error()))
		var prior *models.IndexFile
		prior, sum.Salvaged = s.salvage(perr)
		idx, sum = s.rebuildLocked(prior, res, sum)
	default:
		return nil, Summary{}, err
	}

	sum, err = s.finish(idx, res, sum)
	if err != nil {
		return nil, Summary{}, err
	}
	return idx, sum, nil
}

// salvage keeps a copy of the unreadable document and recovers what it can.
func (s *Service) salvage(perr *indexstore.ParseError) (*models.IndexFile, int) {
	if p, err := s.store.Preserve(perr.Raw); err != nil {
		s.logger.Warn("noteservice: preserve corrupt index failed", slog.String("error", err.Error()))
	} else {
		s.logger.Info("noteservice: preserved corrupt index", slog.String("path", p))
	}
	prior, dropped := indexstore.Salvage(perr.Raw)
	if dropped > 0 {
		s.logger.Warn("noteservice: salvage dropped entries", slog.Int("count", dropped))
	}
	return prior, len(prior.Notes)
}

func (s *Service) rebuildLocked(prior *models.IndexFile, res *scanner.Result, sum Summary) (*models.IndexFile, Summary) {
	idx, rep := reconcile.Rebuild(prior, s.snap, res.Observations, s.now(), s.reconcileOptions())
	out := summarize(metrics.PathRebuild, rep)
	out.Salvaged = sum.Salvaged
	return idx, out
}

// finish runs the expire pass, persists idx and updates the snapshot.
func (s *Service) finish(idx *models.IndexFile, res *scanner.Result, sum Summary) (Summary, error) {
	for _, sk := range res.Skipped {
		s.logger.Warn("noteservice: skipped file",
			slog.String("path", sk.RelativePath),
			slog.String("error", sk.Err.Error()))
	}
	for _, d := range res.Duplicates {
		s.logger.Warn("noteservice: duplicate note id on disk",
			slog.String("id", d.ID),
			slog.String("path", d.RelativePath),
			slog.Bool("id_from_header", d.FromHeader))
	}
	sum.Skipped = len(res.Skipped)

	trs := s.expire(idx)
	sum.Archived = len(trs)
	for _, tr := range trs {
		if tr.MoveErr != nil {
			sum.MoveFailures++
		}
	}

	if err := s.persist(idx); err != nil {
		return Summary{}, err
	}
	for _, e := range idx.Notes {
		if e.Archived() {
			sum.Inactive++
		} else {
			sum.Active++
		}
	}

	s.metrics.Reconciled(sum.Path)
	s.metrics.SkippedFiles(sum.Skipped)
	s.metrics.Archived(sum.Archived, sum.MoveFailures)
	s.metrics.SetNotes(sum.Active, sum.Inactive)

	for _, tr := range trs {
		s.emit(EventArchived, tr.ID)
	}
	switch {
	case sum.Path == metrics.PathRebuild:
		s.logger.Info("noteservice: index rebuilt",
			slog.Int("notes", len(idx.Notes)),
			slog.Int("salvaged", sum.Salvaged))
		s.emit(EventRebuilt, "")
	case sum.changed || sum.Archived > 0:
		s.logger.Debug("noteservice: index reconciled",
			slog.Int("added", sum.Added),
			slog.Int("relocated", sum.Relocated),
			slog.Int("dropped", sum.Dropped),
			slog.Int("duplicates", sum.Duplicates),
			slog.Int("archived", sum.Archived))
		s.emit(EventIndex, "")
	}
	return sum, nil
}

// persist saves idx, refreshes the last-known-good snapshot and queues a
// copy for the search mirror. Callers hold mu.
func (s *Service) persist(idx *models.IndexFile) error {
	if err := s.store.Save(idx); err != nil {
		return err
	}
	s.snap = reconcile.SnapshotOf(idx)
	if s.indexer != nil {
		s.pending = idx.Clone()
	}
	return nil
}

// lock takes mu and returns its release, which then mirrors whatever was
// persisted in the meantime. Use as `defer s.lock()()`.
func (s *Service) lock() func() {
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.syncSearch()
	}
}

// syncSearch mirrors the latest persisted document into the indexer without
// holding mu. A document superseded before its turn is skipped.
func (s *Service) syncSearch() {
	if s.indexer == nil {
		return
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	idx := s.pending
	s.pending = nil
	s.mu.Unlock()
	if idx == nil {
		return
	}
	if err := s.indexer.Sync(s.fs, idx, s.logger); err != nil {
		s.logger.Warn("noteservice: search sync failed", slog.String("error", err.Error()))
	}
}

func (s *Service) emit(kind, id string) {
	if s.notify != nil {
		s.notify(kind, id)
	}
}

func (s *Service) reconcileOptions() reconcile.Options {
	return reconcile.Options{
		AppName:             AppName,
		PreviewLength:       s.previewLen,
		DropMissingArchived: s.dropMissingArchived,
	}
}

// blank reports whether a decoded document holds neither app metadata nor
// notes, as `{}` does.
func blank(idx *models.IndexFile) bool {
	return len(idx.Notes) == 0 && idx.App == (models.AppInfo{})
}

func summarize(path string, rep reconcile.Report) Summary {
	return Summary{
		Path:       path,
		Added:      len(rep.Added),
		Relocated:  len(rep.Relocated),
		Missing:    len(rep.Missing),
		Dropped:    len(rep.Dropped),
		Duplicates: rep.Duplicates,
	}
}
