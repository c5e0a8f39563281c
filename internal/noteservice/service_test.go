package noteservice

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/fleeting/internal/apperr"
	"github.com/starford/fleeting/internal/header"
	"github.com/starford/fleeting/internal/indexstore"
	"github.com/starford/fleeting/internal/models"
	"github.com/starford/fleeting/internal/search"
	"github.com/starford/fleeting/internal/storage"
)

const week = 7 * 24 * time.Hour

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)}
}

func newService(t *testing.T, root string, clk *fakeClock, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(clk.Now), WithTTL(week)}, opts...)
	svc, err := New(root, opts...)
	require.NoError(t, err)
	return svc
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func fileExists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

func TestNew_CreatesLayout(t *testing.T) {
	root := t.TempDir()
	_, err := New(filepath.Join(root, "data"))
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, "data", "notes"))
	assert.DirExists(t, filepath.Join(root, "data", "archive"))
}

func TestFirstRun_FreshIndexWithoutRebuildStamp(t *testing.T) {
	root := t.TempDir()
	clk := newClock()
	svc := newService(t, root, clk)

	idx, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Nil(t, idx.App.RebuildAt)
	assert.Equal(t, AppName, idx.App.Name)
	assert.True(t, idx.App.CreatedAt.Equal(clk.Now()))
	assert.Empty(t, idx.Notes)
	assert.FileExists(t, filepath.Join(root, indexstore.FileName))
}

func TestEmptyDocumentIsFirstRun(t *testing.T) {
	for _, doc := range []string{`{}`, `{"version": 1, "notes": []}`, "{\"app\": null}\n"} {
		root := t.TempDir()
		clk := newClock()
		writeFile(t, root, indexstore.FileName, doc)

		svc := newService(t, root, clk)
		sum, err := svc.Pass(context.Background())
		require.NoError(t, err, doc)
		assert.Equal(t, "fresh", sum.Path, doc)

		idx, err := svc.Reconcile(context.Background())
		require.NoError(t, err)
		assert.Nil(t, idx.App.RebuildAt, doc)
		assert.Equal(t, AppName, idx.App.Name, doc)
		assert.Equal(t, models.CurrentVersion, idx.Version, doc)
	}
}

func TestLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := newClock()
	svc := newService(t, root, clk)

	id, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)

	idx, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	e := idx.Find(id)
	require.NotNil(t, e)
	assert.Equal(t, models.StatusActive, e.Status)
	require.NotNil(t, e.ExpireAt)
	assert.True(t, e.ExpireAt.Equal(clk.Now().Add(week)))
	assert.Equal(t, "notes/2026-10-17/"+id+".md", e.File.RelativePath)

	clk.Advance(8 * 24 * time.Hour)
	idx, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	e = idx.Find(id)
	assert.Equal(t, models.StatusArchived, e.Status)
	assert.Nil(t, e.ExpireAt)
	require.NotNil(t, e.ArchivedAt)
	assert.True(t, e.ArchivedAt.Equal(clk.Now()))
	assert.Equal(t, "archive/"+id+".md", e.File.RelativePath)
	assert.True(t, fileExists(root, e.File.RelativePath))

	require.NoError(t, svc.Restore(ctx, id))
	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	require.NotNil(t, got.ExpireAt)
	assert.WithinDuration(t, clk.Now().Add(week), *got.ExpireAt, time.Second)
	assert.Equal(t, "notes/2026-10-25/"+id+".md", got.File.RelativePath)
	assert.True(t, fileExists(root, got.File.RelativePath))
}

func TestRestore_ActiveIsNoop(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	svc := newService(t, t.TempDir(), clk)
	id, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)
	before, _ := svc.Get(ctx, id)

	clk.Advance(time.Hour)
	require.NoError(t, svc.Restore(ctx, id))
	after, _ := svc.Get(ctx, id)
	assert.True(t, before.ExpireAt.Equal(*after.ExpireAt))
}

func TestPinnedNoteNeverExpires(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	svc := newService(t, t.TempDir(), clk)
	id, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, svc.SetPinned(ctx, id, true))

	clk.Advance(30 * 24 * time.Hour)
	archived, err := svc.ListArchived(ctx)
	require.NoError(t, err)
	assert.Empty(t, archived)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].Pinned)
	assert.Nil(t, active[0].ArchivedAt)
}

func TestSaveAndLoadBody(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	root := t.TempDir()
	svc := newService(t, root, clk)
	id, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	body := "# Groceries\n\n- milk\n- **eggs**\n"
	require.NoError(t, svc.SaveBody(ctx, id, body))

	got, err := svc.LoadBody(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	e, _ := svc.Get(ctx, id)
	assert.Equal(t, "Groceries milk eggs", e.CachedPreview)
	assert.True(t, e.LastActiveAt.Equal(clk.Now()))
	assert.True(t, e.ExpireAt.Equal(clk.Now().Add(week)))

	raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(e.File.RelativePath)))
	require.NoError(t, err)
	v, ok := header.ParseField(string(raw), header.KeyID)
	assert.True(t, ok)
	assert.Equal(t, id, v)
}

func TestMutationsRejectUnknownAndArchived(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	svc := newService(t, t.TempDir(), clk)

	assert.ErrorIs(t, svc.SaveBody(ctx, "nope", "x"), apperr.ErrNotFound)
	assert.ErrorIs(t, svc.TouchActivity(ctx, "nope"), apperr.ErrNotFound)
	assert.ErrorIs(t, svc.SetPinned(ctx, "nope", true), apperr.ErrNotFound)
	assert.ErrorIs(t, svc.Restore(ctx, "nope"), apperr.ErrNotFound)
	_, err := svc.LoadBody(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	id, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)
	clk.Advance(8 * 24 * time.Hour)

	assert.ErrorIs(t, svc.SaveBody(ctx, id, "x"), apperr.ErrArchived)
	assert.ErrorIs(t, svc.TouchActivity(ctx, id), apperr.ErrArchived)
	assert.ErrorIs(t, svc.SetWindow(ctx, id, models.WindowInfo{Width: 1}), apperr.ErrArchived)

	// Archived notes stay readable.
	_, err = svc.LoadBody(ctx, id)
	assert.NoError(t, err)
}

func TestTouchActivity_ExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	svc := newService(t, t.TempDir(), clk)
	id, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)

	clk.Advance(6 * 24 * time.Hour)
	require.NoError(t, svc.TouchActivity(ctx, id))
	clk.Advance(6 * 24 * time.Hour)

	e, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, e.Status)
}

func TestUnstructuredFileKeepsDelimiterLines(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	svc := newService(t, root, newClock())
	content := "Meeting notes\n---\nnot a header\n---\nafter the rule\n"
	writeFile(t, root, "notes/2026-10-01/plain.md", content)

	got, err := svc.LoadBody(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	e, err := svc.Get(ctx, "plain")
	require.NoError(t, err)
	assert.Nil(t, e.ExpireAt, "discovered files get no expiry")
	assert.Equal(t, models.StatusActive, e.Status)
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := newClock()
	svc := newService(t, root, clk)
	created := clk.Now().Add(-time.Hour)
	writeFile(t, root, "notes/2026-10-16/a.md", header.BuildContent("a", created, "alpha"))
	writeFile(t, root, "notes/2026-10-16/b.md", header.BuildContent("b", created, "beta"))
	_, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)

	first, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	second, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second reconcile changed the index (-first +second):\n%s", diff)
	}
	assert.Len(t, second.Notes, 3)
}

func TestMissingFileIsRetained(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	svc := newService(t, root, newClock())
	id, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)
	e, _ := svc.Get(ctx, id)
	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(e.File.RelativePath))))

	idx, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.NotNil(t, idx.Find(id))
	_, err = svc.LoadBody(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDropMissingArchived(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := newClock()
	svc := newService(t, root, clk, WithDropMissingArchived(true))
	active, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, svc.SetPinned(ctx, active, true))
	gone, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)

	clk.Advance(8 * 24 * time.Hour)
	e, err := svc.Get(ctx, gone)
	require.NoError(t, err)
	require.True(t, e.Archived())
	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(e.File.RelativePath))))
	a, _ := svc.Get(ctx, active)
	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(a.File.RelativePath))))

	idx, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Nil(t, idx.Find(gone))
	assert.NotNil(t, idx.Find(active), "active entries are never dropped")
}

func TestArchiveMoveFailureStillArchives(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := newClock()
	svc := newService(t, root, clk)
	id, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)
	// Occupy the archive destination so the move is refused.
	writeFile(t, root, "archive/"+id+".md", "squatter")

	clk.Advance(8 * 24 * time.Hour)
	sum, err := svc.Pass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Archived)
	assert.Equal(t, 1, sum.MoveFailures)

	e, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, e.Archived())
	assert.Nil(t, e.ExpireAt)
	assert.Equal(t, "notes/2026-10-17/"+id+".md", e.File.RelativePath)

	sum, err = svc.Pass(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Archived)
	assert.Zero(t, sum.MoveFailures)
}

func TestCorruptIndexRebuildPreservesHistory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := newClock()
	created := clk.Now().Add(-48 * time.Hour)
	writeFile(t, root, "notes/2026-10-15/n1.md", header.BuildContent("n1", created, "keep me"))
	writeFile(t, root, "notes/2026-10-15/n2.md", header.BuildContent("n2", created, "new here"))
	corrupt := `{
  "version": 2,
  "app": {"name": "fleeting", "createdAt": "2026-09-01T00:00:00Z"},
  "notes": [
    {"id": "n1", "createdAt": "2026-10-15T09:30:00Z", "lastActiveAt": "2026-10-16T10:00:00Z",
     "status": "active", "pinned": true, "file": {"relativePath": "notes/2026-10-15/n1.md"}},
    {"id": "n2", "createdAt": `
	writeFile(t, root, indexstore.FileName, corrupt)

	svc := newService(t, root, clk)
	idx, err := svc.Reconcile(ctx)
	require.NoError(t, err)

	require.NotNil(t, idx.App.RebuildAt)
	assert.True(t, idx.App.RebuildAt.Equal(clk.Now()))
	assert.True(t, idx.App.CreatedAt.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)))

	n1 := idx.Find("n1")
	require.NotNil(t, n1)
	assert.True(t, n1.Pinned)
	assert.Nil(t, n1.ArchivedAt)
	assert.True(t, n1.LastActiveAt.Equal(time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)))
	assert.NotNil(t, idx.Find("n2"))

	preserved, err := os.ReadFile(filepath.Join(root, indexstore.FileName+indexstore.CorruptSuffix))
	require.NoError(t, err)
	assert.Equal(t, corrupt, string(preserved))

	// A later ordinary pass leaves rebuildAt alone.
	clk.Advance(time.Hour)
	idx, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, idx.App.RebuildAt.Equal(clk.Now().Add(-time.Hour)))
}

func TestCorruptIndexKeepsReadableFieldsOfDamagedEntry(t *testing.T) {
	cases := []struct {
		name        string
		index       string
		wantCreated time.Time
	}{
		{
			name: "truncated inside file",
			index: `{"version": 2, "notes": [
  {"id": "n1", "createdAt": "2026-10-15T09:30:00Z", "lastActiveAt": "2026-10-16T10:00:00Z",
   "expireAt": "2026-10-23T10:00:00Z", "status": "active", "pinned": true,
   "file": {"relativePath": "notes/2026-`,
			wantCreated: time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC),
		},
		{
			name: "unparseable createdAt",
			index: `{"version": 2, "notes": [
  {"id": "n1", "createdAt": "2026-10-15 09:30", "lastActiveAt": "2026-10-16T10:00:00Z",
   "expireAt": "2026-10-23T10:00:00Z", "status": "active", "pinned": true,
   "file": {"relativePath": "notes/2026-10-15/n1.md"}}
]}`,
			// falls back to the header timestamp
			wantCreated: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			clk := newClock()
			created := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
			writeFile(t, root, "notes/2026-10-15/n1.md", header.BuildContent("n1", created, "keep me"))
			writeFile(t, root, indexstore.FileName, tc.index)

			svc := newService(t, root, clk)
			idx, err := svc.Reconcile(context.Background())
			require.NoError(t, err)
			require.NotNil(t, idx.App.RebuildAt)

			n1 := idx.Find("n1")
			require.NotNil(t, n1)
			assert.True(t, n1.Pinned)
			require.NotNil(t, n1.ExpireAt)
			assert.True(t, n1.ExpireAt.Equal(time.Date(2026, 10, 23, 10, 0, 0, 0, time.UTC)))
			assert.True(t, n1.LastActiveAt.Equal(time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)))
			assert.Equal(t, "notes/2026-10-15/n1.md", n1.File.RelativePath)
			assert.Equal(t, models.StatusActive, n1.Status)
			assert.True(t, n1.CreatedAt.Equal(tc.wantCreated), "createdAt = %v", n1.CreatedAt)
		})
	}
}

func TestMissingIndexWithFilesRebuilds(t *testing.T) {
	root := t.TempDir()
	clk := newClock()
	writeFile(t, root, "notes/2026-10-15/a.md", header.BuildContent("a", clk.Now(), "a"))
	writeFile(t, root, "archive/b.md", header.BuildContent("b", clk.Now(), "b"))

	svc := newService(t, root, clk)
	idx, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, idx.App.RebuildAt)
	assert.Equal(t, models.StatusActive, idx.Find("a").Status)
	assert.Equal(t, models.StatusArchived, idx.Find("b").Status)
}

func TestVersion1IndexIsMigrated(t *testing.T) {
	root := t.TempDir()
	clk := newClock()
	writeFile(t, root, "notes/2026-10-10/old.md", header.BuildContent("old", clk.Now().Add(-week), "legacy"))
	writeFile(t, root, indexstore.FileName, `{
  "version": 1,
  "app": {"name": "fleeting", "created_at": "2026-01-01T00:00:00Z"},
  "notes": [{"id": "old", "created_at": "2026-10-10T09:30:00Z", "last_active_at": "2026-10-16T00:00:00Z",
             "expiresAt": "2026-10-23T00:00:00Z", "path": "notes/2026-10-10/old.md"}]
}`)

	svc := newService(t, root, clk)
	idx, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CurrentVersion, idx.Version)
	assert.NotNil(t, idx.App.RebuildAt)
	old := idx.Find("old")
	require.NotNil(t, old)
	require.NotNil(t, old.ExpireAt)
	assert.True(t, old.ExpireAt.Equal(time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)))

	raw, err := os.ReadFile(filepath.Join(root, indexstore.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version": 2`)
	assert.NotContains(t, string(raw), "expiresAt")
}

func TestSetWindowEmbedsPlacement(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	svc := newService(t, root, newClock())
	id, err := svc.CreateNote(ctx, &models.WindowInfo{X: 1, Y: 2, Width: 300, Height: 200})
	require.NoError(t, err)
	require.NoError(t, svc.SaveBody(ctx, id, "body"))
	require.NoError(t, svc.SetWindow(ctx, id, models.WindowInfo{X: 40.5, Y: 60, Width: 320, Height: 240}))

	e, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, e.Window)
	assert.Equal(t, 40.5, e.Window.X)

	raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(e.File.RelativePath)))
	require.NoError(t, err)
	for key, want := range map[string]string{header.KeyX: "40.5", header.KeyY: "60", header.KeyWidth: "320", header.KeyHeight: "240"} {
		got, ok := header.ParseField(string(raw), key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	body, err := svc.LoadBody(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "body", body)
}

func TestSetWindowOnHeaderlessFile(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	svc := newService(t, root, newClock())
	writeFile(t, root, "notes/2026-10-01/loose.md", "loose text\n")

	require.NoError(t, svc.SetWindow(ctx, "loose", models.WindowInfo{Width: 100, Height: 50}))
	body, err := svc.LoadBody(ctx, "loose")
	require.NoError(t, err)
	assert.Equal(t, "loose text\n", body)
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	var events []string
	svc := newService(t, t.TempDir(), clk, WithNotifier(func(kind, id string) {
		events = append(events, kind)
	}))

	id, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, svc.SaveBody(ctx, id, "x"))
	clk.Advance(8 * 24 * time.Hour)
	_, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Restore(ctx, id))

	joined := strings.Join(events, ",")
	for _, want := range []string{EventCreated, EventUpdated, EventArchived, EventRestored} {
		assert.Contains(t, joined, want)
	}
}

func TestDuplicateIndexEntriesNotifyIndexChange(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := newClock()
	writeFile(t, root, "notes/2026-10-17/a.md", header.BuildContent("a", clk.Now(), "a"))
	entry := `{"id": "a", "createdAt": "2026-10-17T09:30:00Z", "lastActiveAt": "2026-10-17T09:30:00Z",
  "expireAt": "2026-10-24T09:30:00Z", "status": "active", "pinned": false,
  "file": {"relativePath": "notes/2026-10-17/a.md"}}`
	writeFile(t, root, indexstore.FileName, `{"version": 2, "app": {"name": "fleeting", "createdAt": "2026-10-01T00:00:00Z"},
"notes": [`+entry+`, `+entry+`]}`)

	var events []string
	svc := newService(t, root, clk, WithNotifier(func(kind, _ string) {
		events = append(events, kind)
	}))

	sum, err := svc.Pass(ctx)
	require.NoError(t, err)
	assert.Equal(t, "merge", sum.Path)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Equal(t, []string{EventIndex}, events)

	events = nil
	_, err = svc.Pass(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDuplicateFileOnDiskIsLogged(t *testing.T) {
	root := t.TempDir()
	clk := newClock()
	writeFile(t, root, "notes/2026-10-17/a.md", header.BuildContent("a", clk.Now(), "first"))
	writeFile(t, root, "archive/copy.md", header.BuildContent("a", clk.Now(), "second"))

	var logs bytes.Buffer
	svc := newService(t, root, clk, WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))
	idx, err := svc.Reconcile(context.Background())
	require.NoError(t, err)

	require.Len(t, idx.Notes, 1)
	assert.Equal(t, "notes/2026-10-17/a.md", idx.Notes[0].File.RelativePath)
	assert.Contains(t, logs.String(), `"path":"archive/copy.md","id_from_header":true`)
}

// recordingIndexer notes every sync and whether the service lock was held.
type recordingIndexer struct {
	svc    *Service
	syncs  []int
	locked bool
}

func (r *recordingIndexer) Sync(_ *storage.FS, idx *models.IndexFile, _ *slog.Logger) error {
	if r.svc.mu.TryLock() {
		r.svc.mu.Unlock()
	} else {
		r.locked = true
	}
	r.syncs = append(r.syncs, len(idx.Notes))
	return nil
}

func (r *recordingIndexer) Search(string, int) ([]search.Hit, error) { return nil, nil }

func TestSearchSyncRunsAfterUnlock(t *testing.T) {
	ctx := context.Background()
	ix := &recordingIndexer{}
	svc := newService(t, t.TempDir(), newClock(), WithIndexer(ix))
	ix.svc = svc

	_, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)
	_, err = svc.CreateNote(ctx, nil)
	require.NoError(t, err)

	assert.False(t, ix.locked, "indexer synced while the service lock was held")
	require.NotEmpty(t, ix.syncs)
	assert.Equal(t, 2, ix.syncs[len(ix.syncs)-1])
}

func TestSearchDisabled(t *testing.T) {
	svc := newService(t, t.TempDir(), newClock())
	_, err := svc.Search(context.Background(), "x", 10)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestRebuildCommandKeepsLifecycle(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	svc := newService(t, t.TempDir(), clk)
	id, err := svc.CreateNote(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, svc.SetPinned(ctx, id, true))

	sum, err := svc.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rebuild", sum.Path)
	assert.Equal(t, 1, sum.Active)

	e, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, e.Pinned)
	require.NotNil(t, e.ExpireAt)
}
