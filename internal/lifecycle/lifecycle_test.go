package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/starford/fleeting/internal/models"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

const ttl = 7 * 24 * time.Hour

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

type fakeArchiver struct {
	err   error
	calls []string
}

func (f *fakeArchiver) Archive(e *models.NoteEntry) (string, error) {
	f.calls = append(f.calls, e.ID)
	if f.err != nil {
		return "", f.err
	}
	return "archive/" + e.ID + ".md", nil
}

func TestExpired(t *testing.T) {
	cases := []struct {
		name string
		e    models.NoteEntry
		want bool
	}{
		{"past", models.NoteEntry{ExpireAt: at(-time.Second)}, true},
		{"exactly now", models.NoteEntry{ExpireAt: at(0)}, false},
		{"future", models.NoteEntry{ExpireAt: at(time.Hour)}, false},
		{"no expiry", models.NoteEntry{}, false},
		{"pinned", models.NoteEntry{ExpireAt: at(-ttl), Pinned: true}, false},
		{"already archived", models.NoteEntry{ExpireAt: at(-ttl), ArchivedAt: at(-ttl)}, false},
	}
	for _, tc := range cases {
		if got := Expired(&tc.e, now); got != tc.want {
			t.Errorf("%s: Expired = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestExpire_ArchivesAndClearsExpiry(t *testing.T) {
	idx := &models.IndexFile{Notes: []models.NoteEntry{
		{ID: "old", ExpireAt: at(-time.Hour), File: models.FileRef{RelativePath: "notes/d/old.md"}},
		{ID: "fresh", ExpireAt: at(time.Hour)},
	}}
	a := &fakeArchiver{}
	trs := Expire(idx, now, a)

	if len(trs) != 1 || trs[0].ID != "old" {
		t.Fatalf("transitions = %+v", trs)
	}
	old := idx.Find("old")
	if old.ArchivedAt == nil || !old.ArchivedAt.Equal(now) {
		t.Errorf("archivedAt = %v, want now", old.ArchivedAt)
	}
	if old.ExpireAt != nil {
		t.Errorf("expireAt = %v, want nil", old.ExpireAt)
	}
	if old.File.RelativePath != "archive/old.md" || trs[0].From != "notes/d/old.md" {
		t.Errorf("file = %q, transition = %+v", old.File.RelativePath, trs[0])
	}
	if idx.Find("fresh").ArchivedAt != nil {
		t.Error("fresh entry archived")
	}
}

func TestExpire_PinImmunity(t *testing.T) {
	idx := &models.IndexFile{Notes: []models.NoteEntry{
		{ID: "p", Pinned: true, ExpireAt: at(-30 * 24 * time.Hour)},
	}}
	a := &fakeArchiver{}
	if trs := Expire(idx, now, a); len(trs) != 0 {
		t.Fatalf("transitions = %+v", trs)
	}
	if idx.Notes[0].ArchivedAt != nil {
		t.Error("pinned entry archived")
	}
	if len(a.calls) != 0 {
		t.Errorf("archiver called for pinned entry: %v", a.calls)
	}
}

func TestExpire_MoveFailureStillArchives(t *testing.T) {
	idx := &models.IndexFile{Notes: []models.NoteEntry{
		{ID: "x", ExpireAt: at(-time.Minute), File: models.FileRef{RelativePath: "notes/d/x.md"}},
	}}
	boom := errors.New("disk full")
	trs := Expire(idx, now, &fakeArchiver{err: boom})

	if len(trs) != 1 || !errors.Is(trs[0].MoveErr, boom) {
		t.Fatalf("transitions = %+v", trs)
	}
	e := idx.Notes[0]
	if e.ArchivedAt == nil || e.ExpireAt != nil {
		t.Errorf("entry = %+v, want archived without expiry", e)
	}
	if e.File.RelativePath != "notes/d/x.md" {
		t.Errorf("path changed despite failed move: %q", e.File.RelativePath)
	}

	// A second pass must not retry.
	a := &fakeArchiver{}
	if trs := Expire(idx, now.Add(time.Hour), a); len(trs) != 0 || len(a.calls) != 0 {
		t.Errorf("second pass retried: %+v %v", trs, a.calls)
	}
}

func TestRestore(t *testing.T) {
	e := models.NoteEntry{ArchivedAt: at(-time.Hour)}
	if !Restore(&e, now, ttl) {
		t.Fatal("Restore reported no change")
	}
	if e.ArchivedAt != nil {
		t.Error("archivedAt not cleared")
	}
	if !e.LastActiveAt.Equal(now) || e.ExpireAt == nil || !e.ExpireAt.Equal(now.Add(ttl)) {
		t.Errorf("entry = %+v", e)
	}
	if models.StatusFor(e.ArchivedAt) != models.StatusActive {
		t.Error("restored entry should derive active")
	}
}

func TestRestore_ActiveIsNoop(t *testing.T) {
	exp := at(time.Hour)
	e := models.NoteEntry{ExpireAt: exp}
	if Restore(&e, now, ttl) {
		t.Fatal("Restore of active entry reported a change")
	}
	if e.ExpireAt != exp {
		t.Error("active entry modified")
	}
}

func TestTouch(t *testing.T) {
	e := models.NoteEntry{LastActiveAt: now.Add(-ttl)}
	Touch(&e, now, ttl)
	if !e.LastActiveAt.Equal(now) || !e.ExpireAt.Equal(now.Add(ttl)) {
		t.Errorf("entry = %+v", e)
	}
}

func TestSetPinned_DoesNotTouchLifecycle(t *testing.T) {
	exp := at(-time.Hour)
	e := models.NoteEntry{ExpireAt: exp}
	if !SetPinned(&e, true) || !e.Pinned {
		t.Fatal("pin not set")
	}
	if e.ExpireAt != exp || e.ArchivedAt != nil {
		t.Errorf("pin changed lifecycle fields: %+v", e)
	}
	if SetPinned(&e, true) {
		t.Error("second pin reported a change")
	}
}
