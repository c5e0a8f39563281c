package indexstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tailscale/hujson"

	"github.com/starford/fleeting/internal/models"
)

// wireIndex is the outer document shape shared by every version.
type wireIndex struct {
	Version int               `json:"version"`
	App     json.RawMessage   `json:"app"`
	Notes   []json.RawMessage `json:"notes"`
}

// wireApp accepts the current and version 1 spellings.
type wireApp struct {
	Name        string     `json:"name"`
	CreatedAt   *time.Time `json:"createdAt"`
	CreatedAtV1 *time.Time `json:"created_at"`
	RebuildAt   *time.Time `json:"rebuildAt"`
	RebuildAtV1 *time.Time `json:"rebuild_at"`
}

// wireEntry accepts every field spelling written so far. Version 1 stored a
// flat path, an always-present expiry under several names and an archived
// flag; pinned and window did not exist.
type wireEntry struct {
	ID string `json:"id"`

	CreatedAt      *time.Time `json:"createdAt"`
	CreatedAtV1    *time.Time `json:"created_at"`
	LastActiveAt   *time.Time `json:"lastActiveAt"`
	LastActiveAtV1 *time.Time `json:"last_active_at"`
	ExpireAt       *time.Time `json:"expireAt"`
	ExpireAtV1     *time.Time `json:"expire_at"`
	ExpiresAtV1    *time.Time `json:"expiresAt"`
	ArchivedAt     *time.Time `json:"archivedAt"`
	ArchivedAtV1   *time.Time `json:"archived_at"`
	ArchivedV1     *bool      `json:"archived"`

	CachedPreview string `json:"cachedPreview"`
	PreviewV1     string `json:"preview"`

	Status string             `json:"status"`
	Pinned bool               `json:"pinned"`
	Window *models.WindowInfo `json:"window"`
	File   json.RawMessage    `json:"file"`
	PathV1 string             `json:"path"`
}

type wireFile struct {
	RelativePath   string `json:"relativePath"`
	RelativePathV1 string `json:"relative_path"`
}

// Decode parses a document of any supported version into the current shape.
// It fails on the first malformed part. The returned Version is the one the
// document was written with (1 when untagged) so callers can detect a
// migration; Save always writes CurrentVersion.
func Decode(raw []byte) (*models.IndexFile, error) {
	var w wireIndex
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.Version > models.CurrentVersion {
		return nil, fmt.Errorf("unsupported index version %d", w.Version)
	}
	app, err := decodeApp(w.App)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	version := w.Version
	if version == 0 {
		version = 1
	}
	idx := &models.IndexFile{Version: version, App: app, Notes: make([]models.NoteEntry, 0, len(w.Notes))}
	for i, rawEntry := range w.Notes {
		e, err := decodeEntry(rawEntry)
		if err != nil {
			return nil, fmt.Errorf("notes[%d]: %w", i, err)
		}
		idx.Notes = append(idx.Notes, e)
	}
	return idx, nil
}

// Salvage recovers whatever it can from a damaged document. Comments and
// trailing commas are tolerated. Entries are read field by field: a value
// that does not decode is skipped, and an entry cut short by truncation keeps
// the fields read before the damage. Salvaged entries need only an id; a
// missing createdAt is left zero for the rebuild to fill from disk. It never
// fails; dropped counts the array elements that could not be recovered.
func Salvage(raw []byte) (idx *models.IndexFile, dropped int) {
	src := raw
	if std, err := hujson.Standardize(bytes.Clone(raw)); err == nil {
		src = std
	}

	idx = &models.IndexFile{Version: models.CurrentVersion, Notes: []models.NoteEntry{}}
	st := streamIndex(src)
	if app, err := decodeApp(st.app); err == nil {
		idx.App = app
	}
	dropped = st.skipped
	for _, w := range st.notes {
		rel, _ := decodeFile(w.File)
		e, err := w.entry(rel)
		if err != nil {
			dropped++
			continue
		}
		idx.Notes = append(idx.Notes, e)
	}
	return idx, dropped
}

// streamed is what streamIndex read before the first syntax error.
type streamed struct {
	app     json.RawMessage
	notes   []wireEntry
	skipped int // notes elements that were not objects
}

// streamIndex walks the top-level object token by token and keeps every
// value seen before the first syntax error, including the leading fields of
// a note entry the error falls inside.
func streamIndex(src []byte) streamed {
	var st streamed
	dec := json.NewDecoder(bytes.NewReader(src))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return st
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return st
		}
		key, _ := tok.(string)
		switch key {
		case "notes":
			if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
				return st
			}
			for dec.More() {
				w, isObject, err := streamEntry(dec)
				switch {
				case isObject:
					st.notes = append(st.notes, w)
				case err == nil:
					st.skipped++
				}
				if err != nil {
					return st
				}
			}
			if _, err := dec.Token(); err != nil {
				return st
			}
		case "app":
			var app json.RawMessage
			if err := dec.Decode(&app); err != nil {
				return st
			}
			st.app = app
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return st
			}
		}
	}
	return st
}

// streamEntry reads one notes element. isObject is false for scalars and
// arrays, which are consumed and ignored. On a syntax error w holds the
// fields read so far.
func streamEntry(dec *json.Decoder) (w wireEntry, isObject bool, err error) {
	tok, err := dec.Token()
	if err != nil {
		return w, false, err
	}
	switch tok {
	case json.Delim('{'):
	case json.Delim('['):
		return w, false, skipNested(dec)
	default:
		return w, false, nil
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return w, true, err
		}
		key, _ := tok.(string)
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return w, true, err
		}
		setField(&w, key, v)
	}
	_, err = dec.Token()
	return w, true, err
}

// skipNested consumes tokens up to the close of an already opened array.
func skipNested(dec *json.Decoder) error {
	for depth := 1; depth > 0; {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch tok {
		case json.Delim('['), json.Delim('{'):
			depth++
		case json.Delim(']'), json.Delim('}'):
			depth--
		}
	}
	return nil
}

// setField applies one key of an entry object to w. A value that does not
// decode into its field leaves w untouched.
func setField(w *wireEntry, key string, v json.RawMessage) {
	one, err := json.Marshal(map[string]json.RawMessage{key: v})
	if err != nil {
		return
	}
	var check wireEntry
	if json.Unmarshal(one, &check) != nil {
		return
	}
	_ = json.Unmarshal(one, w)
}

func decodeApp(raw json.RawMessage) (models.AppInfo, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return models.AppInfo{}, nil
	}
	var a wireApp
	if err := json.Unmarshal(raw, &a); err != nil {
		return models.AppInfo{}, err
	}
	info := models.AppInfo{Name: a.Name, RebuildAt: firstTime(a.RebuildAt, a.RebuildAtV1)}
	if t := firstTime(a.CreatedAt, a.CreatedAtV1); t != nil {
		info.CreatedAt = *t
	}
	return info, nil
}

// decodeEntry is the strict path: the entry must decode whole and carry
// both id and createdAt.
func decodeEntry(raw json.RawMessage) (models.NoteEntry, error) {
	var w wireEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return models.NoteEntry{}, err
	}
	rel, err := decodeFile(w.File)
	if err != nil {
		return models.NoteEntry{}, fmt.Errorf("note %s: file: %w", w.ID, err)
	}
	e, err := w.entry(rel)
	if err != nil {
		return models.NoteEntry{}, err
	}
	if e.CreatedAt.IsZero() {
		return models.NoteEntry{}, fmt.Errorf("note %s: missing createdAt", w.ID)
	}
	return e, nil
}

// entry converts w to the current shape with rel as its file path. Only the
// id is required.
func (w *wireEntry) entry(rel string) (models.NoteEntry, error) {
	if strings.TrimSpace(w.ID) == "" {
		return models.NoteEntry{}, errors.New("missing id")
	}
	e := models.NoteEntry{
		ID:            w.ID,
		ExpireAt:      firstTime(w.ExpireAt, w.ExpireAtV1, w.ExpiresAtV1),
		ArchivedAt:    firstTime(w.ArchivedAt, w.ArchivedAtV1),
		CachedPreview: w.CachedPreview,
		Pinned:        w.Pinned,
		Window:        w.Window,
	}
	if t := firstTime(w.CreatedAt, w.CreatedAtV1); t != nil {
		e.CreatedAt = *t
	}
	e.LastActiveAt = e.CreatedAt
	if t := firstTime(w.LastActiveAt, w.LastActiveAtV1); t != nil {
		e.LastActiveAt = *t
	}
	if e.CachedPreview == "" {
		e.CachedPreview = w.PreviewV1
	}
	if e.ArchivedAt == nil && ((w.ArchivedV1 != nil && *w.ArchivedV1) || w.Status == string(models.StatusArchived)) {
		at := e.LastActiveAt
		if e.ExpireAt != nil {
			at = *e.ExpireAt
		}
		e.ArchivedAt = &at
	}
	if e.ArchivedAt != nil {
		e.ExpireAt = nil
	}
	if rel == "" {
		rel = w.PathV1
	}
	e.File.RelativePath = rel
	e.Status = models.StatusFor(e.ArchivedAt)
	return e, nil
}

// decodeFile accepts {"relativePath": "..."} and the version 1 bare string.
func decodeFile(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var f wireFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", err
	}
	if f.RelativePath != "" {
		return f.RelativePath, nil
	}
	return f.RelativePathV1, nil
}

func firstTime(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil {
			v := *t
			return &v
		}
	}
	return nil
}
