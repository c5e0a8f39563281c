// Package scanner enumerates note files under the application root and
// reports one observation per distinct note id. It never modifies files.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/fleeting/internal/header"
	"github.com/starford/fleeting/internal/storage"
)

// Layout under the application root.
const (
	NotesDir   = "notes"
	ArchiveDir = "archive"
	Ext        = ".md"
)

// ErrMalformedHeader marks a file whose header carries an unusable id.
var ErrMalformedHeader = errors.New("malformed header")

// Observation is what the scanner learned about one note file.
type Observation struct {
	ID           string
	RelativePath string // slash-separated, relative to the application root
	CreatedAt    time.Time
	ModifiedAt   time.Time
	InArchive    bool
	FromHeader   bool // ID was read from the header rather than the file name
	Body         string
}

// Skipped is a file the scanner could not turn into an observation.
type Skipped struct {
	RelativePath string
	Err          error
}

// Result is the outcome of one scan.
type Result struct {
	Observations []Observation
	Skipped      []Skipped
	Duplicates   []Observation // later files repeating an id already seen
}

// Scan walks notes/ and then archive/ in lexical order. The first file seen
// for an id wins; later ones are reported as duplicates and otherwise ignored.
// Missing directories are treated as empty.
func Scan(fsys *storage.FS) (*Result, error) {
	res := &Result{}
	seen := make(map[string]struct{})

	for _, dir := range []string{NotesDir, ArchiveDir} {
		base, err := fsys.Abs(dir)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(base); errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("scanner: stat %s: %w", dir, err)
		}

		inArchive := dir == ArchiveDir
		err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				if p == base {
					return walkErr
				}
				rel, _ := fsys.Rel(p)
				res.Skipped = append(res.Skipped, Skipped{RelativePath: rel, Err: walkErr})
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() || !strings.EqualFold(filepath.Ext(d.Name()), Ext) {
				return nil
			}
			rel, err := fsys.Rel(p)
			if err != nil {
				return nil
			}

			obs, err := observe(p, rel, d)
			if err != nil {
				res.Skipped = append(res.Skipped, Skipped{RelativePath: rel, Err: err})
				return nil
			}
			obs.InArchive = inArchive
			if _, dup := seen[obs.ID]; dup {
				res.Duplicates = append(res.Duplicates, obs)
				return nil
			}
			seen[obs.ID] = struct{}{}
			res.Observations = append(res.Observations, obs)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanner: walk %s: %w", dir, err)
		}
	}
	return res, nil
}

func observe(abs, rel string, d fs.DirEntry) (Observation, error) {
	info, err := d.Info()
	if err != nil {
		return Observation{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return Observation{}, err
	}
	content := string(data)

	obs := Observation{
		RelativePath: rel,
		ModifiedAt:   info.ModTime(),
		Body:         header.ExtractBody(content),
	}

	if id, ok := header.ParseField(content, header.KeyID); ok {
		if !ValidID(id) {
			return Observation{}, fmt.Errorf("%w: id %q", ErrMalformedHeader, id)
		}
		obs.ID = id
		obs.FromHeader = true
	} else {
		obs.ID = strings.TrimSuffix(path.Base(rel), path.Ext(rel))
		if !ValidID(obs.ID) {
			return Observation{}, fmt.Errorf("%w: file name %q", ErrMalformedHeader, path.Base(rel))
		}
	}

	obs.CreatedAt = createdAt(abs, content, info)
	return obs, nil
}

// createdAt prefers the header timestamp, then the filesystem birth time,
// then the modification time.
func createdAt(abs, content string, info fs.FileInfo) time.Time {
	if v, ok := header.ParseField(content, header.KeyCreatedAt); ok {
		if t, ok := header.ParseTime(v); ok {
			return t
		}
	}
	if t, ok := birthTime(abs); ok {
		return t
	}
	return info.ModTime()
}

// ValidID reports whether id can name a note file.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, " \t\r\n/\\")
}
