// Package indexstore loads and persists the index document (index.json).
//
// Loading accepts every schema version ever written and returns the current
// shape; saving always rewrites the whole document in the current shape.
package indexstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/starford/fleeting/internal/models"
	"github.com/starford/fleeting/internal/storage"
)

// FileName is the index document name under the application root.
const FileName = "index.json"

// CorruptSuffix is appended to the name of an unreadable index preserved
// before a rebuild.
const CorruptSuffix = ".corrupt"

// ParseError reports an index document that exists but cannot be decoded.
// Raw holds the bytes read so a rebuild can salvage what it can.
type ParseError struct {
	Path string
	Raw  []byte
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("indexstore: parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Store reads and writes one index document through the storage layer.
type Store struct {
	fs   *storage.FS
	name string
}

// New creates a Store for FileName under the storage root.
func New(fsys *storage.FS) *Store {
	return &Store{fs: fsys, name: FileName}
}

// Path returns the document path relative to the root.
func (s *Store) Path() string {
	return s.name
}

// Load reads and decodes the index. A missing document yields an error
// matching fs.ErrNotExist; an undecodable one yields *ParseError.
func (s *Store) Load() (*models.IndexFile, error) {
	raw, err := s.fs.Read(s.name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("indexstore: load: %w", fs.ErrNotExist)
		}
		return nil, fmt.Errorf("indexstore: load: %w", err)
	}
	idx, err := Decode(raw)
	if err != nil {
		return nil, &ParseError{Path: s.name, Raw: raw, Err: err}
	}
	return idx, nil
}

// Save normalizes idx (derived status, archived entries without expiry,
// current version) and rewrites the whole document atomically.
func (s *Store) Save(idx *models.IndexFile) error {
	data, err := Encode(idx)
	if err != nil {
		return fmt.Errorf("indexstore: encode: %w", err)
	}
	if err := s.fs.Write(s.name, data); err != nil {
		return fmt.Errorf("indexstore: save: %w", err)
	}
	return nil
}

// Preserve copies an unreadable document next to the index so the rebuild
// does not destroy the only copy.
func (s *Store) Preserve(raw []byte) (string, error) {
	dst := s.name + CorruptSuffix
	if err := s.fs.Write(dst, raw); err != nil {
		return "", fmt.Errorf("indexstore: preserve: %w", err)
	}
	return dst, nil
}

// Encode renders idx as pretty-printed JSON in the current schema.
func Encode(idx *models.IndexFile) ([]byte, error) {
	idx.Normalize()
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
