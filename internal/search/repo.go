package search

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Row is one indexed note.
type Row struct {
	ID           string
	RelativePath string
	Status       string
	Checksum     string
	UpdatedAt    time.Time
}

// Hit is one search result.
type Hit struct {
	ID           string `json:"id"`
	RelativePath string `json:"relativePath"`
	Status       string `json:"status"`
	Snippet      string `json:"snippet"`
}

// Upsert inserts or replaces a note and its full-text entry.
func (db *DB) Upsert(r Row, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("search: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO notes (id, relative_path, status, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			relative_path = excluded.relative_path,
			status        = excluded.status,
			checksum      = excluded.checksum,
			body          = excluded.body,
			updated_at    = excluded.updated_at
	`, r.ID, r.RelativePath, r.Status, r.Checksum, body, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("search: upsert note: %w", err)
	}
	if err := ftsUpsert(tx, r.ID, body); err != nil {
		return err
	}
	return tx.Commit()
}

// SetStatus updates the status and path of an indexed note without
// touching its body.
func (db *DB) SetStatus(id, relPath, status string) error {
	_, err := db.conn.Exec(`UPDATE notes SET status = ?, relative_path = ? WHERE id = ?`, status, relPath, id)
	if err != nil {
		return fmt.Errorf("search: set status: %w", err)
	}
	return nil
}

// Delete removes a note and its full-text entry.
func (db *DB) Delete(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("search: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("search: delete note: %w", err)
	}
	return tx.Commit()
}

// Rows returns every indexed note keyed by id.
func (db *DB) Rows() (map[string]Row, error) {
	rows, err := db.conn.Query(`SELECT id, relative_path, status, checksum, updated_at FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("search: rows: %w", err)
	}
	defer rows.Close()
	out := make(map[string]Row)
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.RelativePath, &r.Status, &r.Checksum, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

// Get returns the indexed row for id, or nil when absent.
func (db *DB) Get(id string) (*Row, error) {
	var r Row
	err := db.conn.QueryRow(`SELECT id, relative_path, status, checksum, updated_at FROM notes WHERE id = ?`, id).
		Scan(&r.ID, &r.RelativePath, &r.Status, &r.Checksum, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search: get: %w", err)
	}
	return &r, nil
}
