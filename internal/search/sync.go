package search

import (
	"log/slog"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/starford/fleeting/internal/header"
	"github.com/starford/fleeting/internal/models"
	"github.com/starford/fleeting/internal/storage"
)

// Sync brings the database in line with idx:
//   - entries whose file content changed are re-read and upserted
//   - entries whose status or path changed are updated in place
//   - ids no longer in idx are removed
//
// Unreadable files are logged and left as they were.
func (db *DB) Sync(fsys *storage.FS, idx *models.IndexFile, logger *slog.Logger) error {
	known, err := db.Rows()
	if err != nil {
		return err
	}

	live := make(map[string]struct{}, len(idx.Notes))
	for _, e := range idx.Notes {
		live[e.ID] = struct{}{}
		status := string(models.StatusFor(e.ArchivedAt))

		data, err := fsys.Read(e.File.RelativePath)
		if err != nil {
			logger.Debug("search: read failed", slog.String("id", e.ID), slog.String("error", err.Error()))
			continue
		}
		cs := checksum(data)
		if prev, ok := known[e.ID]; ok && prev.Checksum == cs {
			if prev.Status != status || prev.RelativePath != e.File.RelativePath {
				if err := db.SetStatus(e.ID, e.File.RelativePath, status); err != nil {
					logger.Warn("search: status update failed", slog.String("id", e.ID), slog.String("error", err.Error()))
				}
			}
			continue
		}

		row := Row{
			ID:           e.ID,
			RelativePath: e.File.RelativePath,
			Status:       status,
			Checksum:     cs,
			UpdatedAt:    e.LastActiveAt,
		}
		if err := db.Upsert(row, header.ExtractBody(string(data))); err != nil {
			logger.Warn("search: index failed", slog.String("id", e.ID), slog.String("error", err.Error()))
		} else {
			logger.Debug("search: indexed", slog.String("id", e.ID))
		}
	}

	for id := range known {
		if _, ok := live[id]; ok {
			continue
		}
		if err := db.Delete(id); err != nil {
			logger.Warn("search: delete failed", slog.String("id", id), slog.String("error", err.Error()))
		} else {
			logger.Debug("search: removed stale", slog.String("id", id))
		}
	}
	return nil
}

func checksum(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}
