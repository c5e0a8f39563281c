// Package testutil provides shared test helpers for setting up note roots and
// search databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/fleeting/internal/noteservice"
	"github.com/starford/fleeting/internal/search"
)

// TestDB creates a temporary SQLite search database that is automatically cleaned up.
func TestDB(t *testing.T) *search.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "fleeting-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := search.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestService creates a note service over a temporary root, wired to a
// temporary search database. opts are applied after the indexer.
func TestService(t *testing.T, opts ...noteservice.Option) *noteservice.Service {
	t.Helper()
	all := append([]noteservice.Option{noteservice.WithIndexer(TestDB(t))}, opts...)
	svc, err := noteservice.New(t.TempDir(), all...)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}
