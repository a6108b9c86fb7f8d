package entities_test

import (
	"path/filepath"
	"testing"

	"github.com/hearthhub/hearthd/internal/schema"
	"github.com/hearthhub/hearthd/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := schema.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db)
}
