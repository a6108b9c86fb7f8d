package search_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hearthhub/hearthd/internal/entities"
	"github.com/hearthhub/hearthd/internal/schema"
	"github.com/hearthhub/hearthd/internal/search"
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

func TestSearch_UnavailableWithoutIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := search.Search(ctx, s, "hello", "", 0)
	if !errors.Is(err, search.ErrSearchUnavailable) {
		t.Errorf("expected ErrSearchUnavailable, got %v", err)
	}
}

func TestSearch_MatchesContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := schema.EnsureSearchIndex(s.Raw()); err != nil {
		t.Fatalf("EnsureSearchIndex() failed: %v", err)
	}

	ch, _, err := entities.CreateChannel(ctx, s, "general", "")
	if err != nil {
		t.Fatalf("CreateChannel() failed: %v", err)
	}
	tp, _, err := entities.CreateTopic(ctx, s, ch.ID, "Topic")
	if err != nil {
		t.Fatalf("CreateTopic() failed: %v", err)
	}
	if _, _, err := entities.CreateMessage(ctx, s, tp.ID, "alice", "the lighthouse keeper"); err != nil {
		t.Fatalf("CreateMessage() failed: %v", err)
	}
	if _, _, err := entities.CreateMessage(ctx, s, tp.ID, "bob", "totally unrelated"); err != nil {
		t.Fatalf("CreateMessage() failed: %v", err)
	}

	results, hasMore, err := search.Search(ctx, s, "lighthouse", "", 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if hasMore {
		t.Error("expected hasMore=false for a single match under the limit")
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Message.ContentRaw != "the lighthouse keeper" {
		t.Errorf("ContentRaw = %q, want %q", results[0].Message.ContentRaw, "the lighthouse keeper")
	}
}

func TestSearch_ScopedToTopic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := schema.EnsureSearchIndex(s.Raw()); err != nil {
		t.Fatalf("EnsureSearchIndex() failed: %v", err)
	}

	ch, _, err := entities.CreateChannel(ctx, s, "general", "")
	if err != nil {
		t.Fatalf("CreateChannel() failed: %v", err)
	}
	tpA, _, err := entities.CreateTopic(ctx, s, ch.ID, "Topic A")
	if err != nil {
		t.Fatalf("CreateTopic() failed: %v", err)
	}
	tpB, _, err := entities.CreateTopic(ctx, s, ch.ID, "Topic B")
	if err != nil {
		t.Fatalf("CreateTopic() failed: %v", err)
	}
	if _, _, err := entities.CreateMessage(ctx, s, tpA.ID, "alice", "shared keyword here"); err != nil {
		t.Fatalf("CreateMessage() failed: %v", err)
	}
	if _, _, err := entities.CreateMessage(ctx, s, tpB.ID, "bob", "shared keyword there"); err != nil {
		t.Fatalf("CreateMessage() failed: %v", err)
	}

	results, _, err := search.Search(ctx, s, "keyword", tpA.ID, 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result scoped to topic A, got %d", len(results))
	}
	if results[0].Message.TopicID != tpA.ID {
		t.Errorf("TopicID = %q, want %q", results[0].Message.TopicID, tpA.ID)
	}
}

func TestSearch_ExcludesDeletedMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := schema.EnsureSearchIndex(s.Raw()); err != nil {
		t.Fatalf("EnsureSearchIndex() failed: %v", err)
	}

	ch, _, err := entities.CreateChannel(ctx, s, "general", "")
	if err != nil {
		t.Fatalf("CreateChannel() failed: %v", err)
	}
	tp, _, err := entities.CreateTopic(ctx, s, ch.ID, "Topic")
	if err != nil {
		t.Fatalf("CreateTopic() failed: %v", err)
	}
	msg, _, err := entities.CreateMessage(ctx, s, tp.ID, "alice", "vanishing word")
	if err != nil {
		t.Fatalf("CreateMessage() failed: %v", err)
	}
	if _, _, err := entities.DeleteMessage(ctx, s, msg.ID, "alice", nil); err != nil {
		t.Fatalf("DeleteMessage() failed: %v", err)
	}

	results, _, err := search.Search(ctx, s, "vanishing", "", 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected a deleted message to be excluded from search, got %d results", len(results))
	}
}
