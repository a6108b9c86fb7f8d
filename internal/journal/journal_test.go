package journal_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/hearthhub/hearthd/internal/journal"
	"github.com/hearthhub/hearthd/internal/schema"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := schema.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func emit(t *testing.T, db *sql.DB, name string, scope journal.Scope) int64 {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := journal.Emit(tx, name, scope, nil, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Emit() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	return id
}

func TestEmit_AssignsMonotonicIDs(t *testing.T) {
	db := newTestDB(t)
	first := emit(t, db, "channel.created", journal.Scope{ChannelID: "ch_1"})
	second := emit(t, db, "topic.created", journal.Scope{ChannelID: "ch_1", TopicID: "tp_1"})
	if second <= first {
		t.Errorf("expected monotonically increasing event ids, got %d then %d", first, second)
	}
}

func TestSince_ReturnsEventsAfterCursor(t *testing.T) {
	db := newTestDB(t)
	first := emit(t, db, "channel.created", journal.Scope{ChannelID: "ch_1"})
	emit(t, db, "topic.created", journal.Scope{ChannelID: "ch_1", TopicID: "tp_1"})
	emit(t, db, "topic.created", journal.Scope{ChannelID: "ch_1", TopicID: "tp_2"})

	events, hasMore, err := journal.Since(context.Background(), db, first, 10)
	if err != nil {
		t.Fatalf("Since() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after the cursor, got %d", len(events))
	}
	if hasMore {
		t.Error("expected hasMore=false")
	}
}

func TestSince_HasMoreWhenOverLimit(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 5; i++ {
		emit(t, db, "channel.created", journal.Scope{ChannelID: "ch_1"})
	}

	events, hasMore, err := journal.Since(context.Background(), db, 0, 2)
	if err != nil {
		t.Fatalf("Since() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected exactly 2 events (page size), got %d", len(events))
	}
	if !hasMore {
		t.Error("expected hasMore=true")
	}
}

func TestMaxEventID_EmptyJournal(t *testing.T) {
	db := newTestDB(t)
	max, err := journal.MaxEventID(context.Background(), db)
	if err != nil {
		t.Fatalf("MaxEventID() failed: %v", err)
	}
	if max != 0 {
		t.Errorf("expected 0 for an empty journal, got %d", max)
	}
}

func TestMaxEventID_ReturnsHighestID(t *testing.T) {
	db := newTestDB(t)
	emit(t, db, "channel.created", journal.Scope{ChannelID: "ch_1"})
	last := emit(t, db, "channel.created", journal.Scope{ChannelID: "ch_2"})

	max, err := journal.MaxEventID(context.Background(), db)
	if err != nil {
		t.Fatalf("MaxEventID() failed: %v", err)
	}
	if max != last {
		t.Errorf("MaxEventID() = %d, want %d", max, last)
	}
}

func TestSubscription_MatchesEverythingWhenEmpty(t *testing.T) {
	sub := journal.Subscription{}
	e := journal.Event{Scope: journal.Scope{ChannelID: "ch_1", TopicID: "tp_1"}}
	if !sub.Matches(e) {
		t.Error("expected an empty subscription to match every event")
	}
}

func TestSubscription_MatchesByChannel(t *testing.T) {
	sub := journal.Subscription{Channels: []string{"ch_1"}}
	match := journal.Event{Scope: journal.Scope{ChannelID: "ch_1"}}
	noMatch := journal.Event{Scope: journal.Scope{ChannelID: "ch_2"}}
	if !sub.Matches(match) {
		t.Error("expected a match on channel id")
	}
	if sub.Matches(noMatch) {
		t.Error("expected no match for a different channel id")
	}
}

func TestSubscription_MatchesByTopicOrTopicID2(t *testing.T) {
	sub := journal.Subscription{Topics: []string{"tp_1"}}
	matchPrimary := journal.Event{Scope: journal.Scope{TopicID: "tp_1"}}
	matchSecondary := journal.Event{Scope: journal.Scope{TopicID2: "tp_1"}}
	noMatch := journal.Event{Scope: journal.Scope{TopicID: "tp_2"}}

	if !sub.Matches(matchPrimary) {
		t.Error("expected a match via TopicID")
	}
	if !sub.Matches(matchSecondary) {
		t.Error("expected a match via TopicID2 (message.moved source topic)")
	}
	if sub.Matches(noMatch) {
		t.Error("expected no match for an unrelated topic")
	}
}
