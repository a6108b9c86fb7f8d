package entities_test

import (
	"context"
	"testing"

	"github.com/hearthhub/hearthd/internal/apierr"
	"github.com/hearthhub/hearthd/internal/entities"
)

func TestCreateMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")

	msg, eventID, err := entities.CreateMessage(ctx, s, tp.ID, "alice", "hello world")
	if err != nil {
		t.Fatalf("CreateMessage() failed: %v", err)
	}
	if msg.Version != 1 {
		t.Errorf("Version = %d, want 1", msg.Version)
	}
	if msg.ChannelID != ch.ID {
		t.Errorf("ChannelID = %q, want %q", msg.ChannelID, ch.ID)
	}
	if eventID == 0 {
		t.Error("expected a non-zero event id")
	}
}

func TestCreateMessage_EmptySenderRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")

	_, _, err := entities.CreateMessage(ctx, s, tp.ID, "", "hello")
	if err == nil {
		t.Fatal("expected an error for an empty sender")
	}
}

func TestCreateMessage_UnknownTopicRejected(t *testing.T) {
	s := newTestStore(t)
	_, _, err := entities.CreateMessage(context.Background(), s, "tp_missing", "alice", "hello")
	if err == nil {
		t.Fatal("expected an error for an unknown topic")
	}
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestEditMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")
	msg, _, _ := entities.CreateMessage(ctx, s, tp.ID, "alice", "hello")

	edited, eventID, err := entities.EditMessage(ctx, s, msg.ID, "hello again", nil)
	if err != nil {
		t.Fatalf("EditMessage() failed: %v", err)
	}
	if edited.ContentRaw != "hello again" {
		t.Errorf("ContentRaw = %q", edited.ContentRaw)
	}
	if edited.Version != 2 {
		t.Errorf("Version = %d, want 2", edited.Version)
	}
	if edited.EditedAt == nil {
		t.Error("expected EditedAt to be set")
	}
	if eventID == 0 {
		t.Error("expected a non-zero event id")
	}
}

func TestEditMessage_VersionConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")
	msg, _, _ := entities.CreateMessage(ctx, s, tp.ID, "alice", "hello")

	wrongVersion := msg.Version + 1
	_, _, err := entities.EditMessage(ctx, s, msg.ID, "new content", &wrongVersion)
	if err == nil {
		t.Fatal("expected a version conflict error")
	}
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Code != "VERSION_CONFLICT" {
		t.Errorf("expected VERSION_CONFLICT, got %v", err)
	}
}

func TestEditMessage_CorrectExpectedVersionSucceeds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")
	msg, _, _ := entities.CreateMessage(ctx, s, tp.ID, "alice", "hello")

	version := msg.Version
	_, _, err := entities.EditMessage(ctx, s, msg.ID, "new content", &version)
	if err != nil {
		t.Fatalf("EditMessage() failed with correct expected version: %v", err)
	}
}

func TestDeleteMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")
	msg, _, _ := entities.CreateMessage(ctx, s, tp.ID, "alice", "hello")

	deleted, eventID, err := entities.DeleteMessage(ctx, s, msg.ID, "alice", nil)
	if err != nil {
		t.Fatalf("DeleteMessage() failed: %v", err)
	}
	if deleted.DeletedAt == nil {
		t.Error("expected DeletedAt to be set")
	}
	if deleted.DeletedBy == nil || *deleted.DeletedBy != "alice" {
		t.Errorf("DeletedBy = %v, want alice", deleted.DeletedBy)
	}
	if eventID == 0 {
		t.Error("expected a non-zero event id")
	}
}

func TestDeleteMessage_AlreadyDeletedRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")
	msg, _, _ := entities.CreateMessage(ctx, s, tp.ID, "alice", "hello")

	if _, _, err := entities.DeleteMessage(ctx, s, msg.ID, "alice", nil); err != nil {
		t.Fatalf("first DeleteMessage() failed: %v", err)
	}
	_, _, err := entities.DeleteMessage(ctx, s, msg.ID, "alice", nil)
	if err == nil {
		t.Fatal("expected an error deleting an already-deleted message")
	}
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Code != "ALREADY_DELETED" {
		t.Errorf("expected ALREADY_DELETED, got %v", err)
	}
}

func TestGetMessage_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := entities.GetMessage(context.Background(), s, "msg_missing")
	if err == nil {
		t.Fatal("expected an error for a missing message")
	}
}

func TestListMessagesPage_AscendingAndHasMore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")
	for i := 0; i < 3; i++ {
		if _, _, err := entities.CreateMessage(ctx, s, tp.ID, "alice", "msg"); err != nil {
			t.Fatalf("CreateMessage() failed: %v", err)
		}
	}

	page, hasMore, err := entities.ListMessagesPage(ctx, s, tp.ID, "", "", 2)
	if err != nil {
		t.Fatalf("ListMessagesPage() failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page))
	}
	if !hasMore {
		t.Error("expected hasMore=true")
	}
	if page[0].ID >= page[1].ID {
		t.Error("expected messages in ascending id order")
	}
}

func TestMoveMessages_One(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tpA, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic A")
	tpB, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic B")
	msg, _, _ := entities.CreateMessage(ctx, s, tpA.ID, "alice", "hello")

	result, err := entities.MoveMessages(ctx, s, msg.ID, tpB.ID, entities.MoveOne, nil)
	if err != nil {
		t.Fatalf("MoveMessages() failed: %v", err)
	}
	if result.MovedCount != 1 {
		t.Errorf("MovedCount = %d, want 1", result.MovedCount)
	}

	moved, err := entities.GetMessage(ctx, s, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage() failed: %v", err)
	}
	if moved.TopicID != tpB.ID {
		t.Errorf("TopicID = %q, want %q", moved.TopicID, tpB.ID)
	}
}

func TestMoveMessages_CrossChannelRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chA, _, _ := entities.CreateChannel(ctx, s, "alpha", "")
	chB, _, _ := entities.CreateChannel(ctx, s, "beta", "")
	tpA, _, _ := entities.CreateTopic(ctx, s, chA.ID, "Topic A")
	tpB, _, _ := entities.CreateTopic(ctx, s, chB.ID, "Topic B")
	msg, _, _ := entities.CreateMessage(ctx, s, tpA.ID, "alice", "hello")

	_, err := entities.MoveMessages(ctx, s, msg.ID, tpB.ID, entities.MoveOne, nil)
	if err == nil {
		t.Fatal("expected an error moving across channels")
	}
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Code != "CROSS_CHANNEL_MOVE" {
		t.Errorf("expected CROSS_CHANNEL_MOVE, got %v", err)
	}
}

func TestMoveMessages_Later(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tpA, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic A")
	tpB, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic B")

	first, _, _ := entities.CreateMessage(ctx, s, tpA.ID, "alice", "first")
	second, _, _ := entities.CreateMessage(ctx, s, tpA.ID, "alice", "second")
	third, _, _ := entities.CreateMessage(ctx, s, tpA.ID, "alice", "third")

	result, err := entities.MoveMessages(ctx, s, second.ID, tpB.ID, entities.MoveLater, nil)
	if err != nil {
		t.Fatalf("MoveMessages() failed: %v", err)
	}
	if result.MovedCount != 2 {
		t.Fatalf("MovedCount = %d, want 2 (second and third)", result.MovedCount)
	}

	stillA, err := entities.GetMessage(ctx, s, first.ID)
	if err != nil {
		t.Fatalf("GetMessage() failed: %v", err)
	}
	if stillA.TopicID != tpA.ID {
		t.Error("expected the first message to remain in topic A")
	}
	movedThird, err := entities.GetMessage(ctx, s, third.ID)
	if err != nil {
		t.Fatalf("GetMessage() failed: %v", err)
	}
	if movedThird.TopicID != tpB.ID {
		t.Error("expected the third message to have moved to topic B")
	}
}

func TestMoveMessages_All(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tpA, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic A")
	tpB, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic B")

	aliceMsg, _, _ := entities.CreateMessage(ctx, s, tpA.ID, "alice", "hi")
	bobMsg, _, _ := entities.CreateMessage(ctx, s, tpA.ID, "bob", "hi")

	result, err := entities.MoveMessages(ctx, s, aliceMsg.ID, tpB.ID, entities.MoveAll, nil)
	if err != nil {
		t.Fatalf("MoveMessages() failed: %v", err)
	}
	if result.MovedCount != 1 {
		t.Fatalf("MovedCount = %d, want 1 (only alice's messages)", result.MovedCount)
	}

	bobStill, err := entities.GetMessage(ctx, s, bobMsg.ID)
	if err != nil {
		t.Fatalf("GetMessage() failed: %v", err)
	}
	if bobStill.TopicID != tpA.ID {
		t.Error("expected bob's message to remain in topic A")
	}
}
