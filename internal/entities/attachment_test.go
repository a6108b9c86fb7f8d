package entities_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hearthhub/hearthd/internal/apierr"
	"github.com/hearthhub/hearthd/internal/entities"
)

func TestAddAttachment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")

	value := json.RawMessage(`{"k":"v"}`)
	result, err := entities.AddAttachment(ctx, s, tp.ID, "file", "doc.txt", value, "", "")
	if err != nil {
		t.Fatalf("AddAttachment() failed: %v", err)
	}
	if result.Deduplicated {
		t.Error("expected the first insert to not be deduplicated")
	}
	if result.Attachment.ID == "" {
		t.Error("expected a non-empty attachment id")
	}
	if result.EventID == 0 {
		t.Error("expected a non-zero event id")
	}
}

func TestAddAttachment_Deduplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")

	value := json.RawMessage(`{"k":"v"}`)
	first, err := entities.AddAttachment(ctx, s, tp.ID, "file", "doc.txt", value, "dk1", "")
	if err != nil {
		t.Fatalf("AddAttachment() failed: %v", err)
	}

	second, err := entities.AddAttachment(ctx, s, tp.ID, "file", "doc.txt", value, "dk1", "")
	if err != nil {
		t.Fatalf("AddAttachment() second call failed: %v", err)
	}
	if !second.Deduplicated {
		t.Error("expected the second identical insert to be deduplicated")
	}
	if second.Attachment.ID != first.Attachment.ID {
		t.Errorf("expected the deduplicated result to return the original attachment id")
	}
}

func TestAddAttachment_DifferentDedupeKeyCreatesNewRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")

	value := json.RawMessage(`{"k":"v"}`)
	first, err := entities.AddAttachment(ctx, s, tp.ID, "file", "doc.txt", value, "dk1", "")
	if err != nil {
		t.Fatalf("AddAttachment() failed: %v", err)
	}
	second, err := entities.AddAttachment(ctx, s, tp.ID, "file", "doc.txt", value, "dk2", "")
	if err != nil {
		t.Fatalf("AddAttachment() second call failed: %v", err)
	}
	if second.Deduplicated {
		t.Error("expected a distinct dedupe_key to create a new row")
	}
	if second.Attachment.ID == first.Attachment.ID {
		t.Error("expected distinct attachment ids")
	}
}

func TestAddAttachment_EmptyKindRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")

	_, err := entities.AddAttachment(ctx, s, tp.ID, "", "key", json.RawMessage(`{}`), "", "")
	if err == nil {
		t.Fatal("expected an error for an empty kind")
	}
}

func TestAddAttachment_ControlBytesInKeyRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")

	_, err := entities.AddAttachment(ctx, s, tp.ID, "file", "bad\x00key", json.RawMessage(`{}`), "", "")
	if err == nil {
		t.Fatal("expected an error for a key containing control bytes")
	}
}

func TestAddAttachment_URLKindValidatesScheme(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")

	_, err := entities.AddAttachment(ctx, s, tp.ID, "url", "", json.RawMessage(`{"url":"ftp://example.com"}`), "", "")
	if err == nil {
		t.Fatal("expected an error for a non-http(s) URL")
	}
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Code != "INVALID_INPUT" {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}

	_, err = entities.AddAttachment(ctx, s, tp.ID, "url", "", json.RawMessage(`{"url":"https://example.com"}`), "", "")
	if err != nil {
		t.Errorf("expected a valid https URL to be accepted, got: %v", err)
	}
}

func TestAddAttachment_UnknownTopicRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := entities.AddAttachment(context.Background(), s, "tp_missing", "file", "", json.RawMessage(`{}`), "", "")
	if err == nil {
		t.Fatal("expected an error for an unknown topic")
	}
}

func TestListAttachments_FiltersByKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch, _, _ := entities.CreateChannel(ctx, s, "general", "")
	tp, _, _ := entities.CreateTopic(ctx, s, ch.ID, "Topic")

	if _, err := entities.AddAttachment(ctx, s, tp.ID, "file", "a", json.RawMessage(`{}`), "", ""); err != nil {
		t.Fatalf("AddAttachment() failed: %v", err)
	}
	if _, err := entities.AddAttachment(ctx, s, tp.ID, "url", "", json.RawMessage(`{"url":"https://example.com"}`), "", ""); err != nil {
		t.Fatalf("AddAttachment() failed: %v", err)
	}

	files, err := entities.ListAttachments(ctx, s, tp.ID, "file")
	if err != nil {
		t.Fatalf("ListAttachments() failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file attachment, got %d", len(files))
	}

	all, err := entities.ListAttachments(ctx, s, tp.ID, "")
	if err != nil {
		t.Fatalf("ListAttachments() failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 attachments with no kind filter, got %d", len(all))
	}
}
