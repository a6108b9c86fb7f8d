package entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hearthhub/hearthd/internal/apierr"
	"github.com/hearthhub/hearthd/internal/identity"
	"github.com/hearthhub/hearthd/internal/journal"
	"github.com/hearthhub/hearthd/internal/security"
	"github.com/hearthhub/hearthd/internal/store"
)

// AddAttachmentResult reports whether the call created a new row or
// short-circuited on an existing (topic_id, kind, key, dedupe_key) tuple.
type AddAttachmentResult struct {
	Attachment    Attachment
	Deduplicated  bool
	EventID       int64
}

// AddAttachment inserts a structured blob under a topic. If a row already
// exists with the same (topic_id, kind, key, dedupe_key) tuple, the existing
// row is returned unchanged and no event is emitted.
func AddAttachment(ctx context.Context, s *store.Store, topicID, kind, key string, valueJSON json.RawMessage, dedupeKey, sourceMessageID string) (AddAttachmentResult, error) {
	if kind == "" {
		return AddAttachmentResult{}, apierr.InvalidInput("kind is required")
	}
	if security.ContainsControlBytes(key) {
		return AddAttachmentResult{}, apierr.InvalidInput("key contains control bytes")
	}
	if kind == "url" {
		var payload struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(valueJSON, &payload); err != nil {
			return AddAttachmentResult{}, apierr.InvalidInput("url attachment value_json must have a url field")
		}
		if !security.ValidAttachmentURL(payload.URL) {
			return AddAttachmentResult{}, apierr.InvalidInput("url must have scheme http or https")
		}
	}

	var result AddAttachmentResult
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		var channelID string
		err := tx.QueryRow("SELECT channel_id FROM topics WHERE id = ?", topicID).Scan(&channelID)
		if err == sql.ErrNoRows {
			return apierr.NotFound("topic")
		}
		if err != nil {
			return fmt.Errorf("query topic: %w", err)
		}

		existing, err := findAttachment(tx, topicID, kind, key, dedupeKey)
		if err != nil {
			return err
		}
		if existing != nil {
			result = AddAttachmentResult{Attachment: *existing, Deduplicated: true}
			return nil
		}

		att := Attachment{
			ID:              identity.NewAttachmentID(),
			TopicID:         topicID,
			Kind:            kind,
			Key:             key,
			ValueJSON:       valueJSON,
			DedupeKey:       dedupeKey,
			SourceMessageID: sourceMessageID,
			CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		}

		if _, err := tx.Exec(
			`INSERT INTO attachments (id, topic_id, kind, key, value_json, dedupe_key, source_message_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			att.ID, att.TopicID, att.Kind, nullableStr(att.Key), string(att.ValueJSON), att.DedupeKey,
			nullableStr(att.SourceMessageID), att.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}

		id, err := journal.Emit(tx, "topic.attachment_added",
			journal.Scope{ChannelID: channelID, TopicID: topicID},
			&journal.Entity{Type: "attachment", ID: att.ID},
			att,
		)
		if err != nil {
			return fmt.Errorf("emit event: %w", err)
		}

		result = AddAttachmentResult{Attachment: att, EventID: id}
		return nil
	})
	if err != nil {
		return AddAttachmentResult{}, err
	}
	return result, nil
}

func findAttachment(tx *sql.Tx, topicID, kind, key, dedupeKey string) (*Attachment, error) {
	var att Attachment
	var keyCol, sourceMessageID sql.NullString
	var valueJSON string
	err := tx.QueryRow(
		`SELECT id, topic_id, kind, key, value_json, dedupe_key, source_message_id, created_at
		 FROM attachments WHERE topic_id = ? AND kind = ? AND key IS ? AND dedupe_key = ?`,
		topicID, kind, nullableStr(key), dedupeKey,
	).Scan(&att.ID, &att.TopicID, &att.Kind, &keyCol, &valueJSON, &att.DedupeKey, &sourceMessageID, &att.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query attachment: %w", err)
	}
	att.Key = keyCol.String
	att.SourceMessageID = sourceMessageID.String
	att.ValueJSON = json.RawMessage(valueJSON)
	return &att, nil
}

func nullableStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ListAttachments returns every attachment under a topic, optionally
// filtered by kind, ordered by creation time.
func ListAttachments(ctx context.Context, s *store.Store, topicID, kind string) ([]Attachment, error) {
	query := "SELECT id, topic_id, kind, key, value_json, dedupe_key, source_message_id, created_at FROM attachments WHERE topic_id = ?"
	args := []any{topicID}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY created_at"

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		var att Attachment
		var keyCol, sourceMessageID sql.NullString
		var valueJSON string
		if err := rows.Scan(&att.ID, &att.TopicID, &att.Kind, &keyCol, &valueJSON, &att.DedupeKey, &sourceMessageID, &att.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		att.Key = keyCol.String
		att.SourceMessageID = sourceMessageID.String
		att.ValueJSON = json.RawMessage(valueJSON)
		out = append(out, att)
	}
	return out, rows.Err()
}
