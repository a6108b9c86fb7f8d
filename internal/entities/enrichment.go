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
	"github.com/hearthhub/hearthd/internal/store"
)

// ErrStaleEnrichment is returned when a plugin's enrichment was computed
// against a message version that has since changed; the caller discards
// the result rather than attaching it to a version the author never saw.
var ErrStaleEnrichment = fmt.Errorf("enrichment discarded: message changed since snapshot")

// InsertEnrichment attaches a plugin-derived annotation to messageID,
// guarding against the message having been edited or deleted between the
// plugin snapshotting its content and this call committing: the message's
// current version is re-read inside the same transaction as the insert,
// and any mismatch against snapshotVersion discards the enrichment instead
// of attaching it to content the plugin never actually analyzed.
func InsertEnrichment(ctx context.Context, s *store.Store, messageID string, snapshotVersion int, kind string, spanStart, spanEnd int, data json.RawMessage, pluginName string) (Enrichment, int64, error) {
	if kind == "" {
		return Enrichment{}, 0, apierr.InvalidInput("kind is required")
	}

	enr := Enrichment{
		ID:         identity.NewEnrichmentID(),
		MessageID:  messageID,
		Kind:       kind,
		SpanStart:  spanStart,
		SpanEnd:    spanEnd,
		Data:       data,
		PluginName: pluginName,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}

	var eventID int64
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		var channelID, topicID string
		var version int
		var deletedAt sql.NullString
		err := tx.QueryRow(
			"SELECT channel_id, topic_id, version, deleted_at FROM messages WHERE id = ?", messageID,
		).Scan(&channelID, &topicID, &version, &deletedAt)
		if err == sql.ErrNoRows {
			return apierr.NotFound("message")
		}
		if err != nil {
			return fmt.Errorf("query message: %w", err)
		}

		if deletedAt.Valid || version != snapshotVersion {
			return ErrStaleEnrichment
		}

		if _, err := tx.Exec(
			`INSERT INTO enrichments (id, message_id, kind, span_start, span_end, data_json, plugin_name, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			enr.ID, enr.MessageID, enr.Kind, enr.SpanStart, enr.SpanEnd, string(enr.Data), enr.PluginName, enr.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert enrichment: %w", err)
		}

		id, err := journal.Emit(tx, "message.enriched",
			journal.Scope{ChannelID: channelID, TopicID: topicID},
			&journal.Entity{Type: "enrichment", ID: enr.ID},
			enr,
		)
		if err != nil {
			return fmt.Errorf("emit event: %w", err)
		}
		eventID = id
		return nil
	})
	if err != nil {
		return Enrichment{}, 0, err
	}
	return enr, eventID, nil
}

// ListEnrichments returns every enrichment attached to a message, ordered
// by creation time.
func ListEnrichments(ctx context.Context, s *store.Store, messageID string) ([]Enrichment, error) {
	rows, err := s.QueryContext(ctx,
		"SELECT id, message_id, kind, span_start, span_end, data_json, plugin_name, created_at FROM enrichments WHERE message_id = ? ORDER BY created_at",
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("query enrichments: %w", err)
	}
	defer rows.Close()

	var out []Enrichment
	for rows.Next() {
		var enr Enrichment
		var dataJSON string
		if err := rows.Scan(&enr.ID, &enr.MessageID, &enr.Kind, &enr.SpanStart, &enr.SpanEnd, &dataJSON, &enr.PluginName, &enr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrichment: %w", err)
		}
		enr.Data = json.RawMessage(dataJSON)
		out = append(out, enr)
	}
	return out, rows.Err()
}
