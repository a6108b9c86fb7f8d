package entities

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthhub/hearthd/internal/apierr"
	"github.com/hearthhub/hearthd/internal/identity"
	"github.com/hearthhub/hearthd/internal/journal"
	"github.com/hearthhub/hearthd/internal/store"
)

// CreateMessage resolves topicID, copies its channel_id, assigns a
// monotonic sortable id, writes version=1, emits message.created, and
// touches the topic's updated_at in the same transaction.
func CreateMessage(ctx context.Context, s *store.Store, topicID, sender, contentRaw string) (Message, int64, error) {
	if sender == "" {
		return Message{}, 0, apierr.InvalidInput("sender is required")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	msg := Message{
		ID:         identity.NewMessageID(),
		TopicID:    topicID,
		Sender:     sender,
		ContentRaw: contentRaw,
		Version:    1,
		CreatedAt:  now,
	}

	var eventID int64
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		var channelID string
		err := tx.QueryRow("SELECT channel_id FROM topics WHERE id = ?", topicID).Scan(&channelID)
		if err == sql.ErrNoRows {
			return apierr.NotFound("topic")
		}
		if err != nil {
			return fmt.Errorf("query topic: %w", err)
		}
		msg.ChannelID = channelID

		if _, err := tx.Exec(
			`INSERT INTO messages (id, topic_id, channel_id, sender, content_raw, version, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.TopicID, msg.ChannelID, msg.Sender, msg.ContentRaw, msg.Version, msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if _, err := tx.Exec("UPDATE topics SET updated_at = ? WHERE id = ?", now, topicID); err != nil {
			return fmt.Errorf("touch topic: %w", err)
		}

		id, err := journal.Emit(tx, "message.created",
			journal.Scope{ChannelID: msg.ChannelID, TopicID: msg.TopicID},
			&journal.Entity{Type: "message", ID: msg.ID},
			msg,
		)
		if err != nil {
			return fmt.Errorf("emit event: %w", err)
		}
		eventID = id
		return nil
	})
	if err != nil {
		return Message{}, 0, err
	}
	return msg, eventID, nil
}

// readMessageForUpdate loads a message row and enforces the expected-version
// and already-deleted checks shared by edit/delete/move.
func readMessageForUpdate(tx *sql.Tx, id string, expectedVersion *int) (Message, error) {
	var msg Message
	err := tx.QueryRow(
		`SELECT id, topic_id, channel_id, sender, content_raw, version, created_at, edited_at, deleted_at, deleted_by
		 FROM messages WHERE id = ?`, id,
	).Scan(&msg.ID, &msg.TopicID, &msg.ChannelID, &msg.Sender, &msg.ContentRaw, &msg.Version,
		&msg.CreatedAt, &msg.EditedAt, &msg.DeletedAt, &msg.DeletedBy)
	if err == sql.ErrNoRows {
		return Message{}, apierr.NotFound("message")
	}
	if err != nil {
		return Message{}, fmt.Errorf("query message: %w", err)
	}

	if msg.DeletedAt != nil {
		return Message{}, apierr.AlreadyDeleted()
	}
	if expectedVersion != nil && *expectedVersion != msg.Version {
		return Message{}, apierr.VersionConflict(msg.Version)
	}
	return msg, nil
}

// EditMessage writes new content, bumps version, sets edited_at, emits
// message.edited, and touches the topic's updated_at.
func EditMessage(ctx context.Context, s *store.Store, messageID, contentRaw string, expectedVersion *int) (Message, int64, error) {
	var msg Message
	var eventID int64
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		m, err := readMessageForUpdate(tx, messageID, expectedVersion)
		if err != nil {
			return err
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		m.ContentRaw = contentRaw
		m.Version++
		m.EditedAt = &now

		res, err := tx.Exec(
			"UPDATE messages SET content_raw = ?, version = ?, edited_at = ? WHERE id = ? AND version = ?",
			m.ContentRaw, m.Version, now, m.ID, m.Version-1,
		)
		if err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return apierr.VersionConflict(m.Version - 1)
		}

		if _, err := tx.Exec("UPDATE topics SET updated_at = ? WHERE id = ?", now, m.TopicID); err != nil {
			return fmt.Errorf("touch topic: %w", err)
		}

		id, err := journal.Emit(tx, "message.edited",
			journal.Scope{ChannelID: m.ChannelID, TopicID: m.TopicID},
			&journal.Entity{Type: "message", ID: m.ID},
			m,
		)
		if err != nil {
			return fmt.Errorf("emit event: %w", err)
		}
		eventID = id
		msg = m
		return nil
	})
	if err != nil {
		return Message{}, 0, err
	}
	return msg, eventID, nil
}

// DeleteMessage tombstones a message: sets deleted_at/deleted_by, bumps
// version, emits message.deleted.
func DeleteMessage(ctx context.Context, s *store.Store, messageID, actor string, expectedVersion *int) (Message, int64, error) {
	var msg Message
	var eventID int64
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		m, err := readMessageForUpdate(tx, messageID, expectedVersion)
		if err != nil {
			return err
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		m.Version++
		m.DeletedAt = &now
		m.DeletedBy = &actor

		res, err := tx.Exec(
			"UPDATE messages SET version = ?, deleted_at = ?, deleted_by = ? WHERE id = ? AND version = ?",
			m.Version, now, actor, m.ID, m.Version-1,
		)
		if err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return apierr.VersionConflict(m.Version - 1)
		}

		id, err := journal.Emit(tx, "message.deleted",
			journal.Scope{ChannelID: m.ChannelID, TopicID: m.TopicID},
			&journal.Entity{Type: "message", ID: m.ID},
			m,
		)
		if err != nil {
			return fmt.Errorf("emit event: %w", err)
		}
		eventID = id
		msg = m
		return nil
	})
	if err != nil {
		return Message{}, 0, err
	}
	return msg, eventID, nil
}

// MoveResult reports the event ids emitted for a message.move, one per
// affected row, in ascending message id order.
type MoveResult struct {
	MovedCount int
	EventIDs   []int64
}

// MoveMessages relocates messages to toTopicID according to mode, rejecting
// any move that would change the message's channel. Every affected row's
// version is snapshotted at the start of the operation and re-checked
// immediately before its UPDATE; any mismatch fails the whole operation
// with VERSION_CONFLICT and rolls back every row moved so far in this call.
func MoveMessages(ctx context.Context, s *store.Store, messageID, toTopicID string, mode MoveMode, expectedVersion *int) (MoveResult, error) {
	var result MoveResult
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		anchor, err := readMessageForUpdate(tx, messageID, expectedVersion)
		if err != nil {
			return err
		}

		var destChannelID string
		err = tx.QueryRow("SELECT channel_id FROM topics WHERE id = ?", toTopicID).Scan(&destChannelID)
		if err == sql.ErrNoRows {
			return apierr.NotFound("topic")
		}
		if err != nil {
			return fmt.Errorf("query destination topic: %w", err)
		}
		if destChannelID != anchor.ChannelID {
			return apierr.CrossChannelMove()
		}

		candidates, err := selectMoveCandidates(tx, anchor, mode)
		if err != nil {
			return err
		}

		for _, c := range candidates {
			res, err := tx.Exec(
				"UPDATE messages SET topic_id = ?, version = version + 1 WHERE id = ? AND version = ?",
				toTopicID, c.ID, c.Version,
			)
			if err != nil {
				return fmt.Errorf("move message %s: %w", c.ID, err)
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return apierr.VersionConflict(c.Version)
			}

			id, err := journal.Emit(tx, "message.moved",
				journal.Scope{ChannelID: destChannelID, TopicID: toTopicID, TopicID2: c.TopicID},
				&journal.Entity{Type: "message", ID: c.ID},
				map[string]any{"message_id": c.ID, "from_topic_id": c.TopicID, "to_topic_id": toTopicID, "mode": mode},
			)
			if err != nil {
				return fmt.Errorf("emit event: %w", err)
			}
			result.EventIDs = append(result.EventIDs, id)
		}
		result.MovedCount = len(candidates)
		return nil
	})
	if err != nil {
		return MoveResult{}, err
	}
	return result, nil
}

// selectMoveCandidates snapshots the rows a move touches, ordered
// ascending by id so emission order matches spec.
func selectMoveCandidates(tx *sql.Tx, anchor Message, mode MoveMode) ([]Message, error) {
	var rows *sql.Rows
	var err error

	switch mode {
	case MoveOne:
		rows, err = tx.Query(
			"SELECT id, topic_id, channel_id, sender, content_raw, version FROM messages WHERE id = ? ORDER BY id",
			anchor.ID,
		)
	case MoveLater:
		rows, err = tx.Query(
			"SELECT id, topic_id, channel_id, sender, content_raw, version FROM messages WHERE topic_id = ? AND id >= ? ORDER BY id",
			anchor.TopicID, anchor.ID,
		)
	case MoveAll:
		rows, err = tx.Query(
			"SELECT id, topic_id, channel_id, sender, content_raw, version FROM messages WHERE topic_id = ? AND sender = ? ORDER BY id",
			anchor.TopicID, anchor.Sender,
		)
	default:
		return nil, apierr.InvalidInput("mode must be one, later, or all")
	}
	if err != nil {
		return nil, fmt.Errorf("select move candidates: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.TopicID, &m.ChannelID, &m.Sender, &m.ContentRaw, &m.Version); err != nil {
			return nil, fmt.Errorf("scan move candidate: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMessage fetches one message by id.
func GetMessage(ctx context.Context, s *store.Store, id string) (Message, error) {
	var msg Message
	err := s.QueryRowContext(ctx,
		`SELECT id, topic_id, channel_id, sender, content_raw, version, created_at, edited_at, deleted_at, deleted_by
		 FROM messages WHERE id = ?`, id,
	).Scan(&msg.ID, &msg.TopicID, &msg.ChannelID, &msg.Sender, &msg.ContentRaw, &msg.Version,
		&msg.CreatedAt, &msg.EditedAt, &msg.DeletedAt, &msg.DeletedBy)
	if err == sql.ErrNoRows {
		return Message{}, apierr.NotFound("message")
	}
	if err != nil {
		return Message{}, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// ListMessagesPage paginates messages within a topic by cursor (lexical
// message id), over-fetching one row to compute hasMore.
func ListMessagesPage(ctx context.Context, s *store.Store, topicID, beforeID, afterID string, limit int) ([]Message, bool, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, topic_id, channel_id, sender, content_raw, version, created_at, edited_at, deleted_at, deleted_by FROM messages WHERE topic_id = ?"
	args := []any{topicID}

	switch {
	case beforeID != "":
		query += " AND id < ? ORDER BY id DESC LIMIT ?"
		args = append(args, beforeID, limit+1)
	case afterID != "":
		query += " AND id > ? ORDER BY id ASC LIMIT ?"
		args = append(args, afterID, limit+1)
	default:
		query += " ORDER BY id ASC LIMIT ?"
		args = append(args, limit+1)
	}

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.TopicID, &m.ChannelID, &m.Sender, &m.ContentRaw, &m.Version,
			&m.CreatedAt, &m.EditedAt, &m.DeletedAt, &m.DeletedBy); err != nil {
			return nil, false, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	if beforeID != "" {
		// Returned DESC for cursor purposes; restore ascending order for callers.
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, hasMore, nil
}
