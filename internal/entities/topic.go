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

// CreateTopic resolves channelID, fails NOT_FOUND if absent, and emits
// topic.created.
func CreateTopic(ctx context.Context, s *store.Store, channelID, title string) (Topic, int64, error) {
	if title == "" {
		return Topic{}, 0, apierr.InvalidInput("title is required")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	tp := Topic{
		ID:        identity.NewTopicID(),
		ChannelID: channelID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var eventID int64
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow("SELECT 1 FROM channels WHERE id = ?", channelID).Scan(&exists)
		if err == sql.ErrNoRows {
			return apierr.NotFound("channel")
		}
		if err != nil {
			return fmt.Errorf("check channel: %w", err)
		}

		if _, err := tx.Exec(
			"INSERT INTO topics (id, channel_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			tp.ID, tp.ChannelID, tp.Title, tp.CreatedAt, tp.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert topic: %w", err)
		}

		id, err := journal.Emit(tx, "topic.created",
			journal.Scope{ChannelID: channelID, TopicID: tp.ID},
			&journal.Entity{Type: "topic", ID: tp.ID},
			tp,
		)
		if err != nil {
			return fmt.Errorf("emit event: %w", err)
		}
		eventID = id
		return nil
	})
	if err != nil {
		return Topic{}, 0, err
	}
	return tp, eventID, nil
}

// RenameTopic updates a topic's title and emits topic.renamed.
func RenameTopic(ctx context.Context, s *store.Store, topicID, title string) (Topic, int64, error) {
	if title == "" {
		return Topic{}, 0, apierr.InvalidInput("title is required")
	}

	var tp Topic
	var eventID int64
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRow(
			"SELECT id, channel_id, title, created_at, updated_at FROM topics WHERE id = ?", topicID,
		).Scan(&tp.ID, &tp.ChannelID, &tp.Title, &tp.CreatedAt, &tp.UpdatedAt)
		if err == sql.ErrNoRows {
			return apierr.NotFound("topic")
		}
		if err != nil {
			return fmt.Errorf("query topic: %w", err)
		}

		tp.Title = title
		tp.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)

		if _, err := tx.Exec("UPDATE topics SET title = ?, updated_at = ? WHERE id = ?", tp.Title, tp.UpdatedAt, tp.ID); err != nil {
			return fmt.Errorf("update topic: %w", err)
		}

		id, err := journal.Emit(tx, "topic.renamed",
			journal.Scope{ChannelID: tp.ChannelID, TopicID: tp.ID},
			&journal.Entity{Type: "topic", ID: tp.ID},
			tp,
		)
		if err != nil {
			return fmt.Errorf("emit event: %w", err)
		}
		eventID = id
		return nil
	})
	if err != nil {
		return Topic{}, 0, err
	}
	return tp, eventID, nil
}

// GetTopic fetches a topic by id.
func GetTopic(ctx context.Context, s *store.Store, id string) (Topic, error) {
	var tp Topic
	err := s.QueryRowContext(ctx,
		"SELECT id, channel_id, title, created_at, updated_at FROM topics WHERE id = ?", id,
	).Scan(&tp.ID, &tp.ChannelID, &tp.Title, &tp.CreatedAt, &tp.UpdatedAt)
	if err == sql.ErrNoRows {
		return Topic{}, apierr.NotFound("topic")
	}
	if err != nil {
		return Topic{}, fmt.Errorf("query topic: %w", err)
	}
	return tp, nil
}

// ListTopicsPage paginates topics within a channel by offset+limit,
// over-fetching one row to compute hasMore.
func ListTopicsPage(ctx context.Context, s *store.Store, channelID string, offset, limit int) ([]Topic, bool, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.QueryContext(ctx,
		"SELECT id, channel_id, title, created_at, updated_at FROM topics WHERE channel_id = ? ORDER BY created_at LIMIT ? OFFSET ?",
		channelID, limit+1, offset,
	)
	if err != nil {
		return nil, false, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var out []Topic
	for rows.Next() {
		var tp Topic
		if err := rows.Scan(&tp.ID, &tp.ChannelID, &tp.Title, &tp.CreatedAt, &tp.UpdatedAt); err != nil {
			return nil, false, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}
