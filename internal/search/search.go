// Package search implements the opt-in full-text query over
// messages.content_raw, backed by the messages_fts FTS5 virtual table
// internal/schema builds when HEARTH_SEARCH_ENABLED is set.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/hearthhub/hearthd/internal/entities"
	"github.com/hearthhub/hearthd/internal/schema"
	"github.com/hearthhub/hearthd/internal/store"
)

// ErrSearchUnavailable is returned when a search query arrives but the
// FTS5 index has not been built, matching spec.md's "search queries fail
// with a typed error when the index is not present."
var ErrSearchUnavailable = errors.New("search index is not available")

// Result is one matched message, in the same shape list/get already use
// so clients don't need a second message schema.
type Result struct {
	Message entities.Message `json:"message"`
	Rank    float64          `json:"rank"`
}

// Search runs query against the FTS5 index, optionally scoped to one
// topic, over-fetching one row to compute hasMore the same way
// entities.ListMessagesPage does for its cursor pagination.
func Search(ctx context.Context, s *store.Store, query, topicID string, limit int) ([]Result, bool, error) {
	if limit <= 0 {
		limit = 50
	}

	has, err := schema.HasSearchIndex(s.Raw())
	if err != nil {
		return nil, false, fmt.Errorf("check search index: %w", err)
	}
	if !has {
		return nil, false, ErrSearchUnavailable
	}

	sqlQuery := `SELECT m.id, m.topic_id, m.channel_id, m.sender, m.content_raw, m.version,
			m.created_at, m.edited_at, m.deleted_at, m.deleted_by, bm25(messages_fts) AS rank
		FROM messages_fts
		JOIN messages m ON m.rowid = messages_fts.rowid
		WHERE messages_fts MATCH ? AND m.deleted_at IS NULL`
	args := []any{query}
	if topicID != "" {
		sqlQuery += " AND m.topic_id = ?"
		args = append(args, topicID)
	}
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, false, fmt.Errorf("query search index: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Message.ID, &r.Message.TopicID, &r.Message.ChannelID, &r.Message.Sender,
			&r.Message.ContentRaw, &r.Message.Version, &r.Message.CreatedAt, &r.Message.EditedAt,
			&r.Message.DeletedAt, &r.Message.DeletedBy, &r.Rank); err != nil {
			return nil, false, fmt.Errorf("scan search result: %w", err)
		}
		out = append(out, r)
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
