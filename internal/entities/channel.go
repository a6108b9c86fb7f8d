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

// CreateChannel allocates a channel id, validates the name is non-empty and
// unused, and emits channel.created.
func CreateChannel(ctx context.Context, s *store.Store, name, description string) (Channel, int64, error) {
	if name == "" {
		return Channel{}, 0, apierr.InvalidInput("name is required")
	}

	ch := Channel{
		ID:          identity.NewChannelID(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}

	var eventID int64
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow("SELECT 1 FROM channels WHERE name = ?", name).Scan(&exists)
		if err == nil {
			return apierr.NameTaken(name)
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check channel name: %w", err)
		}

		if _, err := tx.Exec(
			"INSERT INTO channels (id, name, description, created_at) VALUES (?, ?, ?, ?)",
			ch.ID, ch.Name, ch.Description, ch.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert channel: %w", err)
		}

		id, err := journal.Emit(tx, "channel.created",
			journal.Scope{ChannelID: ch.ID},
			&journal.Entity{Type: "channel", ID: ch.ID},
			ch,
		)
		if err != nil {
			return fmt.Errorf("emit event: %w", err)
		}
		eventID = id
		return nil
	})
	if err != nil {
		return Channel{}, 0, err
	}
	return ch, eventID, nil
}

// GetChannel fetches a channel by id.
func GetChannel(ctx context.Context, s *store.Store, id string) (Channel, error) {
	var ch Channel
	err := s.QueryRowContext(ctx,
		"SELECT id, name, description, created_at FROM channels WHERE id = ?", id,
	).Scan(&ch.ID, &ch.Name, &ch.Description, &ch.CreatedAt)
	if err == sql.ErrNoRows {
		return Channel{}, apierr.NotFound("channel")
	}
	if err != nil {
		return Channel{}, fmt.Errorf("query channel: %w", err)
	}
	return ch, nil
}

// ListChannels returns every channel ordered by creation time.
func ListChannels(ctx context.Context, s *store.Store) ([]Channel, error) {
	rows, err := s.QueryContext(ctx, "SELECT id, name, description, created_at FROM channels ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
