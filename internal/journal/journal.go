// Package journal implements the append-only event log: emission inside a
// write transaction, and the paginated reads the Command API and Stream hub
// replay off of.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Scope names the channel/topic(s) an event is attributed to. TopicID2 is
// only set for message.moved events, holding the pre-move topic.
type Scope struct {
	ChannelID string `json:"channel_id,omitempty"`
	TopicID   string `json:"topic_id,omitempty"`
	TopicID2  string `json:"topic_id2,omitempty"`
}

// Entity identifies the row an event is about, when applicable.
type Entity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Event is the persisted and wire shape of one journal row.
type Event struct {
	EventID int64           `json:"event_id"`
	TS      string          `json:"ts"`
	Name    string          `json:"name"`
	Scope   Scope           `json:"scope"`
	Entity  *Entity         `json:"entity,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Emit appends one event row inside tx and returns its assigned event_id.
// Callable only from inside a store.Store.WriteTx transaction.
func Emit(tx *sql.Tx, name string, scope Scope, entity *Entity, data any) (int64, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal event data: %w", err)
	}

	var entityType, entityID sql.NullString
	if entity != nil {
		entityType = sql.NullString{String: entity.Type, Valid: true}
		entityID = sql.NullString{String: entity.ID, Valid: true}
	}

	res, err := tx.Exec(
		`INSERT INTO events (ts, name, scope_channel_id, scope_topic_id, scope_topic_id2, entity_type, entity_id, data_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), name,
		nullable(scope.ChannelID), nullable(scope.TopicID), nullable(scope.TopicID2),
		entityType, entityID, string(dataJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read event id: %w", err)
	}
	return id, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Subscription filters the events a reader wants: if both Channels and
// Topics are empty, every event matches.
type Subscription struct {
	Channels []string
	Topics   []string
}

// Matches reports whether e satisfies sub, per the scope-membership rule
// in SPEC_FULL §4.4 (channel match OR topic match OR topic_id2 match).
func (sub Subscription) Matches(e Event) bool {
	if len(sub.Channels) == 0 && len(sub.Topics) == 0 {
		return true
	}
	for _, c := range sub.Channels {
		if c == e.Scope.ChannelID {
			return true
		}
	}
	for _, t := range sub.Topics {
		if t == e.Scope.TopicID || t == e.Scope.TopicID2 {
			return true
		}
	}
	return false
}

// QueryRower is satisfied by *sql.DB, *sql.Tx, and store.Store's read path.
type QueryRower interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Since returns events with event_id > afterID, in ascending order, up to
// limit, over-fetching by one row to compute hasMore without a second
// round-trip — the same pattern the teacher uses for its own event log.
func Since(ctx context.Context, db QueryRower, afterID int64, limit int) (events []Event, hasMore bool, err error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.QueryContext(ctx,
		`SELECT event_id, ts, name, scope_channel_id, scope_topic_id, scope_topic_id2, entity_type, entity_id, data_json
		 FROM events WHERE event_id > ? ORDER BY event_id LIMIT ?`,
		afterID, limit+1,
	)
	if err != nil {
		return nil, false, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Event
		var channelID, topicID, topicID2, entityType, entityID sql.NullString
		var dataJSON string
		if err := rows.Scan(&e.EventID, &e.TS, &e.Name, &channelID, &topicID, &topicID2, &entityType, &entityID, &dataJSON); err != nil {
			return nil, false, fmt.Errorf("scan event: %w", err)
		}
		e.Scope = Scope{ChannelID: channelID.String, TopicID: topicID.String, TopicID2: topicID2.String}
		if entityType.Valid {
			e.Entity = &Entity{Type: entityType.String, ID: entityID.String}
		}
		e.Data = json.RawMessage(dataJSON)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate events: %w", err)
	}

	hasMore = len(events) > limit
	if hasMore {
		events = events[:limit]
	}
	return events, hasMore, nil
}

// MaxEventID returns the highest committed event_id, or 0 if the journal
// is empty. Used to compute a hello_ok's replay_until.
func MaxEventID(ctx context.Context, db *sql.DB) (int64, error) {
	var max sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(event_id) FROM events").Scan(&max); err != nil {
		return 0, fmt.Errorf("query max event id: %w", err)
	}
	return max.Int64, nil
}
