// Package entities implements the channel/topic/message/attachment/
// enrichment services: validation, versioning, and the transactional
// coupling between entity writes and journal emission.
package entities

import "encoding/json"

// Channel is the top-level grouping; its name is immutable after creation.
type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Topic belongs to exactly one channel.
type Topic struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Message is the unit of conversation content.
type Message struct {
	ID         string  `json:"id"`
	TopicID    string  `json:"topic_id"`
	ChannelID  string  `json:"channel_id"`
	Sender     string  `json:"sender"`
	ContentRaw string  `json:"content_raw"`
	Version    int     `json:"version"`
	CreatedAt  string  `json:"created_at"`
	EditedAt   *string `json:"edited_at,omitempty"`
	DeletedAt  *string `json:"deleted_at,omitempty"`
	DeletedBy  *string `json:"deleted_by,omitempty"`
}

// Attachment is a structured blob attached to a topic.
type Attachment struct {
	ID              string          `json:"id"`
	TopicID         string          `json:"topic_id"`
	Kind            string          `json:"kind"`
	Key             string          `json:"key,omitempty"`
	ValueJSON       json.RawMessage `json:"value_json"`
	DedupeKey       string          `json:"dedupe_key"`
	SourceMessageID string          `json:"source_message_id,omitempty"`
	CreatedAt       string          `json:"created_at"`
}

// Enrichment is a plugin-derived annotation of a specific message version.
type Enrichment struct {
	ID         string          `json:"id"`
	MessageID  string          `json:"message_id"`
	Kind       string          `json:"kind"`
	SpanStart  int             `json:"span_start"`
	SpanEnd    int             `json:"span_end"`
	Data       json.RawMessage `json:"data"`
	PluginName string          `json:"plugin_name"`
	CreatedAt  string          `json:"created_at"`
}

// MoveMode selects how many messages message.move relocates.
type MoveMode string

const (
	MoveOne   MoveMode = "one"
	MoveLater MoveMode = "later"
	MoveAll   MoveMode = "all"
)
