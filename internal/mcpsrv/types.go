package mcpsrv

import "encoding/json"

// CreateChannelInput is the input for the create_channel MCP tool.
type CreateChannelInput struct {
	Name        string `json:"name" jsonschema:"Channel name, unique within the workspace"`
	Description string `json:"description,omitempty" jsonschema:"Optional channel description"`
}

// CreateChannelOutput is the output for the create_channel MCP tool.
type CreateChannelOutput struct {
	ChannelID string `json:"channel_id" jsonschema:"ID of the created channel"`
}

// CreateTopicInput is the input for the create_topic MCP tool.
type CreateTopicInput struct {
	ChannelID string `json:"channel_id" jsonschema:"Parent channel ID"`
	Title     string `json:"title" jsonschema:"Topic title"`
}

// CreateTopicOutput is the output for the create_topic MCP tool.
type CreateTopicOutput struct {
	TopicID string `json:"topic_id" jsonschema:"ID of the created topic"`
}

// SendMessageInput is the input for the send_message MCP tool.
type SendMessageInput struct {
	TopicID    string `json:"topic_id" jsonschema:"Topic to post into"`
	Sender     string `json:"sender" jsonschema:"Name of the sending agent"`
	ContentRaw string `json:"content_raw" jsonschema:"Message body"`
}

// SendMessageOutput is the output for the send_message MCP tool.
type SendMessageOutput struct {
	MessageID string `json:"message_id" jsonschema:"ID of the created message"`
	Version   int    `json:"version" jsonschema:"Initial version of the message (1)"`
}

// EditMessageInput is the input for the edit_message MCP tool.
type EditMessageInput struct {
	MessageID       string `json:"message_id" jsonschema:"Message to edit"`
	ContentRaw      string `json:"content_raw" jsonschema:"New message body"`
	ExpectedVersion *int   `json:"expected_version,omitempty" jsonschema:"Version the agent last saw; omit to skip the optimistic-concurrency check"`
}

// EditMessageOutput is the output for the edit_message MCP tool.
type EditMessageOutput struct {
	MessageID string `json:"message_id" jsonschema:"ID of the edited message"`
	Version   int    `json:"version" jsonschema:"Version after the edit"`
}

// ListMessagesInput is the input for the list_messages MCP tool.
type ListMessagesInput struct {
	TopicID string `json:"topic_id" jsonschema:"Topic to list messages from"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Max messages to return. Default 50"`
}

// MessageInfo is a single message in a list_messages result.
type MessageInfo struct {
	MessageID  string `json:"message_id"`
	Sender     string `json:"sender"`
	ContentRaw string `json:"content_raw"`
	Version    int    `json:"version"`
	CreatedAt  string `json:"created_at"`
}

// ListMessagesOutput is the output for the list_messages MCP tool.
type ListMessagesOutput struct {
	Messages []MessageInfo `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

// AddAttachmentInput is the input for the add_attachment MCP tool.
type AddAttachmentInput struct {
	TopicID         string          `json:"topic_id" jsonschema:"Topic to attach to"`
	Kind            string          `json:"kind" jsonschema:"Attachment kind, e.g. url or file"`
	Key             string          `json:"key,omitempty" jsonschema:"Optional dedupe/display key"`
	ValueJSON       json.RawMessage `json:"value_json" jsonschema:"Structured attachment value"`
	DedupeKey       string          `json:"dedupe_key,omitempty" jsonschema:"Caller-supplied dedupe discriminator"`
	SourceMessageID string          `json:"source_message_id,omitempty" jsonschema:"Message this attachment was derived from, if any"`
}

// AddAttachmentOutput is the output for the add_attachment MCP tool.
type AddAttachmentOutput struct {
	AttachmentID string `json:"attachment_id" jsonschema:"ID of the attachment (new or pre-existing)"`
	Deduplicated bool   `json:"deduplicated" jsonschema:"True if an identical attachment already existed"`
}
