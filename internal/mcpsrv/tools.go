package mcpsrv

import (
	"context"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hearthhub/hearthd/internal/entities"
)

func (s *Server) handleCreateChannel(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input CreateChannelInput,
) (*gomcp.CallToolResult, CreateChannelOutput, error) {
	if input.Name == "" {
		return nil, CreateChannelOutput{}, fmt.Errorf("'name' is required")
	}

	ch, eventID, err := entities.CreateChannel(ctx, s.store, input.Name, input.Description)
	if err != nil {
		return nil, CreateChannelOutput{}, err
	}
	s.notify.Notify([]int64{eventID})

	return nil, CreateChannelOutput{ChannelID: ch.ID}, nil
}

func (s *Server) handleCreateTopic(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input CreateTopicInput,
) (*gomcp.CallToolResult, CreateTopicOutput, error) {
	if input.ChannelID == "" {
		return nil, CreateTopicOutput{}, fmt.Errorf("'channel_id' is required")
	}
	if input.Title == "" {
		return nil, CreateTopicOutput{}, fmt.Errorf("'title' is required")
	}

	tp, eventID, err := entities.CreateTopic(ctx, s.store, input.ChannelID, input.Title)
	if err != nil {
		return nil, CreateTopicOutput{}, err
	}
	s.notify.Notify([]int64{eventID})

	return nil, CreateTopicOutput{TopicID: tp.ID}, nil
}

func (s *Server) handleSendMessage(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input SendMessageInput,
) (*gomcp.CallToolResult, SendMessageOutput, error) {
	if input.TopicID == "" {
		return nil, SendMessageOutput{}, fmt.Errorf("'topic_id' is required")
	}
	if input.ContentRaw == "" {
		return nil, SendMessageOutput{}, fmt.Errorf("'content_raw' is required")
	}

	msg, eventID, err := entities.CreateMessage(ctx, s.store, input.TopicID, input.Sender, input.ContentRaw)
	if err != nil {
		return nil, SendMessageOutput{}, err
	}
	s.notify.Notify([]int64{eventID})
	if s.plugins != nil {
		s.plugins.Dispatch(msg.ID)
	}

	return nil, SendMessageOutput{MessageID: msg.ID, Version: msg.Version}, nil
}

func (s *Server) handleEditMessage(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input EditMessageInput,
) (*gomcp.CallToolResult, EditMessageOutput, error) {
	if input.MessageID == "" {
		return nil, EditMessageOutput{}, fmt.Errorf("'message_id' is required")
	}

	msg, eventID, err := entities.EditMessage(ctx, s.store, input.MessageID, input.ContentRaw, input.ExpectedVersion)
	if err != nil {
		return nil, EditMessageOutput{}, err
	}
	s.notify.Notify([]int64{eventID})
	if s.plugins != nil {
		s.plugins.Dispatch(msg.ID)
	}

	return nil, EditMessageOutput{MessageID: msg.ID, Version: msg.Version}, nil
}

func (s *Server) handleListMessages(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input ListMessagesInput,
) (*gomcp.CallToolResult, ListMessagesOutput, error) {
	if input.TopicID == "" {
		return nil, ListMessagesOutput{}, fmt.Errorf("'topic_id' is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	msgs, hasMore, err := entities.ListMessagesPage(ctx, s.store, input.TopicID, "", "", limit)
	if err != nil {
		return nil, ListMessagesOutput{}, err
	}

	out := make([]MessageInfo, len(msgs))
	for i, m := range msgs {
		out[i] = MessageInfo{
			MessageID:  m.ID,
			Sender:     m.Sender,
			ContentRaw: m.ContentRaw,
			Version:    m.Version,
			CreatedAt:  m.CreatedAt,
		}
	}

	return nil, ListMessagesOutput{Messages: out, HasMore: hasMore}, nil
}

func (s *Server) handleAddAttachment(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input AddAttachmentInput,
) (*gomcp.CallToolResult, AddAttachmentOutput, error) {
	if input.TopicID == "" {
		return nil, AddAttachmentOutput{}, fmt.Errorf("'topic_id' is required")
	}
	if input.Kind == "" {
		return nil, AddAttachmentOutput{}, fmt.Errorf("'kind' is required")
	}

	result, err := entities.AddAttachment(ctx, s.store, input.TopicID, input.Kind, input.Key, input.ValueJSON, input.DedupeKey, input.SourceMessageID)
	if err != nil {
		return nil, AddAttachmentOutput{}, err
	}
	if !result.Deduplicated {
		s.notify.Notify([]int64{result.EventID})
	}

	return nil, AddAttachmentOutput{AttachmentID: result.Attachment.ID, Deduplicated: result.Deduplicated}, nil
}
