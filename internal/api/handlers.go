package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hearthhub/hearthd/internal/apierr"
	"github.com/hearthhub/hearthd/internal/entities"
	"github.com/hearthhub/hearthd/internal/journal"
	"github.com/hearthhub/hearthd/internal/search"
)

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) ([]int64, error) {
	chans, err := entities.ListChannels(r.Context(), s.Store)
	if err != nil {
		return nil, err
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": chans})
	return nil, nil
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) ([]int64, error) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSONBody(w, r, int64(s.Limits.MaxMessageBytes), &body); err != nil {
		return nil, err
	}

	ch, eventID, err := entities.CreateChannel(r.Context(), s.Store, body.Name, body.Description)
	if err != nil {
		return nil, err
	}
	writeJSON(w, http.StatusCreated, map[string]any{"channel": ch, "event_id": eventID})
	return []int64{eventID}, nil
}

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) ([]int64, error) {
	channelID := r.PathValue("id")
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	topics, hasMore, err := entities.ListTopicsPage(r.Context(), s.Store, channelID, offset, limit)
	if err != nil {
		return nil, err
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics, "has_more": hasMore})
	return nil, nil
}

func (s *Server) handleCreateTopic(w http.ResponseWriter, r *http.Request) ([]int64, error) {
	var body struct {
		ChannelID string `json:"channel_id"`
		Title     string `json:"title"`
	}
	if err := decodeJSONBody(w, r, int64(s.Limits.MaxMessageBytes), &body); err != nil {
		return nil, err
	}

	tp, eventID, err := entities.CreateTopic(r.Context(), s.Store, body.ChannelID, body.Title)
	if err != nil {
		return nil, err
	}
	writeJSON(w, http.StatusCreated, map[string]any{"topic": tp, "event_id": eventID})
	return []int64{eventID}, nil
}

func (s *Server) handleRenameTopic(w http.ResponseWriter, r *http.Request) ([]int64, error) {
	topicID := r.PathValue("id")
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeJSONBody(w, r, int64(s.Limits.MaxMessageBytes), &body); err != nil {
		return nil, err
	}

	tp, eventID, err := entities.RenameTopic(r.Context(), s.Store, topicID, body.Title)
	if err != nil {
		return nil, err
	}
	writeJSON(w, http.StatusOK, map[string]any{"topic": tp, "event_id": eventID})
	return []int64{eventID}, nil
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) ([]int64, error) {
	q := r.URL.Query()
	topicID := q.Get("topic_id")
	if topicID == "" {
		return nil, apierr.InvalidInput("topic_id is required")
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	msgs, hasMore, err := entities.ListMessagesPage(r.Context(), s.Store, topicID, q.Get("before_id"), q.Get("after_id"), limit)
	if err != nil {
		return nil, err
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "has_more": hasMore})
	return nil, nil
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) ([]int64, error) {
	var body struct {
		TopicID    string `json:"topic_id"`
		Sender     string `json:"sender"`
		ContentRaw string `json:"content_raw"`
	}
	if err := decodeJSONBody(w, r, int64(s.Limits.MaxMessageBytes), &body); err != nil {
		return nil, err
	}

	msg, eventID, err := entities.CreateMessage(r.Context(), s.Store, body.TopicID, body.Sender, body.ContentRaw)
	if err != nil {
		return nil, err
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg, "event_id": eventID})
	if s.Plugins != nil {
		s.Plugins.Dispatch(msg.ID)
	}
	return []int64{eventID}, nil
}

// handlePatchMessage dispatches the three message mutation ops the spec
// multiplexes onto a single PATCH route, keyed by body.op.
func (s *Server) handlePatchMessage(w http.ResponseWriter, r *http.Request) ([]int64, error) {
	messageID := r.PathValue("id")
	var body struct {
		Op              string `json:"op"`
		ContentRaw      string `json:"content_raw"`
		Actor           string `json:"actor"`
		ToTopicID       string `json:"to_topic_id"`
		Mode            string `json:"mode"`
		Confirm         bool   `json:"confirm"`
		ExpectedVersion *int   `json:"expected_version"`
	}
	if err := decodeJSONBody(w, r, int64(s.Limits.MaxMessageBytes), &body); err != nil {
		return nil, err
	}

	switch body.Op {
	case "edit":
		msg, eventID, err := entities.EditMessage(r.Context(), s.Store, messageID, body.ContentRaw, body.ExpectedVersion)
		if err != nil {
			return nil, err
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": msg, "event_id": eventID})
		if s.Plugins != nil {
			s.Plugins.Dispatch(msg.ID)
		}
		return []int64{eventID}, nil

	case "delete":
		msg, eventID, err := entities.DeleteMessage(r.Context(), s.Store, messageID, body.Actor, body.ExpectedVersion)
		if err != nil {
			return nil, err
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": msg, "event_id": eventID})
		return []int64{eventID}, nil

	case "move_topic":
		mode := entities.MoveMode(body.Mode)
		if mode == entities.MoveAll && !body.Confirm {
			return nil, apierr.InvalidInput("mode=all requires confirm=true")
		}
		result, err := entities.MoveMessages(r.Context(), s.Store, messageID, body.ToTopicID, mode, body.ExpectedVersion)
		if err != nil {
			return nil, err
		}
		writeJSON(w, http.StatusOK, map[string]any{"moved_count": result.MovedCount, "event_ids": result.EventIDs})
		return result.EventIDs, nil

	default:
		return nil, apierr.InvalidInput("op must be edit, delete, or move_topic")
	}
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) ([]int64, error) {
	topicID := r.PathValue("id")
	kind := r.URL.Query().Get("kind")

	atts, err := entities.ListAttachments(r.Context(), s.Store, topicID, kind)
	if err != nil {
		return nil, err
	}
	writeJSON(w, http.StatusOK, map[string]any{"attachments": atts})
	return nil, nil
}

func (s *Server) handleAddAttachment(w http.ResponseWriter, r *http.Request) ([]int64, error) {
	topicID := r.PathValue("id")
	var body struct {
		Kind            string          `json:"kind"`
		Key             string          `json:"key"`
		ValueJSON       json.RawMessage `json:"value_json"`
		DedupeKey       string          `json:"dedupe_key"`
		SourceMessageID string          `json:"source_message_id"`
	}
	if err := decodeJSONBody(w, r, int64(s.Limits.MaxAttachmentBytes), &body); err != nil {
		return nil, err
	}

	result, err := entities.AddAttachment(r.Context(), s.Store, topicID, body.Kind, body.Key, body.ValueJSON, body.DedupeKey, body.SourceMessageID)
	if err != nil {
		return nil, err
	}

	status := http.StatusCreated
	if result.Deduplicated {
		status = http.StatusOK
	}
	// event_id is null on a deduplicated hit: no event was emitted for it,
	// per spec.md's attachment dedupe scenario.
	var eventID any
	if !result.Deduplicated {
		eventID = result.EventID
	}
	writeJSON(w, status, map[string]any{
		"attachment":   result.Attachment,
		"deduplicated": result.Deduplicated,
		"event_id":     eventID,
	})
	if result.Deduplicated {
		return nil, nil
	}
	return []int64{result.EventID}, nil
}

// handleSearch runs a full-text query over messages.content_raw. It 503s
// with SEARCH_UNAVAILABLE when the opt-in FTS5 index was never built.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) ([]int64, error) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		return nil, apierr.InvalidInput("q is required")
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	results, hasMore, err := search.Search(r.Context(), s.Store, query, q.Get("topic_id"), limit)
	if err != nil {
		if errors.Is(err, search.ErrSearchUnavailable) {
			return nil, apierr.SearchUnavailable()
		}
		return nil, err
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "has_more": hasMore})
	return nil, nil
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) ([]int64, error) {
	q := r.URL.Query()
	after, _ := strconv.ParseInt(q.Get("after"), 10, 64)
	tail, _ := strconv.Atoi(q.Get("tail"))

	events, hasMore, err := journal.Since(r.Context(), s.Store, after, tail)
	if err != nil {
		return nil, err
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "has_more": hasMore})
	return nil, nil
}
