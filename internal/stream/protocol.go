package stream

import (
	"encoding/json"

	"github.com/hearthhub/hearthd/internal/journal"
)

// helloFrame is the one frame a client may send, and only as its first
// message: {"type":"hello", "after_event_id": N, "subscriptions"?: {...}}.
type helloFrame struct {
	Type          string `json:"type"`
	AfterEventID  int64  `json:"after_event_id"`
	Subscriptions *struct {
		Channels []string `json:"channels"`
		Topics   []string `json:"topics"`
	} `json:"subscriptions"`
}

// helloOKFrame is the server's one reply to a valid hello.
type helloOKFrame struct {
	Type        string `json:"type"`
	ReplayUntil int64  `json:"replay_until"`
	InstanceID  string `json:"instance_id"`
}

// eventFrame wraps a journal.Event for the wire, both during replay and
// once the connection is live.
type eventFrame struct {
	Type    string          `json:"type"`
	EventID int64           `json:"event_id"`
	TS      string          `json:"ts"`
	Name    string          `json:"name"`
	Scope   journal.Scope   `json:"scope"`
	Entity  *journal.Entity `json:"entity,omitempty"`
	Data    json.RawMessage `json:"data"`
}

func newEventFrame(e journal.Event) eventFrame {
	return eventFrame{
		Type:    "event",
		EventID: e.EventID,
		TS:      e.TS,
		Name:    e.Name,
		Scope:   e.Scope,
		Entity:  e.Entity,
		Data:    e.Data,
	}
}
