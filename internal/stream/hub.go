// Package stream implements the Stream hub: the GET /ws upgrade, the
// hello/hello_ok/event frame grammar, and subscription-filtered broadcast
// of newly committed events, adapted from the teacher's internal/websocket
// package (same upgrader settings, ping/pong keepalive, per-connection
// bounded queue) with JSON-RPC replaced by spec.md §4.4's frame grammar.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hearthhub/hearthd/internal/journal"
	"github.com/hearthhub/hearthd/internal/security"
	"github.com/hearthhub/hearthd/internal/store"
)

// Hub owns every live /ws connection for one daemon instance.
type Hub struct {
	InstanceID string
	Store      *store.Store
	AuthToken  string

	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[*Connection]struct{}
}

// NewHub builds a Stream hub for one daemon instance.
func NewHub(instanceID, authToken string, s *store.Store) *Hub {
	return &Hub{
		InstanceID:  instanceID,
		Store:       s,
		AuthToken:   authToken,
		connections: make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /ws: token auth, upgrade, hello handshake, replay,
// then live delivery until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.rejectUpgrade(w, r, 4401, "missing token")
		return
	}
	if !security.TokensEqual(token, h.AuthToken) {
		h.rejectUpgrade(w, r, 4403, "invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	wsConn := newConnection(conn, h)

	hello, err := wsConn.readHello()
	if err != nil {
		wsConn.Close(websocket.ClosePolicyViolation, "malformed hello")
		return
	}

	// Join the live broadcast set before capturing the replay boundary: any
	// event committed after this point is queued via Broadcast even though
	// writeLoop hasn't started draining yet. Capturing maxEventID first
	// would leave a window where such an event is neither replayed (it
	// commits after the snapshot) nor broadcast (the connection isn't
	// registered yet), silently dropping it. Overlap between replay and
	// live delivery is fine — clients dedupe by event_id.
	// The connection's lock is held until hello_ok is queued, so a
	// concurrent Broadcast cannot queue an event frame ahead of it.
	wsConn.mu.Lock()
	h.add(wsConn)

	maxEventID, err := journal.MaxEventID(r.Context(), h.Store.Raw())
	if err != nil {
		wsConn.mu.Unlock()
		wsConn.Close(websocket.CloseInternalServerErr, "internal error")
		return
	}

	helloOK, _ := json.Marshal(helloOKFrame{Type: "hello_ok", ReplayUntil: maxEventID, InstanceID: h.InstanceID})
	wsConn.sendCh <- helloOK // the queue is still empty, so this never blocks
	wsConn.mu.Unlock()

	if err := h.replay(r.Context(), wsConn, hello.AfterEventID, maxEventID); err != nil {
		wsConn.Close(websocket.ClosePolicyViolation, "backpressure")
		return
	}

	go wsConn.writeLoop()
	wsConn.readLoop() // blocks until the client disconnects
}

// replay delivers every committed event in (afterID, upToID] that matches
// the connection's subscription, in ascending event_id order. The
// connection is already registered for live delivery, so live events that
// commit meanwhile can be queued between replayed ones; clients dedupe by
// event_id.
func (h *Hub) replay(ctx context.Context, wsConn *Connection, afterID, upToID int64) error {
	for afterID < upToID {
		events, hasMore, err := journal.Since(ctx, h.Store, afterID, 500)
		if err != nil {
			return fmt.Errorf("query replay events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		for _, e := range events {
			if e.EventID > upToID {
				return nil
			}
			if !wsConn.sub.Matches(e) {
				continue
			}
			if err := wsConn.writeJSON(newEventFrame(e)); err != nil {
				return err
			}
		}
		afterID = events[len(events)-1].EventID
		if !hasMore {
			return nil
		}
	}
	return nil
}

func (h *Hub) rejectUpgrade(w http.ResponseWriter, r *http.Request, code int, reason string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
	_ = conn.Close()
}

func (h *Hub) add(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = struct{}{}
}

func (h *Hub) remove(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c)
}

// Broadcast delivers one already-committed event to every connection
// whose subscription matches it, walking the registry under a read lock
// exactly as the teacher's ClientRegistry.BroadcastAll does for its own
// passive observers.
func (h *Hub) Broadcast(e journal.Event) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	frame := newEventFrame(e)
	for _, c := range conns {
		if !c.sub.Matches(e) {
			continue
		}
		if err := c.writeJSON(frame); err != nil {
			c.Close(websocket.ClosePolicyViolation, "backpressure")
		}
	}
}

// Notify implements api.Notifier: it looks up each committed event id and
// broadcasts it. Called by the Command API after a mutation commits; it
// must not block the HTTP handler, so the Server invokes it via `go`.
func (h *Hub) Notify(eventIDs []int64) {
	ctx := context.Background()
	for _, id := range eventIDs {
		events, _, err := journal.Since(ctx, h.Store, id-1, 1)
		if err != nil || len(events) == 0 {
			continue
		}
		h.Broadcast(events[0])
	}
}

// CloseAll implements daemon.StreamHub: closes every live connection with
// the given close code, used during graceful shutdown (code 1001).
func (h *Hub) CloseAll(code int, reason string) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close(code, reason)
	}
}
