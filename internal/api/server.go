// Package api implements the Command API: a versioned HTTP surface over
// internal/entities, with auth, rate limiting, body-size bounds, security
// headers, and shutdown draining per spec.md §4.3.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/hearthhub/hearthd/internal/apierr"
	"github.com/hearthhub/hearthd/internal/config"
	"github.com/hearthhub/hearthd/internal/daemon"
	"github.com/hearthhub/hearthd/internal/plugin"
	"github.com/hearthhub/hearthd/internal/schema"
	"github.com/hearthhub/hearthd/internal/security"
	"github.com/hearthhub/hearthd/internal/store"
)

func schemaVersionOf(s *store.Store) (int, error) {
	return schema.GetSchemaVersion(s.Raw())
}

// Notifier forwards committed event ids to the Stream hub without
// blocking the handler that produced them.
type Notifier interface {
	Notify(eventIDs []int64)
}

// noopNotifier is used when no Stream hub is wired (e.g. unit tests of
// the Command API alone).
type noopNotifier struct{}

func (noopNotifier) Notify([]int64) {}

// Server is the Command API's HTTP server.
type Server struct {
	InstanceID string
	DBID       string
	StartedAt  time.Time

	Store     *store.Store
	AuthToken string
	Limits    config.LimitsConfig
	Flag      *daemon.ShutdownFlag
	Notify    Notifier

	// Plugins dispatches message.created/message.edited to the plugin
	// pipeline. Left nil, handlers skip dispatch (e.g. in tests that don't
	// configure any plugins).
	Plugins *plugin.Dispatcher

	rateLimiter *RateLimiter
	httpServer  *http.Server
	listener    net.Listener

	// Listener, if set before Start, is served on directly instead of
	// binding Addr via net.Listen — used to hand the Command API a
	// daemon.UnsafeNetworkListener when network.mode is "tailscale".
	Listener net.Listener

	// StreamHandler, if set before Start, serves GET /ws — wired to a
	// *stream.Hub by the caller. Left nil, /ws 404s (e.g. in handler tests
	// that don't need the Stream hub).
	StreamHandler http.Handler
}

// NewServer wires a Command API server listening on addr (host:port, or
// host:0 for an ephemeral port). Call Start to bind and begin serving.
func NewServer(instanceID, dbID, authToken string, s *store.Store, limits config.LimitsConfig, flag *daemon.ShutdownFlag, notify Notifier, addr string, sec config.SecurityConfig) *Server {
	if notify == nil {
		notify = noopNotifier{}
	}
	srv := &Server{
		InstanceID:  instanceID,
		DBID:        dbID,
		StartedAt:   time.Now().UTC(),
		Store:       s,
		AuthToken:   authToken,
		Limits:      limits,
		Flag:        flag,
		Notify:      notify,
		rateLimiter: NewRateLimiter(sec.MaxRequestsPerSecond, sec.BurstSize, sec.RateLimitEnabled),
	}
	srv.httpServer = &http.Server{
		Addr:         addr,
		Handler:      srv.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return srv
}

// Start binds the listener (resolving an ephemeral port if addr ends in
// :0) and begins serving in the background. Addr reports the bound
// host:port after Start returns.
func (s *Server) Start() error {
	ln := s.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.httpServer.Addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
		}
	}
	s.listener = ln

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "command api: serve error: %v\n", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, valid only after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting new connections and waits for in-flight ones
// to finish, bounded by ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/channels", s.wrap(s.handleListChannels, false))
	mux.HandleFunc("POST /api/v1/channels", s.wrap(s.handleCreateChannel, true))
	mux.HandleFunc("GET /api/v1/channels/{id}/topics", s.wrap(s.handleListTopics, false))
	mux.HandleFunc("POST /api/v1/topics", s.wrap(s.handleCreateTopic, true))
	mux.HandleFunc("PATCH /api/v1/topics/{id}", s.wrap(s.handleRenameTopic, true))
	mux.HandleFunc("GET /api/v1/messages", s.wrap(s.handleListMessages, false))
	mux.HandleFunc("POST /api/v1/messages", s.wrap(s.handleCreateMessage, true))
	mux.HandleFunc("PATCH /api/v1/messages/{id}", s.wrap(s.handlePatchMessage, true))
	mux.HandleFunc("GET /api/v1/topics/{id}/attachments", s.wrap(s.handleListAttachments, false))
	mux.HandleFunc("POST /api/v1/topics/{id}/attachments", s.wrap(s.handleAddAttachment, true))
	mux.HandleFunc("GET /api/v1/events", s.wrap(s.handleListEvents, false))
	mux.HandleFunc("GET /api/v1/search", s.wrap(s.handleSearch, false))
	mux.HandleFunc("GET /ws", s.handleStream)
	return mux
}

// handleStream delegates to the Stream hub. The hub does its own token
// auth (query param, not the bearer header the Command API's mutations
// use) so this bypasses wrap's auth/rate-limit chain.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.StreamHandler == nil {
		http.NotFound(w, r)
		return
	}
	s.StreamHandler.ServeHTTP(w, r)
}

// wrap applies the shutdown-drain check, rate limit, security headers,
// request id, and (for mutations) bearer auth, then dispatches to fn.
// fn returns eventIDs it committed (nil for reads) so the Command API can
// forward them to the Stream hub after writing the response.
func (s *Server) wrap(fn func(w http.ResponseWriter, r *http.Request) ([]int64, error), mutating bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		security.WriteHeaders(w.Header())
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = newRequestID()
		}
		w.Header().Set("X-Request-Id", reqID)

		if s.Flag.ShuttingDown() {
			writeError(w, apierr.ShuttingDown())
			return
		}

		addr := clientAddr(r)
		if !s.rateLimiter.Allow(addr) {
			writeError(w, apierr.RateLimited())
			return
		}

		if mutating {
			token, ok := bearerToken(r)
			if s.AuthToken == "" {
				writeError(w, apierr.NoAuthConfigured())
				return
			}
			if !ok || token == "" {
				writeError(w, apierr.MissingAuth())
				return
			}
			if !security.TokensEqual(token, s.AuthToken) {
				writeError(w, apierr.InvalidAuth())
				return
			}
		}

		eventIDs, err := fn(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(eventIDs) > 0 {
			go s.Notify.Notify(eventIDs)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	security.WriteHeaders(w.Header())
	schemaVersion, _ := schemaVersionOf(s.Store)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"instance_id":      s.InstanceID,
		"db_id":            s.DBID,
		"schema_version":   schemaVersion,
		"protocol_version": daemon.ProtocolVersion,
		"pid":              os.Getpid(),
		"uptime_seconds":   int(time.Since(s.StartedAt).Seconds()),
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):], true
	}
	return "", false
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func newRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		apiErr = apierr.Internal()
	}
	if apiErr.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfterSeconds))
	}
	writeJSON(w, apiErr.HTTPStatus, apiErr)
}

// decodeJSONBody bounds the request body to limit bytes before parsing,
// per spec.md §4.3 step 4, and decodes it into dst.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierr.PayloadTooLarge("request body")
		}
		return apierr.InvalidInput("malformed JSON body: " + err.Error())
	}
	return nil
}
