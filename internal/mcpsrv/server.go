// Package mcpsrv exposes a subset of the Command API's entity operations
// as MCP tools, for agent clients that drive the daemon over stdio rather
// than HTTP. Adapted wholesale from the teacher's internal/mcp package
// (send_message/check_messages tools backed by daemon RPC), simplified
// here to call internal/entities directly in-process — this daemon's
// entity services already live in the same binary, so there is no
// Unix-socket hop to mediate the way the teacher's MCP tools do.
package mcpsrv

import (
	"context"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hearthhub/hearthd/internal/plugin"
	"github.com/hearthhub/hearthd/internal/store"
)

// Notifier forwards committed event ids to the Stream hub.
type Notifier interface {
	Notify(eventIDs []int64)
}

type noopNotifier struct{}

func (noopNotifier) Notify([]int64) {}

// Server is the daemon's in-process MCP tool surface.
type Server struct {
	store   *store.Store
	notify  Notifier
	plugins *plugin.Dispatcher
	version string
	server  *gomcp.Server
}

// Option configures the MCP server.
type Option func(*Server)

// WithVersion sets the server version string advertised to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithPlugins wires the plugin dispatcher so send_message/edit_message
// trigger the same enrichment pipeline the Command API's HTTP routes do.
func WithPlugins(d *plugin.Dispatcher) Option {
	return func(s *Server) { s.plugins = d }
}

// NewServer builds an MCP server backed directly by s.
func NewServer(s *store.Store, notify Notifier, opts ...Option) *Server {
	if notify == nil {
		notify = noopNotifier{}
	}
	srv := &Server{store: s, notify: notify, version: "dev"}
	for _, opt := range opts {
		opt(srv)
	}

	srv.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "hearthd", Version: srv.version},
		nil,
	)
	srv.registerTools()
	return srv
}

// Run serves the MCP protocol on stdin/stdout until the client
// disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_channel",
		Description: "Create a new channel to group related topics",
	}, s.handleCreateChannel)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_topic",
		Description: "Create a new topic within a channel",
	}, s.handleCreateTopic)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "send_message",
		Description: "Post a message into a topic",
	}, s.handleSendMessage)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "edit_message",
		Description: "Edit an existing message's content",
	}, s.handleEditMessage)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_messages",
		Description: "List messages in a topic, most recent last",
	}, s.handleListMessages)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "add_attachment",
		Description: "Attach a structured blob (e.g. a URL or file reference) to a topic",
	}, s.handleAddAttachment)
}
