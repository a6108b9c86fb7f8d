package daemon

import (
	"fmt"
	"net"
	"os"

	"tailscale.com/tsnet"

	"github.com/hearthhub/hearthd/internal/config"
)

// UnsafeNetworkListener wraps a tsnet server and its listener, used only
// when the operator passes --unsafe-network and sets network.mode to
// "tailscale" in hearth.json. Adapted from the teacher's
// internal/daemon/tsnet.go; the config shape is generalized from the
// teacher's config.TailscaleConfig to this spec's config.NetworkConfig.
type UnsafeNetworkListener struct {
	server   *tsnet.Server
	listener net.Listener
}

// NewUnsafeNetworkListener starts a tsnet server listening on :port and
// returns a listener for the Command API to serve on.
func NewUnsafeNetworkListener(cfg config.NetworkConfig, stateDir string, port int) (*UnsafeNetworkListener, error) {
	if cfg.Mode != "tailscale" {
		return nil, fmt.Errorf("network.mode is %q, not tailscale", cfg.Mode)
	}

	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("create tsnet state directory %s: %w", stateDir, err)
	}

	authKey := os.Getenv("HEARTH_TS_AUTHKEY")
	if authKey == "" {
		return nil, fmt.Errorf("tailscale auth key not set (HEARTH_TS_AUTHKEY)")
	}

	srv := &tsnet.Server{
		Hostname: cfg.Hostname,
		AuthKey:  authKey,
		Dir:      stateDir,
	}

	ln, err := srv.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("tsnet listen on :%d: %w", port, err)
	}

	return &UnsafeNetworkListener{server: srv, listener: ln}, nil
}

// Accept waits for and returns the next connection.
func (n *UnsafeNetworkListener) Accept() (net.Conn, error) { return n.listener.Accept() }

// Addr returns the listener's network address.
func (n *UnsafeNetworkListener) Addr() net.Addr { return n.listener.Addr() }

// Close stops the tsnet server and listener.
func (n *UnsafeNetworkListener) Close() error {
	lnErr := n.listener.Close()
	srvErr := n.server.Close()
	if lnErr != nil {
		return fmt.Errorf("close listener: %w", lnErr)
	}
	if srvErr != nil {
		return fmt.Errorf("close server: %w", srvErr)
	}
	return nil
}
