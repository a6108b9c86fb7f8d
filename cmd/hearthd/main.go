package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hearthhub/hearthd/internal/api"
	"github.com/hearthhub/hearthd/internal/config"
	"github.com/hearthhub/hearthd/internal/daemon"
	"github.com/hearthhub/hearthd/internal/identity"
	"github.com/hearthhub/hearthd/internal/mcpsrv"
	"github.com/hearthhub/hearthd/internal/paths"
	"github.com/hearthhub/hearthd/internal/plugin"
	"github.com/hearthhub/hearthd/internal/schema"
	"github.com/hearthhub/hearthd/internal/security"
	"github.com/hearthhub/hearthd/internal/store"
	"github.com/hearthhub/hearthd/internal/stream"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var (
	// Global flags.
	flagRoot string
	flagJSON bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hearthd",
		Short: "Workspace-scoped chat and event hub daemon",
		Long: `hearthd is a single-writer daemon that gives the agents and humans
working in one workspace a shared channel/topic/message store, a
replayable event journal, and a live WebSocket feed — all backed by an
embedded database private to that workspace.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", ".", "Workspace root directory")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output machine-readable JSON where applicable")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("hearthd %s (build %s)\n", Version, Build)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var (
		flagHost          string
		flagPort          int
		flagUnsafeNetwork bool
		flagMCPStdio      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flagHost, flagPort, flagUnsafeNetwork, flagMCPStdio)
		},
	}

	cmd.Flags().StringVar(&flagHost, "host", "127.0.0.1", "Host to bind the Command API / Stream hub to")
	cmd.Flags().IntVar(&flagPort, "port", 0, "Port to bind to (0 for an ephemeral port)")
	cmd.Flags().BoolVar(&flagUnsafeNetwork, "unsafe-network", false, "Allow binding to a non-loopback host (and, with network.mode=tailscale in hearth.json, serve over tsnet)")
	cmd.Flags().BoolVar(&flagMCPStdio, "mcp", false, "Also expose the MCP tool surface over stdio alongside the HTTP/WS server")

	return cmd
}

// runServe implements spec.md §4.5's six startup steps in order, then
// blocks until shutdown.
func runServe(host string, port int, unsafeNetwork, mcpStdio bool) error {
	if !unsafeNetwork && !isLoopbackHost(host) {
		return fmt.Errorf("host %q is not loopback; pass --unsafe-network to bind it", host)
	}

	// Step 1: resolve the workspace root. serve bootstraps a fresh
	// workspace at --root if none exists yet, rather than only ascending
	// to find one the way FindWorkspaceRoot does for status/stop.
	root, err := filepath.Abs(flagRoot)
	if err != nil {
		return fmt.Errorf("resolve workspace root: %w", err)
	}
	if existing, err := paths.FindWorkspaceRoot(flagRoot); err == nil {
		root = existing
	}
	if err := paths.EnsureHubDir(root); err != nil {
		return fmt.Errorf("initialize workspace: %w", err)
	}

	instanceID := identity.NewInstanceID()
	fmt.Fprintf(os.Stderr, "hearthd: starting %s at %s\n", instanceID, root)

	// Open the embedded store and run migrations before anything else
	// touches it.
	db, err := schema.OpenDB(paths.DBPath(root))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := schema.Migrate(db); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate database: %w", err)
	}
	dbID, err := schema.EnsureDBID(db, identity.NewDBID)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("ensure db id: %w", err)
	}
	if config.SearchEnabled() {
		if err := schema.EnsureSearchIndex(db); err != nil {
			_ = db.Close()
			return fmt.Errorf("build search index: %w", err)
		}
	}
	st := store.New(db)

	// Step 6 (loaded early so plugin module paths can be validated before
	// anything starts accepting writes, but applied after the server is
	// up per the sequence below).
	hubCfg, err := config.LoadHubConfig(paths.ConfigPath(root))
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("load hearth.json: %w", err)
	}
	for _, p := range hubCfg.Plugins {
		if !p.Enabled {
			continue
		}
		if err := security.ValidateModulePath(root, p.ModulePath); err != nil {
			_ = st.Close()
			return fmt.Errorf("plugin %q: %w", p.Name, err)
		}
	}

	authToken, err := generateAuthToken()
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("generate auth token: %w", err)
	}

	flag := &daemon.ShutdownFlag{}
	hub := stream.NewHub(instanceID, authToken, st)
	dispatcher := plugin.NewDispatcher(hubCfg.Plugins, hubCfg.Limits.MaxPluginWorkers, st, hub)

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	apiServer := api.NewServer(instanceID, dbID, authToken, st, hubCfg.Limits, flag, hub, addr, config.LoadSecurityConfig())
	apiServer.Plugins = dispatcher
	apiServer.StreamHandler = hub

	if unsafeNetwork && hubCfg.Network.Mode == "tailscale" {
		ln, err := daemon.NewUnsafeNetworkListener(hubCfg.Network, filepath.Join(paths.HubDir(root), "tsnet"), port)
		if err != nil {
			_ = st.Close()
			return fmt.Errorf("start unsafe network listener: %w", err)
		}
		apiServer.Listener = ln
	}

	lifecycle := daemon.NewLifecycle(root, paths.LockPath(root), paths.ServerJSONPath(root), apiServer, hub, st, flag)

	info := daemon.ServerInfo{
		InstanceID:      instanceID,
		DBID:            dbID,
		Host:            host,
		PID:             os.Getpid(),
		AuthToken:       authToken,
		StartedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		ProtocolVersion: daemon.ProtocolVersion,
	}
	if v, err := schema.GetSchemaVersion(db); err == nil {
		info.SchemaVersion = v
	}

	// Steps 2-5: acquire the writer lock, start the server, publish
	// server.json. AcquireAndPublish starts apiServer, so its bound port
	// is only known afterward — info.Port is filled in once we have it.
	if err := lifecycle.AcquireAndPublish(info, daemon.DefaultHealthChecker); err != nil {
		_ = st.Close()
		if err == daemon.ErrLockHeld {
			os.Exit(10)
		}
		return err
	}
	if tcpAddr, ok := apiServer.Addr().(*net.TCPAddr); ok {
		info.Port = tcpAddr.Port
		if err := daemon.WriteServerJSON(paths.ServerJSONPath(root), info); err != nil {
			fmt.Fprintf(os.Stderr, "warning: rewrite server.json with bound port: %v\n", err)
		}
	}
	fmt.Fprintf(os.Stderr, "hearthd: listening on %s\n", apiServer.Addr())

	if mcpStdio {
		mcpServer := mcpsrv.NewServer(st, hub, mcpsrv.WithVersion(Version), mcpsrv.WithPlugins(dispatcher))
		go func() {
			if err := mcpServer.Run(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "mcp: stdio server exited: %v\n", err)
			}
		}()
	}

	return lifecycle.Run(context.Background())
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the workspace's hub is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := paths.FindWorkspaceRoot(flagRoot)
			if err != nil {
				fmt.Fprintln(os.Stderr, "hearthd: no workspace found:", err)
				os.Exit(3)
			}

			info, err := daemon.ReadServerJSON(paths.ServerJSONPath(root))
			if err != nil {
				fmt.Fprintln(os.Stderr, "hearthd: no hub is running for this workspace")
				os.Exit(3)
			}

			advertised, ok := daemon.DefaultHealthChecker(info.Host, info.Port, 2*time.Second)
			if !ok || advertised != info.InstanceID {
				fmt.Fprintln(os.Stderr, "hearthd: hub is unreachable")
				os.Exit(3)
			}

			if !authTokenValid(info) {
				fmt.Fprintln(os.Stderr, "hearthd: hub rejected our own recorded auth token")
				os.Exit(4)
			}

			if wantsJSONOutput(cmd) {
				fmt.Printf("{\"running\":true,\"instance_id\":%q,\"host\":%q,\"port\":%d,\"pid\":%d}\n",
					info.InstanceID, info.Host, info.Port, info.PID)
			} else {
				fmt.Printf("running: instance %s, pid %d, listening on %s:%d\n", info.InstanceID, info.PID, info.Host, info.Port)
			}
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal the running hub to shut down gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := paths.FindWorkspaceRoot(flagRoot)
			if err != nil {
				return fmt.Errorf("no workspace found: %w", err)
			}

			info, err := daemon.ReadServerJSON(paths.ServerJSONPath(root))
			if err != nil {
				return fmt.Errorf("no hub is running for this workspace")
			}

			process, err := os.FindProcess(info.PID)
			if err != nil {
				return fmt.Errorf("find process %d: %w", info.PID, err)
			}
			if err := process.Signal(os.Interrupt); err != nil {
				return fmt.Errorf("signal process %d: %w", info.PID, err)
			}

			fmt.Println("hearthd: sent shutdown signal")
			return nil
		},
	}
}

// wantsJSONOutput reports whether status should print machine-readable
// JSON: explicit --json always wins; otherwise default to JSON when
// stdout isn't a terminal, the way a script piping hearthd status expects,
// and to the human-readable form on an interactive terminal.
func wantsJSONOutput(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("json") {
		return flagJSON
	}
	return !term.IsTerminal(int(os.Stdout.Fd()))
}

// authTokenValid performs a trivial authenticated round trip using the
// token recorded in server.json, to distinguish a reachable-but-rejecting
// hub (stale or corrupted server.json) from a genuinely healthy one. It
// posts an empty body to the auth-guarded channel-creation route: the token
// is checked first, and the missing channel name is then rejected before
// anything is written, so only a 401 means the token was refused.
func authTokenValid(info daemon.ServerInfo) bool {
	url := fmt.Sprintf("http://%s:%d/api/v1/channels", info.Host, info.Port)
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader("{}"))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+info.AuthToken)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode != http.StatusUnauthorized
}

func generateAuthToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
