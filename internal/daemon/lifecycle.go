package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hearthhub/hearthd/internal/store"
)

// DrainTimeout bounds how long graceful shutdown waits for in-flight
// requests before cancelling them outright.
const DrainTimeout = 10 * time.Second

// ShutdownFlag is shared between the Lifecycle and the Command API's
// middleware: once set, new non-health requests answer SHUTTING_DOWN
// instead of being routed to a handler.
type ShutdownFlag struct {
	down atomic.Bool
}

// ShuttingDown reports whether shutdown has begun.
func (f *ShutdownFlag) ShuttingDown() bool { return f.down.Load() }

func (f *ShutdownFlag) set() { f.down.Store(true) }

// HTTPServer is the subset of the Command API server Lifecycle drives.
// Declared as an interface (rather than importing internal/api directly)
// to avoid an import cycle: internal/api in turn depends on
// *ShutdownFlag.
type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// StreamHub is the subset of the Stream hub Lifecycle drives.
type StreamHub interface {
	CloseAll(code int, reason string)
}

// Lifecycle owns the workspace-wide writer lock, the embedded store, and
// the HTTP/WS servers for one daemon process, and sequences their startup
// and shutdown per spec.md §4.5.
type Lifecycle struct {
	Root           string
	LockPath       string
	ServerJSONPath string

	HTTPServer HTTPServer
	Stream     StreamHub
	Store      *store.Store
	Flag       *ShutdownFlag

	DrainTimeout time.Duration

	lock       *WriterLock
	shutdownCh chan struct{}
	once       sync.Once
}

// NewLifecycle wires the components a single daemon process owns. Callers
// build the store, HTTP server, and stream hub first (they need the
// resolved port and auth token before server.json can be written) and pass
// them in.
func NewLifecycle(root, lockPath, serverJSONPath string, httpServer HTTPServer, stream StreamHub, s *store.Store, flag *ShutdownFlag) *Lifecycle {
	return &Lifecycle{
		Root:           root,
		LockPath:       lockPath,
		ServerJSONPath: serverJSONPath,
		HTTPServer:     httpServer,
		Stream:         stream,
		Store:          s,
		Flag:           flag,
		DrainTimeout:   DrainTimeout,
		shutdownCh:     make(chan struct{}),
	}
}

// AcquireAndPublish runs startup steps 2-5: acquire the writer lock, start
// the HTTP server, then atomically publish server.json. Step 1 (workspace
// discovery) and step 6 (optional config load) happen in the caller
// (cmd/hearthd) since they don't need anything Lifecycle owns.
func (l *Lifecycle) AcquireAndPublish(info ServerInfo, check HealthChecker) error {
	lock, err := AcquireLock(l.LockPath, l.ServerJSONPath, info.InstanceID, check)
	if err != nil {
		return err
	}
	l.lock = lock

	if err := l.HTTPServer.Start(); err != nil {
		_ = l.lock.Release()
		return fmt.Errorf("start http server: %w", err)
	}

	if err := WriteServerJSON(l.ServerJSONPath, info); err != nil {
		// server.json write failure during startup is fatal: release the
		// lock and exit, per spec.md's explicit failure mode.
		_ = l.lock.Release()
		return fmt.Errorf("publish server.json: %w", err)
	}
	return nil
}

// Run blocks until a shutdown signal (SIGTERM/SIGINT) or a programmatic
// Shutdown() call, then performs the graceful shutdown sequence.
func (l *Lifecycle) Run(ctx context.Context) error {
	defer func() {
		if l.lock != nil {
			if err := l.lock.Release(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to release writer lock: %v\n", err)
			}
		}
	}()

	go l.handleSignals()

	select {
	case <-l.shutdownCh:
	case <-ctx.Done():
	}
	return l.shutdown()
}

// Shutdown triggers the graceful shutdown sequence programmatically (e.g.
// from a test).
func (l *Lifecycle) Shutdown() {
	l.once.Do(func() { close(l.shutdownCh) })
}

func (l *Lifecycle) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	l.Shutdown()
}

// shutdown implements spec.md §4.5's five shutdown steps in order.
func (l *Lifecycle) shutdown() error {
	// 1. Set the shutdown flag; new non-health requests answer SHUTTING_DOWN.
	l.Flag.set()

	// 2. Wait up to DrainTimeout for in-flight requests, then cancel them.
	drainCtx, cancel := context.WithTimeout(context.Background(), l.DrainTimeout)
	defer cancel()
	if err := l.HTTPServer.Shutdown(drainCtx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: http server shutdown: %v\n", err)
	}

	// 3. Close all WebSocket connections with code 1001.
	if l.Stream != nil {
		l.Stream.CloseAll(1001, "server shutting down")
	}

	// 4. Checkpoint the WAL (best effort) and close the store.
	if l.Store != nil {
		if err := l.Store.Checkpoint(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: WAL checkpoint: %v\n", err)
		}
		if err := l.Store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: close store: %v\n", err)
		}
	}

	// 5. Remove server.json and then the writer lock, each idempotent.
	if err := RemoveServerJSON(l.ServerJSONPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: remove server.json: %v\n", err)
	}
	if l.lock != nil {
		if err := l.lock.Release(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: release writer lock: %v\n", err)
		}
		l.lock = nil
	}
	return nil
}
