package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/hearthhub/hearthd/internal/config"
)

// DefaultTimeout is used when a plugin declaration omits timeout_seconds.
const DefaultTimeout = time.Duration(config.DefaultPluginTimeoutSeconds) * time.Second

// Runner invokes one plugin subprocess per call. Each invocation is a
// fresh process: no state survives between calls, matching spec.md §4.6's
// "on completion or failure the worker is terminated."
type Runner struct {
	Plugin config.PluginConfig
}

// NewRunner builds a Runner for one configured plugin.
func NewRunner(p config.PluginConfig) *Runner {
	return &Runner{Plugin: p}
}

func (r *Runner) timeout() time.Duration {
	if r.Plugin.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(r.Plugin.TimeoutSeconds) * time.Second
}

// Invoke runs the plugin with input on stdin, parses its stdout as a JSON
// array, and returns the raw elements for the caller to interpret as
// enrichments or attachments depending on r.Plugin.Type. A timeout, a
// non-zero exit, or malformed stdout are reported as distinct Outcomes so
// the dispatcher can feed the breaker and logs without ever failing the
// originating mutation.
func (r *Runner) Invoke(ctx context.Context, in Input) ([]json.RawMessage, Outcome, error) {
	if len(r.Plugin.ModulePath) == 0 {
		return nil, OutcomeLoadError, fmt.Errorf("plugin %s: no module path configured", r.Plugin.Name)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, OutcomeExecutionError, fmt.Errorf("marshal plugin input: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, r.Plugin.ModulePath)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Once the timeout kills the worker, stop waiting for its output pipes
	// too: a child process of the worker can otherwise hold them open.
	cmd.WaitDelay = 250 * time.Millisecond

	runErr := cmd.Run()
	if timeoutCtx.Err() == context.DeadlineExceeded {
		return nil, OutcomeTimeout, fmt.Errorf("plugin %s: timed out after %s", r.Plugin.Name, r.timeout())
	}
	if runErr != nil {
		return nil, OutcomeWorkerCrash, fmt.Errorf("plugin %s: %w (stderr: %s)", r.Plugin.Name, runErr, stderr.String())
	}

	var out []json.RawMessage
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, OutcomeInvalidOutput, fmt.Errorf("plugin %s: stdout is not a JSON array: %w", r.Plugin.Name, err)
	}
	return out, OutcomeOK, nil
}
