package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// healthResponse mirrors the fixed JSON shape the /health endpoint always
// returns, used only to extract instance_id during lock reclaim.
type healthResponse struct {
	Status     string `json:"status"`
	InstanceID string `json:"instance_id"`
}

// DefaultHealthChecker probes a candidate daemon's /health endpoint over
// plain HTTP on loopback. It is the HealthChecker AcquireLock uses outside
// of tests.
func DefaultHealthChecker(host string, port int, timeout time.Duration) (string, bool) {
	client := &http.Client{Timeout: timeout}
	url := fmt.Sprintf("http://%s:%d/health", host, port)

	resp, err := client.Get(url) //nolint:gosec // G107 - host/port come from our own server.json, not user input
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false
	}
	return body.InstanceID, true
}
