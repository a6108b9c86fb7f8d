package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ProtocolVersion is the wire protocol version advertised in server.json
// and the health endpoint. Bump when the Command API or Stream hub frame
// grammar changes in an incompatible way.
const ProtocolVersion = 1

// ServerInfo is the discovery document published at server.json by the
// daemon holding the writer lock. Clients read it to find the listening
// host/port and the bearer token; they never write it.
type ServerInfo struct {
	InstanceID      string `json:"instance_id"`
	DBID            string `json:"db_id"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	PID             int    `json:"pid"`
	AuthToken       string `json:"auth_token"`
	StartedAt       string `json:"started_at"`
	ProtocolVersion int    `json:"protocol_version"`
	SchemaVersion   int    `json:"schema_version"`
}

// WriteServerJSON atomically publishes info at path with mode 0600: write
// to a same-directory temp file, rename into place, then verify the mode
// actually landed (some filesystems / umasks can surprise us).
func WriteServerJSON(path string, info ServerInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal server.json: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create server.json directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write server.json: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("finalize server.json: %w", err)
	}

	info2, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat server.json: %w", err)
	}
	if info2.Mode().Perm() != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("fix server.json mode: %w", err)
		}
	}
	return nil
}

// ReadServerJSON reads and parses the discovery document at path.
func ReadServerJSON(path string) (ServerInfo, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304 - path resolved from workspace root
	if err != nil {
		return ServerInfo{}, err
	}
	var info ServerInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return ServerInfo{}, fmt.Errorf("parse server.json: %w", err)
	}
	return info, nil
}

// RemoveServerJSON removes the discovery document. Idempotent: a missing
// file is not an error.
func RemoveServerJSON(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove server.json: %w", err)
	}
	return nil
}
