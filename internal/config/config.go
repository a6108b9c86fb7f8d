// Package config loads the workspace's hearth.json: plugin declarations,
// size/rate limits, and optional network settings, with environment
// variables overriding the file for the limits that operators most often
// need to tune without editing it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// HubConfig is the top-level shape of hearth.json at the workspace root
// (see paths.ConfigPath).
type HubConfig struct {
	Plugins []PluginConfig `json:"plugins,omitempty"`
	Limits  LimitsConfig   `json:"limits"`
	Network NetworkConfig  `json:"network,omitempty"`
}

// PluginConfig declares one plugin the dispatch pool can invoke: a
// linkifier produces enrichments scoped to one message; an extractor
// produces attachments scoped to the message's topic.
type PluginConfig struct {
	Name           string          `json:"name"`
	Type           string          `json:"type"` // "linkifier" or "extractor"
	ModulePath     string          `json:"module_path"`
	TimeoutSeconds int             `json:"timeout_seconds"`
	Enabled        bool            `json:"enabled"`
	Config         json.RawMessage `json:"config,omitempty"`
}

const (
	PluginTypeLinkifier = "linkifier"
	PluginTypeExtractor = "extractor"

	// DefaultPluginTimeoutSeconds is used when a plugin declaration omits
	// timeout_seconds.
	DefaultPluginTimeoutSeconds = 5
)

// LimitsConfig bounds request sizes and plugin concurrency.
type LimitsConfig struct {
	MaxMessageBytes    int `json:"max_message_bytes"`
	MaxAttachmentBytes int `json:"max_attachment_bytes"`
	MaxBatchSize       int `json:"max_batch_size"`
	MaxPluginWorkers   int `json:"max_plugin_workers"`
}

// NetworkConfig selects the Command API / Stream hub's listen surface.
type NetworkConfig struct {
	Mode     string `json:"mode,omitempty"` // "local" (default) or "tailscale"
	Hostname string `json:"hostname,omitempty"`
}

// Default limit values, used when hearth.json omits a field or doesn't exist.
const (
	DefaultMaxMessageBytes    = 256 * 1024
	DefaultMaxAttachmentBytes = 10 * 1024 * 1024
	DefaultMaxBatchSize       = 500
	DefaultMaxPluginWorkers   = 4
)

func defaultLimits() LimitsConfig {
	return LimitsConfig{
		MaxMessageBytes:    DefaultMaxMessageBytes,
		MaxAttachmentBytes: DefaultMaxAttachmentBytes,
		MaxBatchSize:       DefaultMaxBatchSize,
		MaxPluginWorkers:   DefaultMaxPluginWorkers,
	}
}

// LoadHubConfig reads the config file at configPath (see
// paths.ConfigPath), returning defaults if it doesn't exist. Limits fields
// the file omits keep their default values; zero-valued fields present in
// the file are left as written by the operator.
func LoadHubConfig(configPath string) (*HubConfig, error) {
	data, err := os.ReadFile(configPath) //nolint:gosec // G304 - path from workspace root, resolved by paths.FindWorkspaceRoot
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &HubConfig{Limits: defaultLimits()}, nil
		}
		return nil, fmt.Errorf("read hearth.json: %w", err)
	}

	cfg := HubConfig{Limits: defaultLimits()}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse hearth.json: %w", err)
	}
	applyLimitEnvOverrides(&cfg.Limits)
	return &cfg, nil
}

// SaveHubConfig writes cfg to the config file at configPath, preserving
// any top-level keys the current schema doesn't know about so operator
// edits using a newer schema version survive a round trip through an
// older binary.
func SaveHubConfig(configPath string, cfg *HubConfig) error {
	raw := map[string]json.RawMessage{}
	if existing, err := os.ReadFile(configPath); err == nil { //nolint:gosec // G304 - path from workspace's own .hearth directory
		_ = json.Unmarshal(existing, &raw)
	}

	encoded, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal hearth.json: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return fmt.Errorf("decode hearth.json fields: %w", err)
	}
	for k, v := range fields {
		raw[k] = v
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal hearth.json: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("write hearth.json: %w", err)
	}
	return nil
}
