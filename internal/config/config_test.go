package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hearthhub/hearthd/internal/config"
)

func TestLoadHubConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := config.LoadHubConfig(filepath.Join(tmpDir, "hearth.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Limits.MaxMessageBytes != config.DefaultMaxMessageBytes {
		t.Errorf("expected MaxMessageBytes=%d, got %d", config.DefaultMaxMessageBytes, cfg.Limits.MaxMessageBytes)
	}
	if cfg.Limits.MaxBatchSize != config.DefaultMaxBatchSize {
		t.Errorf("expected MaxBatchSize=%d, got %d", config.DefaultMaxBatchSize, cfg.Limits.MaxBatchSize)
	}
	if len(cfg.Plugins) != 0 {
		t.Errorf("expected no plugins, got %d", len(cfg.Plugins))
	}
}

func TestLoadHubConfig_PartialOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hearth.json")
	if err := os.WriteFile(configPath, []byte(`{"limits":{"max_batch_size":50}}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadHubConfig(filepath.Join(tmpDir, "hearth.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Limits.MaxBatchSize != 50 {
		t.Errorf("expected MaxBatchSize=50, got %d", cfg.Limits.MaxBatchSize)
	}
	// Fields omitted from the file still get defaults.
	if cfg.Limits.MaxMessageBytes != config.DefaultMaxMessageBytes {
		t.Errorf("expected default MaxMessageBytes, got %d", cfg.Limits.MaxMessageBytes)
	}
}

func TestLoadHubConfig_Plugins(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hearth.json")
	data := `{
		"plugins": [
			{"name": "linkifier", "command": ["hearth-plugin-linkifier"], "timeout_seconds": 5, "enabled": true}
		],
		"network": {"mode": "tailscale", "hostname": "hearth-team"}
	}`
	if err := os.WriteFile(configPath, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadHubConfig(filepath.Join(tmpDir, "hearth.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Plugins) != 1 || cfg.Plugins[0].Name != "linkifier" {
		t.Errorf("expected one plugin named linkifier, got %+v", cfg.Plugins)
	}
	if !cfg.Plugins[0].Enabled {
		t.Error("expected plugin enabled=true")
	}
	if cfg.Network.Mode != "tailscale" || cfg.Network.Hostname != "hearth-team" {
		t.Errorf("unexpected network config: %+v", cfg.Network)
	}
}

func TestLoadHubConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hearth.json")
	if err := os.WriteFile(configPath, []byte(`{invalid`), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := config.LoadHubConfig(filepath.Join(tmpDir, "hearth.json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestSaveHubConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &config.HubConfig{
		Limits: config.LimitsConfig{MaxMessageBytes: 1024, MaxBatchSize: 10, MaxAttachmentBytes: 2048, MaxPluginWorkers: 2},
	}

	if err := config.SaveHubConfig(filepath.Join(tmpDir, "hearth.json"), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := config.LoadHubConfig(filepath.Join(tmpDir, "hearth.json"))
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Limits.MaxMessageBytes != 1024 || loaded.Limits.MaxBatchSize != 10 {
		t.Errorf("round trip lost limits: %+v", loaded.Limits)
	}
}

func TestSaveHubConfig_PreservesUnknownKeys(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hearth.json")
	if err := os.WriteFile(configPath, []byte(`{"custom":"keep_me","limits":{"max_batch_size":5}}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := &config.HubConfig{Limits: config.LimitsConfig{MaxBatchSize: 99}}
	if err := config.SaveHubConfig(filepath.Join(tmpDir, "hearth.json"), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "keep_me") {
		t.Errorf("unknown key was lost after save, got:\n%s", data)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	var limits config.LimitsConfig
	if err := json.Unmarshal(raw["limits"], &limits); err != nil {
		t.Fatal(err)
	}
	if limits.MaxBatchSize != 99 {
		t.Errorf("expected updated MaxBatchSize=99, got %d", limits.MaxBatchSize)
	}
}
