package config_test

import (
	"os"
	"testing"

	"github.com/hearthhub/hearthd/internal/config"
)

func clearSecurityEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"HEARTH_RATE_LIMIT_ENABLED", "HEARTH_MAX_RPS", "HEARTH_BURST_SIZE"} {
		old, had := os.LookupEnv(key)
		_ = os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(key, old)
			}
		})
	}
}

func TestLoadSecurityConfig_Defaults(t *testing.T) {
	clearSecurityEnv(t)
	cfg := config.LoadSecurityConfig()
	if !cfg.RateLimitEnabled {
		t.Error("expected rate limiting enabled by default")
	}
	if cfg.MaxRequestsPerSecond != config.DefaultMaxRequestsPerSec {
		t.Errorf("MaxRequestsPerSecond = %v, want %v", cfg.MaxRequestsPerSecond, config.DefaultMaxRequestsPerSec)
	}
	if cfg.BurstSize != config.DefaultBurstSize {
		t.Errorf("BurstSize = %d, want %d", cfg.BurstSize, config.DefaultBurstSize)
	}
}

func TestLoadSecurityConfig_DisabledViaEnv(t *testing.T) {
	clearSecurityEnv(t)
	_ = os.Setenv("HEARTH_RATE_LIMIT_ENABLED", "false")
	cfg := config.LoadSecurityConfig()
	if cfg.RateLimitEnabled {
		t.Error("expected rate limiting disabled when HEARTH_RATE_LIMIT_ENABLED=false")
	}
}

func TestLoadSecurityConfig_OverridesFromEnv(t *testing.T) {
	clearSecurityEnv(t)
	_ = os.Setenv("HEARTH_MAX_RPS", "100")
	_ = os.Setenv("HEARTH_BURST_SIZE", "200")
	cfg := config.LoadSecurityConfig()
	if cfg.MaxRequestsPerSecond != 100 {
		t.Errorf("MaxRequestsPerSecond = %v, want 100", cfg.MaxRequestsPerSecond)
	}
	if cfg.BurstSize != 200 {
		t.Errorf("BurstSize = %d, want 200", cfg.BurstSize)
	}
}

func TestSecurityConfig_Validate(t *testing.T) {
	valid := config.SecurityConfig{MaxRequestsPerSecond: 10, BurstSize: 20}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected a valid config to pass, got: %v", err)
	}

	zeroRPS := config.SecurityConfig{MaxRequestsPerSecond: 0, BurstSize: 20}
	if err := zeroRPS.Validate(); err == nil {
		t.Error("expected an error for a non-positive max requests per second")
	}

	zeroBurst := config.SecurityConfig{MaxRequestsPerSecond: 10, BurstSize: 0}
	if err := zeroBurst.Validate(); err == nil {
		t.Error("expected an error for a non-positive burst size")
	}
}
