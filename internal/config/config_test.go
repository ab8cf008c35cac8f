package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.App.Name != "chat-relay" {
		t.Fatalf("unexpected app name %q", cfg.App.Name)
	}
	if cfg.App.Addr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected addr %q", cfg.App.Addr())
	}
	if cfg.Cache.TTL() != 7*24*time.Hour {
		t.Fatalf("unexpected cache TTL %v", cfg.Cache.TTL())
	}
	if cfg.Platform.MaxAttempts != 3 || cfg.Platform.BackoffBase() != time.Second {
		t.Fatalf("unexpected platform retry defaults %+v", cfg.Platform)
	}
	if cfg.Platform.RateLimitCooldown() != 5*time.Second {
		t.Fatalf("unexpected cooldown %v", cfg.Platform.RateLimitCooldown())
	}
	if cfg.Queue.MaxAttempts != 3 || cfg.Queue.BackoffBase() != 2*time.Second {
		t.Fatalf("unexpected queue retry defaults %+v", cfg.Queue)
	}
	if cfg.Queue.StatusDelay() != 5*time.Second {
		t.Fatalf("unexpected status delay %v", cfg.Queue.StatusDelay())
	}
	if cfg.Queue.PollInterval() != 250*time.Millisecond {
		t.Fatalf("unexpected poll interval %v", cfg.Queue.PollInterval())
	}
	if cfg.Queue.VisibilityTimeout() != 60*time.Second {
		t.Fatalf("unexpected visibility timeout %v", cfg.Queue.VisibilityTimeout())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "9999")
	t.Setenv("PLATFORM_MAX_ATTEMPTS", "5")
	t.Setenv("IDENTITY_CACHE_TTL_DAYS", "1")
	t.Setenv("QUEUE_STATUS_DELAY_SECONDS", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.App.Port != "9999" {
		t.Fatalf("unexpected port %q", cfg.App.Port)
	}
	if cfg.Platform.MaxAttempts != 5 {
		t.Fatalf("unexpected max attempts %d", cfg.Platform.MaxAttempts)
	}
	if cfg.Cache.TTL() != 24*time.Hour {
		t.Fatalf("unexpected TTL %v", cfg.Cache.TTL())
	}
	if cfg.Queue.StatusDelay() != 12*time.Second {
		t.Fatalf("unexpected status delay %v", cfg.Queue.StatusDelay())
	}
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("QUEUE_MAX_ATTEMPTS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Fatalf("expected fallback to default, got %d", cfg.Queue.MaxAttempts)
	}
}
