package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":8080")
	}
	if cfg.DeployTimeout != 2*time.Minute {
		t.Errorf("DeployTimeout = %v, want 2m", cfg.DeployTimeout)
	}
	if cfg.MaxConcurrency != 8 {
		t.Errorf("MaxConcurrency = %d, want 8", cfg.MaxConcurrency)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STAGEGATE_LISTEN_ADDR", ":9999")
	t.Setenv("STAGEGATE_SNAPSHOT_TIMEOUT", "5s")
	t.Setenv("STAGEGATE_DEPLOY_RETRIES", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9999")
	}
	if cfg.SnapshotTimeout != 5*time.Second {
		t.Errorf("SnapshotTimeout = %v, want 5s", cfg.SnapshotTimeout)
	}
	if cfg.DeployRetries != 4 {
		t.Errorf("DeployRetries = %d, want 4", cfg.DeployRetries)
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("STAGEGATE_DEPLOY_TIMEOUT", "never")
	if _, err := Load(); err == nil {
		t.Fatal("Load with invalid duration: want error")
	}
}
