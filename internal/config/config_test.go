package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Run from an empty directory so no stray gridsync.yaml is picked up.
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.DataDir != ".gridsync/data" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if cfg.Sync.Policy != "versioned" || cfg.Sync.MaxRetries != 3 || cfg.Sync.PaddingMargin != 5 {
		t.Errorf("sync defaults = %+v", cfg.Sync)
	}
	if cfg.Grid.Timeout != 30*time.Second {
		t.Errorf("grid.timeout = %v, want 30s", cfg.Grid.Timeout)
	}
	if cfg.Daemon.Debounce != 500*time.Millisecond || cfg.Daemon.FullSyncInterval != 5*time.Minute {
		t.Errorf("daemon defaults = %+v", cfg.Daemon)
	}
	if cfg.DashboardPort != 8080 {
		t.Errorf("dashboard_port = %d, want 8080", cfg.DashboardPort)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridsync.yaml")
	content := `
data_dir: /srv/gridsync/data
grid:
  base_url: https://grid.example.com/api
  token: abc123
  timeout: 10s
sync:
  policy: identity
  max_retries: 5
daemon:
  debounce: 2s
  log_file: /var/log/gridsync.log
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.DataDir != "/srv/gridsync/data" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if cfg.Grid.BaseURL != "https://grid.example.com/api" || cfg.Grid.Token != "abc123" {
		t.Errorf("grid = %+v", cfg.Grid)
	}
	if cfg.Grid.Timeout != 10*time.Second {
		t.Errorf("grid.timeout = %v, want 10s", cfg.Grid.Timeout)
	}
	if cfg.Sync.Policy != "identity" || cfg.Sync.MaxRetries != 5 {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	// Unset keys keep their defaults.
	if cfg.Sync.PaddingMargin != 5 {
		t.Errorf("padding_margin = %d, want the default 5", cfg.Sync.PaddingMargin)
	}
	if cfg.Daemon.Debounce != 2*time.Second || cfg.Daemon.LogFile != "/var/log/gridsync.log" {
		t.Errorf("daemon = %+v", cfg.Daemon)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GRIDSYNC_GRID_TOKEN", "from-env")
	t.Setenv("GRIDSYNC_SYNC_MAX_RETRIES", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Grid.Token != "from-env" {
		t.Errorf("grid.token = %q, want the env override", cfg.Grid.Token)
	}
	if cfg.Sync.MaxRetries != 7 {
		t.Errorf("sync.max_retries = %d, want 7", cfg.Sync.MaxRetries)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Errorf("an explicit config path must exist")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		sync Sync
	}{
		{"unknown policy", Sync{Policy: "newest-wins", MaxRetries: 3}},
		{"zero retries", Sync{Policy: "versioned", MaxRetries: 0}},
		{"negative margin", Sync{Policy: "versioned", MaxRetries: 3, PaddingMargin: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Sync: tc.sync}
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected a validation error")
			}
		})
	}
}
