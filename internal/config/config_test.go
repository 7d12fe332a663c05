package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SyncInterval != time.Hour {
		t.Errorf("sync_interval = %s, want 1h default", cfg.SyncInterval)
	}
	if cfg.DatabasePath != "data/issues.db" {
		t.Errorf("database_path = %q, want default", cfg.DatabasePath)
	}
	if cfg.Prune {
		t.Error("prune should default to off")
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issuedash.yaml")
	content := `
sheet_url: https://example.com/export.csv
sync_interval: 15m
prune: true
port: 9090
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SheetURL != "https://example.com/export.csv" {
		t.Errorf("sheet_url = %q", cfg.SheetURL)
	}
	if cfg.SyncInterval != 15*time.Minute {
		t.Errorf("sync_interval = %s, want 15m", cfg.SyncInterval)
	}
	if !cfg.Prune {
		t.Error("prune should be on from file")
	}
	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Port)
	}
	if !cfg.HasSource() {
		t.Error("HasSource should be true with a sheet URL")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ISSUEDASH_SHEET_URL", "https://env.example.com/export.csv")
	t.Setenv("ISSUEDASH_PORT", "7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SheetURL != "https://env.example.com/export.csv" {
		t.Errorf("sheet_url = %q, want env value", cfg.SheetURL)
	}
	if cfg.Port != 7070 {
		t.Errorf("port = %d, want env value 7070", cfg.Port)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("sync_interval: -5m\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for negative sync interval")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for explicitly named missing file")
	}
}
