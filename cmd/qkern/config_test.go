package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `backend: tile
threads: 6
tile:
  lanes: 3
  staging_bytes: 65536
layout: 4x8
log_level: debug
server_address: 0.0.0.0:9090
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend == nil || *cfg.Backend != "tile" {
		t.Fatalf("backend: %v", cfg.Backend)
	}
	if cfg.Threads == nil || *cfg.Threads != 6 {
		t.Fatalf("threads: %v", cfg.Threads)
	}
	if cfg.Tile.Lanes == nil || *cfg.Tile.Lanes != 3 || cfg.Tile.StagingBytes == nil || *cfg.Tile.StagingBytes != 65536 {
		t.Fatalf("tile: %+v", cfg.Tile)
	}
	if cfg.Layout == nil || *cfg.Layout != "4x8" {
		t.Fatalf("layout: %v", cfg.Layout)
	}
	if cfg.LogFormat != nil {
		t.Fatalf("log_format should be unset, got %q", *cfg.LogFormat)
	}
	if cfg.ServerAddress == nil || *cfg.ServerAddress != "0.0.0.0:9090" {
		t.Fatalf("server_address: %v", cfg.ServerAddress)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("threads: [1, 2"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestConfigFromContext(t *testing.T) {
	if cfg := configFrom(context.Background()); cfg.Backend != nil {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
	name := "cpu"
	ctx := withConfig(context.Background(), Config{Backend: &name})
	if cfg := configFrom(ctx); cfg.Backend == nil || *cfg.Backend != "cpu" {
		t.Fatalf("config not carried by context: %+v", cfg)
	}
}
