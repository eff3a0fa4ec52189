package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/qkern/internal/backend"
	"github.com/samcharles93/qkern/internal/backend/tile"
)

// Config is the qkern configuration file. Pointer fields distinguish "not
// set" from zero values.
type Config struct {
	Backend *string `yaml:"backend"`
	Threads *int64  `yaml:"threads"`

	Tile struct {
		Lanes        *int64 `yaml:"lanes"`
		StagingBytes *int64 `yaml:"staging_bytes"`
	} `yaml:"tile"`

	Layout *string `yaml:"layout"`

	LogLevel  *string `yaml:"log_level"`
	LogFormat *string `yaml:"log_format"`

	ServerAddress *string `yaml:"server_address"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "qkern", "config.yaml")
}

// LoadConfig reads path, or the default location when path is empty. A
// missing default file yields a zero Config; a missing explicit file is an
// error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

type configKey struct{}

func withConfig(ctx context.Context, cfg Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(ctx context.Context) Config {
	cfg, _ := ctx.Value(configKey{}).(Config)
	return cfg
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != nil && !c.IsSet("log-level") {
		logLevel = *cfg.LogLevel
	}
	if cfg.LogFormat != nil && !c.IsSet("log-format") {
		logFormat = *cfg.LogFormat
	}
}

// applyBackendConfig fills backend flags the user did not set from cfg.
func applyBackendConfig(c *cli.Command, cfg Config) {
	if cfg.Backend != nil && !c.IsSet("backend") {
		backendName = *cfg.Backend
	}
	if cfg.Threads != nil && !c.IsSet("threads") {
		threads = *cfg.Threads
	}
	if cfg.Tile.Lanes != nil && !c.IsSet("tile-lanes") {
		tileLanes = *cfg.Tile.Lanes
	}
	if cfg.Tile.StagingBytes != nil && !c.IsSet("tile-staging") {
		tileStaging = *cfg.Tile.StagingBytes
	}
}

func applyLayoutConfig(c *cli.Command, cfg Config) {
	if cfg.Layout != nil && !c.IsSet("layout") {
		interleaving = *cfg.Layout
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyBackendConfig(c, cfg)
	if cfg.ServerAddress != nil && !c.IsSet("addr") {
		*addr = *cfg.ServerAddress
	}
}

func backendOptions() backend.Options {
	return backend.Options{
		Threads: int(threads),
		Tile: tile.Config{
			Lanes:        int(tileLanes),
			StagingBytes: int(tileStaging),
		},
	}
}
