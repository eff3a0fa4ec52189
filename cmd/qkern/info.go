package main

import (
	"context"
	"runtime"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkern/internal/backend"
	"github.com/samcharles93/qkern/internal/backend/simd"
	"github.com/samcharles93/qkern/internal/version"
)

type hostInfo struct {
	Version    string          `json:"version"`
	GoVersion  string          `json:"go_version"`
	OS         string          `json:"os"`
	Arch       string          `json:"arch"`
	NumCPU     int             `json:"num_cpu"`
	GOMAXPROCS int             `json:"gomaxprocs"`
	SIMDPath   string          `json:"simd_path"`
	Features   map[string]bool `json:"features"`
	Backends   []string        `json:"backends"`
}

func infoCmd() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Print CPU features and the backends compiled into this binary as JSON",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			v := version.Resolve()
			feats := simd.Features()
			info := hostInfo{
				Version:    v.Version,
				GoVersion:  v.GoVersion,
				OS:         runtime.GOOS,
				Arch:       runtime.GOARCH,
				NumCPU:     runtime.NumCPU(),
				GOMAXPROCS: runtime.GOMAXPROCS(0),
				SIMDPath:   feats.Path(),
				Features:   feats.Map(),
				Backends:   strings.Split(backend.Available(), ","),
			}
			return printJSON(info)
		},
	}
}
