package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkern/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:  "qkern",
		Usage: "Quantized tensor kernels: quantize, pack, cast and multiply",
		Flags: loggingFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyLoggingConfig(cmd, cfg)
			level := logger.ParseLevel(logLevel)
			if debug {
				level = slog.LevelDebug
			}
			log, err := logger.Build(logFormat, os.Stderr, level)
			if err != nil {
				return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			ctx = withConfig(ctx, cfg)
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			quantizeCmd(),
			packCmd(),
			unpackCmd(),
			castCmd(),
			benchCmd(),
			infoCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
