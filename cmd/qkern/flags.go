package main

import "github.com/urfave/cli/v3"

var (
	backendName  string
	threads      int64
	tileLanes    int64
	tileStaging  int64
	configFile   string
	logLevel     string
	logFormat    string
	debug        bool
	jsonOut      bool
	interleaving string
)

func backendFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "execution backend (auto, cpu, tile, cuda, webgpu)",
			Value:       "auto",
			Destination: &backendName,
		},
		&cli.Int64Flag{
			Name:        "threads",
			Aliases:     []string{"t"},
			Usage:       "cpu worker threads (0 = GOMAXPROCS)",
			Destination: &threads,
		},
		&cli.Int64Flag{
			Name:        "tile-lanes",
			Usage:       "tile engine lanes (0 = GOMAXPROCS)",
			Destination: &tileLanes,
		},
		&cli.Int64Flag{
			Name:        "tile-staging",
			Usage:       "tile engine staging bytes per lane",
			Value:       192 * 1024,
			Destination: &tileStaging,
		},
	}
}

func layoutFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "layout",
		Aliases:     []string{"l"},
		Usage:       "interleave layout (4x4, 4x8, 8x8)",
		Value:       "8x8",
		Destination: &interleaving,
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default $XDG_CONFIG_HOME/qkern/config.yaml)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:        "json",
		Usage:       "print the result as JSON",
		Destination: &jsonOut,
	}
}
