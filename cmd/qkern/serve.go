package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkern/internal/api"
	"github.com/samcharles93/qkern/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the tensor, matmul and cast endpoints over HTTP",
		Flags: append(backendFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, configFrom(ctx), &addr)
			log := logger.FromContext(ctx)

			server, err := api.NewServer(api.NewTensorStore(), api.Config{
				Backend: backendName,
				Options: backendOptions(),
				Logger:  log,
			})
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			defer func() {
				if err := server.Close(); err != nil {
					log.Warn("closing backends", "error", err)
				}
			}()

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "backend", backendName)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
