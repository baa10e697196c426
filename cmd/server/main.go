package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"refroute/internal/app"
	jwttoken "refroute/internal/jwt_token"
	"refroute/internal/platform/config"
	"refroute/internal/platform/httpserver"
	"refroute/internal/platform/logger"
	"refroute/internal/platform/metrics"
)

const shutdownTimeout = 10 * time.Second

// main wires the engine, the identity sync consumer and the HTTP API, and keeps
// them running until SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "refroute:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer a.Close()

	validator := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
	srv := httpserver.New(cfg.Addr, newRouter(a.Service, validator, a.Ready, metrics.New(), log))

	log.Info("starting refroute",
		"addr", cfg.Addr,
		"postgres", cfg.UsesPostgres(),
		"redis", a.Redis != nil,
		"kafka", cfg.UsesKafka(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(ctx) })
	g.Go(func() error { return httpserver.Run(ctx, srv, log, shutdownTimeout) })
	return g.Wait()
}
