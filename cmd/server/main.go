package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/marslanding/internal/broker"
	"github.com/playperu/marslanding/internal/cloud"
	"github.com/playperu/marslanding/internal/config"
	"github.com/playperu/marslanding/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- Cloud ---
	gateway := cloud.New(cfg.Cloud, logger.With("component", "cloud"))
	b := broker.New(gateway, cfg.Cloud.Env, broker.MpCodeOptions{
		Path:  cfg.Cloud.MpCodePath,
		Width: cfg.Cloud.MpCodeWidth,
	}, logger.With("component", "broker"))

	if err := b.Bootstrap(ctx); err != nil {
		if cfg.BootstrapRequired {
			return fmt.Errorf("bootstrapping: %w", err)
		}
		logger.Error("bootstrap failed, serving without cloud access", "error", err)
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, b, server.WSOptions{
		SendBuffer:   cfg.WSSendBuffer,
		WriteTimeout: cfg.WSWriteTimeout,
		PingInterval: cfg.WSPingInterval,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}
