package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/wsrouter/internal/bridge"
	"github.com/luciancaetano/wsrouter/internal/config"
)

func serveCmd() *cobra.Command {
	var (
		addr      string
		heartbeat time.Duration
		lifespan  time.Duration
		natsURL   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo WebSocket server",
		Long: `Run the demo WebSocket server.

Configuration is read from WSROUTER_* environment variables; flags override
the environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("heartbeat") {
				cfg.HeartbeatInterval = heartbeat
			}
			if flags.Changed("lifespan") {
				cfg.MaxConnectionLifespan = lifespan
			}
			if flags.Changed("nats-url") {
				cfg.NATSURL = natsURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Listen address")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 0, "Close connections idle for this long (0 disables)")
	cmd.Flags().DurationVar(&lifespan, "lifespan", 0, "Close connections older than this (0 disables)")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS URL for cross-process pushes")

	return cmd
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	server, _, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.NATSURL != "" {
		nc, err := bridge.Connect(cfg.NATSURL, cfg.NATSName, logger)
		if err != nil {
			return err
		}
		defer nc.Close()

		sub := bridge.NewSubscriber(nc, cfg.NATSSubject, server, logger)
		if err := sub.Start(); err != nil {
			return err
		}
		defer sub.Stop()
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("%s - start server: %w", logPrefix, err)
	}
	logger.Info(fmt.Sprintf("%s - serving %d operations on %s%s", logPrefix, server.Registry().Len(), cfg.Addr, cfg.WSPath))

	<-ctx.Done()
	logger.Info(fmt.Sprintf("%s - shutting down", logPrefix))

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Stop(stopCtx)
}
