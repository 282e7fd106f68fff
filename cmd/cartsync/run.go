package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cartsync/internal/auth"
	"cartsync/internal/config"
	"cartsync/internal/handler"
	"cartsync/internal/logger"
	"cartsync/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync agent and its local HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(*configPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := buildAgent(ctx, cfg, log, true)
			if err != nil {
				return err
			}
			defer deps.close()
			return runAgent(ctx, deps)
		},
	}
}

func runAgent(ctx context.Context, deps *agentDeps) error {
	cfg, log, client := deps.cfg, deps.log, deps.client

	if cfg.HasCredentials() {
		subject, p, err := providerFor(cfg)
		if err != nil {
			return err
		}
		// 照合の失敗は通知に残し、起動は続ける
		if err := client.Login(ctx, subject, p); err != nil {
			log.Warn("initial reconcile failed", zap.Error(err))
		}
	}

	providers := func(email, password string) auth.TokenProvider {
		return auth.NewPasswordProvider(cfg.BaseURL, email, password, nil)
	}
	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		gatherer = deps.registry
	}
	e := server.NewAgent(log, handler.NewSyncHandler(client, providers), gatherer)

	log.Info("cartsync agent listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("api", cfg.BaseURL),
		zap.Duration("debounce", cfg.Debounce),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return server.Run(gctx, e, cfg.ListenAddr, shutdownTimeout)
	})
	runErr := g.Wait()

	//未送信の書き込みを送ってから終了
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := client.Close(closeCtx); err != nil {
		log.Warn("final flush failed", zap.Error(err))
	}
	return runErr
}
