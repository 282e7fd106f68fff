package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cartsync/internal/config"
	"cartsync/internal/logger"
	"cartsync/internal/server"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "cartapi",
		Short:         "Reference cart service (REST, JWT, gorm)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log)
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, closeDB, err := server.BuildService(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeDB() }()

			//Server起動
			log.Info("cart service listening",
				zap.String("addr", cfg.Addr()),
				zap.String("env", cfg.GoEnv),
				zap.String("db", cfg.DBDriver),
			)
			return server.Run(ctx, e, cfg.Addr(), 10*time.Second)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to cartapi.toml")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "cartapi:", err)
		os.Exit(1)
	}
}
