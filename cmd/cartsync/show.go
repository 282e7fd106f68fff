package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cartsync/internal/config"
	"cartsync/internal/logger"
)

func newShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Fetch the cart once and print it with totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, *configPath, func(ctx context.Context, deps *agentDeps, out io.Writer) error {
				return printJSON(out, deps.client.Snapshot())
			})
		},
	}
}

func newOrdersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List past orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, *configPath, func(ctx context.Context, deps *agentDeps, out io.Writer) error {
				orders, err := deps.client.Checkout.History(ctx)
				if err != nil {
					return err
				}
				return printJSON(out, orders)
			})
		},
	}
}

// oneShot はログインして fn を呼ぶ。ローカルの保存先は使わない。
func oneShot(cmd *cobra.Command, configPath string, fn func(context.Context, *agentDeps, io.Writer) error) error {
	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)

	ctx := cmd.Context()
	deps, err := buildAgent(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer deps.close()

	subject, p, err := providerFor(cfg)
	if err != nil {
		return err
	}
	if err := deps.client.Login(ctx, subject, p); err != nil {
		return err
	}
	defer func() {
		if err := deps.client.Close(ctx); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}()
	return fn(ctx, deps, cmd.OutOrStdout())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
