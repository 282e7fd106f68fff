package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cartsync/internal/auth"
	"cartsync/internal/cartstore"
	"cartsync/internal/cartsync"
	"cartsync/internal/config"
	"cartsync/internal/gateway"
	"cartsync/internal/metrics"
	"cartsync/internal/totals"
)

// agentDeps は起動に必要なものをまとめる
type agentDeps struct {
	cfg      config.Client
	log      *zap.Logger
	registry *prometheus.Registry
	client   *cartsync.Client
	redis    *redis.Client
}

func (d *agentDeps) close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	_ = d.log.Sync()
}

// buildAgent は設定から Client を組み立てる。persist=false なら Redis に繋がない。
func buildAgent(ctx context.Context, cfg config.Client, log *zap.Logger, persist bool) (*agentDeps, error) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	gw := gateway.Options{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
		Logger:    log,
		Metrics:   m,
	}

	deps := &agentDeps{cfg: cfg, log: log, registry: reg}

	var factory cartsync.PersisterFactory
	if persist && cfg.Redis.Addr != "" {
		base, rdb, err := cartstore.NewRedisPersister(ctx, cartstore.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Redis.Namespace,
			TTL:       cfg.Redis.TTL,
		})
		if err != nil {
			return nil, err
		}
		deps.redis = rdb
		factory = func(subject string) cartstore.Persister {
			return base.ForSubject(subject)
		}
		log.Info("cart persistence enabled", zap.String("redis", cfg.Redis.Addr))
	}

	deps.client = cartsync.New(gateway.NewCartGateway(gw), gateway.NewOrderGateway(gw), cartsync.Options{
		Debounce:          cfg.Debounce,
		WriteTimeout:      cfg.WriteTimeout,
		ReconcileInterval: cfg.ReconcileInterval,
		Totals: &totals.Options{
			DiscountPercent: decimal.Zero,
			TaxRate:         cfg.TaxRate,
			Shipping:        cfg.Shipping,
		},
		Persist: factory,
		Logger:  log,
		Metrics: m,
	})
	return deps, nil
}

// providerFor は設定の認証情報からトークンの取得方法を決める
func providerFor(cfg config.Client) (string, auth.TokenProvider, error) {
	switch {
	case cfg.Token != "":
		return "default", auth.Static(cfg.Token), nil
	case cfg.Email != "" && cfg.Password != "":
		return cfg.Email, auth.NewPasswordProvider(cfg.BaseURL, cfg.Email, cfg.Password, nil), nil
	default:
		return "", nil, fmt.Errorf("auth.token or auth.email/auth.password is required")
	}
}
