package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"cartsync/internal/logger"
)

// Client は同期エージェント（cmd/cartsync）の設定
type Client struct {
	BaseURL   string        // カートサービスの URL
	Timeout   time.Duration // 1リクエストのタイムアウト
	RateLimit float64       // 1秒あたりの上限。0 なら無制限
	Burst     int

	Debounce          time.Duration
	ReconcileInterval time.Duration
	WriteTimeout      time.Duration

	TaxRate  decimal.Decimal
	Shipping decimal.Decimal

	// 固定トークンか、メール+パスワード（/auth/token）
	Token    string
	Email    string
	Password string

	Redis RedisConfig

	ListenAddr     string
	MetricsEnabled bool

	Log logger.Config
}

// Addr が空なら永続化しない
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	TTL       time.Duration
}

// HasCredentials は起動時にログインできるか。
func (c Client) HasCredentials() bool {
	return c.Token != "" || (c.Email != "" && c.Password != "")
}

// LoadClient は CARTSYNC_ で始まる環境変数と cartsync.toml を読む。
func LoadClient(path string) (Client, error) {
	v, err := newViper("CARTSYNC", "cartsync", path)
	if err != nil {
		return Client{}, err
	}

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.rate_limit", 10.0)
	v.SetDefault("api.burst", 5)
	v.SetDefault("sync.debounce", 2*time.Second)
	v.SetDefault("sync.reconcile_interval", 10*time.Second)
	v.SetDefault("sync.write_timeout", 10*time.Second)
	v.SetDefault("totals.tax_rate", "0.10")
	v.SetDefault("totals.shipping", "0")
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.email", "")
	v.SetDefault("auth.password", "")
	v.SetDefault("persist.redis_addr", "")
	v.SetDefault("persist.redis_password", "")
	v.SetDefault("persist.redis_db", 0)
	v.SetDefault("persist.namespace", "cartsync:cart")
	v.SetDefault("persist.ttl", 7*24*time.Hour)
	v.SetDefault("listen.addr", "127.0.0.1:8090")
	v.SetDefault("metrics.enabled", true)
	setLogDefaults(v)

	taxRate, err := decimal.NewFromString(v.GetString("totals.tax_rate"))
	if err != nil {
		return Client{}, fmt.Errorf("totals.tax_rate must be a decimal: %w", err)
	}
	shipping, err := decimal.NewFromString(v.GetString("totals.shipping"))
	if err != nil {
		return Client{}, fmt.Errorf("totals.shipping must be a decimal: %w", err)
	}

	cfg := Client{
		BaseURL:   v.GetString("api.base_url"),
		Timeout:   v.GetDuration("api.timeout"),
		RateLimit: v.GetFloat64("api.rate_limit"),
		Burst:     v.GetInt("api.burst"),

		Debounce:          v.GetDuration("sync.debounce"),
		ReconcileInterval: v.GetDuration("sync.reconcile_interval"),
		WriteTimeout:      v.GetDuration("sync.write_timeout"),

		TaxRate:  taxRate,
		Shipping: shipping,

		Token:    v.GetString("auth.token"),
		Email:    v.GetString("auth.email"),
		Password: v.GetString("auth.password"),

		Redis: RedisConfig{
			Addr:      v.GetString("persist.redis_addr"),
			Password:  v.GetString("persist.redis_password"),
			DB:        v.GetInt("persist.redis_db"),
			Namespace: v.GetString("persist.namespace"),
			TTL:       v.GetDuration("persist.ttl"),
		},

		ListenAddr:     v.GetString("listen.addr"),
		MetricsEnabled: v.GetBool("metrics.enabled"),

		Log: logConfig(v),
	}

	if err := cfg.validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func (c Client) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an http(s) URL: %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.RateLimit < 0 || c.Burst < 0 {
		return fmt.Errorf("api.rate_limit and api.burst must not be negative")
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("sync.debounce must be positive")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("sync.reconcile_interval must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("sync.write_timeout must be positive")
	}
	if c.TaxRate.IsNegative() || c.Shipping.IsNegative() {
		return fmt.Errorf("totals.tax_rate and totals.shipping must not be negative")
	}
	if (c.Email == "") != (c.Password == "") {
		return fmt.Errorf("auth.email and auth.password must be set together")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen.addr is required")
	}
	return nil
}
