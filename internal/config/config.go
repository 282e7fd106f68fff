// Package config loads settings for the reference cart service and the sync client.
// Values come from (highest first) environment variables, an optional TOML file,
// and built-in defaults. A .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"cartsync/internal/logger"
)

// Configはカートサービス全体の設定
type Config struct {
	Port  string // サーバーポート（8080）
	GoEnv string // dev/prod

	DBDriver    string // postgres / sqlite
	DatabaseURL string // 指定があれば最優先

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string

	SQLitePath string // sqlite のときのファイル（:memory: 可）

	JWTSecret string        // JWT署名シークレット
	AccessTTL time.Duration // アクセストークンの有効期限

	SeedDemo bool // 起動時にデモデータを入れる

	PromoMessage string // クーポン欄の案内文（空なら出さない）

	Log logger.Config
}

// Load は CARTAPI_ で始まる環境変数と cartapi.toml を読む。
func Load(path string) (Config, error) {
	v, err := newViper("CARTAPI", "cartapi", path)
	if err != nil {
		return Config{}, err
	}

	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "dev")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "cart")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "cart.db")
	v.SetDefault("jwt.access_ttl", 15*time.Minute)
	v.SetDefault("seed.demo", false)
	v.SetDefault("promo.message", "")
	setLogDefaults(v)

	cfg := Config{
		Port:  v.GetString("app.port"),
		GoEnv: v.GetString("app.env"),

		DBDriver:    strings.ToLower(v.GetString("database.driver")),
		DatabaseURL: v.GetString("database.url"),

		PostgresUser:     v.GetString("database.user"),
		PostgresPassword: v.GetString("database.password"),
		PostgresDB:       v.GetString("database.name"),
		PostgresHost:     v.GetString("database.host"),
		PostgresPort:     v.GetInt("database.port"),
		PostgresSSLMode:  v.GetString("database.sslmode"),

		SQLitePath: v.GetString("database.sqlite_path"),

		JWTSecret: v.GetString("jwt.secret"),
		AccessTTL: v.GetDuration("jwt.access_ttl"),

		SeedDemo: v.GetBool("seed.demo"),

		PromoMessage: v.GetString("promo.message"),

		Log: logConfig(v),
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("app.port is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt.secret is required")
	}
	if cfg.AccessTTL <= 0 {
		return Config{}, fmt.Errorf("jwt.access_ttl must be positive")
	}
	switch cfg.DBDriver {
	case "postgres":
		if cfg.DatabaseURL == "" && (cfg.PostgresHost == "" || cfg.PostgresDB == "") {
			return Config{}, fmt.Errorf("database.host and database.name are required")
		}
	case "sqlite":
		if cfg.SQLitePath == "" {
			return Config{}, fmt.Errorf("database.sqlite_path is required")
		}
	default:
		return Config{}, fmt.Errorf("database.driver must be postgres or sqlite: %q", cfg.DBDriver)
	}

	return cfg, nil
}

// Addr は ":8080" 形式のリッスンアドレス。
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func newViper(envPrefix, name, path string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// 設定ファイルが無ければ既定値と環境変数だけ
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func setLogDefaults(v *viper.Viper) {
	def := logger.DefaultConfig()
	v.SetDefault("log.level", def.Level)
	v.SetDefault("log.format", def.Format)
	v.SetDefault("log.output", def.Output)
}

func logConfig(v *viper.Viper) logger.Config {
	return logger.Config{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
		Output: v.GetString("log.output"),
	}
}
