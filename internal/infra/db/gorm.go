package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"cartsync/internal/config"
	"cartsync/internal/domain/model"
	"cartsync/internal/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	gcfg := &gorm.Config{
		Logger:         logger.NewGormLogger(log, logger.MapGormLogLevel(strings.ToLower(cfg.Log.Level))),
		TranslateError: true,
	}

	switch cfg.DBDriver {
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.SQLitePath), gcfg)
	case "postgres":
		// DATABASE_URL があれば最優先で使う
		pgcfg, err := pgx.ParseConfig(PostgresDSN(cfg))
		if err != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		sqlDB := stdlib.OpenDB(*pgcfg)
		return gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gcfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.DBDriver)
	}
}

func PostgresDSN(cfg config.Config) string {
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresSSLMode,
	)
}

// Migrate はカートサービスのテーブルを作る。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.ProductVariant{},
		&model.VariantSize{},
		&model.Cart{},
		&model.CartItem{},
		&model.Coupon{},
		&model.Order{},
		&model.OrderItem{},
	)
}
