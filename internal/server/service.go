package server

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"cartsync/internal/auth"
	"cartsync/internal/config"
	"cartsync/internal/handler"
	"cartsync/internal/infra/db"
	infraRepo "cartsync/internal/infra/repository"
	"cartsync/internal/middleware"
	"cartsync/internal/usecase"
	"cartsync/internal/validator"
)

// BuildService は DB 接続からハンドラまでを組み立てる。close で DB を閉じる
func BuildService(ctx context.Context, cfg config.Config, log *zap.Logger) (*echo.Echo, func() error, error) {
	//DB接続
	gormDB, err := db.Connect(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBDriver == "sqlite" {
		// sqlite は書き込みが1本なので接続を絞る
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.Migrate(gormDB); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	if cfg.SeedDemo {
		if err := db.SeedDemo(ctx, gormDB); err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("seed: %w", err)
		}
		log.Info("demo data ready", zap.String("email", db.DemoEmail))
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	variantRepo := infraRepo.NewVariantGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	couponRepo := infraRepo.NewCouponGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//JWT issuer
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(userRepo, validator.New(), issuer, log)
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, variantRepo)
	orderUC := usecase.NewOrderUsecase(txm, orderRepo, couponRepo, cfg.PromoMessage)

	//Handler生成
	e := NewService(log, ServiceHandlers{
		Auth:   handler.NewAuthHandler(authUC),
		Cart:   handler.NewCartHandler(cartUC),
		Order:  handler.NewOrderHandler(orderUC),
		AuthMW: middleware.AuthJWT(issuer),
	})
	return e, sqlDB.Close, nil
}
