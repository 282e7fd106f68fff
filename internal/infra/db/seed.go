package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"cartsync/internal/domain/model"
)

const (
	DemoEmail    = "demo@example.com"
	DemoPassword = "password123"
	DemoCoupon   = "SAVE10"
)

// SeedDemo はデモ用のユーザー・商品・クーポンを入れる。既にあれば何もしない
func SeedDemo(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Model(&model.User{}).Where("email = ?", DemoEmail).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model.User{Email: DemoEmail, PasswordHash: string(hash), IsActive: true}).Error; err != nil {
			return err
		}

		for _, v := range demoVariants() {
			if err := tx.Create(&v).Error; err != nil {
				return err
			}
		}

		c := model.Coupon{Code: DemoCoupon, Percent: decimal.NewFromInt(10), IsActive: true}
		if err := tx.Create(&c).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		return nil
	})
}

func demoVariants() []model.ProductVariant {
	sizes := func(id string, stock ...int64) []model.VariantSize {
		names := []string{"40", "41", "42", "43"}
		out := make([]model.VariantSize, 0, len(stock))
		for i, s := range stock {
			out = append(out, model.VariantSize{VariantID: id, Size: names[i], Stock: s})
		}
		return out
	}

	return []model.ProductVariant{
		{ID: "runner-red", ProductName: "Runner", Brand: "Acme", Color: "red",
			ImageURL: "/img/runner-red.png", Price: decimal.NewFromInt(100), IsActive: true,
			Sizes: sizes("runner-red", 5, 3, 0, 2)},
		{ID: "runner-blue", ProductName: "Runner", Brand: "Acme", Color: "blue",
			ImageURL: "/img/runner-blue.png", Price: decimal.NewFromInt(100), IsActive: true,
			Sizes: sizes("runner-blue", 1, 1, 1, 1)},
		{ID: "court-white", ProductName: "Court", Brand: "Baseline", Color: "white",
			ImageURL: "/img/court-white.png", Price: decimal.RequireFromString("79.90"), IsActive: true,
			Sizes: sizes("court-white", 10, 10, 10, 10)},
	}
}
