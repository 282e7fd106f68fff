package repository

import (
	"context"
	"errors"

	"cartsync/internal/domain/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// 商品バリエーションの取得とデモ用の登録だけを約束。
type VariantRepository interface {
	// Sizes も読み込む
	FindByID(ctx context.Context, id string) (model.ProductVariant, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]model.ProductVariant, error)
	Create(ctx context.Context, v model.ProductVariant) error
	// 在庫が足りなければ ErrInsufficientStock
	DecrementStock(ctx context.Context, variantID string, size string, qty int64) error
}
