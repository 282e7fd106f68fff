package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"cartsync/internal/domain/model"
)

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	// 同一 (variant, size) は数量を足す。結果の明細を返す
	UpsertByVariantAndSize(ctx context.Context, cartID int64, variantID string, size *string, addQty int64, unitPriceSnapshot decimal.Decimal) (model.CartItem, error)
	UpdateQuantity(ctx context.Context, cartItemID string, qty int64) error
	DeleteByID(ctx context.Context, cartItemID string) error
	FindByID(ctx context.Context, cartItemID string) (model.CartItem, error)
	IsOwnedByUser(ctx context.Context, cartItemID string, userID int64) (bool, error)
}
