package repository

import (
	"context"

	"cartsync/internal/domain/model"
)

type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (model.Coupon, error)
	Create(ctx context.Context, c model.Coupon) error
}
