package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"cartsync/internal/domain/model"
	repo "cartsync/internal/repository"
)

type CouponGormRepository struct {
	db *gorm.DB
}

func NewCouponGormRepository(db *gorm.DB) *CouponGormRepository {
	return &CouponGormRepository{db: db}
}

// コードは大文字小文字を区別しない
func (r *CouponGormRepository) FindByCode(ctx context.Context, code string) (model.Coupon, error) {
	var c model.Coupon
	err := r.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Coupon{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Coupon{}, err
	}
	return c, nil
}

func (r *CouponGormRepository) Create(ctx context.Context, c model.Coupon) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	return r.db.WithContext(ctx).Create(&c).Error
}
