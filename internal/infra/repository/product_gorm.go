package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"cartsync/internal/domain/model"
	repo "cartsync/internal/repository"
)

type VariantGormRepository struct {
	db *gorm.DB
}

// DI
func NewVariantGormRepository(db *gorm.DB) *VariantGormRepository {
	return &VariantGormRepository{db: db}
}

// 削除されていないバリエーションをサイズ在庫つきで返す。
func (r *VariantGormRepository) FindByID(ctx context.Context, id string) (model.ProductVariant, error) {
	var v model.ProductVariant

	err := r.db.WithContext(ctx).
		Preload("Sizes", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("id = ?", id).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ProductVariant{}, repo.ErrNotFound
	}
	if err != nil {
		return model.ProductVariant{}, err
	}
	return v, nil
}

// カート一覧の表示用にまとめて引く。見つからない ID は結果に含めない
func (r *VariantGormRepository) FindByIDs(ctx context.Context, ids []string) (map[string]model.ProductVariant, error) {
	out := make(map[string]model.ProductVariant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var variants []model.ProductVariant
	err := r.db.WithContext(ctx).
		Preload("Sizes", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("id IN ?", ids).
		Find(&variants).Error
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		out[v.ID] = v
	}
	return out, nil
}

// Create はサイズ在庫ごと保存する（デモデータ用）。
func (r *VariantGormRepository) Create(ctx context.Context, v model.ProductVariant) error {
	return r.db.WithContext(ctx).Create(&v).Error
}

// 条件付き UPDATE で在庫をマイナスにしない
func (r *VariantGormRepository) DecrementStock(ctx context.Context, variantID string, size string, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.VariantSize{}).
		Where("variant_id = ? AND size = ? AND stock >= ?", variantID, size, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrInsufficientStock
	}
	return nil
}
