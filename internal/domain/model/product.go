package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 商品バリエーション（色違いなど）。カートに入る単位
type ProductVariant struct {
	ID          string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProductName string          `gorm:"type:varchar(255);not null" json:"product_name"`
	Brand       string          `gorm:"type:varchar(255);not null" json:"brand"`
	Color       string          `gorm:"type:varchar(64)" json:"color"`
	ImageURL    string          `gorm:"type:text" json:"image_url"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	IsActive    bool            `gorm:"not null;default:false" json:"is_active"`
	Sizes       []VariantSize   `gorm:"foreignKey:VariantID" json:"sizes"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

// サイズごとの在庫
type VariantSize struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	VariantID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_variant_size" json:"-"`
	Size      string `gorm:"type:varchar(20);not null;uniqueIndex:idx_variant_size" json:"size"`
	Stock     int64  `gorm:"not null" json:"stock"`
}

// StockFor はサイズ未選択なら全サイズの合計を返す。
func (v ProductVariant) StockFor(size *string) (int64, bool) {
	if size == nil {
		var total int64
		for _, s := range v.Sizes {
			total += s.Stock
		}
		return total, true
	}
	for _, s := range v.Sizes {
		if s.Size == *size {
			return s.Stock, true
		}
	}
	return 0, false
}
