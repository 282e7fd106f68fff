package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文時点の商品名と単価を保存
type OrderItem struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             string          `gorm:"type:varchar(36);not null;index" json:"order_id"`
	VariantID           string          `gorm:"type:varchar(64);not null;index" json:"variant_id"`
	Size                string          `gorm:"type:varchar(20);not null" json:"size"`
	ProductNameSnapshot string          `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	UnitPriceSnapshot   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price_snapshot"`
	Quantity            int64           `gorm:"not null" json:"quantity"`
	CreatedAt           time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}
