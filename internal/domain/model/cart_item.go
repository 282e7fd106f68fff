package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// サーバー側のカート明細。ID は uuid で、クライアントの CartLine.ID になる。
// 追加時点の単価を必ず保存する。
type CartItem struct {
	ID                string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CartID            int64           `gorm:"not null;index" json:"cart_id"`
	VariantID         string          `gorm:"type:varchar(64);not null;index" json:"variant_id"`
	Size              *string         `gorm:"type:varchar(20)" json:"size"`
	Quantity          int64           `gorm:"not null" json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `gorm:"type:numeric(12,2);not null;column:unit_price_snapshot" json:"unit_price_snapshot"`
	CreatedAt         time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// SameSize はサイズ未選択同士も一致とみなす。
func (i CartItem) SameSize(size *string) bool {
	if i.Size == nil || size == nil {
		return i.Size == nil && size == nil
	}
	return *i.Size == *size
}
