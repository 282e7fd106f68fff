package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 割引クーポン。Percent は 0〜100
type Coupon struct {
	Code      string          `gorm:"primaryKey;type:varchar(64)" json:"code"`
	Percent   decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"percent"`
	IsActive  bool            `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	CreatedAt time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}

// Usable は有効かつ期限内か。
func (c Coupon) Usable(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	return c.ExpiresAt == nil || now.Before(*c.ExpiresAt)
}
