package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

type Order struct {
	ID                 string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID             int64           `gorm:"not null;index" json:"user_id"`
	Status             OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalPrice         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	DiscountPercentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"discount_percentage"`
	CouponCode         *string         `gorm:"type:varchar(64)" json:"coupon_code,omitempty"`
	Items              []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt          time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
