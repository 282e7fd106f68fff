package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const (
	OpApplyCoupon = "apply_coupon"
	OpPlaceOrder  = "place_order"
	OpListOrders  = "list_orders"
	OpPromo       = "promo"
)

// OrderGateway はクーポン適用と注文確定の要求層。
type OrderGateway struct {
	c *restClient
}

func NewOrderGateway(opts Options) *OrderGateway {
	return &OrderGateway{c: newRESTClient(opts)}
}

type OrderItem struct {
	VariantID    string          `json:"variantId"`
	Quantity     int64           `json:"quantity"`
	Size         string          `json:"size"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
}

type OrderPayload struct {
	Items              []OrderItem     `json:"items"`
	Price              decimal.Decimal `json:"price"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	CouponCode         string          `json:"couponCode,omitempty"`
}

// 注文履歴の1件
type OrderSummary struct {
	ID                 string             `json:"id" validate:"required"`
	Status             string             `json:"status" validate:"required"`
	TotalPrice         decimal.Decimal    `json:"total_price"`
	DiscountPercentage decimal.Decimal    `json:"discount_percentage"`
	CouponCode         *string            `json:"coupon_code,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	Items              []OrderSummaryItem `json:"items" validate:"dive"`
}

type OrderSummaryItem struct {
	VariantID   string          `json:"variant_id" validate:"required"`
	Size        string          `json:"size"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int64           `json:"quantity" validate:"min=1"`
}

type ordersEnvelope struct {
	Success *bool          `json:"success"`
	Message string         `json:"message"`
	Data    []OrderSummary `json:"data" validate:"dive"`
}

type promoResponse struct {
	Message string `json:"message"`
}

// ApplyCoupon は割引率（%）を返す。
func (g *OrderGateway) ApplyCoupon(ctx context.Context, token string, code string) (decimal.Decimal, error) {
	data, err := g.c.do(ctx, OpApplyCoupon, http.MethodPost, "/orders/coupons/"+url.PathEscape(code), token, struct{}{})
	if err != nil {
		return decimal.Zero, err
	}

	var out couponResponse
	if err := decode(OpApplyCoupon, data, &out); err != nil {
		return decimal.Zero, err
	}
	if err := checkStruct(out); err != nil {
		return decimal.Zero, &SchemaError{Op: OpApplyCoupon, Err: err}
	}
	if out.Value.IsNegative() || out.Value.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, &SchemaError{Op: OpApplyCoupon, Err: fmt.Errorf("value out of range: %s", out.Value)}
	}
	return *out.Value, nil
}

func (g *OrderGateway) PlaceOrder(ctx context.Context, token string, payload OrderPayload) error {
	data, err := g.c.do(ctx, OpPlaceOrder, http.MethodPost, "/orders", token, payload)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var env statusEnvelope
	if err := decode(OpPlaceOrder, data, &env); err != nil {
		return err
	}
	return checkSuccess(OpPlaceOrder, env.Success, env.Message)
}

// ListOrders は新しい順の注文履歴を返す。
func (g *OrderGateway) ListOrders(ctx context.Context, token string) ([]OrderSummary, error) {
	data, err := g.c.do(ctx, OpListOrders, http.MethodGet, "/orders", token, nil)
	if err != nil {
		return nil, err
	}

	var env ordersEnvelope
	if err := decode(OpListOrders, data, &env); err != nil {
		return nil, err
	}
	if err := checkSuccess(OpListOrders, env.Success, env.Message); err != nil {
		return nil, err
	}
	if err := checkStruct(env); err != nil {
		return nil, &SchemaError{Op: OpListOrders, Err: err}
	}
	if env.Data == nil {
		return []OrderSummary{}, nil
	}
	return env.Data, nil
}

// PromoMessage はクーポン欄の上に出す案内文。無ければ空文字
func (g *OrderGateway) PromoMessage(ctx context.Context, token string) (string, error) {
	data, err := g.c.do(ctx, OpPromo, http.MethodGet, "/orders/promo", token, nil)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	var out promoResponse
	if err := decode(OpPromo, data, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}
