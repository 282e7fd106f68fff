package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cartsync/internal/domain/model"
	repo "cartsync/internal/repository"
)

var hundred = decimal.NewFromInt(100)

type OrderUsecase struct {
	tx      repo.TransactionManager
	orders  repo.OrderRepository
	coupons repo.CouponRepository
	promo   string
	now     func() time.Time
}

func NewOrderUsecase(tx repo.TransactionManager, orders repo.OrderRepository, coupons repo.CouponRepository, promo string) *OrderUsecase {
	return &OrderUsecase{tx: tx, orders: orders, coupons: coupons, promo: promo, now: time.Now}
}

type PlaceOrderItem struct {
	VariantID    string
	Quantity     int64
	Size         string
	PricePerUnit decimal.Decimal
}

type PlaceOrderInput struct {
	Items              []PlaceOrderItem
	Price              decimal.Decimal
	DiscountPercentage decimal.Decimal
	CouponCode         string
}

type OrderItemOutput struct {
	VariantID   string          `json:"variant_id"`
	Size        string          `json:"size"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int64           `json:"quantity"`
}

type OrderOutput struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	TotalPrice         decimal.Decimal   `json:"total_price"`
	DiscountPercentage decimal.Decimal   `json:"discount_percentage"`
	CouponCode         *string           `json:"coupon_code,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	Items              []OrderItemOutput `json:"items"`
}

// ApplyCoupon は割引率（%）を返す。使えないコードは 404
func (u *OrderUsecase) ApplyCoupon(ctx context.Context, userID int64, code string) (decimal.Decimal, error) {
	if userID <= 0 {
		return decimal.Zero, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	c, err := u.usableCoupon(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Percent, nil
}

// PlaceOrder は在庫を引き当てて注文を作り、カートを CHECKED_OUT にする。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "cart is empty")
	}
	if in.Price.IsNegative() {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid price")
	}
	if in.DiscountPercentage.IsNegative() || in.DiscountPercentage.GreaterThan(hundred) {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid discount")
	}
	for _, it := range in.Items {
		if strings.TrimSpace(it.VariantID) == "" || it.Quantity < 1 {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid item")
		}
		if strings.TrimSpace(it.Size) == "" {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "size is required")
		}
	}

	var couponCode *string
	if code := strings.TrimSpace(in.CouponCode); code != "" {
		c, err := u.usableCoupon(ctx, code)
		if err != nil {
			return OrderOutput{}, err
		}
		if !c.Percent.Equal(in.DiscountPercentage) {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "discount does not match coupon")
		}
		couponCode = &c.Code
	} else if !in.DiscountPercentage.IsZero() {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid discount")
	}

	order := model.Order{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Status:             model.OrderStatusPending,
		TotalPrice:         in.Price,
		DiscountPercentage: in.DiscountPercentage,
		CouponCode:         couponCode,
		CreatedAt:          u.now(),
	}

	//注文処理はトランザクション
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		items := make([]model.OrderItem, 0, len(in.Items))
		for _, it := range in.Items {
			v, err := r.Variants().FindByID(ctx, it.VariantID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusBadRequest, "invalid item")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !v.IsActive {
				return NewHTTPError(http.StatusBadRequest, "invalid item")
			}

			if err := r.Variants().DecrementStock(ctx, it.VariantID, it.Size, it.Quantity); err != nil {
				if errors.Is(err, repo.ErrInsufficientStock) {
					return NewHTTPError(http.StatusConflict, "stock exceeded")
				}
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			// 単価はサーバー側の現在価格で記録
			items = append(items, model.OrderItem{
				VariantID:           it.VariantID,
				Size:                it.Size,
				ProductNameSnapshot: v.ProductName,
				UnitPriceSnapshot:   v.Price,
				Quantity:            it.Quantity,
			})
		}

		if err := r.Orders().Create(ctx, order); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.OrderItems().CreateBulk(ctx, order.ID, items); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		order.Items = items

		cart, err := r.Carts().FindActiveByUserID(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.Carts().MarkCheckedOut(ctx, cart.ID, order.CreatedAt); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		if _, ok := AsHTTPError(err); ok {
			return OrderOutput{}, err
		}
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return toOrderOutput(order), nil
}

// ListOrders は新しい順の注文履歴
func (u *OrderUsecase) ListOrders(ctx context.Context, userID int64, page, limit int) ([]OrderOutput, error) {
	if userID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	orders, _, err := u.orders.ListByUserID(ctx, userID, page, limit)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	out := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderOutput(o))
	}
	return out, nil
}

// Promo はクーポン欄の案内文
func (u *OrderUsecase) Promo() string {
	return u.promo
}

func (u *OrderUsecase) usableCoupon(ctx context.Context, code string) (model.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return model.Coupon{}, NewHTTPError(http.StatusBadRequest, "invalid coupon")
	}
	c, err := u.coupons.FindByCode(ctx, code)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Coupon{}, NewHTTPError(http.StatusNotFound, "invalid coupon")
	}
	if err != nil {
		return model.Coupon{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !c.Usable(u.now()) {
		return model.Coupon{}, NewHTTPError(http.StatusNotFound, "invalid coupon")
	}
	return c, nil
}

func toOrderOutput(o model.Order) OrderOutput {
	items := make([]OrderItemOutput, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemOutput{
			VariantID:   it.VariantID,
			Size:        it.Size,
			ProductName: it.ProductNameSnapshot,
			UnitPrice:   it.UnitPriceSnapshot,
			Quantity:    it.Quantity,
		})
	}
	return OrderOutput{
		ID:                 o.ID,
		Status:             string(o.Status),
		TotalPrice:         o.TotalPrice,
		DiscountPercentage: o.DiscountPercentage,
		CouponCode:         o.CouponCode,
		CreatedAt:          o.CreatedAt,
		Items:              items,
	}
}
