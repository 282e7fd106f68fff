// Package checkout applies coupons and places the order from the local cart.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cartsync/internal/cartstore"
	"cartsync/internal/domain/model"
	"cartsync/internal/gateway"
	"cartsync/internal/totals"
)

var (
	ErrEmptyCart     = errors.New("cart is empty")
	ErrSizeRequired  = errors.New("size must be selected for every line")
	ErrInvalidCoupon = errors.New("invalid coupon")
)

// Orders は gateway.OrderGateway が満たす。
type Orders interface {
	ApplyCoupon(ctx context.Context, token string, code string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, token string, payload gateway.OrderPayload) error
	ListOrders(ctx context.Context, token string) ([]gateway.OrderSummary, error)
	PromoMessage(ctx context.Context, token string) (string, error)
}

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Flusher は注文前に未送信の数量を送る。coalescer.Coalescer が満たす。
type Flusher interface {
	Flush(ctx context.Context) error
}

type Summary struct {
	Lines      []model.CartLine `json:"lines"`
	Totals     totals.Totals    `json:"totals"`
	CouponCode string           `json:"coupon_code,omitempty"`
	Version    uint64           `json:"version"`
}

type Service struct {
	store   *cartstore.Store
	orders  Orders
	tokens  TokenSource
	flusher Flusher
	base    totals.Options
	log     *zap.Logger

	mu      sync.RWMutex
	code    string
	percent decimal.Decimal
}

func New(store *cartstore.Store, orders Orders, tokens TokenSource, flusher Flusher, base totals.Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		orders:  orders,
		tokens:  tokens,
		flusher: flusher,
		base:    base,
		log:     log.Named("checkout"),
		percent: decimal.Zero,
	}
}

// ApplyCoupon はクーポンを検証して割引率を保持する。
func (s *Service) ApplyCoupon(ctx context.Context, code string) (decimal.Decimal, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return decimal.Zero, ErrInvalidCoupon
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	percent, err := s.orders.ApplyCoupon(ctx, token, code)
	if err != nil {
		return decimal.Zero, err
	}
	if !percent.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidCoupon, code)
	}

	s.mu.Lock()
	s.code = code
	s.percent = percent
	s.mu.Unlock()

	s.log.Info("coupon applied", zap.String("code", code), zap.String("percent", percent.String()))
	return percent, nil
}

func (s *Service) ClearCoupon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = ""
	s.percent = decimal.Zero
}

func (s *Service) Options() totals.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.WithDiscount(s.percent)
}

// Summary は現在のカートと割引込みの合計。
func (s *Service) Summary() Summary {
	state := s.store.Read()
	s.mu.RLock()
	code := s.code
	s.mu.RUnlock()

	return Summary{
		Lines:      state.Lines,
		Totals:     totals.Calculate(state, s.Options()),
		CouponCode: code,
		Version:    state.Version,
	}
}

// PlaceOrder は未送信の数量を送ってから注文を確定する。
// 成功したら適用中のクーポンを外す。
func (s *Service) PlaceOrder(ctx context.Context) (gateway.OrderPayload, error) {
	if s.flusher != nil {
		if err := s.flusher.Flush(ctx); err != nil {
			// 注文は明細を直接送るので続行する
			s.log.Warn("flush before order failed", zap.Error(err))
		}
	}

	state := s.store.Read()
	if state.IsEmpty() {
		return gateway.OrderPayload{}, ErrEmptyCart
	}
	for _, l := range state.Lines {
		if l.Size == nil {
			return gateway.OrderPayload{}, fmt.Errorf("%w: line %s", ErrSizeRequired, l.ID)
		}
	}

	s.mu.RLock()
	code, percent := s.code, s.percent
	s.mu.RUnlock()

	payload := buildPayload(state, s.base.WithDiscount(percent), code)

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return gateway.OrderPayload{}, err
	}
	if err := s.orders.PlaceOrder(ctx, token, payload); err != nil {
		return gateway.OrderPayload{}, err
	}

	s.ClearCoupon()
	s.log.Info("order placed",
		zap.Int("items", len(payload.Items)),
		zap.String("price", payload.Price.String()),
		zap.String("coupon", code),
	)
	return payload, nil
}

// History は新しい順の注文履歴。
func (s *Service) History(ctx context.Context) ([]gateway.OrderSummary, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return s.orders.ListOrders(ctx, token)
}

// Promo はクーポン欄の案内文。
func (s *Service) Promo(ctx context.Context) (string, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	return s.orders.PromoMessage(ctx, token)
}

func buildPayload(state model.CartState, opt totals.Options, code string) gateway.OrderPayload {
	items := make([]gateway.OrderItem, 0, len(state.Lines))
	for _, l := range state.Lines {
		items = append(items, gateway.OrderItem{
			VariantID:    l.VariantID,
			Quantity:     l.Quantity,
			Size:         l.SizeValue(),
			PricePerUnit: l.UnitPrice,
		})
	}
	t := totals.Calculate(state, opt)
	return gateway.OrderPayload{
		Items:              items,
		Price:              t.Total,
		DiscountPercentage: opt.DiscountPercent,
		CouponCode:         code,
	}
}
