package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"cartsync/internal/domain/model"
	repo "cartsync/internal/repository"
)

// =====================
// Repository mocks
// =====================

type cartRepoMock struct{ mock.Mock }

func (m *cartRepoMock) GetOrCreateActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *cartRepoMock) FindActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *cartRepoMock) MarkCheckedOut(ctx context.Context, cartID int64, at time.Time) error {
	return m.Called(ctx, cartID, at).Error(0)
}

func (m *cartRepoMock) Clear(ctx context.Context, cartID int64) error {
	return m.Called(ctx, cartID).Error(0)
}

type cartItemRepoMock struct{ mock.Mock }

func (m *cartItemRepoMock) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	args := m.Called(ctx, cartID)
	items, _ := args.Get(0).([]model.CartItem)
	return items, args.Error(1)
}

func (m *cartItemRepoMock) UpsertByVariantAndSize(ctx context.Context, cartID int64, variantID string, size *string, addQty int64, price decimal.Decimal) (model.CartItem, error) {
	args := m.Called(ctx, cartID, variantID, size, addQty, price)
	it, _ := args.Get(0).(model.CartItem)
	return it, args.Error(1)
}

func (m *cartItemRepoMock) UpdateQuantity(ctx context.Context, id string, qty int64) error {
	return m.Called(ctx, id, qty).Error(0)
}

func (m *cartItemRepoMock) DeleteByID(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *cartItemRepoMock) FindByID(ctx context.Context, id string) (model.CartItem, error) {
	args := m.Called(ctx, id)
	it, _ := args.Get(0).(model.CartItem)
	return it, args.Error(1)
}

func (m *cartItemRepoMock) IsOwnedByUser(ctx context.Context, id string, userID int64) (bool, error) {
	args := m.Called(ctx, id, userID)
	return args.Bool(0), args.Error(1)
}

type variantRepoMock struct{ mock.Mock }

func (m *variantRepoMock) FindByID(ctx context.Context, id string) (model.ProductVariant, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(model.ProductVariant)
	return v, args.Error(1)
}

func (m *variantRepoMock) FindByIDs(ctx context.Context, ids []string) (map[string]model.ProductVariant, error) {
	args := m.Called(ctx, ids)
	v, _ := args.Get(0).(map[string]model.ProductVariant)
	return v, args.Error(1)
}

func (m *variantRepoMock) Create(ctx context.Context, v model.ProductVariant) error {
	return m.Called(ctx, v).Error(0)
}

func (m *variantRepoMock) DecrementStock(ctx context.Context, variantID string, size string, qty int64) error {
	return m.Called(ctx, variantID, size, qty).Error(0)
}

type userRepoMock struct{ mock.Mock }

func (m *userRepoMock) Create(ctx context.Context, u *model.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *userRepoMock) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *userRepoMock) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *userRepoMock) TouchLastLogin(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type orderRepoMock struct{ mock.Mock }

func (m *orderRepoMock) FindByID(ctx context.Context, id string) (model.Order, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *orderRepoMock) ListByUserID(ctx context.Context, userID int64, page, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	o, _ := args.Get(0).([]model.Order)
	return o, int64(len(o)), args.Error(1)
}

func (m *orderRepoMock) Create(ctx context.Context, o model.Order) error {
	return m.Called(ctx, o).Error(0)
}

type orderItemRepoMock struct{ mock.Mock }

func (m *orderItemRepoMock) CreateBulk(ctx context.Context, orderID string, items []model.OrderItem) error {
	return m.Called(ctx, orderID, items).Error(0)
}

func (m *orderItemRepoMock) ListByOrderID(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

type couponRepoMock struct{ mock.Mock }

func (m *couponRepoMock) FindByCode(ctx context.Context, code string) (model.Coupon, error) {
	args := m.Called(ctx, code)
	c, _ := args.Get(0).(model.Coupon)
	return c, args.Error(1)
}

func (m *couponRepoMock) Create(ctx context.Context, c model.Coupon) error {
	return m.Called(ctx, c).Error(0)
}

// =====================
// TxManager mock
// =====================

// WithinTx の中で渡す repos を固定する
type txManagerMock struct {
	repos repo.TxRepos
	calls int
}

func (m *txManagerMock) WithinTx(_ context.Context, fn func(r repo.TxRepos) error) error {
	m.calls++
	return fn(m.repos)
}

type txReposMock struct {
	orders     *orderRepoMock
	orderItems *orderItemRepoMock
	carts      *cartRepoMock
	cartItems  *cartItemRepoMock
	variants   *variantRepoMock
}

func (r *txReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *txReposMock) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *txReposMock) Carts() repo.CartRepository           { return r.carts }
func (r *txReposMock) CartItems() repo.CartItemRepository   { return r.cartItems }
func (r *txReposMock) Variants() repo.VariantRepository     { return r.variants }

// =====================
// その他
// =====================

type issuerStub struct {
	err error
}

func (s issuerStub) Issue(userID int64, now time.Time) (string, time.Time, error) {
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	return "token-for-user", now.Add(15 * time.Minute), nil
}

type validatorStub struct {
	err error
}

func (s validatorStub) ValidateLogin(context.Context, string, string) error {
	return s.err
}

func runner() model.ProductVariant {
	return model.ProductVariant{
		ID: "v1", ProductName: "Runner", Brand: "Acme", Color: "red",
		Price: decimal.NewFromInt(100), IsActive: true,
		Sizes: []model.VariantSize{{VariantID: "v1", Size: "42", Stock: 3}, {VariantID: "v1", Size: "43", Stock: 0}},
	}
}
