package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"cartsync/internal/domain/model"
	repo "cartsync/internal/repository"
)

// CartUsecase は /cart の業務ロジックです。
// Repositoryは Cart と CartItem を分離して受け取ります。
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	variantRepo  repo.VariantRepository
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	variantRepo repo.VariantRepository,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		variantRepo:  variantRepo,
	}
}

// CartLineResponse はクライアントが読むカート明細の形。
// unit_price は追加時点の価格を返します。
type CartLineResponse struct {
	ID        string          `json:"id"`
	VariantID string          `json:"variant_id"`
	Quantity  int64           `json:"quantity"`
	Size      *string         `json:"size"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Sizes     []SizeResponse  `json:"sizes"`
	Display   DisplayResponse `json:"display"`
}

type SizeResponse struct {
	Size  string `json:"size"`
	Stock int64  `json:"stock"`
}

type DisplayResponse struct {
	Brand    string `json:"brand"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
	Color    string `json:"color"`
}

type AddCartInput struct {
	VariantID string
	Size      *string
	Quantity  int64
}

type UpdateCartItemInput struct {
	ID       string
	Quantity int64
}

// GetLines はカート明細（無ければACTIVEを作って空を返す）。
func (u *CartUsecase) GetLines(ctx context.Context, userID int64) ([]CartLineResponse, error) {
	if userID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return u.buildLines(ctx, cart.ID)
}

// AddToCart はカートに追加（同一 variant・size は数量加算）。
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in AddCartInput) (CartLineResponse, error) {
	if userID <= 0 {
		return CartLineResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.VariantID) == "" {
		return CartLineResponse{}, NewHTTPError(http.StatusBadRequest, "invalid variant_id")
	}
	if in.Quantity < 1 {
		return CartLineResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	if in.Size != nil && strings.TrimSpace(*in.Size) == "" {
		in.Size = nil
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartLineResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	v, err := u.activeVariant(ctx, in.VariantID)
	if err != nil {
		return CartLineResponse{}, err
	}
	stock, ok := v.StockFor(in.Size)
	if !ok {
		return CartLineResponse{}, NewHTTPError(http.StatusBadRequest, "invalid size")
	}

	// 既存数量を ListByCartID で調べる
	items, err := u.cartItemRepo.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartLineResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	var existingQty int64
	for _, it := range items {
		if it.VariantID == in.VariantID && it.SameSize(in.Size) {
			existingQty = it.Quantity
			break
		}
	}
	if existingQty+in.Quantity > stock {
		return CartLineResponse{}, NewHTTPError(http.StatusBadRequest, "stock exceeded")
	}

	// unit_price_snapshot は「追加時点の価格」を渡す
	item, err := u.cartItemRepo.UpsertByVariantAndSize(ctx, cart.ID, in.VariantID, in.Size, in.Quantity, v.Price)
	if err != nil {
		return CartLineResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return toLineResponse(item, v), nil
}

// 数量変更（所有チェック＋在庫チェック）。
func (u *CartUsecase) UpdateCartItem(ctx context.Context, userID int64, in UpdateCartItemInput) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.ID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if in.Quantity < 1 {
		return NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	if err := u.checkOwned(ctx, userID, in.ID); err != nil {
		return err
	}

	item, err := u.cartItemRepo.FindByID(ctx, in.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//商品の在庫チェック
	v, err := u.activeVariant(ctx, item.VariantID)
	if err != nil {
		return err
	}
	stock, ok := v.StockFor(item.Size)
	if !ok || in.Quantity > stock {
		return NewHTTPError(http.StatusBadRequest, "stock exceeded")
	}

	if err := u.cartItemRepo.UpdateQuantity(ctx, in.ID, in.Quantity); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

// 明細削除
func (u *CartUsecase) DeleteCartItem(ctx context.Context, userID int64, cartItemID string) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(cartItemID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := u.checkOwned(ctx, userID, cartItemID); err != nil {
		return err
	}

	if err := u.cartItemRepo.DeleteByID(ctx, cartItemID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

// カートを空にする。ACTIVEカートが無ければ何もしない
func (u *CartUsecase) ClearCart(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.cartRepo.FindActiveByUserID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if err := u.cartRepo.Clear(ctx, cart.ID); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *CartUsecase) checkOwned(ctx context.Context, userID int64, cartItemID string) error {
	owned, err := u.cartItemRepo.IsOwnedByUser(ctx, cartItemID, userID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !owned {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	return nil
}

// 公開中のバリエーションだけ
func (u *CartUsecase) activeVariant(ctx context.Context, id string) (model.ProductVariant, error) {
	v, err := u.variantRepo.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.ProductVariant{}, NewHTTPError(http.StatusBadRequest, "invalid")
	}
	if err != nil {
		return model.ProductVariant{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !v.IsActive {
		return model.ProductVariant{}, NewHTTPError(http.StatusBadRequest, "invalid")
	}
	return v, nil
}

// cartIDの明細をまとめて返す。非公開・削除済みの商品は出さない
func (u *CartUsecase) buildLines(ctx context.Context, cartID int64) ([]CartLineResponse, error) {
	items, err := u.cartItemRepo.ListByCartID(ctx, cartID)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.VariantID)
	}
	variants, err := u.variantRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	out := make([]CartLineResponse, 0, len(items))
	for _, it := range items {
		v, ok := variants[it.VariantID]
		if !ok || !v.IsActive {
			continue
		}
		out = append(out, toLineResponse(it, v))
	}
	return out, nil
}

func toLineResponse(it model.CartItem, v model.ProductVariant) CartLineResponse {
	sizes := make([]SizeResponse, 0, len(v.Sizes))
	for _, s := range v.Sizes {
		sizes = append(sizes, SizeResponse{Size: s.Size, Stock: s.Stock})
	}
	return CartLineResponse{
		ID:        it.ID,
		VariantID: it.VariantID,
		Quantity:  it.Quantity,
		Size:      it.Size,
		UnitPrice: it.UnitPriceSnapshot,
		Sizes:     sizes,
		Display: DisplayResponse{
			Brand:    v.Brand,
			Name:     v.ProductName,
			ImageURL: v.ImageURL,
			Color:    v.Color,
		},
	}
}
