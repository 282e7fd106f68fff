package repository

import (
	"context"
	"time"

	"cartsync/internal/domain/model"
)

// CartRepository はユーザーごとの ACTIVE カートを扱う。
// ACTIVE が無いときは ErrNotFound（GetOrCreate は作る）。
type CartRepository interface {
	GetOrCreateActiveByUserID(ctx context.Context, userID int64) (model.Cart, error)
	FindActiveByUserID(ctx context.Context, userID int64) (model.Cart, error)
	// 注文確定。以後そのカートは ACTIVE として見つからない
	MarkCheckedOut(ctx context.Context, cartID int64, at time.Time) error
	// 明細だけ消す。カート自体は残る
	Clear(ctx context.Context, cartID int64) error
}
