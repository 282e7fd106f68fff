package repository

import (
	"context"
	"errors"

	"cartsync/internal/domain/model"
)

// ユーザーが見つかりませんを統一
var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	//新規ユーザー作成
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	//メールからユーザーを一件取得する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// 最終ログイン日時の更新
	TouchLastLogin(ctx context.Context, userID int64) error
}
