package auth

import (
	"errors"
	"fmt"
)

var (
	// トークン取得に失敗した
	ErrAuth = errors.New("authentication failed")

	// 未ログイン
	ErrNotAuthenticated = errors.New("not authenticated")
)

// AuthError はトークン取得の失敗。カート操作は中断し、状態には触れない。
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}
