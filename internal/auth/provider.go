package auth

import (
	"context"
	"errors"
	"strings"
)

// TokenProvider は Bearer トークンを非同期に返す外部の認証プロバイダ。
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc は関数を TokenProvider として使うためのアダプタ。
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static は固定トークンを返す。
type Static string

func (s Static) Token(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", errors.New("empty static token")
	}
	return string(s), nil
}

// Acquire はトークンを取り、失敗を AuthError に包む。
func Acquire(ctx context.Context, p TokenProvider) (string, error) {
	if p == nil {
		return "", &AuthError{Err: ErrNotAuthenticated}
	}
	tok, err := p.Token(ctx)
	if err != nil {
		var ae *AuthError
		if errors.As(err, &ae) {
			return "", err
		}
		return "", &AuthError{Err: err}
	}
	if tok == "" {
		return "", &AuthError{Err: errors.New("empty token")}
	}
	return tok, nil
}
