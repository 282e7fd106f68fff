package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"cartsync/internal/domain/model"
	"cartsync/internal/repository"
)

var (
	//400 入力不足
	ErrValidation = errors.New("validation error")
	//401 認証失敗
	ErrUnauthorized = errors.New("unauthorized")
	//403 停止ユーザー
	ErrForbidden = errors.New("forbidden")
	//500
	ErrInternal = errors.New("internal error")
)

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateLogin(ctx context.Context, email string, password string) error
}

// JWTを発行する約束
type AccessTokenIssuer interface {
	Issue(userID int64, now time.Time) (token string, expiresAt time.Time, err error)
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type JwtAccessTokenDTO struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type AuthUsecase struct {
	users     repository.UserRepository
	validator AuthValidator
	issuer    AccessTokenIssuer
	log       *zap.Logger
	now       func() time.Time
}

func NewAuthUsecase(users repository.UserRepository, validator AuthValidator, issuer AccessTokenIssuer, log *zap.Logger) *AuthUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthUsecase{users: users, validator: validator, issuer: issuer, log: log.Named("auth"), now: time.Now}
}

// IssueToken はメールとパスワードを照合してアクセストークンを返す。
func (u *AuthUsecase) IssueToken(ctx context.Context, req AuthLoginRequest) (JwtAccessTokenDTO, error) {
	// 1) 入力検証
	if err := u.validator.ValidateLogin(ctx, req.Email, req.Password); err != nil {
		return JwtAccessTokenDTO{}, ErrValidation
	}

	//ユーザー取得
	user, err := u.users.FindByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, repository.ErrUserNotFound) || (err == nil && user == nil) {
		return JwtAccessTokenDTO{}, ErrUnauthorized
	}
	if err != nil {
		return JwtAccessTokenDTO{}, ErrInternal
	}

	//停止ユーザーはログイン不可
	if !user.CanSignIn() {
		return JwtAccessTokenDTO{}, ErrForbidden
	}

	//パスワード照合（bcrypt）
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return JwtAccessTokenDTO{}, ErrUnauthorized
	}

	//last_login更新（失敗してもログインは通す）
	if err := u.users.TouchLastLogin(ctx, user.ID); err != nil {
		u.log.Warn("failed to update last login", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	return u.issueAccessToken(user)
}

func (u *AuthUsecase) issueAccessToken(user *model.User) (JwtAccessTokenDTO, error) {
	now := u.now()
	token, exp, err := u.issuer.Issue(user.ID, now)
	if err != nil {
		return JwtAccessTokenDTO{}, ErrInternal
	}
	return JwtAccessTokenDTO{
		AccessToken: token,
		ExpiresIn:   int64(exp.Sub(now).Seconds()),
	}, nil
}
