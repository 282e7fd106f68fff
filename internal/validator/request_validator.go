package validator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"cartsync/internal/usecase"
)

// 入力が不正
var ErrInvalidInput = errors.New("invalid input")

// RequestValidator は echo.Validator として登録し、c.Validate でも使う。
type RequestValidator struct {
	v *validator.Validate
}

func New() *RequestValidator {
	return &RequestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate は失敗したフィールドを並べて ErrInvalidInput で包む。
func (r *RequestValidator) Validate(i any) error {
	if err := r.v.Struct(i); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

type loginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

// ログインの入力を検証
func (r *RequestValidator) ValidateLogin(_ context.Context, email string, password string) error {
	return r.Validate(loginInput{Email: strings.TrimSpace(email), Password: password})
}

var _ usecase.AuthValidator = (*RequestValidator)(nil)
