package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"cartsync/internal/usecase"
)

type AuthHandler struct {
	uc *usecase.AuthUsecase
}

// DIコンストラクタ
func NewAuthHandler(uc *usecase.AuthUsecase) *AuthHandler {
	return &AuthHandler{uc: uc}
}

// /auth/token のリクエストボディ。
type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *AuthHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/token", h.token)
}

func (h *AuthHandler) token(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid body"))
	}

	out, err := h.uc.IssueToken(c.Request().Context(), usecase.AuthLoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return writeAuthError(c, err)
	}

	return c.JSON(http.StatusOK, tokenResponse{
		Success:     true,
		AccessToken: out.AccessToken,
		ExpiresIn:   out.ExpiresIn,
	})
}

// usecase の sentinel をステータスに対応づける
func writeAuthError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrValidation):
		return c.JSON(http.StatusBadRequest, errorBody("invalid input"))
	case errors.Is(err, usecase.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, errorBody("invalid email or password"))
	case errors.Is(err, usecase.ErrForbidden):
		return c.JSON(http.StatusForbidden, errorBody("account is disabled"))
	default:
		return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}
}
