package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const CtxUserIDKey = "user_id" // int64

// TokenParser は署名と期限を検証して userID を返す。
type TokenParser interface {
	Parse(raw string) (int64, error)
}

// bearerAuth用のJWT検証ミドルウェア。
func AuthJWT(parser TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rawToken, ok := BearerToken(c.Request().Header.Get("Authorization"))
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			userID, err := parser.Parse(rawToken)
			if err != nil || userID <= 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//contextへ保存
			c.Set(CtxUserIDKey, userID)
			return next(c)
		}
	}
}

// BearerToken は "Bearer xxx" から xxx を抜く。
func BearerToken(authz string) (string, bool) {
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}

// UserID はミドルウェアが入れた userID を取り出す。
func UserID(c echo.Context) int64 {
	id, _ := c.Get(CtxUserIDKey).(int64)
	return id
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Success: false, Message: msg}
}
