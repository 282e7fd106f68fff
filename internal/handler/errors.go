package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cartsync/internal/usecase"
)

// 失敗時の共通ボディ
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func errorBody(msg string) ErrorResponse {
	return ErrorResponse{Success: false, Message: msg}
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, errorBody(he.Message))
	}

	//500
	return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	v := c.Get("user_id")
	if v == nil {
		return 0, false
	}

	id, ok := v.(int64)
	if !ok {
		return 0, false
	}

	return id, true
}
