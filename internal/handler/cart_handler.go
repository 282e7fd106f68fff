package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cartsync/internal/middleware"
	"cartsync/internal/usecase"
)

// /cartのHTTP
type CartHandler struct {
	uc *usecase.CartUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type AddCartRequest struct {
	VariantID string  `json:"variant_id" validate:"required"`
	Size      *string `json:"size"`
	Quantity  int64   `json:"quantity" validate:"min=1"`
}

type UpdateCartItemRequest struct {
	ID       string `json:"id" validate:"required"`
	Quantity int64  `json:"quantity" validate:"min=1"`
}

// 成功時の共通ボディ
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// /cart, /cart/items を登録
func (h *CartHandler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	g := e.Group("/cart")
	g.Use(auth)

	g.GET("/items", h.listItems)
	g.POST("/items", h.addItem)
	g.PATCH("/items", h.patchItem)
	g.DELETE("/items/:id", h.deleteItem)
	g.DELETE("", h.clear)
}

// data は [[line...]] の形
func (h *CartHandler) listItems(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
	}

	lines, err := h.uc.GetLines(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, envelope{Success: true, Data: []any{lines}})
}

func (h *CartHandler) addItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
	}

	var req AddCartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid body"))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	line, err := h.uc.AddToCart(c.Request().Context(), userID, usecase.AddCartInput{
		VariantID: req.VariantID,
		Size:      req.Size,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, envelope{Success: true, Message: "added to cart", Data: []any{line}})
}

func (h *CartHandler) patchItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
	}

	var req UpdateCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid body"))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	if err := h.uc.UpdateCartItem(c.Request().Context(), userID, usecase.UpdateCartItemInput{
		ID:       req.ID,
		Quantity: req.Quantity,
	}); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, envelope{Success: true, Message: "quantity updated"})
}

func (h *CartHandler) deleteItem(c echo.Context) error {
	userID := middleware.UserID(c)

	if err := h.uc.DeleteCartItem(c.Request().Context(), userID, c.Param("id")); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, envelope{Success: true, Message: "item removed"})
}

func (h *CartHandler) clear(c echo.Context) error {
	userID := middleware.UserID(c)

	if err := h.uc.ClearCart(c.Request().Context(), userID); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, envelope{Success: true, Message: "cart cleared"})
}
