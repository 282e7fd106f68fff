package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"cartsync/internal/usecase"
)

type OrderHandler struct {
	uc *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{uc: uc}
}

type placeOrderItem struct {
	VariantID    string          `json:"variantId" validate:"required"`
	Quantity     int64           `json:"quantity" validate:"min=1"`
	Size         string          `json:"size"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
}

type placeOrderRequest struct {
	Items              []placeOrderItem `json:"items" validate:"required,min=1,dive"`
	Price              decimal.Decimal  `json:"price"`
	DiscountPercentage decimal.Decimal  `json:"discountPercentage"`
	CouponCode         string           `json:"couponCode"`
}

type couponResponse struct {
	Value   decimal.Decimal `json:"value"`
	Message string          `json:"message"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	g := e.Group("/orders")
	g.Use(auth)

	g.GET("", h.list)
	g.POST("", h.place)
	g.GET("/promo", h.promo)
	g.POST("/coupons/:code", h.applyCoupon)
}

func (h *OrderHandler) applyCoupon(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
	}

	pct, err := h.uc.ApplyCoupon(c.Request().Context(), userID, c.Param("code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, couponResponse{Value: pct, Message: "coupon applied"})
}

func (h *OrderHandler) place(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
	}

	var req placeOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid body"))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	in := usecase.PlaceOrderInput{
		Items:              make([]usecase.PlaceOrderItem, 0, len(req.Items)),
		Price:              req.Price,
		DiscountPercentage: req.DiscountPercentage,
		CouponCode:         req.CouponCode,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, usecase.PlaceOrderItem{
			VariantID:    it.VariantID,
			Quantity:     it.Quantity,
			Size:         it.Size,
			PricePerUnit: it.PricePerUnit,
		})
	}

	out, err := h.uc.PlaceOrder(c.Request().Context(), userID, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, envelope{Success: true, Message: "order placed", Data: out})
}

// ?page=&limit= は省略可
func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	out, err := h.uc.ListOrders(c.Request().Context(), userID, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: out})
}

func (h *OrderHandler) promo(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": h.uc.Promo()})
}
