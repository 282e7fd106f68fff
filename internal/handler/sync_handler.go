package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"cartsync/internal/auth"
	"cartsync/internal/cartsync"
	"cartsync/internal/coalescer"
	"cartsync/internal/gateway"
	"cartsync/internal/notify"
)

// ProviderFactory はメールとパスワードからトークンの取得元を作る。
type ProviderFactory func(email, password string) auth.TokenProvider

// SyncHandler はローカルの操作API。UI はここに意図を送り、GET /cart で投影を読む。
type SyncHandler struct {
	client    *cartsync.Client
	providers ProviderFactory
}

func NewSyncHandler(client *cartsync.Client, providers ProviderFactory) *SyncHandler {
	return &SyncHandler{client: client, providers: providers}
}

type addLineRequest struct {
	VariantID string  `json:"variant_id" validate:"required"`
	Size      *string `json:"size"`
	Quantity  int64   `json:"quantity" validate:"min=1"`
}

type quantityRequest struct {
	Quantity *int64 `json:"quantity" validate:"required"`
}

// size が null ならサイズ未選択に戻す
type sizeRequest struct {
	Size *string `json:"size"`
}

type couponRequest struct {
	Code string `json:"code" validate:"required"`
}

type sessionRequest struct {
	Subject  string `json:"subject"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required_with=Email"`
	Token    string `json:"token" validate:"required_without=Email"`
}

type syncErrorResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Kind    notify.Kind `json:"kind"`
}

func (h *SyncHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/cart", h.view)
	e.POST("/cart/lines", h.addLine)
	e.POST("/cart/lines/:id/increase", h.increase)
	e.POST("/cart/lines/:id/decrease", h.decrease)
	e.PUT("/cart/lines/:id/quantity", h.setQuantity)
	e.PUT("/cart/lines/:id/size", h.setSize)
	e.DELETE("/cart/lines/:id", h.removeLine)
	e.DELETE("/cart", h.clear)
	e.POST("/cart/refresh", h.refresh)

	e.POST("/checkout/coupon", h.applyCoupon)
	e.DELETE("/checkout/coupon", h.clearCoupon)
	e.POST("/checkout/order", h.placeOrder)
	e.GET("/checkout/promo", h.promo)
	e.GET("/orders", h.orders)

	e.POST("/session/login", h.login)
	e.POST("/session/logout", h.logout)
	e.GET("/notices", h.notices)
}

func (h *SyncHandler) view(c echo.Context) error {
	return c.JSON(http.StatusOK, h.client.Snapshot())
}

func (h *SyncHandler) addLine(c echo.Context) error {
	var req addLineRequest
	if body, ok := bindValid(c, &req); !ok {
		return c.JSON(http.StatusBadRequest, body)
	}
	line, err := h.client.Coalescer.Add(c.Request().Context(), gateway.AddLineInput{
		VariantID: req.VariantID,
		Size:      req.Size,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return writeSyncError(c, err)
	}
	return c.JSON(http.StatusCreated, line)
}

func (h *SyncHandler) increase(c echo.Context) error {
	if err := h.client.Coalescer.Increase(c.Request().Context(), c.Param("id")); err != nil {
		return writeSyncError(c, err)
	}
	return h.view(c)
}

func (h *SyncHandler) decrease(c echo.Context) error {
	if err := h.client.Coalescer.Decrease(c.Request().Context(), c.Param("id")); err != nil {
		return writeSyncError(c, err)
	}
	return h.view(c)
}

func (h *SyncHandler) setQuantity(c echo.Context) error {
	var req quantityRequest
	if body, ok := bindValid(c, &req); !ok {
		return c.JSON(http.StatusBadRequest, body)
	}
	if err := h.client.Coalescer.SetQuantity(c.Request().Context(), c.Param("id"), *req.Quantity); err != nil {
		return writeSyncError(c, err)
	}
	return h.view(c)
}

func (h *SyncHandler) setSize(c echo.Context) error {
	var req sizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid body"))
	}
	if req.Size != nil && strings.TrimSpace(*req.Size) == "" {
		req.Size = nil
	}
	if err := h.client.Coalescer.SetSize(c.Param("id"), req.Size); err != nil {
		return writeSyncError(c, err)
	}
	return h.view(c)
}

func (h *SyncHandler) removeLine(c echo.Context) error {
	if err := h.client.Coalescer.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return writeSyncError(c, err)
	}
	return h.view(c)
}

func (h *SyncHandler) clear(c echo.Context) error {
	if err := h.client.Coalescer.Clear(c.Request().Context()); err != nil {
		return writeSyncError(c, err)
	}
	return h.view(c)
}

func (h *SyncHandler) refresh(c echo.Context) error {
	if err := h.client.Refresh(c.Request().Context()); err != nil {
		return writeSyncError(c, err)
	}
	return h.view(c)
}

func (h *SyncHandler) applyCoupon(c echo.Context) error {
	var req couponRequest
	if body, ok := bindValid(c, &req); !ok {
		return c.JSON(http.StatusBadRequest, body)
	}
	pct, err := h.client.Checkout.ApplyCoupon(c.Request().Context(), req.Code)
	if err != nil {
		h.client.Notices.Report("apply_coupon", "", err)
		return writeSyncError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]decimal.Decimal{"value": pct})
}

func (h *SyncHandler) clearCoupon(c echo.Context) error {
	h.client.Checkout.ClearCoupon()
	return h.view(c)
}

func (h *SyncHandler) placeOrder(c echo.Context) error {
	payload, err := h.client.PlaceOrder(c.Request().Context())
	if err != nil {
		return writeSyncError(c, err)
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *SyncHandler) promo(c echo.Context) error {
	msg, err := h.client.Checkout.Promo(c.Request().Context())
	if err != nil {
		return writeSyncError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": msg})
}

func (h *SyncHandler) orders(c echo.Context) error {
	out, err := h.client.Checkout.History(c.Request().Context())
	if err != nil {
		return writeSyncError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *SyncHandler) login(c echo.Context) error {
	var req sessionRequest
	if body, ok := bindValid(c, &req); !ok {
		return c.JSON(http.StatusBadRequest, body)
	}

	var p auth.TokenProvider
	subject := req.Subject
	switch {
	case req.Token != "":
		p = auth.Static(req.Token)
	case h.providers != nil:
		p = h.providers(req.Email, req.Password)
	default:
		return c.JSON(http.StatusBadRequest, errorBody("password login is not configured"))
	}
	if subject == "" {
		subject = req.Email
	}
	if subject == "" {
		subject = "default"
	}

	if err := h.client.Login(c.Request().Context(), subject, p); err != nil {
		return writeSyncError(c, err)
	}
	return h.view(c)
}

func (h *SyncHandler) logout(c echo.Context) error {
	if err := h.client.Logout(c.Request().Context()); err != nil {
		return writeSyncError(c, err)
	}
	return h.view(c)
}

func (h *SyncHandler) notices(c echo.Context) error {
	return c.JSON(http.StatusOK, h.client.Notices.Recent())
}

// bind と validate。失敗したら 400 のボディを返す
func bindValid(c echo.Context, req any) (ErrorResponse, bool) {
	if err := c.Bind(req); err != nil {
		return errorBody("invalid body"), false
	}
	if err := c.Validate(req); err != nil {
		return errorBody(err.Error()), false
	}
	return ErrorResponse{}, true
}

// 通知の種類からステータスを決める
func writeSyncError(c echo.Context, err error) error {
	if errors.Is(err, coalescer.ErrClosed) {
		return c.JSON(http.StatusServiceUnavailable, syncErrorResponse{Message: "client is shutting down", Kind: notify.KindInternal})
	}

	kind, msg := notify.Classify(err)
	status := http.StatusInternalServerError
	switch kind {
	case notify.KindAuth:
		status = http.StatusUnauthorized
	case notify.KindNetwork:
		status = http.StatusServiceUnavailable
	case notify.KindMalformed:
		status = http.StatusBadGateway
	case notify.KindInvalid:
		status = http.StatusBadRequest
	case notify.KindCancelled:
		status = http.StatusRequestTimeout
	case notify.KindRejected:
		status = http.StatusConflict
		var rejected *gateway.RejectedError
		if errors.As(err, &rejected) && rejected.Status >= 400 && rejected.Status < 500 {
			status = rejected.Status
		}
	}
	return c.JSON(status, syncErrorResponse{Message: msg, Kind: kind})
}
