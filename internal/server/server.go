// Package server wires echo for the cart service and for the local sync agent.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cartsync/internal/handler"
	"cartsync/internal/logger"
	"cartsync/internal/validator"
)

// ServiceHandlers はカートサービスのハンドラ一式。
type ServiceHandlers struct {
	Auth  *handler.AuthHandler
	Cart  *handler.CartHandler
	Order *handler.OrderHandler
	// Bearer 検証
	AuthMW echo.MiddlewareFunc
}

func newEcho(log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validator.New()
	e.Use(logger.Recovery(log))
	e.Use(logger.EchoMiddleware(log))
	return e
}

// NewService はカートサービスのルートを登録した echo を返す。
func NewService(log *zap.Logger, h ServiceHandlers) *echo.Echo {
	e := newEcho(log.Named("api"))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	h.Auth.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, h.AuthMW)
	h.Order.RegisterRoutes(e, h.AuthMW)
	return e
}

// NewAgent はローカル操作APIの echo を返す。gatherer が nil なら /metrics は出さない
func NewAgent(log *zap.Logger, sync *handler.SyncHandler, gatherer prometheus.Gatherer) *echo.Echo {
	e := newEcho(log.Named("agent"))

	sync.RegisterRoutes(e)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return e
}

// Run は ctx が終わるまで待ち受け、その後 shutdownTimeout 以内に止める。
func Run(ctx context.Context, e *echo.Echo, addr string, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
