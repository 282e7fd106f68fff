package logger

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const ctxLoggerKey = "logger"

// EchoMiddleware はリクエストごとに1行ログを出す。
// ステータスが 5xx なら error、4xx なら warn。
func EchoMiddleware(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			reqLogger := log.With(
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
			)
			c.Set(ctxLoggerKey, reqLogger)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []zap.Field{
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.String("client_ip", c.RealIP()),
				zap.Int64("body_size", c.Response().Size),
			}
			if q := req.URL.RawQuery; q != "" {
				fields = append(fields, zap.String("query", q))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			msg := "HTTP Request"
			switch {
			case status >= 500:
				reqLogger.Error(msg, fields...)
			case status >= 400:
				reqLogger.Warn(msg, fields...)
			default:
				reqLogger.Info(msg, fields...)
			}
			return nil
		}
	}
}

// Recovery は panic を 500 に変えてログに残す。
func Recovery(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("Panic recovered",
						zap.String("method", c.Request().Method),
						zap.String("path", c.Request().URL.Path),
						zap.Any("error", r),
						zap.Stack("stacktrace"),
					)
					err = c.JSON(http.StatusInternalServerError, map[string]any{
						"success": false,
						"message": "internal error",
					})
				}
			}()
			return next(c)
		}
	}
}

// FromEcho はリクエスト用ロガーを取り出す。無ければ Nop。
func FromEcho(c echo.Context) *zap.Logger {
	if l, ok := c.Get(ctxLoggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
