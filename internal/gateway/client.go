// Package gateway is the thin request layer in front of the cart and order services.
// It never touches local cart state; callers apply the results.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"cartsync/internal/auth"
	"cartsync/internal/metrics"
)

// 応答ボディの上限（1MB）
const maxResponseSize = 1 << 20

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // 1秒あたりのリクエスト数。0 なら無制限
	Burst     int
	Logger    *zap.Logger
	Metrics   *metrics.Sync
	// テスト用
	HTTPClient *http.Client
}

type restClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
	metrics *metrics.Sync
}

func newRESTClient(opts Options) *restClient {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &restClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    client,
		limiter: limiter,
		log:     log.Named("gateway"),
		metrics: opts.Metrics,
	}
}

// do はリクエストを送り、2xx ならボディを返す。
// 失敗は NetworkError / RejectedError / AuthError に分類する。
func (c *restClient) do(ctx context.Context, op, method, path, token string, in any) ([]byte, error) {
	start := time.Now()
	body, err := c.send(ctx, op, method, path, token, in)
	c.metrics.ObserveGateway(op, outcomeOf(err), time.Since(start).Seconds())
	if err != nil {
		c.log.Debug("request failed", zap.String("op", op), zap.String("path", path), zap.Error(err))
		return nil, err
	}
	c.log.Debug("request done", zap.String("op", op), zap.String("path", path), zap.Duration("elapsed", time.Since(start)))
	return body, nil
}

func (c *restClient) send(ctx context.Context, op, method, path, token string, in any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, classifyStatus(op, resp.StatusCode, data)
}

func classifyStatus(op string, status int, data []byte) error {
	msg := failureMessage(data)
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status >= 500:
		return &NetworkError{Op: op, Err: fmt.Errorf("status %d: %s", status, msg)}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &auth.AuthError{Err: &RejectedError{Op: op, Status: status, Message: msg}}
	default:
		return &RejectedError{Op: op, Status: status, Message: msg}
	}
}

// 失敗ペイロードの message / error を拾う
func failureMessage(data []byte) string {
	var p struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return ""
	}
	if p.Message != "" {
		return p.Message
	}
	return p.Error
}

// 2xx でも success:false ならサーバーの拒否として扱う
func checkSuccess(op string, success *bool, message string) error {
	if success != nil && !*success {
		if message == "" {
			message = "request was not accepted"
		}
		return &RejectedError{Op: op, Status: http.StatusOK, Message: message}
	}
	return nil
}

func decode(op string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &SchemaError{Op: op, Err: err}
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, auth.ErrAuth):
		return metrics.OutcomeAuth
	case errors.Is(err, ErrNetwork):
		return metrics.OutcomeNetwork
	case errors.Is(err, ErrRejected):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeMalformed
	}
}
