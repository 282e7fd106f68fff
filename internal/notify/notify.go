// Package notify turns sync errors into user-visible notices and log entries.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cartsync/internal/auth"
	"cartsync/internal/cartstore"
	"cartsync/internal/checkout"
	"cartsync/internal/gateway"
	"cartsync/internal/metrics"
)

type Kind string

const (
	KindAuth      Kind = "auth"
	KindNetwork   Kind = "network"
	KindRejected  Kind = "rejected"
	KindMalformed Kind = "malformed"
	KindInvalid   Kind = "invalid"
	KindCancelled Kind = "cancelled"
	KindInternal  Kind = "internal"
)

// Transient は次の照合や再操作で解消しうる種類。
func (k Kind) Transient() bool {
	return k == KindNetwork || k == KindMalformed || k == KindCancelled
}

type Notice struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Op      string    `json:"op"`
	LineID  string    `json:"line_id,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier は失敗をユーザーに知らせる先。
type Notifier interface {
	Report(op, lineID string, err error) Notice
}

// Classify は err の種類と表示用メッセージを返す。
// 拒否された場合はサーバーのメッセージをそのまま使う。
func Classify(err error) (Kind, string) {
	var rejected *gateway.RejectedError

	switch {
	case errors.Is(err, auth.ErrAuth):
		return KindAuth, "please sign in again"
	case errors.Is(err, context.Canceled):
		return KindCancelled, "operation cancelled"
	case errors.Is(err, gateway.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork, "connection problem, your cart will refresh shortly"
	case errors.As(err, &rejected):
		msg := rejected.Message
		if msg == "" {
			msg = "request was declined"
		}
		return KindRejected, msg
	case errors.Is(err, gateway.ErrMalformed):
		return KindMalformed, "unexpected response from the cart service"
	case errors.Is(err, cartstore.ErrSizeUnavailable):
		return KindInvalid, "that size is not available"
	case errors.Is(err, cartstore.ErrSizeTaken):
		return KindInvalid, "that size is already in your cart"
	case errors.Is(err, checkout.ErrEmptyCart):
		return KindInvalid, "your cart is empty"
	case errors.Is(err, checkout.ErrSizeRequired):
		return KindInvalid, "choose a size for every item"
	case errors.Is(err, checkout.ErrInvalidCoupon):
		return KindInvalid, "that coupon is not valid"
	default:
		return KindInternal, "something went wrong"
	}
}

const defaultCapacity = 50

// Feed は直近の通知を保持するリングバッファ。すべての通知はログにも出す。
type Feed struct {
	mu    sync.Mutex
	items []Notice
	next  int
	full  bool
	log   *zap.Logger
	now   func() time.Time
}

func NewFeed(capacity int, log *zap.Logger) *Feed {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{
		items: make([]Notice, capacity),
		log:   log.Named("notify"),
		now:   time.Now,
	}
}

// Report は err を分類して記録する。err が nil なら何もしない。
func (f *Feed) Report(op, lineID string, err error) Notice {
	if err == nil {
		return Notice{}
	}
	kind, msg := Classify(err)
	n := Notice{
		ID:      uuid.NewString(),
		Kind:    kind,
		Op:      op,
		LineID:  lineID,
		Message: msg,
		At:      f.now(),
	}

	fields := []zap.Field{
		zap.String("op", op),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	if lineID != "" {
		fields = append(fields, zap.String("line_id", lineID))
	}
	switch {
	case kind == KindCancelled:
		// 終了時の取り消しは通知しない
		f.log.Debug("operation cancelled", fields...)
		return n
	case kind.Transient():
		f.log.Warn("cart sync notice", fields...)
	default:
		f.log.Error("cart sync notice", fields...)
	}

	f.mu.Lock()
	f.items[f.next] = n
	f.next = (f.next + 1) % len(f.items)
	if f.next == 0 {
		f.full = true
	}
	f.mu.Unlock()
	return n
}

// Recent は古い順に通知を返す。
func (f *Feed) Recent() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.full {
		out := make([]Notice, f.next)
		copy(out, f.items[:f.next])
		return out
	}
	out := make([]Notice, 0, len(f.items))
	out = append(out, f.items[f.next:]...)
	out = append(out, f.items[:f.next]...)
	return out
}

// Discard は通知を捨てる Notifier。ログだけ必要な時に使う。
type Discard struct {
	Log *zap.Logger
}

func (d Discard) Report(op, lineID string, err error) Notice {
	if err == nil {
		return Notice{}
	}
	kind, msg := Classify(err)
	if d.Log != nil {
		d.Log.Warn("cart sync notice", zap.String("op", op), zap.String("kind", string(kind)), zap.Error(err))
	}
	return Notice{Kind: kind, Op: op, LineID: lineID, Message: msg}
}

// Outcome はメトリクスの結果ラベルを返す。
func Outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	kind, _ := Classify(err)
	switch kind {
	case KindAuth:
		return metrics.OutcomeAuth
	case KindRejected:
		return metrics.OutcomeRejected
	case KindMalformed:
		return metrics.OutcomeMalformed
	default:
		return metrics.OutcomeNetwork
	}
}
