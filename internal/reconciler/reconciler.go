// Package reconciler replaces the local cart with the server's authoritative lines.
package reconciler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"cartsync/internal/cartstore"
	"cartsync/internal/domain/model"
	"cartsync/internal/metrics"
	"cartsync/internal/notify"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 10 * time.Second
	opReconcile     = "reconcile"
)

// 未ログインなので照合しなかった
var ErrSkipped = errors.New("reconcile skipped: not authenticated")

// LineFetcher はサーバーの明細を返す。gateway.CartGateway が満たす。
type LineFetcher interface {
	FetchLines(ctx context.Context, token string) ([]model.CartLine, error)
}

// TokenSource は auth.Session が満たす。
type TokenSource interface {
	IsAuthenticated() bool
	Subject() string
	Token(ctx context.Context) (string, error)
}

type Options struct {
	Interval time.Duration
	// 共有する1回の取得の上限
	Timeout time.Duration
	Logger   *zap.Logger
	Metrics  *metrics.Sync
	Notifier notify.Notifier
	// 送信待ちの数量。照合直後に上書きし直す
	Pending func() map[string]int64
}

type Reconciler struct {
	store    *cartstore.Store
	gw       LineFetcher
	session  TokenSource
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
	metrics  *metrics.Sync
	notifier notify.Notifier
	pending  func() map[string]int64
	group    singleflight.Group
}

func New(store *cartstore.Store, gw LineFetcher, session TokenSource, opts Options) *Reconciler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Discard{Log: log}
	}
	return &Reconciler{
		store:    store,
		gw:       gw,
		session:  session,
		interval: interval,
		timeout:  timeout,
		log:      log.Named("reconciler"),
		metrics:  opts.Metrics,
		notifier: notifier,
		pending:  opts.Pending,
	}
}

// Reconcile はサーバーの明細を取得してストアを丸ごと置き換える。
// 取得に失敗した場合ストアには触れない。同時に呼ばれた場合は1回の取得を共有する。
// 共有する取得は呼び出し元のキャンセルから切り離して timeout で打ち切る。
// ctx が先に終わればその呼び出しだけ ctx.Err() で戻る。
func (r *Reconciler) Reconcile(ctx context.Context) error {
	ch := r.group.DoChan(opReconcile, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return nil, r.reconcile(fctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) reconcile(ctx context.Context) error {
	if !r.session.IsAuthenticated() {
		r.metrics.ObserveReconcile(metrics.OutcomeSkipped)
		return ErrSkipped
	}
	subject := r.session.Subject()

	token, err := r.session.Token(ctx)
	if err != nil {
		r.metrics.ObserveReconcile(metrics.OutcomeAuth)
		return err
	}

	lines, err := r.gw.FetchLines(ctx, token)
	if err != nil {
		r.metrics.ObserveReconcile(notify.Outcome(err))
		return err
	}

	// 取得中にログアウトや別ユーザーへの切り替えがあった
	if !r.session.IsAuthenticated() || r.session.Subject() != subject {
		r.metrics.ObserveReconcile(metrics.OutcomeSkipped)
		return ErrSkipped
	}

	local := r.store.Read()
	lines = carrySizes(lines, local)
	if r.pending != nil {
		lines = overlayPending(lines, r.pending())
	}
	r.store.ReplaceAll(lines)

	after := r.store.Read()
	r.metrics.ObserveReconcile(metrics.OutcomeOK)
	r.log.Debug("cart reconciled",
		zap.Int("lines", after.Len()),
		zap.Uint64("version", after.Version),
		zap.Bool("changed", after.Version != local.Version),
	)
	return nil
}

// Run は interval ごとに照合する。ctx が終わるまで戻らない。
// 失敗は通知して次の周期で再試行する。
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil && !errors.Is(err, ErrSkipped) && ctx.Err() == nil {
				r.notifier.Report(opReconcile, "", err)
			}
		}
	}
}

// carrySizes はサーバー側で未選択の行に、ローカルで選んだサイズを引き継ぐ。
// 同じバリアントの別の行が既にそのサイズを持つ場合は引き継がない。
func carrySizes(lines []model.CartLine, local model.CartState) []model.CartLine {
	out := make([]model.CartLine, len(lines))
	taken := make(map[model.LineKey]bool, len(lines))
	for i, l := range lines {
		out[i] = l.Clone()
		if l.Size != nil {
			taken[l.Key()] = true
		}
	}

	for i, l := range out {
		if l.Size != nil {
			continue
		}
		prev, ok := local.Find(l.ID)
		if !ok || prev.Size == nil || prev.VariantID != l.VariantID {
			continue
		}
		key := model.LineKey{VariantID: l.VariantID, Size: *prev.Size, HasSize: true}
		if taken[key] || !l.OffersSize(*prev.Size) {
			continue
		}
		out[i].Size = model.SizePtr(*prev.Size)
		taken[key] = true
	}
	return out
}

func overlayPending(lines []model.CartLine, pending map[string]int64) []model.CartLine {
	if len(pending) == 0 {
		return lines
	}
	for i := range lines {
		if q, ok := pending[lines[i].ID]; ok && q > 0 {
			lines[i].Quantity = q
		}
	}
	return lines
}
