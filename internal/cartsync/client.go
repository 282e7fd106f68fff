// Package cartsync wires the local store, coalescer, reconciler and checkout into one
// client with a login/logout lifecycle.
package cartsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cartsync/internal/auth"
	"cartsync/internal/cartstore"
	"cartsync/internal/checkout"
	"cartsync/internal/clock"
	"cartsync/internal/coalescer"
	"cartsync/internal/domain/model"
	"cartsync/internal/gateway"
	"cartsync/internal/metrics"
	"cartsync/internal/notify"
	"cartsync/internal/reconciler"
	"cartsync/internal/totals"
)

// CartAPI は gateway.CartGateway が満たす。
type CartAPI interface {
	coalescer.Writer
	reconciler.LineFetcher
}

// PersisterFactory はユーザーごとの保存先を返す。
type PersisterFactory func(subject string) cartstore.Persister

type Options struct {
	Debounce          time.Duration
	WriteTimeout      time.Duration
	ReconcileInterval time.Duration
	// nil なら totals.DefaultOptions()
	Totals            *totals.Options
	Persist           PersisterFactory
	NoticeCapacity    int
	Clock             clock.Clock
	Logger            *zap.Logger
	Metrics           *metrics.Sync
}

type Client struct {
	Store      *cartstore.Store
	Session    *auth.Session
	Coalescer  *coalescer.Coalescer
	Reconciler *reconciler.Reconciler
	Checkout   *checkout.Service
	Notices    *notify.Feed

	persist PersisterFactory
	log     *zap.Logger

	mu     sync.Mutex
	active cartstore.Persister
}

func New(carts CartAPI, orders checkout.Orders, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	base := totals.DefaultOptions()
	if opts.Totals != nil {
		base = *opts.Totals
	}

	store := cartstore.New(opts.Metrics)
	session := auth.NewSession()
	feed := notify.NewFeed(opts.NoticeCapacity, log)

	co := coalescer.New(store, carts, session, coalescer.Options{
		Debounce:     opts.Debounce,
		WriteTimeout: opts.WriteTimeout,
		Clock:        opts.Clock,
		Logger:       log,
		Metrics:      opts.Metrics,
		Notifier:     feed,
	})
	rec := reconciler.New(store, carts, session, reconciler.Options{
		Interval: opts.ReconcileInterval,
		Timeout:  opts.WriteTimeout,
		Logger:   log,
		Metrics:  opts.Metrics,
		Notifier: feed,
		Pending:  co.PendingQuantities,
	})

	return &Client{
		Store:      store,
		Session:    session,
		Coalescer:  co,
		Reconciler: rec,
		Checkout:   checkout.New(store, orders, session, co, base, log),
		Notices:    feed,
		persist:    opts.Persist,
		log:        log.Named("cartsync"),
	}
}

// Login は空のカートからセッションを始め、保存済みの状態を復元してから照合する。
// ログイン中なら前のユーザーの未送信分を送ってから切り替える（前の保存先は消さない）。
// 照合の失敗は通知したうえで返す（復元した状態は残る）。
func (c *Client) Login(ctx context.Context, subject string, p auth.TokenProvider) error {
	if c.Session.IsAuthenticated() {
		if err := c.Coalescer.Flush(ctx); err != nil {
			c.log.Warn("flush before switching session failed", zap.String("subject", c.Session.Subject()), zap.Error(err))
		}
	}

	// 保存先を外してから消す。前のユーザーの保存先に空の状態を書かない
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
	c.Coalescer.Reset()
	c.Store.Clear()
	c.Checkout.ClearCoupon()

	c.Session.Login(subject, p)

	if c.persist != nil {
		pers := c.persist(subject)
		restored, err := cartstore.Restore(ctx, c.Store, pers)
		if err != nil {
			c.log.Warn("restore failed", zap.String("subject", subject), zap.Error(err))
		} else if restored {
			c.log.Info("cart restored", zap.String("subject", subject), zap.Int("lines", c.Store.Read().Len()))
		}
		c.mu.Lock()
		c.active = pers
		c.mu.Unlock()
	}

	c.log.Info("logged in", zap.String("subject", subject))
	return c.Refresh(ctx)
}

// Logout は未送信の書き込みを送れるだけ送り、ローカルの状態と保存先を消す。
func (c *Client) Logout(ctx context.Context) error {
	if c.Session.IsAuthenticated() {
		if err := c.Coalescer.Flush(ctx); err != nil {
			c.log.Warn("flush before logout failed", zap.Error(err))
		}
	}

	c.mu.Lock()
	pers := c.active
	c.active = nil
	c.mu.Unlock()

	subject := c.Session.Subject()
	c.Session.Logout()
	c.Coalescer.Reset()
	c.Store.Clear()
	c.Checkout.ClearCoupon()

	if pers != nil {
		if err := pers.Delete(ctx); err != nil {
			return err
		}
	}
	c.log.Info("logged out", zap.String("subject", subject))
	return nil
}

// Refresh は今すぐ照合する。未ログインなら何もしない。
func (c *Client) Refresh(ctx context.Context) error {
	err := c.Reconciler.Reconcile(ctx)
	if errors.Is(err, reconciler.ErrSkipped) {
		return nil
	}
	if err != nil {
		c.Notices.Report("reconcile", "", err)
	}
	return err
}

// PlaceOrder は注文を確定し、サーバー側で空になったカートを取り込む。
func (c *Client) PlaceOrder(ctx context.Context) (gateway.OrderPayload, error) {
	payload, err := c.Checkout.PlaceOrder(ctx)
	if err != nil {
		c.Notices.Report("place_order", "", err)
		return gateway.OrderPayload{}, err
	}
	// 照合の失敗は通知済み。注文自体は成功している
	_ = c.Refresh(ctx)
	return payload, nil
}

// Run は定期照合と自動保存を ctx が終わるまで動かす。
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Reconciler.Run(ctx)
	})
	if c.persist != nil {
		g.Go(func() error {
			return cartstore.RunAutosave(ctx, c.Store, sessionPersister{c: c}, c.log)
		})
	}
	return g.Wait()
}

// Close は未送信の書き込みを送ってからタイマーを止める。
func (c *Client) Close(ctx context.Context) error {
	var err error
	if c.Session.IsAuthenticated() {
		err = c.Coalescer.Flush(ctx)
	}
	c.Coalescer.Close()
	return err
}

type LineView struct {
	model.CartLine
	Amount decimal.Decimal  `json:"amount"`
	Status coalescer.Status `json:"status"`
}

type View struct {
	Authenticated bool          `json:"authenticated"`
	Subject       string        `json:"subject,omitempty"`
	Version       uint64        `json:"version"`
	Lines         []LineView    `json:"lines"`
	Totals        totals.Totals `json:"totals"`
	CouponCode    string        `json:"coupon_code,omitempty"`
}

// Snapshot は UI 向けの読み取り専用の投影。
func (c *Client) Snapshot() View {
	sum := c.Checkout.Summary()
	lines := make([]LineView, 0, len(sum.Lines))
	for _, l := range sum.Lines {
		lines = append(lines, LineView{
			CartLine: l,
			Amount:   l.Amount(),
			Status:   c.Coalescer.Status(l.ID),
		})
	}
	return View{
		Authenticated: c.Session.IsAuthenticated(),
		Subject:       c.Session.Subject(),
		Version:       sum.Version,
		Lines:         lines,
		Totals:        sum.Totals,
		CouponCode:    sum.CouponCode,
	}
}

// ログイン中のユーザーの保存先に振り分ける
type sessionPersister struct {
	c *Client
}

func (p sessionPersister) current() cartstore.Persister {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	return p.c.active
}

func (p sessionPersister) Load(ctx context.Context) ([]model.CartLine, bool, error) {
	if cur := p.current(); cur != nil {
		return cur.Load(ctx)
	}
	return nil, false, nil
}

func (p sessionPersister) Save(ctx context.Context, lines []model.CartLine) error {
	if cur := p.current(); cur != nil {
		return cur.Save(ctx, lines)
	}
	return nil
}

func (p sessionPersister) Delete(ctx context.Context) error {
	if cur := p.current(); cur != nil {
		return cur.Delete(ctx)
	}
	return nil
}
