// Package coalescer turns quantity intents into an immediate local update plus one
// debounced remote write per line.
//
// Each line has at most one pending write. A new edit before the debounce window
// elapses replaces the pending value and restarts the window. Removals are never
// optimistic: the line leaves the local store only after the server confirms.
package coalescer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cartsync/internal/cartstore"
	"cartsync/internal/clock"
	"cartsync/internal/domain/model"
	"cartsync/internal/gateway"
	"cartsync/internal/metrics"
	"cartsync/internal/notify"
)

const (
	DefaultDebounce     = 2 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

var (
	ErrClosed = errors.New("coalescer closed")

	// 後から発行された書き込みが先に送られたので捨てた
	errStale = errors.New("stale write")
)

// Writer はカートサービスへの書き込み。gateway.CartGateway が満たす。
type Writer interface {
	AddLine(ctx context.Context, token string, in gateway.AddLineInput) (model.CartLine, error)
	SetQuantity(ctx context.Context, token string, lineID string, quantity int64) error
	RemoveLine(ctx context.Context, token string, lineID string) error
	Clear(ctx context.Context, token string) error
}

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Status は1行ぶんの書き込み状態。
type Status string

const (
	StatusIdle     Status = "idle"
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
)

type Options struct {
	Debounce     time.Duration
	WriteTimeout time.Duration
	Clock        clock.Clock
	Logger       *zap.Logger
	Metrics      *metrics.Sync
	Notifier     notify.Notifier
}

// 予約済みの書き込み
type pendingWrite struct {
	quantity int64
	gen      uint64
	timer    clock.Timer
}

type lineLock struct {
	mu   sync.Mutex
	refs int
}

type Coalescer struct {
	store        *cartstore.Store
	gw           Writer
	tokens       TokenSource
	clock        clock.Clock
	debounce     time.Duration
	writeTimeout time.Duration
	log          *zap.Logger
	metrics      *metrics.Sync
	notifier     notify.Notifier

	mu         sync.Mutex
	pending    map[string]*pendingWrite
	inflight   map[string]int
	removing   map[string]bool
	clearing   bool
	closed     bool
	gen        uint64
	lastGen    map[string]uint64 // 行ごとに最後に送った世代
	clearedGen uint64
	locks      map[string]*lineLock

	// 行の書き込みは RLock、Clear と Wait は Lock
	writeMu sync.RWMutex
}

func New(store *cartstore.Store, gw Writer, tokens TokenSource, opts Options) *Coalescer {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coalescer{
		store:        store,
		gw:           gw,
		tokens:       tokens,
		clock:        opts.Clock,
		debounce:     opts.Debounce,
		writeTimeout: opts.WriteTimeout,
		log:          log.Named("coalescer"),
		metrics:      opts.Metrics,
		notifier:     opts.Notifier,
		pending:      make(map[string]*pendingWrite),
		inflight:     make(map[string]int),
		removing:     make(map[string]bool),
		lastGen:      make(map[string]uint64),
		locks:        make(map[string]*lineLock),
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.debounce <= 0 {
		c.debounce = DefaultDebounce
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = DefaultWriteTimeout
	}
	if c.notifier == nil {
		c.notifier = notify.Discard{Log: c.log}
	}
	return c
}

// Increase は数量を1増やす。
func (c *Coalescer) Increase(ctx context.Context, lineID string) error {
	return c.step(ctx, lineID, 1)
}

// Decrease は数量を1減らす。1 から減らすと削除になる。
func (c *Coalescer) Decrease(ctx context.Context, lineID string) error {
	return c.step(ctx, lineID, -1)
}

// IncreaseLine は line.ID の行を1増やす。手元に無ければ数量1で追加して書き込みを予約する。
// 同じ (variant,size) の別の行があればそちらを増やす。
func (c *Coalescer) IncreaseLine(ctx context.Context, line model.CartLine) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, ok := c.store.Get(line.ID); !ok && line.ID != "" {
		if existing, found := c.findByKey(line.Key()); found {
			line.ID = existing.ID
		} else if !c.busyLocked(line.ID) {
			line.Quantity = 1
			c.store.Upsert(line)
			c.scheduleLocked(line.ID, 1)
			c.mu.Unlock()
			return nil
		}
	}
	c.mu.Unlock()
	return c.step(ctx, line.ID, 1)
}

func (c *Coalescer) step(ctx context.Context, lineID string, delta int64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	line, ok := c.store.Get(lineID)
	if !ok || c.busyLocked(lineID) {
		c.mu.Unlock()
		return nil
	}
	q := line.Quantity + delta
	if q <= 0 {
		c.mu.Unlock()
		return c.Remove(ctx, lineID)
	}
	c.applyLocked(lineID, q)
	c.mu.Unlock()
	return nil
}

// SetQuantity は数量を直接指定する。0 以下は Remove と同じ。
func (c *Coalescer) SetQuantity(ctx context.Context, lineID string, quantity int64) error {
	if quantity <= 0 {
		return c.Remove(ctx, lineID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	line, ok := c.store.Get(lineID)
	if !ok || c.busyLocked(lineID) || line.Quantity == quantity {
		return nil
	}
	c.applyLocked(lineID, quantity)
	return nil
}

// SetSize はローカルだけでサイズを選び直す。
func (c *Coalescer) SetSize(lineID string, size *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.busyLocked(lineID) {
		return nil
	}
	return c.store.SetSize(lineID, size)
}

// Add はサーバーに追加してから反映する（楽観更新しない）。
func (c *Coalescer) Add(ctx context.Context, in gateway.AddLineInput) (model.CartLine, error) {
	if c.isClosed() {
		return model.CartLine{}, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.notifier.Report(gateway.OpAddLine, "", err)
		return model.CartLine{}, err
	}
	line, err := c.gw.AddLine(ctx, token, in)
	if err != nil {
		c.notifier.Report(gateway.OpAddLine, "", err)
		return model.CartLine{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.store.Get(line.ID); ok {
		// サーバーが同じ行に合算した。手元の数量（未送信分を含む）に追加分を足す
		delta := line
		delta.Quantity = in.Quantity
		c.store.Upsert(delta)
		got, _ := c.store.Get(line.ID)
		if p, ok := c.pending[line.ID]; ok {
			p.quantity = got.Quantity
		}
		return got, nil
	}

	// サーバー上は別の行。予約中の数量には足さない
	if !c.store.Adopt(line) {
		c.log.Info("added line left for next reconcile", zap.String("line_id", line.ID), zap.String("variant_id", line.VariantID))
		return line, nil
	}
	got, _ := c.store.Get(line.ID)
	return got, nil
}

// Remove は予約中の書き込みを取り消し、同じ行の送信中の書き込みを待ってから削除を送る。
// サーバーが受け付けた場合だけローカルから消す。失敗時は取り消した書き込みを予約し直す。
func (c *Coalescer) Remove(ctx context.Context, lineID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, ok := c.store.Get(lineID); !ok || c.busyLocked(lineID) {
		c.mu.Unlock()
		return nil
	}
	hadPending := c.cancelLocked(lineID)
	c.removing[lineID] = true
	c.gen++
	gen := c.gen
	c.inflight[lineID]++
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	err := c.writeLine(ctx, lineID, gen, false, func(ctx context.Context, token string) error {
		return c.gw.RemoveLine(ctx, token, lineID)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.removing, lineID)
	c.doneInflightLocked(lineID)

	if errors.Is(err, errStale) {
		return nil
	}
	if err != nil {
		c.notifier.Report(gateway.OpRemoveLine, lineID, err)
		if hadPending && !c.closed {
			if line, ok := c.store.Get(lineID); ok {
				c.scheduleLocked(lineID, line.Quantity)
			}
		}
		return err
	}
	if c.inflight[lineID] == 0 {
		delete(c.lastGen, lineID)
	}
	c.store.Remove(lineID)
	return nil
}

// Clear は予約中の書き込みをすべて取り消してカートを空にする。
func (c *Coalescer) Clear(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.clearing {
		c.mu.Unlock()
		return nil
	}
	cancelled := make([]string, 0, len(c.pending))
	for id := range c.pending {
		cancelled = append(cancelled, id)
	}
	for _, id := range cancelled {
		c.cancelLocked(id)
	}
	c.clearing = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	// 送信中の書き込みが終わるまで待つ
	c.writeMu.Lock()
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	token, err := c.tokens.Token(ctx)
	if err == nil {
		err = c.gw.Clear(ctx, token)
	}
	c.writeMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearing = false

	if err != nil {
		c.notifier.Report(gateway.OpClear, "", err)
		if !c.closed {
			for _, id := range cancelled {
				if line, ok := c.store.Get(id); ok {
					c.scheduleLocked(id, line.Quantity)
				}
			}
		}
		return err
	}
	c.clearedGen = gen
	// clearedGen より古い世代はすべて捨てられる
	clear(c.lastGen)
	c.store.Clear()
	return nil
}

// Status は行の書き込み状態を返す。送信中を優先する。
func (c *Coalescer) Status(lineID string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.inflight[lineID] > 0:
		return StatusInFlight
	case c.pending[lineID] != nil:
		return StatusPending
	default:
		return StatusIdle
	}
}

// PendingQuantities は未送信の数量のコピー。照合後の再適用に使う。
func (c *Coalescer) PendingQuantities() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.pending))
	for id, p := range c.pending {
		out[id] = p.quantity
	}
	return out
}

// Flush は予約中の書き込みを待たずにすべて送り、送信中のものも含めて完了を待つ。
// 最初の失敗を返す。
func (c *Coalescer) Flush(ctx context.Context) error {
	type job struct {
		lineID   string
		quantity int64
		gen      uint64
	}

	c.mu.Lock()
	jobs := make([]job, 0, len(c.pending))
	for id, p := range c.pending {
		p.timer.Stop()
		jobs = append(jobs, job{lineID: id, quantity: p.quantity, gen: p.gen})
		delete(c.pending, id)
		c.inflight[id]++
	}
	c.metrics.SetPending(0)
	c.mu.Unlock()

	var g errgroup.Group
	for _, j := range jobs {
		g.Go(func() error {
			wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			defer cancel()
			return c.sendQuantity(wctx, j.lineID, j.quantity, j.gen)
		})
	}
	err := g.Wait()
	c.Wait()
	return err
}

// Wait は送信中の書き込みが終わるまで待つ。
func (c *Coalescer) Wait() {
	c.writeMu.Lock()
	c.writeMu.Unlock()
}

// Close はタイマーを止め、以後の操作を拒否する。送信中の書き込みは止めない。
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id := range c.pending {
		c.cancelLocked(id)
	}
}

// Reset はログアウト時に使う。タイマーを止めて状態を初期化し、再び受け付ける。
func (c *Coalescer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.pending {
		c.cancelLocked(id)
	}
	c.gen++
	c.clearedGen = c.gen
	clear(c.lastGen)
	c.closed = false
}

// applyLocked は楽観的にローカルへ反映し、書き込みを予約する。
func (c *Coalescer) applyLocked(lineID string, quantity int64) {
	c.store.SetQuantity(lineID, quantity)
	c.scheduleLocked(lineID, quantity)
}

// scheduleLocked は同じ行の予約を置き換え、窓を最新の編集から測り直す。
func (c *Coalescer) scheduleLocked(lineID string, quantity int64) {
	if p, ok := c.pending[lineID]; ok {
		p.timer.Stop()
		c.metrics.ObserveCoalesced()
	}
	c.gen++
	gen := c.gen
	p := &pendingWrite{quantity: quantity, gen: gen}
	p.timer = c.clock.AfterFunc(c.debounce, func() { c.fire(lineID, gen) })
	c.pending[lineID] = p
	c.metrics.SetPending(len(c.pending))
}

func (c *Coalescer) cancelLocked(lineID string) bool {
	p, ok := c.pending[lineID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(c.pending, lineID)
	c.metrics.SetPending(len(c.pending))
	return true
}

func (c *Coalescer) busyLocked(lineID string) bool {
	return c.clearing || c.removing[lineID]
}

func (c *Coalescer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coalescer) findByKey(key model.LineKey) (model.CartLine, bool) {
	for _, l := range c.store.Read().Lines {
		if l.Key() == key {
			return l, true
		}
	}
	return model.CartLine{}, false
}

// fire はタイマーから呼ばれる。世代が古ければ何もしない。
func (c *Coalescer) fire(lineID string, gen uint64) {
	c.mu.Lock()
	p, ok := c.pending[lineID]
	if !ok || p.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.pending, lineID)
	c.inflight[lineID]++
	c.metrics.SetPending(len(c.pending))
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	_ = c.sendQuantity(ctx, lineID, p.quantity, gen)
}

func (c *Coalescer) sendQuantity(ctx context.Context, lineID string, quantity int64, gen uint64) error {
	defer func() {
		c.mu.Lock()
		c.doneInflightLocked(lineID)
		c.mu.Unlock()
	}()

	err := c.writeLine(ctx, lineID, gen, true, func(ctx context.Context, token string) error {
		return c.gw.SetQuantity(ctx, token, lineID, quantity)
	})
	switch {
	case errors.Is(err, errStale):
		c.metrics.ObserveWrite(metrics.OutcomeSkipped)
		c.log.Debug("stale write dropped", zap.String("line_id", lineID), zap.Int64("quantity", quantity))
		return nil
	case err != nil:
		// ローカルの数量は戻さない。次の照合で補正される
		c.metrics.ObserveWrite(notify.Outcome(err))
		c.notifier.Report(gateway.OpSetQuantity, lineID, err)
		return err
	default:
		c.metrics.ObserveWrite(metrics.OutcomeOK)
		c.log.Debug("quantity written", zap.String("line_id", lineID), zap.Int64("quantity", quantity))
		return nil
	}
}

// writeLine は行ごとのロックの中で送る。後の世代が既に送られていたら送らない。
// markOnFailure が false なら成功時だけ世代を進める。
func (c *Coalescer) writeLine(ctx context.Context, lineID string, gen uint64, markOnFailure bool, send func(ctx context.Context, token string) error) error {
	c.writeMu.RLock()
	defer c.writeMu.RUnlock()
	unlock := c.lockLine(lineID)
	defer unlock()

	c.mu.Lock()
	stale := gen < c.lastGen[lineID] || gen < c.clearedGen
	c.mu.Unlock()
	if stale {
		return errStale
	}

	token, err := c.tokens.Token(ctx)
	if err == nil {
		err = send(ctx, token)
	}

	if err == nil || markOnFailure {
		c.mu.Lock()
		if gen > c.lastGen[lineID] {
			c.lastGen[lineID] = gen
		}
		c.mu.Unlock()
	}
	return err
}

func (c *Coalescer) lockLine(lineID string) func() {
	c.mu.Lock()
	l, ok := c.locks[lineID]
	if !ok {
		l = &lineLock{}
		c.locks[lineID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, lineID)
		}
		c.mu.Unlock()
	}
}

func (c *Coalescer) doneInflightLocked(lineID string) {
	c.inflight[lineID]--
	if c.inflight[lineID] <= 0 {
		delete(c.inflight, lineID)
	}
}
