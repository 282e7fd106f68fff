package reconciler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cartsync/internal/auth"
	"cartsync/internal/cartstore"
	"cartsync/internal/domain/model"
	"cartsync/internal/gateway"
	"cartsync/internal/metrics"
	"cartsync/internal/notify"
)

type fetcherMock struct {
	mock.Mock
}

func (m *fetcherMock) FetchLines(ctx context.Context, token string) ([]model.CartLine, error) {
	args := m.Called(ctx, token)
	lines, _ := args.Get(0).([]model.CartLine)
	return lines, args.Error(1)
}

func serverLine(id, variant string, size *string, qty int64) model.CartLine {
	return model.CartLine{
		ID:        id,
		VariantID: variant,
		Size:      size,
		Quantity:  qty,
		UnitPrice: decimal.NewFromInt(100),
		Sizes:     []model.SizeOption{{Size: "41", Stock: 3}, {Size: "42", Stock: 3}},
		Display:   model.DisplayMetadata{Brand: "Acme", Name: "Runner"},
	}
}

func loggedIn() *auth.Session {
	s := auth.NewSession()
	s.Login("alice", auth.Static("tok"))
	return s
}

func TestReconcile_Idempotent(t *testing.T) {
	gw := new(fetcherMock)
	gw.On("FetchLines", mock.Anything, "tok").Return([]model.CartLine{
		serverLine("a", "v1", model.SizePtr("42"), 2),
		serverLine("b", "v2", nil, 1),
	}, nil)
	store := cartstore.New(nil)
	r := New(store, gw, loggedIn(), Options{})

	require.NoError(t, r.Reconcile(context.Background()))
	first := store.Read()
	require.NoError(t, r.Reconcile(context.Background()))
	second := store.Read()

	assert.Equal(t, first, second)
	assert.Equal(t, 2, second.Len())
	gw.AssertNumberOfCalls(t, "FetchLines", 2)
}

func TestReconcile_DropsUnconfirmedLocalLines(t *testing.T) {
	gw := new(fetcherMock)
	gw.On("FetchLines", mock.Anything, "tok").Return([]model.CartLine{serverLine("a", "v1", nil, 1)}, nil)
	store := cartstore.New(nil)
	store.Upsert(serverLine("local", "v9", nil, 4))
	store.Upsert(serverLine("a", "v1", nil, 7))

	require.NoError(t, New(store, gw, loggedIn(), Options{}).Reconcile(context.Background()))

	st := store.Read()
	require.Equal(t, 1, st.Len())
	assert.Equal(t, int64(1), st.Lines[0].Quantity)
}

func TestReconcile_SkippedWhenLoggedOut(t *testing.T) {
	gw := new(fetcherMock)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := cartstore.New(nil)
	store.Upsert(serverLine("a", "v1", nil, 1))

	err := New(store, gw, auth.NewSession(), Options{Metrics: m}).Reconcile(context.Background())

	assert.ErrorIs(t, err, ErrSkipped)
	gw.AssertNotCalled(t, "FetchLines", mock.Anything, mock.Anything)
	assert.Equal(t, 1, store.Read().Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciles.WithLabelValues(metrics.OutcomeSkipped)))
}

func TestReconcile_AuthFailureLeavesStore(t *testing.T) {
	gw := new(fetcherMock)
	session := auth.NewSession()
	session.Login("alice", auth.TokenFunc(func(context.Context) (string, error) {
		return "", errors.New("provider down")
	}))
	store := cartstore.New(nil)
	store.Upsert(serverLine("a", "v1", nil, 3))
	before := store.Read()

	err := New(store, gw, session, Options{}).Reconcile(context.Background())

	assert.ErrorIs(t, err, auth.ErrAuth)
	gw.AssertNotCalled(t, "FetchLines", mock.Anything, mock.Anything)
	assert.Equal(t, before, store.Read())
}

func TestReconcile_FetchFailureLeavesStore(t *testing.T) {
	gw := new(fetcherMock)
	gw.On("FetchLines", mock.Anything, "tok").Return(nil, &gateway.NetworkError{Op: gateway.OpFetchLines, Err: errors.New("timeout")})
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := cartstore.New(nil)
	store.Upsert(serverLine("a", "v1", nil, 3))
	before := store.Read()

	err := New(store, gw, loggedIn(), Options{Metrics: m}).Reconcile(context.Background())

	assert.ErrorIs(t, err, gateway.ErrNetwork)
	assert.Equal(t, before, store.Read())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciles.WithLabelValues(metrics.OutcomeNetwork)))
}

func TestReconcile_CarriesLocalSize(t *testing.T) {
	gw := new(fetcherMock)
	gw.On("FetchLines", mock.Anything, "tok").Return([]model.CartLine{
		serverLine("a", "v1", nil, 1),
		serverLine("b", "v2", nil, 1),
		serverLine("c", "v2", model.SizePtr("41"), 1),
	}, nil)
	store := cartstore.New(nil)
	store.Upsert(serverLine("a", "v1", nil, 1))
	store.Upsert(serverLine("b", "v2", nil, 1))
	require.NoError(t, store.SetSize("a", model.SizePtr("42")))
	require.NoError(t, store.SetSize("b", model.SizePtr("41")))

	require.NoError(t, New(store, gw, loggedIn(), Options{}).Reconcile(context.Background()))

	a, _ := store.Get("a")
	assert.Equal(t, "42", a.SizeValue())
	// c が既に 41 を持っているので引き継がない
	b, _ := store.Get("b")
	assert.Nil(t, b.Size)
}

func TestReconcile_ReappliesPendingQuantity(t *testing.T) {
	gw := new(fetcherMock)
	gw.On("FetchLines", mock.Anything, "tok").Return([]model.CartLine{serverLine("a", "v1", nil, 1)}, nil)
	store := cartstore.New(nil)
	r := New(store, gw, loggedIn(), Options{
		Pending: func() map[string]int64 { return map[string]int64{"a": 5, "gone": 2} },
	})

	require.NoError(t, r.Reconcile(context.Background()))

	a, _ := store.Get("a")
	assert.Equal(t, int64(5), a.Quantity)
	assert.Equal(t, 1, store.Read().Len())
}

type reportCounter struct {
	n atomic.Int32
}

func (r *reportCounter) Report(op, lineID string, err error) notify.Notice {
	r.n.Add(1)
	return notify.Notice{}
}

func TestRun_TicksAndReportsFailures(t *testing.T) {
	gw := new(fetcherMock)
	gw.On("FetchLines", mock.Anything, "tok").Return(nil, &gateway.NetworkError{Op: gateway.OpFetchLines, Err: errors.New("down")})
	counter := &reportCounter{}
	r := New(cartstore.New(nil), gw, loggedIn(), Options{Interval: 10 * time.Millisecond, Notifier: counter})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return counter.n.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

type fetchFunc func(ctx context.Context, token string) ([]model.CartLine, error)

func (f fetchFunc) FetchLines(ctx context.Context, token string) ([]model.CartLine, error) {
	return f(ctx, token)
}

func TestReconcile_SharedFetchOutlivesFirstCaller(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	var calls atomic.Int32
	gw := fetchFunc(func(ctx context.Context, token string) ([]model.CartLine, error) {
		calls.Add(1)
		entered <- struct{}{}
		select {
		case <-release:
			return []model.CartLine{serverLine("a", "v1", nil, 2)}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	store := cartstore.New(nil)
	r := New(store, gw, loggedIn(), Options{Timeout: 5 * time.Second})

	ctx1, cancel1 := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- r.Reconcile(ctx1) }()
	<-entered

	// 先に呼んだ側だけが戻り、取得は続く
	cancel1()
	assert.ErrorIs(t, <-first, context.Canceled)

	second := make(chan error, 1)
	go func() { second <- r.Reconcile(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-second)
	assert.Equal(t, int32(1), calls.Load())
	a, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(2), a.Quantity)
}

func TestReconcile_DropsFetchAfterSubjectChange(t *testing.T) {
	session := loggedIn()
	gw := fetchFunc(func(ctx context.Context, token string) ([]model.CartLine, error) {
		// 取得中に別ユーザーへ切り替わる
		session.Login("bob", auth.Static("tok-bob"))
		return []model.CartLine{serverLine("alice-line", "v1", nil, 2)}, nil
	})
	store := cartstore.New(nil)

	err := New(store, gw, session, Options{}).Reconcile(context.Background())

	assert.ErrorIs(t, err, ErrSkipped)
	assert.True(t, store.Read().IsEmpty())
}
