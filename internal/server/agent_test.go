package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cartsync/internal/auth"
	"cartsync/internal/cartsync"
	"cartsync/internal/clock"
	"cartsync/internal/handler"
	"cartsync/internal/metrics"
)

type agent struct {
	url    string
	clk    *clock.Manual
	client *cartsync.Client
	http   *http.Client
}

func newAgent(t *testing.T, s service) agent {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	client := cartsync.New(s.carts, s.orders, cartsync.Options{Clock: clk, Debounce: 2 * time.Second, Metrics: m})
	providers := func(email, password string) auth.TokenProvider {
		return auth.NewPasswordProvider(s.url, email, password, nil)
	}
	e := NewAgent(zap.NewNop(), handler.NewSyncHandler(client, providers), reg)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return agent{url: srv.URL, clk: clk, client: client, http: srv.Client()}
}

func (a agent) call(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, a.url+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	_ = json.Unmarshal(data, &out)
	return resp.StatusCode, out
}

func TestAgent_IntentsFlowToService(t *testing.T) {
	s := newService(t)
	a := newAgent(t, s)

	status, view := a.call(t, http.MethodPost, "/session/login", `{"email":"demo@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, view["authenticated"])
	assert.Equal(t, "demo@example.com", view["subject"])

	status, line := a.call(t, http.MethodPost, "/cart/lines", `{"variant_id":"court-white","size":"40","quantity":1}`)
	require.Equal(t, http.StatusCreated, status)
	id, _ := line["id"].(string)
	require.NotEmpty(t, id)

	status, view = a.call(t, http.MethodPost, "/cart/lines/"+id+"/increase", "")
	require.Equal(t, http.StatusOK, status)
	lines := view["lines"].([]any)
	require.Len(t, lines, 1)
	first := lines[0].(map[string]any)
	assert.Equal(t, float64(2), first["quantity"])
	assert.Equal(t, "pending", first["status"])

	a.clk.Advance(2 * time.Second)

	server, err := s.carts.FetchLines(context.Background(), s.token)
	require.NoError(t, err)
	require.Len(t, server, 1)
	assert.Equal(t, int64(2), server[0].Quantity)

	status, _ = a.call(t, http.MethodPut, "/cart/lines/"+id+"/quantity", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, a.client.Store.Read().IsEmpty())

	status, body := a.call(t, http.MethodGet, "/checkout/promo", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "use SAVE10 for 10% off", body["message"])

	status, _ = a.call(t, http.MethodPost, "/session/logout", "")
	require.Equal(t, http.StatusOK, status)
	assert.False(t, a.client.Session.IsAuthenticated())
}

func TestAgent_ErrorsAndValidation(t *testing.T) {
	s := newService(t)
	a := newAgent(t, s)

	status, body := a.call(t, http.MethodPost, "/cart/lines", `{"variant_id":"","quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])

	status, _ = a.call(t, http.MethodPost, "/session/login", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	// 未ログインの注文はカートが空
	status, body = a.call(t, http.MethodPost, "/checkout/order", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid", body["kind"])

	status, _ = a.call(t, http.MethodPost, "/session/login", `{"token":"`+s.token+`"}`)
	require.Equal(t, http.StatusOK, status)

	// 在庫0のサイズはサーバーが拒否する
	status, body = a.call(t, http.MethodPost, "/cart/lines", `{"variant_id":"runner-red","size":"42","quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "rejected", body["kind"])
	assert.Equal(t, "stock exceeded", body["message"])

	status, body = a.call(t, http.MethodPost, "/checkout/coupon", `{"code":"NOPE"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "invalid coupon", body["message"])

	req, err := http.NewRequest(http.MethodGet, a.url+"/notices", nil)
	require.NoError(t, err)
	resp, err := a.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var notices []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&notices))
	assert.NotEmpty(t, notices)
}

func TestAgent_Metrics(t *testing.T) {
	s := newService(t)
	a := newAgent(t, s)

	status, _ := a.call(t, http.MethodPost, "/session/login", `{"token":"`+s.token+`"}`)
	require.Equal(t, http.StatusOK, status)

	resp, err := a.http.Get(a.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "gateway_requests_total")
	assert.Contains(t, string(data), "reconciles_total")
}
