package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartsync/internal/auth"
)

const lineJSON = `{"id":"l1","variant_id":"v1","quantity":2,"size":"42","unit_price":"100.00",
 "sizes":[{"size":"42","stock":3},{"size":"43","stock":0}],
 "display":{"brand":"Acme","name":"Runner","image_url":"http://img/1.png","color":"red"}}`

func newGateway(t *testing.T, h http.HandlerFunc) *CartGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewCartGateway(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
}

func TestFetchLines_OK(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/cart/items", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"success":true,"data":[[`+lineJSON+`,
			{"id":"l2","variant_id":"v2","quantity":1,"size":null,"unit_price":50,"display":{}}]]}`)
	})

	lines, err := g.FetchLines(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "l1", lines[0].ID)
	assert.Equal(t, "42", lines[0].SizeValue())
	assert.True(t, decimal.NewFromInt(100).Equal(lines[0].UnitPrice))
	assert.Equal(t, "Acme", lines[0].Display.Brand)
	assert.Len(t, lines[0].AvailableSizes(), 1)

	assert.Nil(t, lines[1].Size)
	assert.True(t, decimal.NewFromInt(50).Equal(lines[1].UnitPrice))
}

func TestFetchLines_EmptyCart(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":[[]]}`)
	})

	lines, err := g.FetchLines(context.Background(), "tok")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestFetchLines_MalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":        `<html>oops</html>`,
		"missing data":    `{"success":true}`,
		"flat data":       `{"success":true,"data":[]}`,
		"missing id":      `{"data":[[{"variant_id":"v","quantity":1,"unit_price":"1"}]]}`,
		"zero quantity":   `{"data":[[{"id":"a","variant_id":"v","quantity":0,"unit_price":"1"}]]}`,
		"missing price":   `{"data":[[{"id":"a","variant_id":"v","quantity":1}]]}`,
		"negative price":  `{"data":[[{"id":"a","variant_id":"v","quantity":1,"unit_price":"-1"}]]}`,
		"empty size name": `{"data":[[{"id":"a","variant_id":"v","quantity":1,"unit_price":"1","sizes":[{"size":"","stock":1}]}]]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			})

			lines, err := g.FetchLines(context.Background(), "tok")
			assert.Nil(t, lines)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			var se *SchemaError
			assert.True(t, errors.As(err, &se))
		})
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"success false", http.StatusOK, `{"success":false,"message":"out of stock"}`, ErrRejected},
		{"bad request", http.StatusBadRequest, `{"success":false,"message":"stock exceeded"}`, ErrRejected},
		{"not found", http.StatusNotFound, `{"error":"not found"}`, ErrRejected},
		{"server error", http.StatusInternalServerError, `{"message":"db error"}`, ErrNetwork},
		{"bad gateway html", http.StatusBadGateway, `<html/>`, ErrNetwork},
		{"unauthorized", http.StatusUnauthorized, `{"message":"unauthorized"}`, auth.ErrAuth},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			err := g.SetQuantity(context.Background(), "tok", "l1", 3)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRejectedError_CarriesServerMessage(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"success":false,"message":"stock exceeded"}`)
	})

	err := g.SetQuantity(context.Background(), "tok", "l1", 99)
	var re *RejectedError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Equal(t, "stock exceeded", re.Message)
	assert.Equal(t, OpSetQuantity, re.Op)
}

func TestTransportFailure_IsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	g := NewCartGateway(Options{BaseURL: url, Timeout: time.Second})
	_, err := g.FetchLines(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestTimeout_IsNetworkError(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := g.Clear(ctx, "tok")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestMutations_RequestShape(t *testing.T) {
	type call struct {
		method, path string
		body         map[string]any
	}
	var calls []call

	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, call{method: r.Method, path: r.URL.EscapedPath(), body: body})
		if r.Method == http.MethodPost {
			_, _ = io.WriteString(w, `{"success":true,"message":"added","data":[`+lineJSON+`]}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true}`)
	})
	ctx := context.Background()

	require.NoError(t, g.SetQuantity(ctx, "tok", "l1", 4))
	require.NoError(t, g.RemoveLine(ctx, "tok", "a/b"))
	require.NoError(t, g.Clear(ctx, "tok"))
	line, err := g.AddLine(ctx, "tok", AddLineInput{VariantID: "v1", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "l1", line.ID)

	require.Len(t, calls, 4)
	assert.Equal(t, http.MethodPatch, calls[0].method)
	assert.Equal(t, "/cart/items", calls[0].path)
	assert.Equal(t, "l1", calls[0].body["id"])
	assert.Equal(t, float64(4), calls[0].body["quantity"])
	assert.Equal(t, http.MethodDelete, calls[1].method)
	assert.Equal(t, "/cart/items/a%2Fb", calls[1].path)
	assert.Equal(t, "/cart", calls[2].path)
	assert.Equal(t, "v1", calls[3].body["variant_id"])
}

func TestRateLimit_WaitCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true}`)
	}))
	defer srv.Close()

	g := NewCartGateway(Options{BaseURL: srv.URL, HTTPClient: srv.Client(), RateLimit: 0.01, Burst: 1})
	require.NoError(t, g.Clear(context.Background(), "tok"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Clear(ctx, "tok"), ErrNetwork)
}

func TestOrderGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/coupons/SAVE10":
			_, _ = io.WriteString(w, `{"value":10}`)
		case "/orders/coupons/HUGE":
			_, _ = io.WriteString(w, `{"value":150}`)
		case "/orders":
			var p OrderPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			assert.Len(t, p.Items, 1)
			assert.Equal(t, "SAVE10", p.CouponCode)
			_, _ = io.WriteString(w, `{"success":true,"message":"order placed"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"invalid coupon"}`)
		}
	}))
	defer srv.Close()

	g := NewOrderGateway(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	ctx := context.Background()

	pct, err := g.ApplyCoupon(ctx, "tok", "SAVE10")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(pct))

	_, err = g.ApplyCoupon(ctx, "tok", "HUGE")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = g.ApplyCoupon(ctx, "tok", "NOPE")
	assert.ErrorIs(t, err, ErrRejected)

	err = g.PlaceOrder(ctx, "tok", OrderPayload{
		Items:      []OrderItem{{VariantID: "v1", Quantity: 1, Size: "42", PricePerUnit: decimal.NewFromInt(100)}},
		Price:      decimal.NewFromInt(99),
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)
}

func TestOrderGateway_HistoryAndPromo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/orders":
			_, _ = io.WriteString(w, `{"success":true,"data":[{"id":"o1","status":"PENDING","total_price":"90",
				"discount_percentage":"10","created_at":"2026-01-02T03:04:05Z",
				"items":[{"variant_id":"v1","size":"42","product_name":"Runner","unit_price":"100","quantity":1}]}]}`)
		case r.URL.Path == "/orders/promo":
			_, _ = io.WriteString(w, `{"message":"use SAVE10 for 10% off"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := NewOrderGateway(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	ctx := context.Background()

	orders, err := g.ListOrders(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, "Runner", orders[0].Items[0].ProductName)
	assert.True(t, decimal.NewFromInt(90).Equal(orders[0].TotalPrice))

	msg, err := g.PromoMessage(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "use SAVE10 for 10% off", msg)
}

func TestOrderGateway_ListOrdersMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":[{"status":"PAID","items":[]}]}`)
	}))
	defer srv.Close()

	g := NewOrderGateway(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := g.ListOrders(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrMalformed)
}
