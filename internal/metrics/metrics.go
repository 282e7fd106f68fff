// Package metrics holds the prometheus collectors of the sync agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cartsync"

// 結果ラベル
const (
	OutcomeOK        = "ok"
	OutcomeAuth      = "auth_error"
	OutcomeNetwork   = "network_error"
	OutcomeRejected  = "rejected"
	OutcomeMalformed = "malformed"
	OutcomeSkipped   = "skipped"
)

// Sync はエージェント全体のメトリクス。
// nil のまま使っても良い（記録しない）。
type Sync struct {
	GatewayRequests *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	Writes          *prometheus.CounterVec
	CoalescedEdits  prometheus.Counter
	PendingWrites   prometheus.Gauge
	Reconciles      *prometheus.CounterVec
	CartLines       prometheus.Gauge
}

// New は collectors を作って reg に登録する。
func New(reg prometheus.Registerer) *Sync {
	m := &Sync{
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Requests sent to the cart service, by operation and outcome.",
		}, []string{"op", "outcome"}),
		GatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of cart service requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debounced_writes_total",
			Help:      "Debounced quantity writes flushed to the cart service, by outcome.",
		}, []string{"outcome"}),
		CoalescedEdits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_edits_total",
			Help:      "Quantity edits folded into an already pending write.",
		}),
		PendingWrites: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_writes",
			Help:      "Lines with a scheduled, not yet flushed write.",
		}),
		Reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciles_total",
			Help:      "Reconciliation runs, by outcome.",
		}, []string{"outcome"}),
		CartLines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cart_lines",
			Help:      "Lines currently held by the local cart store.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.GatewayRequests,
			m.GatewayDuration,
			m.Writes,
			m.CoalescedEdits,
			m.PendingWrites,
			m.Reconciles,
			m.CartLines,
		)
	}
	return m
}

func (m *Sync) ObserveGateway(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(op, outcome).Inc()
	m.GatewayDuration.WithLabelValues(op).Observe(seconds)
}

func (m *Sync) ObserveWrite(outcome string) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(outcome).Inc()
}

func (m *Sync) ObserveCoalesced() {
	if m == nil {
		return
	}
	m.CoalescedEdits.Inc()
}

func (m *Sync) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingWrites.Set(float64(n))
}

func (m *Sync) ObserveReconcile(outcome string) {
	if m == nil {
		return
	}
	m.Reconciles.WithLabelValues(outcome).Inc()
}

func (m *Sync) SetLines(n int) {
	if m == nil {
		return
	}
	m.CartLines.Set(float64(n))
}
