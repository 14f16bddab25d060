// Package metrics exposes prometheus counters for lottery transitions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer, in which case nothing is recorded.
type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	ticketsSold prometheus.Counter
	paidOut     prometheus.Counter
	feesPaid    prometheus.Counter
}

// New registers the lottery collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lottery",
			Name:      "transitions_total",
			Help:      "Lottery transitions by operation and outcome.",
		}, []string{"op", "result"}),
		ticketsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lottery",
			Name:      "tickets_sold_total",
			Help:      "Tickets sold across all rounds.",
		}),
		paidOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lottery",
			Name:      "prize_payout_total",
			Help:      "Token amount paid out to winners.",
		}),
		feesPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lottery",
			Name:      "platform_fee_total",
			Help:      "Token amount paid to the platform account.",
		}),
	}
	m.registry.MustRegister(m.transitions, m.ticketsSold, m.paidOut, m.feesPaid)
	return m
}

// Transition counts one attempt of op. result is "ok" or an error kind.
func (m *Metrics) Transition(op, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(op, result).Inc()
}

// TicketSold counts one issued ticket.
func (m *Metrics) TicketSold() {
	if m == nil {
		return
	}
	m.ticketsSold.Inc()
}

// PrizeClaimed adds a settled claim to the payout and fee totals.
func (m *Metrics) PrizeClaimed(payout, fee uint64) {
	if m == nil {
		return
	}
	m.paidOut.Add(float64(payout))
	m.feesPaid.Add(float64(fee))
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
