// Package monitoring exposes prometheus metrics for the wagering core.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the platform's counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	wagersTotal    *prometheus.CounterVec
	stakeTotal     prometheus.Counter
	payoutTotal    prometheus.Counter
	transfersTotal prometheus.Counter
}

// New creates and registers the metric set.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		wagersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casino_wagers_total",
			Help: "Settled wagers by outcome.",
		}, []string{"outcome"}),
		stakeTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "casino_stake_units_total",
			Help: "Gross stake accepted, in token units.",
		}),
		payoutTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "casino_payout_units_total",
			Help: "Winnings paid out, in token units.",
		}),
		transfersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "casino_outbound_transfers_total",
			Help: "Outbound transfer requests dispatched.",
		}),
	}
}

// RecordWager counts one settled wager.
func (m *Metrics) RecordWager(won bool, stake, payout uint64) {
	outcome := "lost"
	if won {
		outcome = "won"
	}
	m.wagersTotal.WithLabelValues(outcome).Inc()
	m.stakeTotal.Add(float64(stake))
	m.payoutTotal.Add(float64(payout))
}

// RecordTransfer counts one dispatched outbound transfer.
func (m *Metrics) RecordTransfer() {
	m.transfersTotal.Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
