// Package observability wires the pipeline's counters and gauges into
// prometheus. Instruments are registered at construction; event-driven
// ones update off the bus so services stay metrics-unaware.
package observability

import (
	"context"

	"jackpotd/domain/events"
	"jackpotd/pipeline"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every instrument the service exports
type Metrics struct {
	SettlementsTotal    *prometheus.CounterVec
	SettlementDuration  prometheus.Histogram
	EnqueuedTotal       *prometheus.CounterVec
	DeadLettersTotal    prometheus.Counter
	PoolAmount          *prometheus.GaugeVec
	JackpotPayoutsTotal *prometheus.CounterVec

	registry      prometheus.Registerer
	subscriptions []*events.Subscription
}

// NewMetrics creates and registers the instrument set. Pass
// prometheus.DefaultRegisterer unless tests need isolation.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SettlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jackpotd_settlements_total",
			Help: "Settlement requests by outcome",
		}, []string{"outcome"}),
		SettlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jackpotd_settlement_duration_seconds",
			Help:    "Wall time of the settlement path",
			Buckets: prometheus.DefBuckets,
		}),
		EnqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jackpotd_enqueued_total",
			Help: "Queue admissions by kind and result",
		}, []string{"kind", "result"}),
		DeadLettersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jackpotd_dead_letters_total",
			Help: "Queue items dropped as unprocessable",
		}),
		PoolAmount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jackpotd_pool_amount",
			Help: "Current jackpot pool amount by group",
		}, []string{"group"}),
		JackpotPayoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jackpotd_jackpot_payouts_total",
			Help: "Paid-out jackpot wins by group",
		}, []string{"group"}),
		registry: reg,
	}

	reg.MustRegister(
		m.SettlementsTotal,
		m.SettlementDuration,
		m.EnqueuedTotal,
		m.DeadLettersTotal,
		m.PoolAmount,
		m.JackpotPayoutsTotal,
	)
	return m
}

// ObserveBus keeps the event-driven instruments current
func (m *Metrics) ObserveBus(bus *events.Bus) {
	m.subscriptions = append(m.subscriptions,
		bus.Subscribe(events.EventTypePoolUpdated, func(ctx context.Context, event events.Event) {
			if e, ok := event.(events.PoolUpdatedEvent); ok {
				m.PoolAmount.WithLabelValues(string(e.Group)).Set(float64(e.NewAmount))
			}
		}),
		bus.Subscribe(events.EventTypeJackpotWon, func(ctx context.Context, event events.Event) {
			if e, ok := event.(events.JackpotWonEvent); ok {
				m.JackpotPayoutsTotal.WithLabelValues(string(e.Group)).Inc()
				m.PoolAmount.WithLabelValues(string(e.Group)).Set(float64(e.NewAmount))
			}
		}),
		bus.Subscribe(events.EventTypeItemFailed, func(ctx context.Context, event events.Event) {
			m.DeadLettersTotal.Inc()
		}),
	)
}

// StopObserving removes the bus subscriptions
func (m *Metrics) StopObserving() {
	for _, sub := range m.subscriptions {
		sub.Unsubscribe()
	}
	m.subscriptions = nil
}

// BindQueue exports queue depth and throughput from a live snapshot
// function instead of shadow counters.
func (m *Metrics) BindQueue(snapshot func() pipeline.QueueMetrics) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "jackpotd_queue_ready",
			Help: "Items ready for processing",
		}, func() float64 { return float64(snapshot().Ready) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "jackpotd_queue_delayed",
			Help: "Items waiting out a retry backoff",
		}, func() float64 { return float64(snapshot().Delayed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "jackpotd_queue_processed_total",
			Help: "Items processed successfully",
		}, func() float64 { return float64(snapshot().Processed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "jackpotd_queue_retried_total",
			Help: "Item retries after handler failure",
		}, func() float64 { return float64(snapshot().Retried) }),
	)
}

// BindTargets exports the balancer's healthy-target count
func (m *Metrics) BindTargets(snapshot func() []pipeline.TargetSnapshot) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "jackpotd_storage_targets_healthy",
			Help: "Storage targets currently accepting work",
		}, func() float64 {
			healthy := 0
			for _, t := range snapshot() {
				if t.Healthy {
					healthy++
				}
			}
			return float64(healthy)
		}),
	)
}
