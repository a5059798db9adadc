package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus registry and the ledger meters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry          *prometheus.Registry
	OperationDuration *prometheus.HistogramVec
	OperationTotal    *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	EventsTotal       *prometheus.CounterVec
	SwapsTotal        *prometheus.CounterVec
	TotalSupply       *prometheus.GaugeVec
}

// NewMetrics creates a custom Prometheus registry with the ledger metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Duration of ledger operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	opTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operation_total",
		Help: "Total number of ledger operations.",
	}, []string{"operation", "status"})

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_errors_total",
		Help: "Total number of failed operations by error kind.",
	}, []string{"operation", "kind"})

	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_total",
		Help: "Total number of committed events.",
	}, []string{"kind"})

	swapsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_swaps_total",
		Help: "Total number of swap attempts.",
	}, []string{"variant", "outcome"})

	totalSupply := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledger_total_supply",
		Help: "Total supply of each ledger in minor units.",
	}, []string{"ledger"})

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		opDuration, opTotal, errorsTotal, eventsTotal, swapsTotal, totalSupply,
	)

	return &Metrics{
		Registry:          reg,
		OperationDuration: opDuration,
		OperationTotal:    opTotal,
		ErrorsTotal:       errorsTotal,
		EventsTotal:       eventsTotal,
		SwapsTotal:        swapsTotal,
		TotalSupply:       totalSupply,
	}
}

// RecordEvent counts one committed event of the given kind.
func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind).Inc()
}

// RecordSwap counts one swap attempt.
func (m *Metrics) RecordSwap(variant, outcome string) {
	if m == nil {
		return
	}
	m.SwapsTotal.WithLabelValues(variant, outcome).Inc()
}

// SetTotalSupply publishes the current supply of a ledger.
func (m *Metrics) SetTotalSupply(ledger string, supply int64) {
	if m == nil {
		return
	}
	m.TotalSupply.WithLabelValues(ledger).Set(float64(supply))
}
