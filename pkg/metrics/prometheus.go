package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/internal/ledger"
)

const namespace = "pesaprime"

// Collector owns a private registry with the ledger, settlement and HTTP
// instruments. It satisfies ledger.Metrics and settlement.Metrics.
type Collector struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	retries           *prometheus.CounterVec
	entries           *prometheus.CounterVec
	entryVolume       *prometheus.CounterVec

	settlements     *prometheus.CounterVec
	profitLoss      prometheus.Histogram
	sweepSettled    prometheus.Counter
	sweepFailed     prometheus.Counter
	sweepDuration   prometheus.Histogram
	lastSweepUnixTs prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	eventsReceived *prometheus.CounterVec
}

// NewCollector creates a collector with Go runtime and process collectors registered
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by outcome",
		}, []string{"operation", "outcome"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in a ledger operation including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "retries_total",
			Help:      "Transactions retried after lock contention",
		}, []string{"operation"}),
		entries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Committed ledger entries",
		}, []string{"kind"}),
		entryVolume: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entry_volume_usd_total",
			Help:      "Absolute USD volume of committed ledger entries",
		}, []string{"kind"}),
		settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "settlements_total",
			Help:      "Settlement attempts by outcome",
		}, []string{"outcome"}),
		profitLoss: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "profit_loss_usd",
			Help:      "Profit or loss applied per settled position",
			Buckets:   []float64{-1000, -100, -10, -1, 0, 1, 10, 100, 1000, 10000},
		}),
		sweepSettled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "sweep_settled_total",
			Help:      "Positions settled by the sweep",
		}),
		sweepFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "sweep_failed_total",
			Help:      "Positions the sweep failed to settle",
		}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one sweep batch",
			Buckets:   prometheus.DefBuckets,
		}),
		lastSweepUnixTs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time of the last completed sweep batch",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		eventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Ledger events delivered to this instance over pub/sub",
		}, []string{"type", "kind"}),
	}
}

// ObserveOperation implements ledger.Metrics
func (c *Collector) ObserveOperation(op, outcome string, duration time.Duration) {
	c.operations.WithLabelValues(op, outcome).Inc()
	c.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRetry implements ledger.Metrics
func (c *Collector) RecordRetry(op string) {
	c.retries.WithLabelValues(op).Inc()
}

// RecordEntry implements ledger.Metrics
func (c *Collector) RecordEntry(kind ledger.EntryKind, amount decimal.Decimal) {
	c.entries.WithLabelValues(string(kind)).Inc()
	c.entryVolume.WithLabelValues(string(kind)).Add(amount.Abs().InexactFloat64())
}

// RecordSettlement implements settlement.Metrics
func (c *Collector) RecordSettlement(outcome string, profitLoss decimal.Decimal) {
	c.settlements.WithLabelValues(outcome).Inc()
	if outcome == "settled" {
		c.profitLoss.Observe(profitLoss.InexactFloat64())
	}
}

// RecordSweep implements settlement.Metrics
func (c *Collector) RecordSweep(settled, failed int, duration time.Duration) {
	c.sweepSettled.Add(float64(settled))
	c.sweepFailed.Add(float64(failed))
	c.sweepDuration.Observe(duration.Seconds())
	c.lastSweepUnixTs.SetToCurrentTime()
}

// RecordHTTP records one served request
func (c *Collector) RecordHTTP(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
