package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iho/erpledger/internal/domain"
)

// Metrics holds all Prometheus metrics. It implements usecase.Metrics.
type Metrics struct {
	// Posting metrics
	JournalsPosted     *prometheus.CounterVec
	JournalsReversed   prometheus.Counter
	PostingErrors      *prometheus.CounterVec
	InvariantFailures  prometheus.Counter
	StockMovements     *prometheus.CounterVec
	OpenItemsSettled   *prometheus.CounterVec
	OutboxPublished    prometheus.Counter
	OutboxPublishFails prometheus.Counter
	TxRetries          *prometheus.CounterVec

	// API metrics
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	HTTPInFlight  prometheus.Gauge
	RateLimitHits prometheus.Counter

	// Authentication metrics
	AuthFailures *prometheus.CounterVec
}

// New creates all metrics and registers them with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all metrics and registers them with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JournalsPosted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpledger_journals_posted_total",
				Help: "Total number of journal entries posted by event type",
			},
			[]string{"event_type"},
		),
		JournalsReversed: factory.NewCounter(prometheus.CounterOpts{
			Name: "erpledger_journals_reversed_total",
			Help: "Total number of journal entries reversed",
		}),
		PostingErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpledger_posting_errors_total",
				Help: "Total number of rejected postings by event type and error class",
			},
			[]string{"event_type", "class"},
		),
		InvariantFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "erpledger_invariant_violations_total",
			Help: "Total number of postings aborted by an invariant violation",
		}),
		StockMovements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpledger_stock_movements_total",
				Help: "Total number of stock movements by type",
			},
			[]string{"type"},
		),
		OpenItemsSettled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpledger_open_item_settlements_total",
				Help: "Total number of payments applied to open items by kind",
			},
			[]string{"kind"},
		),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "erpledger_outbox_published_total",
			Help: "Total number of outbox events published",
		}),
		OutboxPublishFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "erpledger_outbox_publish_failures_total",
			Help: "Total number of outbox events that failed to publish",
		}),
		TxRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpledger_tx_retries_total",
				Help: "Total number of transactions re-run after a lock conflict",
			},
			[]string{"reason"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "erpledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "erpledger_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		}),
		RateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "erpledger_rate_limit_hits_total",
			Help: "Total rate limit hits",
		}),

		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpledger_auth_failures_total",
				Help: "Total authentication failures",
			},
			[]string{"reason"},
		),
	}
}

// JournalPosted counts a committed journal entry.
func (m *Metrics) JournalPosted(eventType domain.EventType) {
	m.JournalsPosted.WithLabelValues(string(eventType)).Inc()
}

// JournalReversed counts a reversal.
func (m *Metrics) JournalReversed() {
	m.JournalsReversed.Inc()
}

// PostingFailed counts a rejected posting.
func (m *Metrics) PostingFailed(eventType domain.EventType, class string) {
	m.PostingErrors.WithLabelValues(string(eventType), class).Inc()
	if class == "invariant" {
		m.InvariantFailures.Inc()
	}
}

// StockMoved counts a committed stock movement.
func (m *Metrics) StockMoved(movementType domain.MovementType) {
	m.StockMovements.WithLabelValues(string(movementType)).Inc()
}

// OpenItemSettled counts a payment applied to an open item.
func (m *Metrics) OpenItemSettled(kind domain.OpenItemKind) {
	m.OpenItemsSettled.WithLabelValues(string(kind)).Inc()
}
