package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/jonathan/auto-evaluator/internal/types"
)

const namespace = "auto_evaluator"

// Outcome labels used on item metrics.
const (
	OutcomeScored     = "scored"
	OutcomeScoreError = "score_error"
	OutcomeNoURL      = "no_url"
	OutcomeInvalidURL = "invalid_url"
	OutcomeEmptyDoc   = "empty_doc"
	OutcomeCancelled  = "cancelled"
	OutcomeFailed     = "failed"
)

// OutcomeLabel maps an outcome record to its metric label.
func OutcomeLabel(rec types.OutcomeRecord) string {
	if rec.Success {
		if rec.ScoreText == types.ScoreTextError {
			return OutcomeScoreError
		}
		return OutcomeScored
	}
	switch rec.Reason {
	case types.ReasonNoURL:
		return OutcomeNoURL
	case types.ReasonInvalidURL:
		return OutcomeInvalidURL
	case types.ReasonEmptyDoc:
		return OutcomeEmptyDoc
	case types.ReasonCancelled:
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

// Metrics holds the batch collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry     *prometheus.Registry
	items        *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	reconnects   prometheus.Counter
	batchSeconds prometheus.Gauge
}

// NewMetrics registers the batch collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_processed_total",
				Help:      "Rows processed, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		itemDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "item_duration_seconds",
				Help:      "Time from fetch to write-back for one row.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_retries_total",
				Help:      "Retries of remote calls, labeled by operation.",
			},
			[]string{"op"},
		),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_rebuilds_total",
			Help:      "Google API connections rebuilt after a transport failure.",
		}),
		batchSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of the last batch.",
		}),
	}
	m.registry.MustRegister(m.items, m.itemDuration, m.retries, m.reconnects, m.batchSeconds)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveOutcome counts a finished row and records its duration.
func (m *Metrics) ObserveOutcome(rec types.OutcomeRecord) {
	if m == nil {
		return
	}
	label := OutcomeLabel(rec)
	m.items.WithLabelValues(label).Inc()
	if rec.Duration > 0 {
		m.itemDuration.WithLabelValues(label).Observe(rec.Duration.Seconds())
	}
}

// IncRetry counts one retry of op.
func (m *Metrics) IncRetry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

// IncReconnect counts one connection rebuild.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// ObserveBatch records the wall time of a finished batch.
func (m *Metrics) ObserveBatch(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batchSeconds.Set(elapsed.Seconds())
}

// Push sends the collectors to a Pushgateway under job. An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
