package observability

import (
	"context"

	"github.com/aretw0/settle/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts activations by channel and failure kind and observes their duration.
type Metrics struct {
	Outcomes *prometheus.CounterVec
	Failures *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Drained  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settle_activations_total",
				Help: "Activations by output channel and discard reason",
			},
			[]string{"channel", "reason", "poll"},
		),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settle_failures_total",
				Help: "Failed activations by error kind",
			},
			[]string{"kind"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settle_activation_duration_seconds",
				Help:    "Duration of activations, store round trips included",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"channel"},
		),
		Drained: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "settle_consolidated_messages",
				Help:    "Messages consolidated per ready outcome",
				Buckets: prometheus.ExponentialBuckets(1, 2, 8),
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Outcomes, m.Failures, m.Duration, m.Drained)
	}
	return m
}

// Hooks returns lifecycle hooks that record every event.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	record := func(_ context.Context, ev *domain.OutcomeEvent) {
		m.Outcomes.WithLabelValues(string(ev.Channel), string(ev.Reason), boolLabel(ev.Poll)).Inc()
		m.Duration.WithLabelValues(string(ev.Channel)).Observe(ev.Duration.Seconds())
	}
	return domain.LifecycleHooks{
		OnWait:    record,
		OnDiscard: record,
		OnReady: func(ctx context.Context, ev *domain.OutcomeEvent) {
			record(ctx, ev)
			m.Drained.Observe(float64(ev.Messages))
		},
		OnFailure: func(_ context.Context, ev *domain.OutcomeEvent) {
			kind := string(domain.KindOf(ev.Err))
			if kind == "" {
				kind = "unknown"
			}
			m.Failures.WithLabelValues(kind).Inc()
			m.Duration.WithLabelValues("failed").Observe(ev.Duration.Seconds())
		},
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
