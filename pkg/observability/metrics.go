package observability

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parley"

// Metrics holds the runtime collectors.
type Metrics struct {
	Sessions       prometheus.Counter
	Intents        *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	NoMatch        *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	ActionErrors   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_initialized_total",
			Help:      "Total number of sessions entering their Init state",
		}),
		Intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_recognized_total",
			Help:      "Total number of events handled, by event name",
		}, []string{"event"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total number of state transitions",
		}, []string{"from", "to"}),
		NoMatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_match_total",
			Help:      "Total number of events no transition accepted, by state",
		}, []string{"state"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of action invocations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform", "action"}),
		ActionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_errors_total",
			Help:      "Total number of failed action invocations",
		}, []string{"platform", "action"}),
	}
	if reg != nil {
		reg.MustRegister(m.Sessions, m.Intents, m.Transitions, m.NoMatch, m.ActionDuration, m.ActionErrors)
	}
	return m
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionInit: func(ctx context.Context, e *domain.TurnEvent) {
			m.Sessions.Inc()
		},
		OnIntentRecognized: func(ctx context.Context, e *domain.TurnEvent) {
			m.Intents.WithLabelValues(e.Event).Inc()
		},
		OnTransition: func(ctx context.Context, e *domain.TurnEvent) {
			m.Transitions.WithLabelValues(e.From, e.To).Inc()
		},
		OnNoMatch: func(ctx context.Context, e *domain.TurnEvent) {
			m.NoMatch.WithLabelValues(e.From).Inc()
		},
		OnActionReturn: func(ctx context.Context, e *domain.ActionEvent) {
			m.ActionDuration.WithLabelValues(e.Platform, e.Action).Observe(e.Duration.Seconds())
			if e.IsError {
				m.ActionErrors.WithLabelValues(e.Platform, e.Action).Inc()
			}
		},
	}
}
