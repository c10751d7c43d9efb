// Package metrics records dispatcher activity as Prometheus metrics.
//
// Metrics are collected through dispatcher hooks:
//
//	registry := prometheus.NewRegistry()
//	m := metrics.New(registry)
//	d := msgroute.NewRouteDispatcher(m.Options()...)
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bjaus/msgroute"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Drop reason label values.
const (
	ReasonNoDestination = "no_destination"
	ReasonNoMatch       = "no_match"
	ReasonAmbiguous     = "ambiguous"
)

// Metrics holds all dispatcher metrics.
type Metrics struct {
	// Handler metrics
	DispatchedTotal *prometheus.CounterVec
	HandledTotal    *prometheus.CounterVec
	DurationSeconds *prometheus.HistogramVec
	UnhandledTotal  *prometheus.CounterVec

	// Messages that never reached a handler
	DroppedTotal *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered on registry.
func New(registry *prometheus.Registry) *Metrics {
	return &Metrics{
		DispatchedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgroute_dispatched_total",
				Help: "Total number of messages dispatched by handler method",
			},
			[]string{"handler"},
		),

		HandledTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgroute_handled_total",
				Help: "Total number of handler method invocations by handler and status",
			},
			[]string{"handler", "status"}, // status: success, failure
		),

		DurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msgroute_handler_duration_seconds",
				Help:    "Handler method duration in seconds by handler and status",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"handler", "status"},
		),

		UnhandledTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgroute_unhandled_errors_total",
				Help: "Total number of handler failures no exception handler claimed",
			},
			[]string{"handler"},
		),

		DroppedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgroute_dropped_total",
				Help: "Total number of messages not delivered to a handler by reason",
			},
			[]string{"reason"}, // reason: no_destination, no_match, ambiguous
		),
	}
}

// Options returns the dispatcher hooks that feed m.
func (m *Metrics) Options() []msgroute.Option {
	return []msgroute.Option{
		msgroute.WithOnDispatch(func(_ context.Context, _, handler string) {
			m.DispatchedTotal.WithLabelValues(handler).Inc()
		}),
		msgroute.WithOnSuccess(func(_ context.Context, _, handler string, d time.Duration) {
			m.RecordHandled(handler, StatusSuccess, d)
		}),
		msgroute.WithOnFailure(func(_ context.Context, _, handler string, _ error, d time.Duration) {
			m.RecordHandled(handler, StatusFailure, d)
		}),
		msgroute.WithOnUnhandled(func(_ context.Context, _, handler string, _ error) {
			m.UnhandledTotal.WithLabelValues(handler).Inc()
		}),
		msgroute.WithOnNoDestination(func(context.Context, string) {
			m.RecordDropped(ReasonNoDestination)
		}),
		msgroute.WithOnNoMatch(func(context.Context, string) {
			m.RecordDropped(ReasonNoMatch)
		}),
		msgroute.WithOnAmbiguous(func(context.Context, string, *msgroute.AmbiguousMappingError) {
			m.RecordDropped(ReasonAmbiguous)
		}),
	}
}

// RecordHandled records a completed handler invocation.
func (m *Metrics) RecordHandled(handler, status string, d time.Duration) {
	m.HandledTotal.WithLabelValues(handler, status).Inc()
	m.DurationSeconds.WithLabelValues(handler, status).Observe(d.Seconds())
}

// RecordDropped records a message that reached no handler.
func (m *Metrics) RecordDropped(reason string) {
	m.DroppedTotal.WithLabelValues(reason).Inc()
}
