package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhidu-qidian/Spiders/internal/progress"
)

// PrometheusSink exports stage dispatch metrics via Prometheus. It owns the
// per-stage outcome counter, the handler latency histogram and the counter of
// ids handed to the next queues.
type PrometheusSink struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	returned *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spiders_stage_events_total",
			Help: "Stage dispatches partitioned by stage and outcome.",
		}, []string{"stage", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spiders_stage_duration_seconds",
			Help:    "Handler wall time per stage.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		returned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spiders_stage_returned_ids_total",
			Help: "Ids pushed to downstream queues per stage.",
		}, []string{"stage"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spiders_stage_failure_procedures_total",
			Help: "Failure sentinels written to records, by procedure name.",
		}, []string{"procedure"}),
	}
	var err error
	if s.events, err = register(reg, s.events); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.returned, err = register(reg, s.returned); err != nil {
		return nil, err
	}
	if s.failures, err = register(reg, s.failures); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor so that several sinks may share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register stage collector: %w", err)
	}
	return c, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.events.WithLabelValues(evt.Stage, string(evt.Outcome)).Inc()
		if evt.Dur > 0 {
			s.duration.WithLabelValues(evt.Stage).Observe(evt.Dur.Seconds())
		}
		if evt.Returned > 0 {
			s.returned.WithLabelValues(evt.Stage).Add(float64(evt.Returned))
		}
		if evt.Procedure.Failed() {
			s.failures.WithLabelValues(evt.Procedure.String()).Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
