package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/redlens/collector/internal/progress"
)

// PrometheusSink exports collection progress via Prometheus. It owns the
// run/batch/creator collectors.
type PrometheusSink struct {
	runsStarted       prometheus.Counter
	runsCompleted     *prometheus.CounterVec
	runsActive        prometheus.Gauge
	batchRuntime      prometheus.Histogram
	creatorsCompleted *prometheus.CounterVec
	notesIngested     prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_runs_started_total",
			Help: "Total collection runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_runs_completed_total",
			Help: "Total collection runs completed partitioned by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collector_runs_active",
			Help: "Collection runs currently in flight.",
		}),
		batchRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_batch_runtime_seconds",
			Help:    "Wall time per completed crawler batch.",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 2400, 4800, 7200},
		}),
		creatorsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_creators_completed_total",
			Help: "Creators reaching a terminal status, partitioned by status.",
		}, []string{"status"}),
		notesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_notes_ingested_total",
			Help: "New notes persisted across all runs.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.batchRuntime,
		s.creatorsCompleted,
		s.notesIngested,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the provided batch. Safe for
// concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.runsActive.Inc()
	case progress.StageRunDone:
		s.runsActive.Dec()
		s.runsCompleted.WithLabelValues("ok").Inc()
	case progress.StageRunError:
		s.runsActive.Dec()
		s.runsCompleted.WithLabelValues("error").Inc()
	case progress.StageBatchDone:
		s.batchRuntime.Observe(evt.Dur.Seconds())
	case progress.StageCreatorDone:
		s.creatorsCompleted.WithLabelValues(evt.Status).Inc()
		if evt.Notes > 0 {
			s.notesIngested.Add(float64(evt.Notes))
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
