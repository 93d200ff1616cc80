package sim

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/telemetry"
	"github.com/mission-sim/mission-sim/sim/trace"
)

// Options are the optional observation hooks of a simulation.
type Options struct {
	Trace   *trace.SimulationTrace
	Metrics *telemetry.Metrics
}

type Option func(*Options)

// WithTrace records engine decisions into t.
func WithTrace(t *trace.SimulationTrace) Option {
	return func(o *Options) { o.Trace = t }
}

// WithMetrics records counters into m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// BuildOptions applies opts to the zero Options.
func BuildOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Simulate runs schedule against a fresh session of model up to horizon.
func Simulate(ctx context.Context, model *Model, schedule Schedule, horizon duration.Duration, opts ...Option) (res *Results, err error) {
	ctx, span := telemetry.StartSpan(ctx, "sim.Simulate",
		attribute.String("model", model.Name()),
		attribute.Int64("horizon_us", int64(horizon)),
		attribute.Int("activities", len(schedule)))
	defer func() { telemetry.EndSpan(span, err) }()

	o := BuildOptions(opts...)
	started := time.Now()
	s, err := NewSession(model, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.SetSchedule(schedule); err != nil {
		return nil, err
	}
	if err := s.RunUntil(ctx, horizon); err != nil {
		return nil, err
	}
	res, err = s.Results(horizon)
	if err != nil {
		return nil, err
	}
	o.Metrics.RecordSimulation("fresh", time.Since(started))
	logrus.Infof("simulated %s to %v: %d activities, %d rejected, %d batches",
		model.Name(), horizon, len(res.Activities), len(res.Rejected), s.engine.Batches())
	return res, nil
}
