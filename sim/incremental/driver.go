// Package incremental re-simulates edited schedules, reusing the previous
// simulation when the edit lies entirely in its future.
package incremental

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mission-sim/mission-sim/sim"
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/telemetry"
	"github.com/mission-sim/mission-sim/sim/trace"
)

// Reset reasons.
const (
	ReasonInitial    = "initial"
	ReasonDivergence = "divergence"
	ReasonHorizon    = "horizon"
	ReasonFailure    = "failure"
)

// Stats counts how the driver served its requests.
type Stats struct {
	Simulations int
	Extensions  int
	Resets      int
}

// Driver keeps one session alive across requests. A request whose schedule
// first differs from the previous one strictly after the session's current
// time extends that session; anything else discards it and simulates the new
// schedule from time zero. Either way the results equal those of a fresh
// sim.Simulate of the same schedule.
//
// Driver is not safe for concurrent use.
type Driver struct {
	model    *sim.Model
	opts     []sim.Option
	options  sim.Options
	session  *sim.Session
	schedule sim.Schedule
	stats    Stats
}

// NewDriver creates a driver with no session; the first request simulates from zero.
func NewDriver(model *sim.Model, opts ...sim.Option) *Driver {
	return &Driver{model: model, opts: opts, options: sim.BuildOptions(opts...)}
}

func (d *Driver) Stats() Stats { return d.stats }

// FirstDifference returns the earliest start among entries added, removed or
// changed between prev and next. A changed entry counts at the earlier of its
// two starts. It reports false when the schedules are equal.
func FirstDifference(prev, next sim.Schedule) (duration.Duration, bool) {
	first, found := duration.Max, false
	consider := func(t duration.Duration) {
		if !found || t < first {
			first, found = t, true
		}
	}
	for id, p := range prev {
		n, ok := next[id]
		switch {
		case !ok:
			consider(p.Start)
		case !n.Equal(p):
			consider(duration.Min(p.Start, n.Start))
		}
	}
	for id, n := range next {
		if _, ok := prev[id]; !ok {
			consider(n.Start)
		}
	}
	return first, found
}

// resetReason decides whether the current session can serve schedule up to
// horizon. It returns "" when it can.
func (d *Driver) resetReason(schedule sim.Schedule, horizon duration.Duration) (string, duration.Duration, bool) {
	if d.session == nil {
		return ReasonInitial, 0, false
	}
	if d.session.Engine().Err() != nil {
		return ReasonFailure, 0, false
	}
	div, changed := FirstDifference(d.schedule, schedule)
	current := d.session.CurrentTime()
	if horizon < current {
		return ReasonHorizon, div, changed
	}
	if changed && div <= current {
		return ReasonDivergence, div, changed
	}
	return "", div, changed
}

// Simulate returns the results of schedule up to horizon.
func (d *Driver) Simulate(ctx context.Context, schedule sim.Schedule, horizon duration.Duration) (res *sim.Results, err error) {
	ctx, span := telemetry.StartSpan(ctx, "incremental.Driver.Simulate",
		attribute.Int64("horizon_us", int64(horizon)),
		attribute.Int("activities", len(schedule)))
	defer func() { telemetry.EndSpan(span, err) }()

	started := time.Now()
	d.stats.Simulations++
	reason, div, changed := d.resetReason(schedule, horizon)
	span.SetAttributes(attribute.String("reset_reason", reason))

	if reason == "" {
		from := d.session.CurrentTime()
		if err := d.session.SetSchedule(schedule); err != nil {
			return nil, err
		}
		d.stats.Extensions++
		d.options.Metrics.RecordExtension()
		if d.options.Trace.Enabled() {
			d.options.Trace.RecordExtension(trace.ExtensionRecord{From: int64(from), To: int64(horizon), Changed: changed})
		}
		logrus.Debugf("extending session from %v to %v (changed=%v)", from, horizon, changed)
		defer func() {
			if err == nil {
				d.options.Metrics.RecordSimulation("incremental", time.Since(started))
			}
		}()
	} else {
		if err := d.reset(reason, schedule, horizon, div, changed); err != nil {
			return nil, err
		}
		defer func() {
			if err == nil {
				d.options.Metrics.RecordSimulation("reset", time.Since(started))
			}
		}()
	}
	d.schedule = schedule.Clone()

	if err := d.session.RunUntil(ctx, horizon); err != nil {
		return nil, err
	}
	return d.session.Results(horizon)
}

func (d *Driver) reset(reason string, schedule sim.Schedule, horizon, div duration.Duration, changed bool) error {
	var current duration.Duration
	if d.session != nil {
		current = d.session.CurrentTime()
	}
	if reason != ReasonInitial {
		d.stats.Resets++
		d.options.Metrics.RecordReset(reason)
		if d.options.Trace.Enabled() {
			d.options.Trace.RecordReset(trace.ResetRecord{
				Clock:         int64(current),
				Horizon:       int64(horizon),
				Divergence:    int64(div),
				HasDivergence: changed,
				Reason:        reason,
			})
		}
		logrus.Infof("restarting simulation: %s (current=%v, horizon=%v)", reason, current, horizon)
	}
	d.session, d.schedule = nil, nil
	s, err := sim.NewSession(d.model, d.opts...)
	if err != nil {
		return err
	}
	if err := s.SetSchedule(schedule); err != nil {
		return err
	}
	d.session = s
	return nil
}
