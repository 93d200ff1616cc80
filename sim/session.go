package sim

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/simerr"
	"github.com/mission-sim/mission-sim/sim/task"
	"github.com/mission-sim/mission-sim/sim/telemetry"
	"github.com/mission-sim/mission-sim/sim/value"
)

type directive struct {
	id      string
	entry   Entry
	factory task.Factory
}

// Session is an engine plus the bookkeeping of the schedule it runs.
//
// Directives are injected lazily: an entry becomes a task only when the
// simulation reaches its start time. Until then the schedule may be replaced,
// which is what lets the incremental driver extend a session in place.
type Session struct {
	model    *Model
	engine   *Engine
	pending  []directive
	started  map[string]Entry
	rejected map[string]string
	current  duration.Duration
}

// NewSession creates a session at time zero with an empty schedule.
func NewSession(model *Model, opts ...Option) (*Session, error) {
	e, err := NewEngine(model, opts...)
	if err != nil {
		return nil, err
	}
	return &Session{
		model:    model,
		engine:   e,
		started:  make(map[string]Entry),
		rejected: make(map[string]string),
	}, nil
}

// SetSchedule replaces the directives not yet started. Every entry is
// validated up front; entries that fail instantiation or start before zero
// are recorded as rejected and never run. Entries already started must be
// unchanged.
func (s *Session) SetSchedule(schedule Schedule) error {
	for id, prev := range s.started {
		next, ok := schedule[id]
		if !ok || !next.Equal(prev) {
			return simerr.Contract("activity %s already started at %v and cannot change", id, prev.Start)
		}
	}

	pending := make([]directive, 0, len(schedule))
	rejected := make(map[string]string)
	for _, id := range schedule.IDs() {
		entry := schedule[id]
		if entry.Start < 0 {
			rejected[id] = simerr.Instantiation(id, entry.Type, simerr.Contract("negative start %v", entry.Start)).Error()
			continue
		}
		f, err := s.model.registry.Instantiate(id, entry.Type, entry.Arguments)
		if err != nil {
			rejected[id] = err.Error()
			continue
		}
		if _, ok := s.started[id]; ok {
			continue
		}
		pending = append(pending, directive{id: id, entry: entry, factory: f})
	}
	for id, reason := range rejected {
		if _, seen := s.rejected[id]; !seen {
			logrus.Warnf("rejected activity %s: %s", id, reason)
		}
	}
	s.pending, s.rejected = pending, rejected
	return nil
}

// CurrentTime returns the time of the latest batch run.
func (s *Session) CurrentTime() duration.Duration { return s.current }

// Started reports whether the directive id has been injected into the engine.
func (s *Session) Started(id string) bool {
	_, ok := s.started[id]
	return ok
}

// Engine exposes the underlying engine.
func (s *Session) Engine() *Engine { return s.engine }

func (s *Session) nextStart() (duration.Duration, bool) {
	if len(s.pending) == 0 {
		return 0, false
	}
	return s.pending[0].entry.Start, true
}

// RunUntil runs every batch due no later than horizon.
func (s *Session) RunUntil(ctx context.Context, horizon duration.Duration) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "sim.Session.RunUntil",
		attribute.Int64("horizon_us", int64(horizon)),
		attribute.Int64("from_us", int64(s.current)))
	defer func() {
		span.SetAttributes(attribute.Int("batches", s.engine.Batches()))
		telemetry.EndSpan(span, err)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, okBatch := s.engine.NextTime()
		start, okStart := s.nextStart()
		if !okBatch && !okStart {
			return s.engine.Err()
		}
		t := next
		if !okBatch || (okStart && start < t) {
			t = start
		}
		if t > horizon {
			return s.engine.Err()
		}
		if err := s.inject(t); err != nil {
			return err
		}
		ran, err := s.engine.Step(t)
		if err != nil {
			return err
		}
		if ran {
			s.current = s.engine.Now()
		}
	}
}

// inject hands every pending directive starting at or before t to the engine.
func (s *Session) inject(t duration.Duration) error {
	n := 0
	for n < len(s.pending) && s.pending[n].entry.Start <= t {
		d := s.pending[n]
		span := task.Span{Type: d.entry.Type, Arguments: d.entry.Arguments}
		if err := s.engine.ScheduleActivity(d.id, d.entry.Start, span, d.factory); err != nil {
			return err
		}
		s.started[d.id] = d.entry
		n++
	}
	s.pending = s.pending[n:]
	return nil
}

// Results assembles the simulation results as of end without advancing the
// session. end must not precede the current time.
func (s *Session) Results(end duration.Duration) (*Results, error) {
	if err := s.engine.Err(); err != nil {
		return nil, err
	}
	if end < s.current {
		return nil, simerr.Contract("results end %v precedes current time %v", end, s.current)
	}
	res := &Results{
		End:              end,
		RealProfiles:     make(map[string][]LinearPiece),
		DiscreteProfiles: make(map[string][]DiscretePiece),
		Activities:       s.engine.activities(end),
		Rejected:         make(map[string]string, len(s.rejected)),
	}
	for _, r := range s.engine.resources {
		switch r.kind {
		case KindReal:
			res.RealProfiles[r.name] = r.builder.linear(end)
		default:
			res.DiscreteProfiles[r.name] = r.builder.discrete(end)
		}
	}
	for id, reason := range s.rejected {
		res.Rejected[id] = reason
	}
	return res, nil
}

// activities builds the records of every directive and spawned activity.
func (e *Engine) activities(end duration.Duration) map[string]ActivityRecord {
	out := make(map[string]ActivityRecord)
	for _, id := range e.order {
		ts := e.tasks[id]
		if ts.activity == "" {
			continue
		}
		rec := ActivityRecord{
			Type:      ts.span.Type,
			Arguments: ts.span.Arguments,
			Start:     ts.start,
			Finished:  ts.done,
			Result:    ts.result,
		}
		if rec.Arguments == nil {
			rec.Arguments = value.Map{}
		}
		if ts.done {
			rec.Duration = ts.end - ts.start
		} else {
			rec.Duration = end - ts.start
		}
		for p := ts.parent; p != nil; p = p.parent {
			if p.activity != "" {
				rec.ParentID = p.activity
				break
			}
		}
		out[ts.activity] = rec
	}
	for _, id := range e.order {
		ts := e.tasks[id]
		rec, ok := out[ts.activity]
		if !ok || rec.ParentID == "" {
			continue
		}
		parent := out[rec.ParentID]
		parent.ChildIDs = append(parent.ChildIDs, ts.activity)
		out[rec.ParentID] = parent
	}
	for id, rec := range out {
		if len(rec.ChildIDs) > 1 {
			sort.SliceStable(rec.ChildIDs, func(i, j int) bool {
				return out[rec.ChildIDs[i]].Start < out[rec.ChildIDs[j]].Start
			})
			out[id] = rec
		}
	}
	return out
}
