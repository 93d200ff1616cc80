package streamline

import (
	"math"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/task"
)

// window caps latest at the validity of dynamics with expiry e.
func window(e Expiry, latest duration.Duration) duration.Duration {
	if v, ok := e.Value(); ok && v < latest {
		return v
	}
	return latest
}

// When is satisfied while a boolean resource is true. A failed resource panics
// with its error, failing the waiting task's run.
func When(r Resource[Discrete[bool]]) task.Condition {
	return task.ConditionFunc(func(q task.Querier, positive bool, earliest, latest duration.Duration) (duration.Duration, bool) {
		d, err := r.Dynamics(q).Get()
		if err != nil {
			panic(err)
		}
		latest = window(d.Expiry, latest)
		if d.Data.Value == positive && earliest <= latest {
			return earliest, true
		}
		return 0, false
	})
}

// AtLeast is satisfied while a linear resource is at or above threshold.
func AtLeast(r Resource[Linear], threshold float64) task.Condition {
	return task.ConditionFunc(func(q task.Querier, positive bool, earliest, latest duration.Duration) (duration.Duration, bool) {
		d, err := r.Dynamics(q).Get()
		if err != nil {
			panic(err)
		}
		return firstCrossing(d.Data, threshold, positive, earliest, window(d.Expiry, latest))
	})
}

// firstCrossing finds the earliest t in [earliest, latest] where l is at or
// above threshold (positive) or strictly below it (negative).
func firstCrossing(l Linear, threshold float64, positive bool, earliest, latest duration.Duration) (duration.Duration, bool) {
	if earliest > latest {
		return 0, false
	}
	holds := func(t duration.Duration) bool { return (l.At(t) >= threshold) == positive }
	if holds(earliest) {
		return earliest, true
	}
	// only a rate towards the threshold can make it hold later
	if l.Rate == 0 || (l.Rate < 0) == positive {
		return 0, false
	}
	secs := (threshold - l.Value) / l.Rate
	if math.IsNaN(secs) || secs > latest.Seconds() {
		return 0, false
	}
	t := duration.FromSeconds(math.Max(secs, earliest.Seconds()))
	// settle rounding to the first microsecond that holds
	for t > earliest && holds(t-duration.Epsilon) {
		t -= duration.Epsilon
	}
	for t <= latest && !holds(t) {
		t += duration.Epsilon
	}
	if t > latest {
		return 0, false
	}
	return t, true
}

// DynamicsChange is satisfied once r's dynamics differ from baseline, which
// was observed at since and is stepped forward before comparing. Unchanged
// dynamics with a finite expiry are predicted to change when they expire.
func DynamicsChange[D Dynamics[D]](r Resource[D], baseline CellState[D], since duration.Duration) task.Condition {
	return task.ConditionFunc(func(q task.Querier, positive bool, earliest, latest duration.Duration) (duration.Duration, bool) {
		if earliest > latest {
			return 0, false
		}
		elapsed := q.Now() - since
		expected := MapCatching(baseline, func(x Expiring[D]) Expiring[D] {
			return Expiring[D]{Data: x.Data.Step(elapsed), Expiry: x.Expiry.Minus(elapsed)}
		})
		current := r.Dynamics(q)
		changed := !equalCatching(current, expected)
		if changed == positive {
			return earliest, true
		}
		if positive && !current.IsFailure() {
			// already-expired dynamics would wake the waiter at the same instant forever
			if v, ok := current.value.Expiry.Value(); ok && v > 0 && earliest <= v && v <= latest {
				return v, true
			}
		}
		return 0, false
	})
}

// AboveThreshold derives whether r is at or above threshold. The derived value
// expires when the linear dynamics next cross the threshold, so the engine
// resamples it exactly at the crossing.
func AboveThreshold(r Resource[Linear], threshold float64) Resource[Discrete[bool]] {
	return ResourceFunc[Discrete[bool]](func(q task.Querier) ErrorCatching[Expiring[Discrete[bool]]] {
		return MapCatching(r.Dynamics(q), func(e Expiring[Linear]) Expiring[Discrete[bool]] {
			above := e.Data.Value >= threshold
			expiry := e.Expiry
			limit, finite := e.Expiry.Value()
			if !finite {
				limit = duration.Max
			}
			if t, ok := firstCrossing(e.Data, threshold, !above, duration.Epsilon, limit); ok {
				expiry = expiry.Min(At(t))
			}
			return Expiring[Discrete[bool]]{Data: Discrete[bool]{Value: above}, Expiry: expiry}
		})
	})
}
