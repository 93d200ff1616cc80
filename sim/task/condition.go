package task

import "github.com/mission-sim/mission-sim/sim/duration"

// Condition predicts when a predicate over simulation state next takes a value.
//
// NextSatisfied returns the earliest offset t in [earliest, latest], measured
// from q.Now(), at which the predicate equals positive, assuming no further
// effects occur. The boolean is false when no such instant exists in range.
type Condition interface {
	NextSatisfied(q Querier, positive bool, earliest, latest duration.Duration) (duration.Duration, bool)
}

// ConditionFunc adapts a function to Condition.
type ConditionFunc func(q Querier, positive bool, earliest, latest duration.Duration) (duration.Duration, bool)

func (f ConditionFunc) NextSatisfied(q Querier, positive bool, earliest, latest duration.Duration) (duration.Duration, bool) {
	return f(q, positive, earliest, latest)
}

type constant bool

func (c constant) NextSatisfied(_ Querier, positive bool, earliest, latest duration.Duration) (duration.Duration, bool) {
	if bool(c) == positive && earliest <= latest {
		return earliest, true
	}
	return 0, false
}

var (
	True  Condition = constant(true)
	False Condition = constant(false)
)

type not struct{ c Condition }

// Not inverts a condition.
func Not(c Condition) Condition {
	if n, ok := c.(not); ok {
		return n.c
	}
	return not{c}
}

func (n not) NextSatisfied(q Querier, positive bool, earliest, latest duration.Duration) (duration.Duration, bool) {
	return n.c.NextSatisfied(q, !positive, earliest, latest)
}

type and struct{ left, right Condition }

// And holds when every condition holds. And() is True.
func And(cs ...Condition) Condition {
	if len(cs) == 0 {
		return True
	}
	acc := cs[0]
	for _, c := range cs[1:] {
		acc = and{acc, c}
	}
	return acc
}

// Or holds when any condition holds. Or() is False.
func Or(cs ...Condition) Condition {
	if len(cs) == 0 {
		return False
	}
	acc := cs[0]
	for _, c := range cs[1:] {
		acc = or{acc, c}
	}
	return acc
}

func (a and) NextSatisfied(q Querier, positive bool, earliest, latest duration.Duration) (duration.Duration, bool) {
	if !positive {
		// and(l, r) is false exactly when one of them is false.
		return or{Not(a.left), Not(a.right)}.NextSatisfied(q, true, earliest, latest)
	}
	start := earliest
	for start <= latest {
		tl, ok := a.left.NextSatisfied(q, true, start, latest)
		if !ok {
			return 0, false
		}
		tr, ok := a.right.NextSatisfied(q, true, tl, latest)
		if !ok {
			return 0, false
		}
		if tr == tl {
			return tl, true
		}
		start = tr
	}
	return 0, false
}

type or struct{ left, right Condition }

func (o or) NextSatisfied(q Querier, positive bool, earliest, latest duration.Duration) (duration.Duration, bool) {
	if !positive {
		return and{Not(o.left), Not(o.right)}.NextSatisfied(q, true, earliest, latest)
	}
	tl, okl := o.left.NextSatisfied(q, true, earliest, latest)
	if okl && tl == earliest {
		return tl, true
	}
	tr, okr := o.right.NextSatisfied(q, true, earliest, latest)
	switch {
	case okl && okr:
		return duration.Min(tl, tr), true
	case okl:
		return tl, true
	case okr:
		return tr, true
	}
	return 0, false
}
