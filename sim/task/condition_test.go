package task

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mission-sim/mission-sim/sim/cell"
	"github.com/mission-sim/mission-sim/sim/duration"
)

type nopQuerier struct{}

func (nopQuerier) Now() duration.Duration { return 0 }
func (nopQuerier) Get(cell.ID) any        { return nil }

// steps is true on the half-open intervals [on[i], off[i]).
type steps struct{ on, off []duration.Duration }

func (s steps) at(t duration.Duration) bool {
	for i := range s.on {
		if t >= s.on[i] && t < s.off[i] {
			return true
		}
	}
	return false
}

func (s steps) NextSatisfied(_ Querier, positive bool, earliest, latest duration.Duration) (duration.Duration, bool) {
	t := earliest
	for t <= latest {
		if s.at(t) == positive {
			return t, true
		}
		// jump to the next boundary after t
		next := latest + 1
		for i := range s.on {
			if s.on[i] > t && s.on[i] < next {
				next = s.on[i]
			}
			if s.off[i] > t && s.off[i] < next {
				next = s.off[i]
			}
		}
		t = next
	}
	return 0, false
}

func randomSteps(r *rand.Rand, horizon int) steps {
	n := r.Intn(4)
	points := make([]int, 0, 2*n)
	for i := 0; i < 2*n; i++ {
		points = append(points, r.Intn(horizon))
	}
	sort.Ints(points)
	var s steps
	for i := 0; i+1 < len(points); i += 2 {
		if points[i] == points[i+1] {
			continue
		}
		s.on = append(s.on, duration.Duration(points[i]))
		s.off = append(s.off, duration.Duration(points[i+1]))
	}
	return s
}

// oracle evaluates a truth function at every instant of the window.
func oracle(truth func(duration.Duration) bool, positive bool, earliest, latest duration.Duration) (duration.Duration, bool) {
	for t := earliest; t <= latest; t++ {
		if truth(t) == positive {
			return t, true
		}
	}
	return 0, false
}

func TestConditionAlgebra_MatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	const horizon = 40
	for trial := 0; trial < 300; trial++ {
		a, b := randomSteps(r, horizon), randomSteps(r, horizon)
		cases := []struct {
			name  string
			cond  Condition
			truth func(duration.Duration) bool
		}{
			{"and", And(a, b), func(t duration.Duration) bool { return a.at(t) && b.at(t) }},
			{"or", Or(a, b), func(t duration.Duration) bool { return a.at(t) || b.at(t) }},
			{"not-and", Not(And(a, b)), func(t duration.Duration) bool { return !(a.at(t) && b.at(t)) }},
			{"and-not", And(a, Not(b)), func(t duration.Duration) bool { return a.at(t) && !b.at(t) }},
		}
		earliest := duration.Duration(r.Intn(horizon))
		latest := earliest + duration.Duration(r.Intn(horizon))
		for _, c := range cases {
			for _, positive := range []bool{true, false} {
				want, wantOK := oracle(c.truth, positive, earliest, latest)
				got, gotOK := c.cond.NextSatisfied(nopQuerier{}, positive, earliest, latest)
				if !assert.Equal(t, wantOK, gotOK, "trial %d %s positive=%v a=%v b=%v [%d,%d]", trial, c.name, positive, a, b, earliest, latest) {
					return
				}
				if wantOK && !assert.Equal(t, want, got, "trial %d %s positive=%v", trial, c.name, positive) {
					return
				}
			}
		}
	}
}

func TestAnd_NarrowsBetweenOperands(t *testing.T) {
	// GIVEN A true on [2,5) and [8,12), B true on [5,9)
	a := steps{on: []duration.Duration{2, 8}, off: []duration.Duration{5, 12}}
	b := steps{on: []duration.Duration{5}, off: []duration.Duration{9}}

	// WHEN asking for the first instant both hold
	got, ok := And(a, b).NextSatisfied(nopQuerier{}, true, 0, 20)

	// THEN the overlap start is found
	assert.True(t, ok)
	assert.Equal(t, duration.Duration(8), got)
}

func TestConstants(t *testing.T) {
	got, ok := True.NextSatisfied(nopQuerier{}, true, 3, 10)
	assert.True(t, ok)
	assert.Equal(t, duration.Duration(3), got)

	_, ok = False.NextSatisfied(nopQuerier{}, true, 3, 10)
	assert.False(t, ok)

	_, ok = True.NextSatisfied(nopQuerier{}, true, 11, 10)
	assert.False(t, ok, "empty window")

	assert.Equal(t, True, And())
	assert.Equal(t, False, Or())
	assert.Equal(t, True, Not(Not(True)))
}
