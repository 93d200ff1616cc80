package streamline

import (
	"fmt"

	"github.com/mission-sim/mission-sim/sim/duration"
)

// Stepper advances dynamics by an elapsed duration.
type Stepper[D any] interface {
	Step(d duration.Duration) D
}

// Dynamics is the constraint satisfied by dynamics a cell can hold.
type Dynamics[D any] interface {
	comparable
	Stepper[D]
}

// Discrete holds a value until changed.
type Discrete[V comparable] struct {
	Value V
}

func (d Discrete[V]) Step(duration.Duration) Discrete[V] { return d }

func (d Discrete[V]) String() string { return fmt.Sprintf("%v", d.Value) }

// Linear changes by Rate per second.
type Linear struct {
	Value float64
	Rate  float64
}

func (l Linear) Step(d duration.Duration) Linear {
	if l.Rate == 0 || d == 0 {
		return l
	}
	return Linear{Value: l.Value + l.Rate*d.Seconds(), Rate: l.Rate}
}

// At is the value after d without stepping.
func (l Linear) At(d duration.Duration) float64 { return l.Value + l.Rate*d.Seconds() }

func (l Linear) String() string { return fmt.Sprintf("%g%+g/s", l.Value, l.Rate) }
