package sim

import (
	"fmt"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/task"
	"github.com/mission-sim/mission-sim/sim/value"
)

// Dynamics is the behaviour of a resource from a sample instant onward.
type Dynamics interface {
	isDynamics()
}

// Discrete holds a value constant until the next sample.
type Discrete struct {
	Value value.Value
}

// Linear changes at Rate per second starting from Initial.
type Linear struct {
	Initial float64
	Rate    float64
}

func (Discrete) isDynamics() {}
func (Linear) isDynamics()   {}

// At returns the value of l after elapsed.
func (l Linear) At(elapsed duration.Duration) float64 {
	return l.Initial + l.Rate*elapsed.Seconds()
}

// Sample is a resource's dynamics at the current instant. When Expires is set
// the dynamics are only valid for Expiry and the engine samples again then.
type Sample struct {
	Dynamics Dynamics
	Expiry   duration.Duration
	Expires  bool
}

// Resource is a named observable of a mission model, sampled into a profile.
type Resource interface {
	Sample(q task.Querier) (Sample, error)
}

// ResourceFunc adapts a function to Resource.
type ResourceFunc func(q task.Querier) (Sample, error)

func (f ResourceFunc) Sample(q task.Querier) (Sample, error) { return f(q) }

// ResourceKind is the profile family a resource is sampled into.
type ResourceKind int

const (
	KindDiscrete ResourceKind = iota
	KindReal
)

func (k ResourceKind) String() string {
	if k == KindReal {
		return "real"
	}
	return "discrete"
}

func (k ResourceKind) check(d Dynamics) error {
	switch d.(type) {
	case Discrete:
		if k == KindDiscrete {
			return nil
		}
	case Linear:
		if k == KindReal {
			return nil
		}
	}
	return fmt.Errorf("%s resource sampled %T dynamics", k, d)
}
