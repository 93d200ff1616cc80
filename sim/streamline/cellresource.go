package streamline

import (
	"fmt"

	"github.com/mission-sim/mission-sim/sim/cell"
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/effect"
	"github.com/mission-sim/mission-sim/sim/task"
)

// CellState is what a cell-backed resource stores.
type CellState[D any] = ErrorCatching[Expiring[D]]

// CellResource is a resource whose dynamics live in a cell and change only
// through effects emitted by tasks. Concurrent effects are accepted when both
// orders produce the same dynamics.
type CellResource[D Dynamics[D]] struct {
	name string
	ref  cell.Ref[effect.Func[CellState[D]], CellState[D]]
}

// NewCellResource allocates the cell backing a resource in schema.
func NewCellResource[D Dynamics[D]](schema *cell.Schema, name string, initial Expiring[D]) *CellResource[D] {
	ref := cell.Allocate(schema, cell.Spec[effect.Func[CellState[D]], CellState[D]]{
		Name:    name,
		Initial: Success(initial),
		Trait:   effect.Auto(equalCatching[Expiring[D]]),
		Apply:   func(m CellState[D], e effect.Func[CellState[D]]) CellState[D] { return e.Apply(m) },
		Step: func(m CellState[D], d duration.Duration) CellState[D] {
			return MapCatching(m, func(x Expiring[D]) Expiring[D] {
				return Expiring[D]{Data: x.Data.Step(d), Expiry: x.Expiry.Minus(d)}
			})
		},
	})
	return &CellResource[D]{name: name, ref: ref}
}

func (r *CellResource[D]) Name() string { return r.name }

// Ref exposes the backing cell.
func (r *CellResource[D]) Ref() cell.Ref[effect.Func[CellState[D]], CellState[D]] { return r.ref }

func (r *CellResource[D]) Dynamics(q task.Querier) ErrorCatching[Expiring[D]] {
	return task.Get(q, r.ref)
}

// Emit applies a labelled transformation to the stored dynamics.
func (r *CellResource[D]) Emit(s task.Scheduler, label string, f func(CellState[D]) CellState[D]) {
	task.Emit(s, r.ref.Topic(), effect.NewFunc(r.name+"."+label, f))
}

// Set replaces the dynamics with d, valid forever.
func (r *CellResource[D]) Set(s task.Scheduler, d D) {
	r.Emit(s, fmt.Sprintf("set(%v)", d), func(CellState[D]) CellState[D] {
		return Success(NeverExpiring(d))
	})
}

// SetDynamics stores the full state, failures included.
func (r *CellResource[D]) SetDynamics(s task.Scheduler, d CellState[D]) {
	r.Emit(s, "forward", func(CellState[D]) CellState[D] { return d })
}

// DiscreteCell allocates a cell holding a discrete value.
func DiscreteCell[V comparable](schema *cell.Schema, name string, initial V) *CellResource[Discrete[V]] {
	return NewCellResource(schema, name, NeverExpiring(Discrete[V]{Value: initial}))
}

// LinearCell allocates a cell holding linear dynamics.
func LinearCell(schema *cell.Schema, name string, value, rate float64) *CellResource[Linear] {
	return NewCellResource(schema, name, NeverExpiring(Linear{Value: value, Rate: rate}))
}

// Increase adds amount to a linear resource's current value.
func Increase(s task.Scheduler, r *CellResource[Linear], amount float64) {
	r.Emit(s, fmt.Sprintf("increase(%g)", amount), func(m CellState[Linear]) CellState[Linear] {
		return MapCatching(m, func(x Expiring[Linear]) Expiring[Linear] {
			return Expiring[Linear]{Data: Linear{Value: x.Data.Value + amount, Rate: x.Data.Rate}, Expiry: x.Expiry}
		})
	})
}

// Decrease subtracts amount from a linear resource's current value.
func Decrease(s task.Scheduler, r *CellResource[Linear], amount float64) {
	Increase(s, r, -amount)
}

// SetRate replaces a linear resource's rate, keeping its current value.
func SetRate(s task.Scheduler, r *CellResource[Linear], rate float64) {
	r.Emit(s, fmt.Sprintf("rate(%g)", rate), func(m CellState[Linear]) CellState[Linear] {
		return MapCatching(m, func(x Expiring[Linear]) Expiring[Linear] {
			return Expiring[Linear]{Data: Linear{Value: x.Data.Value, Rate: rate}, Expiry: x.Expiry}
		})
	})
}

// AddRate changes a linear resource's rate by delta. Concurrent AddRate effects commute.
func AddRate(s task.Scheduler, r *CellResource[Linear], delta float64) {
	r.Emit(s, fmt.Sprintf("rate%+g", delta), func(m CellState[Linear]) CellState[Linear] {
		return MapCatching(m, func(x Expiring[Linear]) Expiring[Linear] {
			return Expiring[Linear]{Data: Linear{Value: x.Data.Value, Rate: x.Data.Rate + delta}, Expiry: x.Expiry}
		})
	})
}

// Increment adds delta to a discrete numeric resource.
func Increment[N int | int64 | float64](s task.Scheduler, r *CellResource[Discrete[N]], delta N) {
	r.Emit(s, fmt.Sprintf("increment(%v)", delta), func(m CellState[Discrete[N]]) CellState[Discrete[N]] {
		return MapCatching(m, func(x Expiring[Discrete[N]]) Expiring[Discrete[N]] {
			return Expiring[Discrete[N]]{Data: Discrete[N]{Value: x.Data.Value + delta}, Expiry: x.Expiry}
		})
	})
}
