package streamline

import "github.com/mission-sim/mission-sim/sim/task"

// Resource reports its dynamics as seen from the querier's current instant.
type Resource[D any] interface {
	Dynamics(q task.Querier) ErrorCatching[Expiring[D]]
}

type ResourceFunc[D any] func(q task.Querier) ErrorCatching[Expiring[D]]

func (f ResourceFunc[D]) Dynamics(q task.Querier) ErrorCatching[Expiring[D]] { return f(q) }

// Constant is a resource with fixed dynamics.
func Constant[D any](d D) Resource[D] {
	return ResourceFunc[D](func(task.Querier) ErrorCatching[Expiring[D]] {
		return Success(NeverExpiring(d))
	})
}

// Map derives a resource from r. The result expires with r.
func Map[A, B any](r Resource[A], f func(A) B) Resource[B] {
	return ResourceFunc[B](func(q task.Querier) ErrorCatching[Expiring[B]] {
		return MapCatching(r.Dynamics(q), func(a Expiring[A]) Expiring[B] {
			return Expiring[B]{Data: f(a.Data), Expiry: a.Expiry}
		})
	})
}

// Map2 derives a resource from a and b. It expires with whichever expires
// first; when both fail, a's failure is reported.
func Map2[A, B, C any](a Resource[A], b Resource[B], f func(A, B) C) Resource[C] {
	return ResourceFunc[C](func(q task.Querier) ErrorCatching[Expiring[C]] {
		da, db := a.Dynamics(q), b.Dynamics(q)
		if da.err != nil {
			return Failure[Expiring[C]](da.err)
		}
		return MapCatching(db, func(y Expiring[B]) Expiring[C] {
			return Expiring[C]{Data: f(da.value.Data, y.Data), Expiry: da.value.Expiry.Min(y.Expiry)}
		})
	})
}

// Current reads r's dynamics at q's instant.
func Current[D any](q task.Querier, r Resource[D]) (D, error) {
	e, err := r.Dynamics(q).Get()
	return e.Data, err
}
