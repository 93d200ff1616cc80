package streamline

import (
	"github.com/mission-sim/mission-sim/sim/cell"
	"github.com/mission-sim/mission-sim/sim/task"
)

// Registrar is the part of a mission model a cache needs.
type Registrar interface {
	Schema() *cell.Schema
	AddDaemon(name string, f task.Factory)
}

// Cache stores source in a cell kept up to date by a daemon. Readers of the
// cache depend only on that cell, so they are re-evaluated when the source's
// dynamics actually change rather than whenever its inputs are touched. The
// cache follows the source one batch later, at the same instant.
func Cache[D Dynamics[D]](reg Registrar, name string, source Resource[D], initial D) *CellResource[D] {
	cache := NewCellResource(reg.Schema(), name, NeverExpiring(initial))
	var forward task.Func
	forward = func(s task.Scheduler) (task.Status, error) {
		current := source.Dynamics(s)
		cache.SetDynamics(s, current)
		return task.Await(DynamicsChange(source, current, s.Now()), forward)
	}
	reg.AddDaemon("cache:"+name, func() task.Task { return forward })
	return cache
}
