package cell

import (
	"fmt"

	"github.com/mission-sim/mission-sim/sim/timeline"
)

type liveState struct {
	model  any
	cursor timeline.Index
}

// LiveCells holds the current model of every cell for one simulation.
//
// Models are brought up to date lazily: a read evaluates only the history
// recorded since the cell's cursor. Callers always receive a duplicate.
type LiveCells struct {
	schema *Schema
	tl     *timeline.Timeline[Event]
	states []liveState
}

// NewLiveCells starts every cell of schema at its initial model.
func NewLiveCells(schema *Schema, tl *timeline.Timeline[Event]) *LiveCells {
	l := &LiveCells{schema: schema, tl: tl, states: make([]liveState, len(schema.cells))}
	for i, def := range schema.cells {
		l.states[i] = liveState{model: def.initial(), cursor: timeline.Origin}
	}
	return l
}

// Get returns the model of a cell at point at. trunk must be an unforked point
// that at descends from; the live model is advanced to trunk and the segment
// from trunk to at is applied to a copy.
func (l *LiveCells) Get(id ID, trunk, at timeline.Index) (any, error) {
	if int(id) < 0 || int(id) >= len(l.states) {
		return nil, fmt.Errorf("unknown cell %d", id)
	}
	def := l.schema.cells[id]
	st := &l.states[id]
	if st.cursor != trunk {
		m, err := def.advance(st.model, l.tl, st.cursor, trunk)
		if err != nil {
			return nil, fmt.Errorf("cell %q: %w", def.name(), err)
		}
		st.model, st.cursor = m, trunk
	}
	if at == trunk {
		return def.duplicate(st.model), nil
	}
	m, err := def.advance(def.duplicate(st.model), l.tl, trunk, at)
	if err != nil {
		return nil, fmt.Errorf("cell %q: %w", def.name(), err)
	}
	return m, nil
}

// Read is the typed form of Get.
func Read[E, M any](l *LiveCells, ref Ref[E, M], trunk, at timeline.Index) (M, error) {
	v, err := l.Get(ref.id, trunk, at)
	if err != nil {
		var zero M
		return zero, err
	}
	return v.(M), nil
}
