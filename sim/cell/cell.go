// Package cell defines state cells, the topics that feed them, and the
// per-simulation store that projects timeline events into cell models.
package cell

import (
	"fmt"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/effect"
	"github.com/mission-sim/mission-sim/sim/simerr"
	"github.com/mission-sim/mission-sim/sim/timeline"
)

// ID indexes a cell within its Schema.
type ID int

// TopicID indexes a topic within its Schema.
type TopicID int

// Event is one payload recorded on the timeline.
type Event struct {
	Topic TopicID
	Value any
}

// Topic is a typed channel that tasks emit events on.
type Topic[T any] struct {
	id   TopicID
	name string
}

func (t Topic[T]) ID() TopicID    { return t.id }
func (t Topic[T]) Name() string   { return t.name }
func (t Topic[T]) Event(v T) Event { return Event{Topic: t.id, Value: v} }

// Spec describes a cell: its initial model, how effects combine and apply, and
// how the model evolves while time passes.
type Spec[E, M any] struct {
	Name    string
	Initial M
	Trait   effect.Trait[E]
	Apply   func(M, E) M

	// Duplicate copies a model. Nil means models have value semantics.
	Duplicate func(M) M
	// Step advances a model by an elapsed duration. Nil means the model is static.
	Step func(M, duration.Duration) M
}

// Ref is a typed handle on an allocated cell.
type Ref[E, M any] struct {
	id    ID
	topic Topic[E]
}

func (r Ref[E, M]) ID() ID          { return r.id }
func (r Ref[E, M]) Topic() Topic[E] { return r.topic }

type definition interface {
	name() string
	initial() any
	duplicate(any) any
	advance(state any, tl *timeline.Timeline[Event], from, to timeline.Index) (any, error)
}

type cellDef[E, M any] struct {
	spec   Spec[E, M]
	substs map[TopicID]func(any) E
}

func (c *cellDef[E, M]) name() string { return c.spec.Name }

func (c *cellDef[E, M]) initial() any { return c.dup(c.spec.Initial) }

func (c *cellDef[E, M]) duplicate(state any) any { return c.dup(state.(M)) }

func (c *cellDef[E, M]) dup(m M) M {
	if c.spec.Duplicate == nil {
		return m
	}
	return c.spec.Duplicate(m)
}

func (c *cellDef[E, M]) substitute(ev Event) E {
	if f, ok := c.substs[ev.Topic]; ok {
		return f(ev.Value)
	}
	return c.spec.Trait.Empty()
}

func (c *cellDef[E, M]) advance(state any, tl *timeline.Timeline[Event], from, to timeline.Index) (out any, err error) {
	steps, err := timeline.Evaluate(tl, c.spec.Trait, c.substitute, from, to)
	if err != nil {
		return state, err
	}
	defer simerr.Recover(&err)
	m := state.(M)
	for _, st := range steps {
		if st.Delay > 0 && c.spec.Step != nil {
			m = c.spec.Step(m, st.Delay)
		}
		m = c.spec.Apply(m, st.Effect)
	}
	return m, nil
}

// Schema is the registry of cells and topics for one mission model. It is
// built once and then shared read-only by every simulation of that model.
type Schema struct {
	cells   []definition
	topics  []string
	byTopic map[TopicID][]ID
}

// NewSchema creates a schema with no cells or topics.
func NewSchema() *Schema {
	return &Schema{byTopic: make(map[TopicID][]ID)}
}

// NewTopic registers a topic.
func NewTopic[T any](s *Schema, name string) Topic[T] {
	s.topics = append(s.topics, name)
	return Topic[T]{id: TopicID(len(s.topics) - 1), name: name}
}

// Allocate registers a cell with a dedicated topic carrying its effect type.
func Allocate[E, M any](s *Schema, spec Spec[E, M]) Ref[E, M] {
	if spec.Trait == nil || spec.Apply == nil {
		panic(fmt.Sprintf("cell %q: Trait and Apply are required", spec.Name))
	}
	def := &cellDef[E, M]{spec: spec, substs: make(map[TopicID]func(any) E)}
	s.cells = append(s.cells, def)
	ref := Ref[E, M]{id: ID(len(s.cells) - 1)}
	ref.topic = NewTopic[E](s, spec.Name)
	Subscribe(s, ref, ref.topic, func(e E) E { return e })
	return ref
}

// Subscribe makes the cell react to events on another topic via subst.
func Subscribe[T, E, M any](s *Schema, ref Ref[E, M], topic Topic[T], subst func(T) E) {
	def, ok := s.cells[ref.id].(*cellDef[E, M])
	if !ok {
		panic(fmt.Sprintf("cell %d does not have the referenced type", ref.id))
	}
	def.substs[topic.id] = func(v any) E { return subst(v.(T)) }
	s.byTopic[topic.id] = append(s.byTopic[topic.id], ref.id)
}

// NumCells returns the number of allocated cells.
func (s *Schema) NumCells() int { return len(s.cells) }

// CellName returns the name a cell was allocated with.
func (s *Schema) CellName(id ID) string { return s.cells[id].name() }

// TopicName returns the name a topic was registered with.
func (s *Schema) TopicName(id TopicID) string { return s.topics[id] }

// CellsForTopic lists the cells that react to a topic.
func (s *Schema) CellsForTopic(id TopicID) []ID { return s.byTopic[id] }
