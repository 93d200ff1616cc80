package timeline

import (
	"slices"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/effect"
	"github.com/mission-sim/mission-sim/sim/simerr"
)

// Step is the effect accumulated between two waits, preceded by Delay.
type Step[E any] struct {
	Delay  duration.Duration
	Effect E
}

// segment walks backward from cursor until it reaches stop.
type segment[E any] struct {
	cursor Index
	stop   Index
	acc    E

	// set while one of the branches of the join at cursor is being evaluated
	joining bool
	side    int
	left    E
}

// Evaluate reduces the history between from (exclusive) and to (inclusive)
// into steps separated by waits. The first step always has zero delay.
//
// from must be an ancestor of to on the path that skips over joined branches
// (a point reached by walking Advancing and Waiting predecessors and Joining
// bases). Panics raised by the trait with a *simerr.Error are returned as
// errors.
func Evaluate[Ev, E any](tl *Timeline[Ev], trait effect.Trait[E], subst func(Ev) E, from, to Index) (steps []Step[E], err error) {
	defer simerr.Recover(&err)

	if int(to) >= len(tl.points) || to < 0 || from < 0 {
		return nil, simerr.Contract("evaluate range [%d, %d] outside timeline of %d points", from, to, len(tl.points))
	}

	var reversed []Step[E]
	stack := []segment[E]{{cursor: to, stop: from, acc: trait.Empty()}}
	for {
		top := len(stack) - 1
		seg := &stack[top]

		if seg.cursor == seg.stop && !seg.joining {
			if top == 0 {
				reversed = append(reversed, Step[E]{Delay: 0, Effect: seg.acc})
				break
			}
			result := seg.acc
			stack = stack[:top]
			parent := &stack[top-1]
			j := tl.points[parent.cursor]
			if parent.side == 0 {
				parent.left = result
				parent.side = 1
				stack = append(stack, segment[E]{cursor: j.right, stop: j.base, acc: trait.Empty()})
				continue
			}
			parent.acc = trait.Sequentially(trait.Concurrently(parent.left, result), parent.acc)
			parent.cursor = j.base
			parent.joining = false
			parent.side = 0
			continue
		}
		if seg.cursor < seg.stop {
			return nil, simerr.Contract("index %d is not an ancestor of %d", from, to)
		}

		p := tl.points[seg.cursor]
		switch p.kind {
		case kindAdvancing:
			seg.acc = trait.Sequentially(subst(p.event), seg.acc)
			seg.cursor = p.prev
		case kindWaiting:
			if top != 0 {
				return nil, simerr.Contract("wait at index %d inside a concurrent branch", seg.cursor)
			}
			reversed = append(reversed, Step[E]{Delay: p.wait, Effect: seg.acc})
			seg.acc = trait.Empty()
			seg.cursor = p.prev
		case kindJoining:
			seg.joining = true
			seg.side = 0
			stack = append(stack, segment[E]{cursor: p.left, stop: p.base, acc: trait.Empty()})
		case kindOrigin:
			return nil, simerr.Contract("index %d is not an ancestor of %d", from, to)
		}
	}

	slices.Reverse(reversed)
	return reversed, nil
}
