// Package timeline records simulation events as a persistent, append-only DAG.
//
// Every recorded point has a strictly larger index than its predecessors and is
// never modified, so a History handle is a cheap immutable value that can be
// copied, forked into concurrent branches and joined back together.
package timeline

import (
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/simerr"
)

// Index identifies a point in a Timeline. Zero is the origin.
type Index int

// Origin is the index every timeline starts at.
const Origin Index = 0

type pointKind uint8

const (
	kindOrigin pointKind = iota
	kindAdvancing
	kindWaiting
	kindJoining
)

type point[Ev any] struct {
	kind pointKind

	// advancing and waiting
	prev  Index
	event Ev
	wait  duration.Duration

	// joining
	base, left, right Index
}

// Timeline is the shared point store. It is not safe for concurrent use.
type Timeline[Ev any] struct {
	points []point[Ev]
}

// New returns a timeline holding only the origin.
func New[Ev any]() *Timeline[Ev] {
	return &Timeline[Ev]{points: []point[Ev]{{kind: kindOrigin}}}
}

// Origin returns a handle on the origin point.
func (t *Timeline[Ev]) Origin() History[Ev] {
	return History[Ev]{tl: t, index: Origin}
}

// Len returns the number of recorded points, origin included.
func (t *Timeline[Ev]) Len() int {
	return len(t.points)
}

func (t *Timeline[Ev]) add(p point[Ev]) Index {
	t.points = append(t.points, p)
	return Index(len(t.points) - 1)
}

// forkFrame is one unmerged fork. Frames form an immutable stack shared between handles.
type forkFrame struct {
	base  Index
	outer *forkFrame
}

func sameFrames(a, b *forkFrame) bool {
	for a != nil && b != nil {
		if a == b {
			return true
		}
		if a.base != b.base {
			return false
		}
		a, b = a.outer, b.outer
	}
	return a == nil && b == nil
}

// History is a handle on one point of a timeline plus the forks it has not yet joined.
type History[Ev any] struct {
	tl    *Timeline[Ev]
	index Index
	forks *forkFrame
}

// Index returns the point the handle refers to.
func (h History[Ev]) Index() Index {
	return h.index
}

// Timeline returns the store the handle belongs to.
func (h History[Ev]) Timeline() *Timeline[Ev] {
	return h.tl
}

// Forked reports whether the handle has unmerged forks.
func (h History[Ev]) Forked() bool {
	return h.forks != nil
}

// LastForkBase returns the base of the innermost unmerged fork.
func (h History[Ev]) LastForkBase() (Index, bool) {
	if h.forks == nil {
		return 0, false
	}
	return h.forks.base, true
}

// Emit records ev after the handle's point.
func (h History[Ev]) Emit(ev Ev) History[Ev] {
	idx := h.tl.add(point[Ev]{kind: kindAdvancing, prev: h.index, event: ev})
	return History[Ev]{tl: h.tl, index: idx, forks: h.forks}
}

// Wait records the passage of d. Waiting zero is a no-op. Waiting is illegal
// while any fork is unmerged, and d must not be negative.
func (h History[Ev]) Wait(d duration.Duration) (History[Ev], error) {
	if d < 0 {
		return h, simerr.Contract("cannot wait a negative duration %v", d)
	}
	if h.forks != nil {
		return h, simerr.Contract("cannot wait %v with an unmerged fork at index %d", d, h.forks.base)
	}
	if d == 0 {
		return h, nil
	}
	idx := h.tl.add(point[Ev]{kind: kindWaiting, prev: h.index, wait: d})
	return History[Ev]{tl: h.tl, index: idx}, nil
}

// Fork opens a new concurrent region at the handle's point. Both the returned
// handle and any other handle forked from it must be joined before waiting.
func (h History[Ev]) Fork() History[Ev] {
	return History[Ev]{tl: h.tl, index: h.index, forks: &forkFrame{base: h.index, outer: h.forks}}
}

// Join merges two branches of the innermost fork. The handles must belong to
// the same timeline and share the same unmerged forks.
func (h History[Ev]) Join(other History[Ev]) (History[Ev], error) {
	if h.tl != other.tl {
		return h, simerr.Contract("cannot join histories of different timelines")
	}
	if h.forks == nil || other.forks == nil {
		return h, simerr.Contract("cannot join without a common fork (indices %d and %d)", h.index, other.index)
	}
	if !sameFrames(h.forks, other.forks) {
		return h, simerr.Contract("cannot join branches of different forks (bases %d and %d)", h.forks.base, other.forks.base)
	}
	idx := h.tl.add(point[Ev]{kind: kindJoining, base: h.forks.base, left: h.index, right: other.index})
	return History[Ev]{tl: h.tl, index: idx, forks: h.forks.outer}, nil
}
