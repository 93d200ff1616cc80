package sim

import (
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/value"
)

// DiscretePiece is one constant segment of a discrete profile.
type DiscretePiece struct {
	Extent duration.Duration
	Value  value.Value
}

// LinearPiece is one linear segment of a real profile.
type LinearPiece struct {
	Extent  duration.Duration
	Initial float64
	Rate    float64
}

type openPiece struct {
	start    duration.Duration
	dynamics Dynamics
}

// profileBuilder accumulates samples of one resource. The last piece stays
// open until the next sample or until the profile is read.
type profileBuilder struct {
	pieces []openPiece
}

// continues reports whether next is what prev already predicts at time at.
func continues(prev openPiece, next Dynamics, at duration.Duration) bool {
	switch p := prev.dynamics.(type) {
	case Discrete:
		n, ok := next.(Discrete)
		return ok && value.Equal(p.Value, n.Value)
	case Linear:
		n, ok := next.(Linear)
		return ok && n.Rate == p.Rate && n.Initial == p.At(at-prev.start)
	}
	return false
}

// add records dynamics sampled at time at. Samples must arrive in time order.
func (b *profileBuilder) add(at duration.Duration, d Dynamics) {
	if n := len(b.pieces); n > 0 && b.pieces[n-1].start == at {
		// a later sample at the same instant supersedes the earlier one
		b.pieces = b.pieces[:n-1]
	}
	if n := len(b.pieces); n > 0 && continues(b.pieces[n-1], d, at) {
		return
	}
	b.pieces = append(b.pieces, openPiece{start: at, dynamics: d})
}

func (b *profileBuilder) extent(i int, end duration.Duration) duration.Duration {
	if i+1 < len(b.pieces) {
		return b.pieces[i+1].start - b.pieces[i].start
	}
	return end - b.pieces[i].start
}

func (b *profileBuilder) discrete(end duration.Duration) []DiscretePiece {
	out := make([]DiscretePiece, 0, len(b.pieces))
	for i, p := range b.pieces {
		out = append(out, DiscretePiece{Extent: b.extent(i, end), Value: p.dynamics.(Discrete).Value})
	}
	return out
}

func (b *profileBuilder) linear(end duration.Duration) []LinearPiece {
	out := make([]LinearPiece, 0, len(b.pieces))
	for i, p := range b.pieces {
		l := p.dynamics.(Linear)
		out = append(out, LinearPiece{Extent: b.extent(i, end), Initial: l.Initial, Rate: l.Rate})
	}
	return out
}
