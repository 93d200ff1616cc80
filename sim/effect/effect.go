// Package effect defines the algebra used to combine state changes on a cell.
//
// Every cell carries a Trait for its effect type. Effects emitted one after
// another in virtual time combine with Sequentially; effects emitted on
// concurrent branches of the same instant combine with Concurrently. A trait
// whose Concurrently cannot produce a meaningful result panics with a
// *simerr.Error; the cell evaluation boundary recovers it into an error.
package effect

import (
	"github.com/mission-sim/mission-sim/sim/simerr"
)

// Trait is the monoid-like structure over an effect type E.
//
// Empty must be an identity for both operations. Sequentially must be
// associative. Concurrently should be commutative; traits that cannot
// guarantee this reject the pairing instead.
type Trait[E any] interface {
	Empty() E
	Sequentially(prefix, suffix E) E
	Concurrently(left, right E) E
}

// Func is a labelled transformation of a model M. The zero Func is the identity.
//
// Transformations must not mutate their input: Auto applies both orders to the
// same value.
type Func[M any] struct {
	Label string
	apply func(M) M
}

// NewFunc returns a labelled effect.
func NewFunc[M any](label string, f func(M) M) Func[M] {
	return Func[M]{Label: label, apply: f}
}

// IsEmpty reports whether f is the identity.
func (f Func[M]) IsEmpty() bool {
	return f.apply == nil
}

// Apply runs the transformation on m.
func (f Func[M]) Apply(m M) M {
	if f.apply == nil {
		return m
	}
	return f.apply(m)
}

func then[M any](first, second Func[M], label string) Func[M] {
	a, b := first.apply, second.apply
	return Func[M]{Label: label, apply: func(m M) M { return b(a(m)) }}
}

type funcBase[M any] struct{}

func (funcBase[M]) Empty() Func[M] { return Func[M]{} }

func (funcBase[M]) Sequentially(prefix, suffix Func[M]) Func[M] {
	if prefix.IsEmpty() {
		return suffix
	}
	if suffix.IsEmpty() {
		return prefix
	}
	return then(prefix, suffix, prefix.Label+"; "+suffix.Label)
}

type noncommuting[M any] struct{ funcBase[M] }

// Noncommuting returns a trait that rejects any concurrent pairing of two non-empty effects.
func Noncommuting[M any]() Trait[Func[M]] {
	return noncommuting[M]{}
}

func (noncommuting[M]) Concurrently(left, right Func[M]) Func[M] {
	if left.IsEmpty() {
		return right
	}
	if right.IsEmpty() {
		return left
	}
	panic(simerr.NonCommuting(left.Label, right.Label))
}

type commuting[M any] struct{ funcBase[M] }

// Commuting returns a trait that asserts all effects commute; concurrent
// effects are applied left then right.
func Commuting[M any]() Trait[Func[M]] {
	return commuting[M]{}
}

func (commuting[M]) Concurrently(left, right Func[M]) Func[M] {
	if left.IsEmpty() {
		return right
	}
	if right.IsEmpty() {
		return left
	}
	return then(left, right, left.Label+" | "+right.Label)
}

type auto[M any] struct {
	funcBase[M]
	equal func(a, b M) bool
}

// Auto returns a trait that checks commutativity when the combined effect is
// applied: both orders are computed and compared with equal. A mismatch panics
// with a non-commuting error naming both effects.
func Auto[M any](equal func(a, b M) bool) Trait[Func[M]] {
	return auto[M]{equal: equal}
}

func (t auto[M]) Concurrently(left, right Func[M]) Func[M] {
	if left.IsEmpty() {
		return right
	}
	if right.IsEmpty() {
		return left
	}
	equal := t.equal
	return Func[M]{
		Label: left.Label + " | " + right.Label,
		apply: func(m M) M {
			lr := right.Apply(left.Apply(m))
			rl := left.Apply(right.Apply(m))
			if !equal(lr, rl) {
				panic(simerr.NonCommuting(left.Label, right.Label))
			}
			return lr
		},
	}
}

// Number is the set of types Sum can add.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

type sum[N Number] struct{}

// Sum returns the additive trait over numeric deltas.
func Sum[N Number]() Trait[N] {
	return sum[N]{}
}

func (sum[N]) Empty() N                       { return 0 }
func (sum[N]) Sequentially(prefix, suffix N) N { return prefix + suffix }
func (sum[N]) Concurrently(left, right N) N    { return left + right }
