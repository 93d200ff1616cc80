// Package streamline builds mission resources out of cells.
//
// A resource reports its dynamics: how its value evolves from now on, and for
// how long that description stays valid. Dynamics are wrapped in Expiring and
// ErrorCatching so that derived resources propagate both validity windows and
// failures without special cases. Cell-backed resources are mutated by tasks;
// derived resources are pure functions of other resources; a Cache turns a
// derived resource back into a cell so it is only recomputed on change.
package streamline

import (
	"fmt"

	"github.com/mission-sim/mission-sim/sim/duration"
)

// Expiry is how long dynamics stay valid, or Never.
type Expiry struct {
	value  duration.Duration
	finite bool
}

// Never is the expiry of dynamics valid forever.
func Never() Expiry { return Expiry{} }

// At is an expiry d from now. Negative values are clamped to zero.
func At(d duration.Duration) Expiry {
	if d < 0 {
		d = 0
	}
	return Expiry{value: d, finite: true}
}

// Value returns the remaining validity, if finite.
func (e Expiry) Value() (duration.Duration, bool) { return e.value, e.finite }

func (e Expiry) IsNever() bool { return !e.finite }

// Min returns the earlier of two expiries.
func (e Expiry) Min(o Expiry) Expiry {
	switch {
	case !e.finite:
		return o
	case !o.finite:
		return e
	case o.value < e.value:
		return o
	}
	return e
}

// Minus returns the expiry after d has elapsed.
func (e Expiry) Minus(d duration.Duration) Expiry {
	if !e.finite {
		return e
	}
	return At(e.value - d)
}

func (e Expiry) String() string {
	if !e.finite {
		return "never"
	}
	return e.value.String()
}

// Expiring pairs data with the window it is valid for.
type Expiring[D any] struct {
	Data   D
	Expiry Expiry
}

// NeverExpiring wraps data valid forever.
func NeverExpiring[D any](d D) Expiring[D] {
	return Expiring[D]{Data: d, Expiry: Never()}
}

func (e Expiring[D]) String() string {
	return fmt.Sprintf("%v (expires %v)", e.Data, e.Expiry)
}
