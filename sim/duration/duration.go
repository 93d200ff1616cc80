// Package duration defines virtual simulation time.
//
// A Duration is a signed count of microseconds measured from the start of a
// plan. All kernel arithmetic happens on this integer type so that two runs of
// the same schedule produce identical timestamps.
package duration

import (
	"fmt"
	"math"
	"time"
)

// Duration is a span of virtual time in microseconds.
type Duration int64

const (
	Zero        Duration = 0
	Epsilon     Duration = 1
	Microsecond Duration = 1
	Millisecond          = 1000 * Microsecond
	Second               = 1000 * Millisecond
	Minute               = 60 * Second
	Hour                 = 60 * Minute

	// Max stands in for "never" when a duration must be compared.
	Max Duration = math.MaxInt64
)

// Of returns n units of the given duration.
func Of(n int64, unit Duration) Duration {
	return Duration(n) * unit
}

// FromSeconds rounds a floating point number of seconds to the nearest microsecond.
func FromSeconds(s float64) Duration {
	return Duration(math.Round(s * float64(Second)))
}

// Parse accepts Go duration syntax ("1h30m", "250ms", "5s") and truncates to microseconds.
func Parse(s string) (Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return Duration(d / time.Microsecond), nil
}

// Seconds returns d as a floating point number of seconds.
func (d Duration) Seconds() float64 {
	return float64(d) / float64(Second)
}

// Std converts d to a time.Duration. Values beyond the time.Duration range saturate.
func (d Duration) Std() time.Duration {
	if d > Duration(math.MaxInt64/int64(time.Microsecond)) {
		return time.Duration(math.MaxInt64)
	}
	if d < Duration(math.MinInt64/int64(time.Microsecond)) {
		return time.Duration(math.MinInt64)
	}
	return time.Duration(d) * time.Microsecond
}

// SaturatingAdd adds o to d, clamping at Max instead of overflowing.
func (d Duration) SaturatingAdd(o Duration) Duration {
	if o > 0 && d > Max-o {
		return Max
	}
	return d + o
}

func (d Duration) String() string {
	if d == Max {
		return "forever"
	}
	return d.Std().String()
}

// Min returns the smaller of a and b.
func Min(a, b Duration) Duration {
	if a < b {
		return a
	}
	return b
}

// Max2 returns the larger of a and b.
func Max2(a, b Duration) Duration {
	if a > b {
		return a
	}
	return b
}
