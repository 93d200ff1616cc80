package sim

import (
	"sort"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/value"
)

// Entry is one directive: an activity of Type started at Start with Arguments.
type Entry struct {
	Start     duration.Duration
	Type      string
	Arguments value.Map
}

// Equal reports whether two entries describe the same directive.
func (e Entry) Equal(o Entry) bool {
	return e.Start == o.Start && e.Type == o.Type && value.Equal(e.Arguments, o.Arguments)
}

// Schedule maps activity identifiers to directives.
type Schedule map[string]Entry

// IDs returns the schedule's identifiers ordered by start time, then identifier.
func (s Schedule) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s[ids[i]], s[ids[j]]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Clone returns a shallow copy of s. Argument maps are shared.
func (s Schedule) Clone() Schedule {
	out := make(Schedule, len(s))
	for id, e := range s {
		out[id] = e
	}
	return out
}
