package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/value"
)

// ActivityRecord is the execution record of a directive or spawned activity.
type ActivityRecord struct {
	Type      string            `json:"type"`
	Arguments value.Map         `json:"arguments"`
	Start     duration.Duration `json:"start"`
	Duration  duration.Duration `json:"duration"`
	Finished  bool              `json:"finished"`
	ParentID  string            `json:"parent_id,omitempty"`
	ChildIDs  []string          `json:"child_ids,omitempty"`
	Result    value.Value       `json:"result"`
}

// Timestamp converts the record's start offset to wall time relative to planStart.
func (r ActivityRecord) Timestamp(planStart time.Time) time.Time {
	return planStart.Add(r.Start.Std())
}

// Results is everything a simulation produced up to End.
type Results struct {
	End              duration.Duration          `json:"end"`
	RealProfiles     map[string][]LinearPiece   `json:"real_profiles"`
	DiscreteProfiles map[string][]DiscretePiece `json:"discrete_profiles"`
	Activities       map[string]ActivityRecord  `json:"activities"`
	// Rejected maps directives that failed instantiation to the reason.
	Rejected map[string]string `json:"rejected"`
}

// Fingerprint returns a stable digest of r.
func (r *Results) Fingerprint() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("fingerprint results: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Validate checks that every profile covers [0, End] without gaps.
func (r *Results) Validate() error {
	for _, name := range sortedKeys(r.RealProfiles) {
		var total duration.Duration
		for i, p := range r.RealProfiles[name] {
			if p.Extent < 0 {
				return fmt.Errorf("real profile %q: piece %d has negative extent %v", name, i, p.Extent)
			}
			total += p.Extent
		}
		if total != r.End {
			return fmt.Errorf("real profile %q covers %v, want %v", name, total, r.End)
		}
	}
	for _, name := range sortedKeys(r.DiscreteProfiles) {
		var total duration.Duration
		for i, p := range r.DiscreteProfiles[name] {
			if p.Extent < 0 {
				return fmt.Errorf("discrete profile %q: piece %d has negative extent %v", name, i, p.Extent)
			}
			total += p.Extent
		}
		if total != r.End {
			return fmt.Errorf("discrete profile %q covers %v, want %v", name, total, r.End)
		}
	}
	return nil
}

// DiscreteAt returns the value of a discrete profile at t.
func (r *Results) DiscreteAt(name string, t duration.Duration) (value.Value, bool) {
	var start duration.Duration
	for _, p := range r.DiscreteProfiles[name] {
		if t < start+p.Extent || (p.Extent == 0 && t == start) {
			return p.Value, true
		}
		start += p.Extent
	}
	return nil, false
}

// RealAt returns the value of a real profile at t.
func (r *Results) RealAt(name string, t duration.Duration) (float64, bool) {
	var start duration.Duration
	pieces := r.RealProfiles[name]
	for i, p := range pieces {
		if t < start+p.Extent || i == len(pieces)-1 && t <= start+p.Extent {
			return p.Initial + p.Rate*(t-start).Seconds(), true
		}
		start += p.Extent
	}
	return 0, false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
