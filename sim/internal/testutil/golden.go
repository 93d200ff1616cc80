// Package testutil provides shared test infrastructure for the mission
// simulator. It holds the recorded scenario dataset and the assertion helpers
// used across the sim/ sub-package tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/mission-sim/mission-sim/sim"
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/value"
)

// ScenarioDataset represents the structure of testdata/scenarios.json.
type ScenarioDataset struct {
	Scenarios []Scenario `json:"scenarios"`
}

// Scenario is a named plan for the reference model with the profile values
// it must produce.
type Scenario struct {
	Name       string                `json:"name"`
	Horizon    string                `json:"horizon"`
	Activities []ScenarioActivity    `json:"activities"`
	Expect     []ScenarioExpectation `json:"expect"`
}

type ScenarioActivity struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Start     string         `json:"start"`
	Arguments map[string]any `json:"arguments"`
}

// ScenarioExpectation is the value of a real resource at one instant.
type ScenarioExpectation struct {
	Resource string  `json:"resource"`
	At       string  `json:"at"`
	Value    float64 `json:"value"`
}

// LoadScenarioDataset loads the scenario dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadScenarioDataset(t *testing.T) *ScenarioDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to repo root testdata/
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "scenarios.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read scenario dataset: %v", err)
	}

	// Integral arguments must decode as integers.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var dataset ScenarioDataset
	if err := dec.Decode(&dataset); err != nil {
		t.Fatalf("Failed to parse scenario dataset: %v", err)
	}

	return &dataset
}

// MustDuration parses a Go duration string or fails the test.
func MustDuration(t *testing.T, s string) duration.Duration {
	t.Helper()
	d, err := duration.Parse(s)
	if err != nil {
		t.Fatalf("bad duration %q: %v", s, err)
	}
	return d
}

// HorizonDuration returns the scenario's horizon.
func (sc Scenario) HorizonDuration(t *testing.T) duration.Duration {
	t.Helper()
	return MustDuration(t, sc.Horizon)
}

// Schedule converts the scenario's activities into a schedule.
func (sc Scenario) Schedule(t *testing.T) sim.Schedule {
	t.Helper()
	s := make(sim.Schedule, len(sc.Activities))
	for _, a := range sc.Activities {
		args, err := value.FromAny(a.Arguments)
		if err != nil {
			t.Fatalf("scenario %s: activity %s: %v", sc.Name, a.ID, err)
		}
		m, _ := args.(value.Map)
		s[a.ID] = sim.Entry{Start: MustDuration(t, a.Start), Type: a.Type, Arguments: m}
	}
	return s
}

// Fingerprinter is implemented by simulation results.
type Fingerprinter interface {
	Fingerprint() (string, error)
}

// AssertSameFingerprint checks that two results digest identically.
func AssertSameFingerprint(t *testing.T, want, got Fingerprinter) {
	t.Helper()
	w, err := want.Fingerprint()
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	g, err := got.Fingerprint()
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if w != g {
		t.Errorf("fingerprint mismatch: got %s, want %s", g, w)
	}
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
