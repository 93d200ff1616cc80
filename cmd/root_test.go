package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mission-sim/mission-sim/sim"
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/store"
	"github.com/mission-sim/mission-sim/sim/value"
)

const (
	bananaPlan        = "testdata/plans/banana.yaml"
	bananaRevisedPlan = "testdata/plans/banana_revised.yaml"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

// withFlags sets the package flag variables for one test.
func withFlags(t *testing.T, db, metrics, level string) {
	t.Helper()
	oldDB, oldMetrics, oldLevel, oldHorizon := resultsDB, metricsOut, traceLevel, horizon
	resultsDB, metricsOut, traceLevel, horizon = db, metrics, level, ""
	t.Cleanup(func() {
		resultsDB, metricsOut, traceLevel, horizon = oldDB, oldMetrics, oldLevel, oldHorizon
	})
}

func TestRenderResults_Golden(t *testing.T) {
	// GIVEN results with every section populated
	res := &sim.Results{
		End: 10 * duration.Second,
		RealProfiles: map[string][]sim.LinearPiece{
			"peel":  {{Extent: 5 * duration.Second, Initial: 4}, {Extent: 5 * duration.Second, Initial: 3}},
			"fruit": {{Extent: 4 * duration.Second, Initial: 4, Rate: 0.5}, {Extent: 6 * duration.Second, Initial: 6}},
		},
		DiscreteProfiles: map[string][]sim.DiscretePiece{
			"producer": {
				{Extent: 3 * duration.Second, Value: value.String("Chiquita")},
				{Extent: 7 * duration.Second, Value: value.String("Dole")},
			},
		},
		Activities: map[string]sim.ActivityRecord{
			"grow": {
				Type:      "GrowBanana",
				Arguments: value.Map{"quantity": value.Int(2), "growingDuration": value.String("4s")},
				Duration:  4 * duration.Second,
				Finished:  true,
				Result:    value.Int(2),
			},
			"pick": {
				Type:      "PickBananas",
				Arguments: value.Map{"quantity": value.Int(1)},
				Start:     5 * duration.Second,
				Duration:  duration.Second,
				Finished:  true,
				ChildIDs:  []string{"child-1"},
				Result:    value.Int(1),
			},
			"child-1": {
				Type:      "PickBanana",
				Arguments: value.Map{},
				Start:     5 * duration.Second,
				Duration:  duration.Second,
				Finished:  true,
				ParentID:  "pick",
				Result:    value.Null{},
			},
			"wait": {
				Type:      "WaitForPower",
				Arguments: value.Map{},
				Start:     2 * duration.Second,
				Duration:  8 * duration.Second,
			},
		},
		Rejected: map[string]string{"bad": "activity bad (BiteBanana): biteSize must be positive, got -1"},
	}

	// WHEN rendered
	var buf bytes.Buffer
	renderResults(&buf, res)

	// THEN the output matches the golden file
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "render_results", buf.Bytes())
}

func TestRunPlan_RendersAndSavesResults(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "results.db")
	metricsPath := filepath.Join(dir, "metrics.prom")
	withFlags(t, dbPath, metricsPath, "batches")

	var buf bytes.Buffer
	require.NoError(t, runPlan(context.Background(), &buf, bananaPlan))
	out := buf.String()

	assert.Contains(t, out, "=== Results to 10s ===")
	assert.Contains(t, out, "  [5s, 10s) initial=3 rate=0/s")
	assert.Contains(t, out, "  [6s, 10s) initial=8 rate=0/s")
	assert.Contains(t, out, "=== Trace Summary ===")
	assert.Contains(t, out, "Saved run ")

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `mission_sim_simulations_total{mode="fresh"} 1`)

	db, err := store.New(dbPath)
	require.NoError(t, err)
	defer db.Close()
	runs, err := db.ListRuns(context.Background(), "banananation")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "fresh", runs[0].Mode)
	assert.Equal(t, bananaPlan, runs[0].Plan)
	assert.Equal(t, 10*duration.Second, runs[0].Horizon)
}

func TestRunIncremental_MovedPeel_ResetsOnce(t *testing.T) {
	withFlags(t, "", "", "batches")

	var buf bytes.Buffer
	require.NoError(t, runIncremental(context.Background(), &buf, []string{bananaPlan, bananaRevisedPlan}))
	out := buf.String()

	assert.Contains(t, out, "  [3s, 10s) initial=3 rate=0/s")
	assert.Contains(t, out, "Simulations: 2, Extensions: 0, Resets: 1")
	assert.Contains(t, out, "  divergence: 1")
}

func TestVerifyPlan_FingerprintsAgree(t *testing.T) {
	withFlags(t, "", "", "none")

	var buf bytes.Buffer
	require.NoError(t, verifyPlan(context.Background(), &buf, bananaPlan, 3))
	out := buf.String()

	assert.Contains(t, out, "Cold runs: 3, fingerprint ")
	assert.Contains(t, out, "Incremental: 4 requests")
	assert.Contains(t, out, "fingerprint matches")
}

func TestVerifyPlan_RejectsZeroRuns(t *testing.T) {
	withFlags(t, "", "", "none")
	err := verifyPlan(context.Background(), &bytes.Buffer{}, bananaPlan, 0)
	assert.ErrorContains(t, err, "--runs")
}

func TestObservers_UnknownTraceLevel_ReturnsError(t *testing.T) {
	withFlags(t, "", "", "verbose")
	_, _, _, err := observers()
	assert.ErrorContains(t, err, "verbose")
}

func TestLoadPlan_UnknownField_ReturnsError(t *testing.T) {
	// GIVEN a plan with a misspelled key
	path := filepath.Join(t.TempDir(), "typo.yaml")
	plan := strings.Join([]string{
		"model: banananation",
		"horizon: 5s",
		"activities:",
		"  peel:",
		"    type: PeelBanana",
		"    strat: 1s",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(plan), 0o644))

	// WHEN loaded
	_, err := LoadPlan(path)

	// THEN strict parsing rejects it
	assert.ErrorContains(t, err, "strat")
}

func TestPlan_Schedule(t *testing.T) {
	plan, err := LoadPlan(bananaPlan)
	require.NoError(t, err)

	schedule, err := plan.Schedule()
	require.NoError(t, err)
	assert.Equal(t, sim.Schedule{
		"peel": {Start: 5 * duration.Second, Type: "PeelBanana", Arguments: value.Map{"peelDirection": value.String("fromTip")}},
		"pick": {Start: duration.Second, Type: "PickBananas", Arguments: value.Map{"quantity": value.Int(2)}},
		"grow": {Start: 2 * duration.Second, Type: "GrowBanana", Arguments: value.Map{"quantity": value.Int(2), "growingDuration": value.String("4s")}},
	}, schedule)

	h, err := plan.HorizonDuration()
	require.NoError(t, err)
	assert.Equal(t, 10*duration.Second, h)
}

func TestPlan_HorizonDefaultsToLatestStart(t *testing.T) {
	plan := &Plan{Activities: map[string]PlanActivity{
		"a": {Type: "PeelBanana", Start: "2s"},
		"b": {Type: "PeelBanana", Start: "7s"},
		"c": {Type: "PeelBanana"},
	}}
	h, err := plan.HorizonDuration()
	require.NoError(t, err)
	assert.Equal(t, 7*duration.Second, h)

	schedule, err := plan.Schedule()
	require.NoError(t, err)
	assert.Equal(t, duration.Duration(0), schedule["c"].Start)
}

func TestNewModel_UnknownName_ReturnsError(t *testing.T) {
	_, err := newModel("apple-orchard")
	assert.ErrorContains(t, err, "apple-orchard")
}
