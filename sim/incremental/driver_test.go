package incremental

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mission-sim/mission-sim/sim"
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/internal/testutil"
	"github.com/mission-sim/mission-sim/sim/mission/banana"
	"github.com/mission-sim/mission-sim/sim/simerr"
	"github.com/mission-sim/mission-sim/sim/telemetry"
	"github.com/mission-sim/mission-sim/sim/trace"
	"github.com/mission-sim/mission-sim/sim/value"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func peelAt(start duration.Duration) sim.Schedule {
	return sim.Schedule{
		"peel": {Start: start, Type: banana.PeelBanana, Arguments: value.Map{"peelDirection": value.String(banana.FromTip)}},
	}
}

// fresh simulates schedule on a model of its own.
func fresh(t *testing.T, schedule sim.Schedule, horizon duration.Duration) *sim.Results {
	t.Helper()
	model, _ := banana.NewModel()
	res, err := sim.Simulate(context.Background(), model, schedule, horizon)
	require.NoError(t, err)
	return res
}

func newDriver(opts ...sim.Option) *Driver {
	model, _ := banana.NewModel()
	return NewDriver(model, opts...)
}

func assertMatchesFresh(t *testing.T, d *Driver, schedule sim.Schedule, horizon duration.Duration) *sim.Results {
	t.Helper()
	got, err := d.Simulate(context.Background(), schedule, horizon)
	require.NoError(t, err)
	want := fresh(t, schedule, horizon)
	assert.Equal(t, want, got)
	testutil.AssertSameFingerprint(t, want, got)
	return got
}

func TestFirstDifference(t *testing.T) {
	bite := func(start duration.Duration, size float64) sim.Entry {
		return sim.Entry{Start: start, Type: banana.BiteBanana, Arguments: value.Map{"biteSize": value.Real(size)}}
	}
	tests := []struct {
		name      string
		prev      sim.Schedule
		next      sim.Schedule
		wantAt    duration.Duration
		wantFound bool
	}{
		{"both empty", sim.Schedule{}, nil, 0, false},
		{"identical", sim.Schedule{"a": bite(3, 1)}, sim.Schedule{"a": bite(3, 1)}, 0, false},
		{"inserted", sim.Schedule{"a": bite(3, 1)}, sim.Schedule{"a": bite(3, 1), "b": bite(7, 1)}, 7, true},
		{"removed", sim.Schedule{"a": bite(3, 1), "b": bite(7, 1)}, sim.Schedule{"b": bite(7, 1)}, 3, true},
		{"moved later", sim.Schedule{"a": bite(3, 1)}, sim.Schedule{"a": bite(9, 1)}, 3, true},
		{"moved earlier", sim.Schedule{"a": bite(9, 1)}, sim.Schedule{"a": bite(4, 1)}, 4, true},
		{"arguments changed", sim.Schedule{"a": bite(5, 1), "b": bite(8, 1)}, sim.Schedule{"a": bite(5, 2), "b": bite(8, 1)}, 5, true},
		{"earliest wins", sim.Schedule{"a": bite(5, 1), "b": bite(8, 1)}, sim.Schedule{"a": bite(6, 1), "c": bite(2, 1)}, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at, found := FirstDifference(tt.prev, tt.next)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.wantAt, at)
			}
		})
	}
}

func TestDriver_MovedActivityBeforeCurrentTime_Resets(t *testing.T) {
	// GIVEN a driver that simulated a peel at 5s to 10s
	d := newDriver()
	first := assertMatchesFresh(t, d, peelAt(5*duration.Second), 10*duration.Second)
	assert.Equal(t, []sim.LinearPiece{
		{Extent: 5 * duration.Second, Initial: 4},
		{Extent: 5 * duration.Second, Initial: 3},
	}, first.RealProfiles["peel"])

	// WHEN the peel moves to 3s
	second := assertMatchesFresh(t, d, peelAt(3*duration.Second), 10*duration.Second)

	// THEN only the transition moved and the request was served by a restart
	assert.Equal(t, []sim.LinearPiece{
		{Extent: 3 * duration.Second, Initial: 4},
		{Extent: 7 * duration.Second, Initial: 3},
	}, second.RealProfiles["peel"])
	assert.Equal(t, first.RealProfiles["fruit"], second.RealProfiles["fruit"])
	assert.Equal(t, Stats{Simulations: 2, Extensions: 0, Resets: 1}, d.Stats())
}

func TestDriver_EditAfterCurrentTime_Extends(t *testing.T) {
	// GIVEN a driver that stopped at 4s, before the peel at 5s started
	d := newDriver()
	assertMatchesFresh(t, d, peelAt(5*duration.Second), 4*duration.Second)

	// WHEN the peel moves to 3s, still ahead of the session
	res := assertMatchesFresh(t, d, peelAt(3*duration.Second), 10*duration.Second)

	// THEN the session is extended instead of restarted
	assert.Equal(t, Stats{Simulations: 2, Extensions: 1, Resets: 0}, d.Stats())
	v, ok := res.RealAt("peel", 3*duration.Second)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
}

func TestDriver_UnchangedScheduleLongerHorizon_Extends(t *testing.T) {
	schedule := sim.Schedule{
		"grow": {Start: duration.Second, Type: banana.GrowBanana, Arguments: value.Map{"quantity": value.Int(2), "growingDuration": value.String("4s")}},
		"pick": {Start: 2 * duration.Second, Type: banana.PickBananas},
	}
	d := newDriver()
	for _, horizon := range []duration.Duration{2 * duration.Second, 3 * duration.Second, 3 * duration.Second, 8 * duration.Second} {
		assertMatchesFresh(t, d, schedule, horizon)
	}
	assert.Equal(t, Stats{Simulations: 4, Extensions: 3, Resets: 0}, d.Stats())
}

func TestDriver_ShorterHorizon_Resets(t *testing.T) {
	d := newDriver()
	assertMatchesFresh(t, d, peelAt(5*duration.Second), 10*duration.Second)

	// the session has run the 5s batch, so a 4s horizon cannot be served by it
	assertMatchesFresh(t, d, peelAt(5*duration.Second), 4*duration.Second)
	assert.Equal(t, Stats{Simulations: 2, Extensions: 0, Resets: 1}, d.Stats())
}

func TestDriver_FailedSession_ResetsOnNextRequest(t *testing.T) {
	conflict := sim.Schedule{
		"a": {Start: 3 * duration.Second, Type: banana.ChangeProducer, Arguments: value.Map{"producer": value.String("Dole")}},
		"b": {Start: 3 * duration.Second, Type: banana.ChangeProducer, Arguments: value.Map{"producer": value.String("Del Monte")}},
	}
	d := newDriver()
	_, err := d.Simulate(context.Background(), conflict, 10*duration.Second)
	require.Error(t, err)
	assert.True(t, simerr.IsNonCommuting(err), "got %v", err)

	fixed := conflict.Clone()
	delete(fixed, "b")
	assertMatchesFresh(t, d, fixed, 10*duration.Second)
	assert.Equal(t, Stats{Simulations: 2, Extensions: 0, Resets: 1}, d.Stats())
}

func TestDriver_InsertRemoveShift_MatchesFreshSimulation(t *testing.T) {
	base := sim.Schedule{
		"bite":   {Start: 2 * duration.Second, Type: banana.BiteBanana, Arguments: value.Map{"biteSize": value.Real(0.5)}},
		"grow":   {Start: 4 * duration.Second, Type: banana.GrowBanana, Arguments: value.Map{"growingDuration": value.String("2s")}},
		"charge": {Start: 6 * duration.Second, Type: banana.ChargeBattery, Arguments: value.Map{"rate": value.Int(5), "duration": value.String("3s")}},
	}
	inserted := base.Clone()
	inserted["wait"] = sim.Entry{Start: 7 * duration.Second, Type: banana.WaitForPower, Arguments: value.Map{"threshold": value.Int(30)}}
	removed := inserted.Clone()
	delete(removed, "bite")
	shifted := removed.Clone()
	grow := shifted["grow"]
	grow.Start = 5 * duration.Second
	shifted["grow"] = grow

	steps := []struct {
		schedule sim.Schedule
		horizon  duration.Duration
	}{
		{base, 5 * duration.Second},
		{inserted, 8 * duration.Second},
		{inserted, 12 * duration.Second},
		{removed, 12 * duration.Second},
		{shifted, 12 * duration.Second},
		{base, 3 * duration.Second},
	}
	d := newDriver()
	for i, step := range steps {
		t.Run(fmt.Sprintf("step %d", i), func(t *testing.T) {
			assertMatchesFresh(t, d, step.schedule, step.horizon)
		})
	}
	assert.Equal(t, len(steps), d.Stats().Simulations)
	assert.Equal(t, d.Stats().Simulations-1, d.Stats().Extensions+d.Stats().Resets)
}

func TestDriver_RandomEdits_MatchFreshSimulation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	entry := func() sim.Entry {
		start := duration.Duration(rng.Intn(20)) * 500 * duration.Millisecond
		switch rng.Intn(5) {
		case 0:
			return sim.Entry{Start: start, Type: banana.BiteBanana, Arguments: value.Map{"biteSize": value.Real(float64(rng.Intn(4)+1) / 4)}}
		case 1:
			return sim.Entry{Start: start, Type: banana.GrowBanana, Arguments: value.Map{
				"quantity":        value.Int(rng.Intn(3) + 1),
				"growingDuration": value.Int(int64(rng.Intn(4)+1) * int64(duration.Second)),
			}}
		case 2:
			return sim.Entry{Start: start, Type: banana.PickBananas, Arguments: value.Map{"quantity": value.Int(rng.Intn(3))}}
		case 3:
			return sim.Entry{Start: start, Type: banana.ChargeBattery, Arguments: value.Map{"rate": value.Int(rng.Intn(5) + 1), "duration": value.String("2s")}}
		default:
			return sim.Entry{Start: start, Type: banana.PeelBanana}
		}
	}

	d := newDriver()
	schedule := sim.Schedule{}
	for i := 0; i < 25; i++ {
		next := schedule.Clone()
		switch op := rng.Intn(3); {
		case op == 0 || len(next) == 0:
			next[fmt.Sprintf("act-%d", i)] = entry()
		case op == 1:
			delete(next, next.IDs()[rng.Intn(len(next))])
		default:
			id := next.IDs()[rng.Intn(len(next))]
			e := next[id]
			e.Start = duration.Duration(rng.Intn(20)) * 500 * duration.Millisecond
			next[id] = e
		}
		horizon := duration.Duration(rng.Intn(12)+1) * duration.Second
		assertMatchesFresh(t, d, next, horizon)
		schedule = next
	}
	stats := d.Stats()
	assert.Equal(t, 25, stats.Simulations)
	assert.Equal(t, 24, stats.Extensions+stats.Resets)
}

func TestDriver_ScenarioDatasetInSequence(t *testing.T) {
	dataset := testutil.LoadScenarioDataset(t)
	d := newDriver()
	for _, sc := range dataset.Scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			res := assertMatchesFresh(t, d, sc.Schedule(t), sc.HorizonDuration(t))
			for _, want := range sc.Expect {
				got, ok := res.RealAt(want.Resource, testutil.MustDuration(t, want.At))
				require.True(t, ok)
				testutil.AssertFloat64Equal(t, want.Resource+"@"+want.At, want.Value, got, 1e-9)
			}
		})
	}
}

func TestDriver_RecordsTraceAndMetrics(t *testing.T) {
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelBatches})
	metrics := telemetry.NewMetrics("mission_sim")
	d := newDriver(sim.WithTrace(st), sim.WithMetrics(metrics))

	// initial run, extension, then divergence restart
	assertMatchesFresh(t, d, peelAt(5*duration.Second), 4*duration.Second)
	assertMatchesFresh(t, d, peelAt(5*duration.Second), 10*duration.Second)
	assertMatchesFresh(t, d, peelAt(3*duration.Second), 10*duration.Second)

	require.Len(t, st.Extensions, 1)
	assert.Equal(t, trace.ExtensionRecord{From: 0, To: int64(10 * duration.Second), Changed: false}, st.Extensions[0])
	require.Len(t, st.Resets, 1)
	assert.Equal(t, trace.ResetRecord{
		Clock:         int64(5 * duration.Second),
		Horizon:       int64(10 * duration.Second),
		Divergence:    int64(3 * duration.Second),
		HasDivergence: true,
		Reason:        ReasonDivergence,
	}, st.Resets[0])

	summary := trace.Summarize(st)
	assert.Equal(t, 1, summary.ResetReasons[ReasonDivergence])

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(families, "mission_sim_incremental_extensions_total", ""))
	assert.Equal(t, 1.0, counterValue(families, "mission_sim_incremental_resets_total", ReasonDivergence))
	assert.Equal(t, 1.0, counterValue(families, "mission_sim_simulations_total", "incremental"))
	assert.Equal(t, 2.0, counterValue(families, "mission_sim_simulations_total", "reset"))
}

// counterValue returns the counter named name whose only label value is
// label, or the unlabelled counter when label is empty.
func counterValue(families []*dto.MetricFamily, name, label string) float64 {
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if label == "" && len(m.GetLabel()) == 0 {
				return m.GetCounter().GetValue()
			}
			for _, l := range m.GetLabel() {
				if l.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
