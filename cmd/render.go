package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/mission-sim/mission-sim/sim"
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/incremental"
	"github.com/mission-sim/mission-sim/sim/trace"
	"github.com/mission-sim/mission-sim/sim/value"
)

// renderResults writes res as plain text, profiles and activities in a
// stable order.
func renderResults(w io.Writer, res *sim.Results) {
	fmt.Fprintf(w, "=== Results to %v ===\n", res.End)

	fmt.Fprintln(w, "--- Real profiles ---")
	for _, name := range sortedNames(res.RealProfiles) {
		fmt.Fprintf(w, "%s\n", name)
		var at duration.Duration
		for _, p := range res.RealProfiles[name] {
			fmt.Fprintf(w, "  [%v, %v) initial=%s rate=%s/s\n", at, at+p.Extent, formatFloat(p.Initial), formatFloat(p.Rate))
			at += p.Extent
		}
	}

	fmt.Fprintln(w, "--- Discrete profiles ---")
	for _, name := range sortedNames(res.DiscreteProfiles) {
		fmt.Fprintf(w, "%s\n", name)
		var at duration.Duration
		for _, p := range res.DiscreteProfiles[name] {
			fmt.Fprintf(w, "  [%v, %v) %s\n", at, at+p.Extent, value.Format(p.Value))
			at += p.Extent
		}
	}

	fmt.Fprintln(w, "--- Activities ---")
	ids := sortedNames(res.Activities)
	sort.SliceStable(ids, func(i, j int) bool {
		return res.Activities[ids[i]].Start < res.Activities[ids[j]].Start
	})
	for _, id := range ids {
		a := res.Activities[id]
		status := "finished"
		if !a.Finished {
			status = "unfinished"
		}
		fmt.Fprintf(w, "%s %s start=%v duration=%v %s args=%s", id, a.Type, a.Start, a.Duration, status, value.Format(a.Arguments))
		if a.Result != nil {
			fmt.Fprintf(w, " result=%s", value.Format(a.Result))
		}
		if a.ParentID != "" {
			fmt.Fprintf(w, " parent=%s", a.ParentID)
		}
		fmt.Fprintln(w)
		for _, child := range a.ChildIDs {
			fmt.Fprintf(w, "  child %s\n", child)
		}
	}

	if len(res.Rejected) > 0 {
		fmt.Fprintln(w, "--- Rejected ---")
		for _, id := range sortedNames(res.Rejected) {
			fmt.Fprintf(w, "%s: %s\n", id, res.Rejected[id])
		}
	}
}

func renderTraceSummary(w io.Writer, st *trace.SimulationTrace) {
	s := trace.Summarize(st)
	fmt.Fprintln(w, "=== Trace Summary ===")
	fmt.Fprintf(w, "Batches: %d (jobs: %d, max per batch: %d, mean: %.2f)\n",
		s.TotalBatches, s.TotalJobs, s.MaxJobsPerBatch, s.MeanJobsPerBatch)
	fmt.Fprintf(w, "Spawned: %d, Completed: %d\n", s.TotalSpawned, s.TotalCompleted)
	if s.Resets > 0 || s.Extensions > 0 {
		fmt.Fprintf(w, "Extensions: %d, Resets: %d\n", s.Extensions, s.Resets)
		for _, reason := range sortedNames(s.ResetReasons) {
			fmt.Fprintf(w, "  %s: %d\n", reason, s.ResetReasons[reason])
		}
	}
}

func renderDriverStats(w io.Writer, st incremental.Stats) {
	fmt.Fprintf(w, "=== Driver ===\nSimulations: %d, Extensions: %d, Resets: %d\n", st.Simulations, st.Extensions, st.Resets)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
