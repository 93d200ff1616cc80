package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalBatches     int
	TotalJobs        int
	MaxJobsPerBatch  int
	MeanJobsPerBatch float64
	TotalSpawned     int
	TotalCompleted   int
	Resets           int
	Extensions       int
	ResetReasons     map[string]int // reason → count
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ResetReasons: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalBatches = len(st.Batches)
	for _, b := range st.Batches {
		summary.TotalJobs += b.Jobs
		summary.TotalSpawned += b.Spawned
		summary.TotalCompleted += b.Completed
		if b.Jobs > summary.MaxJobsPerBatch {
			summary.MaxJobsPerBatch = b.Jobs
		}
	}
	if summary.TotalBatches > 0 {
		summary.MeanJobsPerBatch = float64(summary.TotalJobs) / float64(summary.TotalBatches)
	}

	summary.Resets = len(st.Resets)
	for _, r := range st.Resets {
		summary.ResetReasons[r.Reason]++
	}
	summary.Extensions = len(st.Extensions)

	return summary
}
