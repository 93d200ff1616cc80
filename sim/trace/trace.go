package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelBatches captures every engine batch and every incremental driver decision.
	TraceLevelBatches TraceLevel = "batches"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:    true,
	TraceLevelBatches: true,
	"":                true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects decision records during a simulation.
type SimulationTrace struct {
	Config     TraceConfig
	Batches    []BatchRecord
	Resets     []ResetRecord
	Extensions []ExtensionRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:     config,
		Batches:    make([]BatchRecord, 0),
		Resets:     make([]ResetRecord, 0),
		Extensions: make([]ExtensionRecord, 0),
	}
}

// Enabled reports whether records should be collected. Safe on nil.
func (st *SimulationTrace) Enabled() bool {
	return st != nil && st.Config.Level == TraceLevelBatches
}

// RecordBatch appends a batch record.
func (st *SimulationTrace) RecordBatch(record BatchRecord) {
	st.Batches = append(st.Batches, record)
}

// RecordReset appends an incremental driver restart.
func (st *SimulationTrace) RecordReset(record ResetRecord) {
	st.Resets = append(st.Resets, record)
}

// RecordExtension appends an incremental driver extension.
func (st *SimulationTrace) RecordExtension(record ExtensionRecord) {
	st.Extensions = append(st.Extensions, record)
}
