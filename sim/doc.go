// Package sim provides the discrete-event simulation engine for mission models.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - model.go: what a mission model registers (cells, activities, daemons, resources)
//   - engine.go: the batch loop, the fork/join frame stack and condition/resource upkeep
//   - session.go: lazy directive injection and result assembly
//
// # Architecture
//
// The sim package owns the engine; the building blocks live in sub-packages:
//   - sim/timeline/: persistent event history with fork, join and evaluation
//   - sim/effect/: effect traits deciding how concurrent effects combine
//   - sim/cell/: cells projecting the history into state, evaluated lazily
//   - sim/task/: the cooperative task protocol, conditions and the activity registry
//   - sim/streamline/: expiring dynamics, cell-backed resources, caches
//   - sim/incremental/: re-simulation that extends a session when an edit allows it
//   - sim/trace/: decision trace recording
//   - sim/telemetry/: prometheus metrics and opentelemetry spans
//   - sim/store/: SQLite sink for results
//
// # Time
//
// Virtual time is an int64 count of microseconds (duration.Duration). All jobs
// due at one instant form a batch: they run on concurrent branches of the
// timeline, so their effects on a cell must commute. Batches at later instants
// are strictly ordered.
package sim
