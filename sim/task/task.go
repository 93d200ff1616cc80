// Package task defines the cooperative protocol between simulated tasks and the engine.
//
// A Task never blocks. Each call to Step runs until the task reaches a
// suspension point and returns a Status describing it together with the
// continuation to resume later. All interaction with simulation state goes
// through the Scheduler passed to Step.
package task

import (
	"strconv"

	"github.com/mission-sim/mission-sim/sim/cell"
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/value"
)

// ID identifies a task within one simulation.
type ID uint64

func (id ID) String() string {
	return "task-" + strconv.FormatUint(uint64(id), 10)
}

// Span describes the activity a spawned task represents. Tasks with an empty
// Type are helpers and do not appear in activity records.
type Span struct {
	Type      string
	Arguments value.Map
}

// Querier is a read-only view of simulation state at the current instant.
type Querier interface {
	// Now returns the current virtual time.
	Now() duration.Duration
	// Get returns a copy of a cell's model. It panics with a *simerr.Error when
	// the cell cannot be evaluated; the engine turns that into a failed run.
	Get(id cell.ID) any
}

// Scheduler is the context handed to a task for one step.
type Scheduler interface {
	Querier
	// Emit records an event at the current instant on the task's branch.
	Emit(ev cell.Event)
	// Spawn starts a child task concurrently at the current instant.
	Spawn(span Span, f Factory) ID
}

// Get reads a cell through q with its model type.
func Get[E, M any](q Querier, ref cell.Ref[E, M]) M {
	return q.Get(ref.ID()).(M)
}

// Emit records v on topic.
func Emit[T any](s Scheduler, topic cell.Topic[T], v T) {
	s.Emit(topic.Event(v))
}

// Task is a resumable unit of simulated work.
type Task interface {
	Step(s Scheduler) (Status, error)
}

// Func adapts a closure to Task.
type Func func(s Scheduler) (Status, error)

func (f Func) Step(s Scheduler) (Status, error) { return f(s) }

// Factory creates a fresh task instance.
type Factory func() Task

// Status is the outcome of one step.
type Status interface {
	isStatus()
}

// Completed ends the task.
type Completed struct {
	Value value.Value
}

// Delayed resumes Next after Duration.
type Delayed struct {
	Duration duration.Duration
	Next     Task
}

// CallingTask spawns Child and resumes Next once the child completes.
type CallingTask struct {
	Span  Span
	Child Factory
	Next  Task
}

// AwaitingCondition resumes Next at the first instant Condition holds.
type AwaitingCondition struct {
	Condition Condition
	Next      Task
}

// AwaitingTask resumes Next once the task ID has completed.
type AwaitingTask struct {
	ID   ID
	Next Task
}

func (Completed) isStatus()         {}
func (Delayed) isStatus()           {}
func (CallingTask) isStatus()       {}
func (AwaitingCondition) isStatus() {}
func (AwaitingTask) isStatus()      {}

// Done completes the task with a null result.
func Done() (Status, error) {
	return Completed{Value: value.Null{}}, nil
}

// DoneWith completes the task with result v.
func DoneWith(v value.Value) (Status, error) {
	return Completed{Value: v}, nil
}

// Delay suspends the task for d.
func Delay(d duration.Duration, next Task) (Status, error) {
	return Delayed{Duration: d, Next: next}, nil
}

// Call runs child as an activity and resumes next when it completes.
func Call(span Span, child Factory, next Task) (Status, error) {
	return CallingTask{Span: span, Child: child, Next: next}, nil
}

// Await suspends the task until c holds.
func Await(c Condition, next Task) (Status, error) {
	return AwaitingCondition{Condition: c, Next: next}, nil
}

// AwaitTask suspends the task until task id completes.
func AwaitTask(id ID, next Task) (Status, error) {
	return AwaitingTask{ID: id, Next: next}, nil
}

// Of wraps a one-shot closure into a Factory.
func Of(f func(s Scheduler) (Status, error)) Factory {
	return func() Task { return Func(f) }
}
