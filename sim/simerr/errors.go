// Package simerr defines the structured failures raised by the simulation kernel.
package simerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mission-sim/mission-sim/sim/duration"
)

// Code categorizes a simulation failure.
type Code string

const (
	// CodeInstantiation indicates an unknown activity type or malformed arguments.
	// Recoverable: the affected activity is excluded from the run.
	CodeInstantiation Code = "INSTANTIATION_FAILED"

	// CodeNonCommuting indicates two concurrent effects on one cell that do not commute.
	CodeNonCommuting Code = "NON_COMMUTING_EFFECTS"

	// CodeContractViolation indicates misuse of the timeline or task protocol.
	CodeContractViolation Code = "CONTRACT_VIOLATION"

	// CodeTaskFailure indicates a task step returned an error or panicked.
	CodeTaskFailure Code = "TASK_FAILED"

	// CodeResourceFailure indicates a resource could not be sampled into a profile.
	CodeResourceFailure Code = "RESOURCE_FAILED"

	// CodeCellFailure indicates a cell's model failed while applying effects.
	CodeCellFailure Code = "CELL_FAILED"
)

// Error is a simulation failure with enough identity to locate it in a plan.
type Error struct {
	Code    Code
	Message string

	// ActivityID is the directive or spawned activity involved, if any.
	ActivityID string
	// TaskID is the engine task identifier, if any.
	TaskID string
	// Label names the cell, resource or effects involved.
	Label string

	Time    duration.Duration
	HasTime bool

	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	var ctx []string
	if e.ActivityID != "" {
		ctx = append(ctx, "activity="+e.ActivityID)
	}
	if e.TaskID != "" {
		ctx = append(ctx, "task="+e.TaskID)
	}
	if e.Label != "" {
		ctx = append(ctx, "label="+e.Label)
	}
	if e.HasTime {
		ctx = append(ctx, "t="+e.Time.String())
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// At returns a copy of e stamped with a virtual time, unless it already has one.
func (e *Error) At(t duration.Duration) *Error {
	if e.HasTime {
		return e
	}
	c := *e
	c.Time, c.HasTime = t, true
	return &c
}

// Contract builds a contract-violation error.
func Contract(format string, args ...any) *Error {
	return &Error{Code: CodeContractViolation, Message: fmt.Sprintf(format, args...)}
}

// NonCommuting builds the error raised when concurrent effects conflict.
func NonCommuting(left, right string) *Error {
	return &Error{
		Code:    CodeNonCommuting,
		Message: fmt.Sprintf("concurrent effects %q and %q do not commute", left, right),
		Label:   left + " | " + right,
	}
}

// Instantiation builds an instantiation failure for one activity.
func Instantiation(activityID, activityType string, cause error) *Error {
	return &Error{
		Code:       CodeInstantiation,
		Message:    fmt.Sprintf("cannot instantiate activity of type %q", activityType),
		ActivityID: activityID,
		Cause:      cause,
	}
}

// TaskFailure wraps a failed task step.
func TaskFailure(taskID, activityID string, t duration.Duration, cause error) *Error {
	return &Error{
		Code:       CodeTaskFailure,
		Message:    "task step failed",
		ActivityID: activityID,
		TaskID:     taskID,
		Time:       t,
		HasTime:    true,
		Cause:      cause,
	}
}

// ResourceFailure wraps a resource that could not be sampled.
func ResourceFailure(name string, t duration.Duration, cause error) *Error {
	return &Error{
		Code:    CodeResourceFailure,
		Message: "resource sample failed",
		Label:   name,
		Time:    t,
		HasTime: true,
		Cause:   cause,
	}
}

// CellFailure wraps a cell whose effects could not be applied.
func CellFailure(name string, t duration.Duration, cause error) *Error {
	return &Error{
		Code:    CodeCellFailure,
		Message: "cell update failed",
		Label:   name,
		Time:    t,
		HasTime: true,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func IsInstantiation(err error) bool     { return CodeOf(err) == CodeInstantiation }
func IsNonCommuting(err error) bool      { return CodeOf(err) == CodeNonCommuting }
func IsContractViolation(err error) bool { return CodeOf(err) == CodeContractViolation }
func IsTaskFailure(err error) bool       { return CodeOf(err) == CodeTaskFailure }
func IsResourceFailure(err error) bool   { return CodeOf(err) == CodeResourceFailure }
func IsCellFailure(err error) bool       { return CodeOf(err) == CodeCellFailure }

// Recover converts a panic carrying an *Error into *errp. Other panics propagate.
// Intended for use with defer at evaluation boundaries.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if se, ok := r.(*Error); ok {
		*errp = se
		return
	}
	panic(r)
}
