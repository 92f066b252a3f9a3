package taskflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for run setup. A run reporting one of these never starts.
var (
	// ErrNilContext indicates Run was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrNoCancellation indicates the context carries no cancellation signal
	// (its Done channel is nil), so the run could never be aborted.
	ErrNoCancellation = errors.New("context has no cancellation signal")

	// ErrNoTasks indicates no step has been registered.
	ErrNoTasks = errors.New("task flow is empty, register tasks before running")

	// ErrNoInitialTask indicates StartWith was never called.
	ErrNoInitialTask = errors.New("initial task not set")
)

// Sentinel errors raised while a run is in progress.
var (
	// ErrInvalidTransition indicates a step requested a next task that is
	// neither a successor of the current task nor a handled-exception task.
	ErrInvalidTransition = errors.New("next task does not follow current task")

	// ErrMaxSteps indicates the run exceeded its step budget.
	ErrMaxSteps = errors.New("exceeded maximum steps")
)

// Sentinel errors for journaling and resume.
var (
	// ErrNoJournal indicates Resume was called without a journal store.
	ErrNoJournal = errors.New("journal store required")

	// ErrJournalVersion indicates a journal record has an incompatible format.
	ErrJournalVersion = errors.New("journal record version mismatch")

	// ErrUnknownResumeTask indicates the journal points at a task the flow
	// does not declare.
	ErrUnknownResumeTask = errors.New("journal resume task not in flow")
)

// StepError wraps an error returned by a task's step.
type StepError struct {
	// Task is the task whose step failed.
	Task string
	// Err is the error the step returned.
	Err error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StepError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by a step. The engine treats it like
// any other unhandled exception.
type PanicError struct {
	Task  string
	Value any
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// TransitionError reports a rejected next-task request.
type TransitionError struct {
	// From is the task that made the request.
	From string
	// Requested is the name the step asked for.
	Requested string
	// Allowed lists the names that would have been accepted.
	Allowed []string
	Err     error
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %q: %v (allowed %v)", e.From, e.Requested, e.Err, e.Allowed)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TransitionError) Unwrap() error {
	return e.Err
}

// MaxStepsError reports a run stopped by WithMaxSteps.
type MaxStepsError struct {
	Max int
	// Task is the task that would have run next.
	Task string
}

// Error implements the error interface.
func (e *MaxStepsError) Error() string {
	return fmt.Sprintf("%v (%d) before task %s", ErrMaxSteps, e.Max, e.Task)
}

// Unwrap returns ErrMaxSteps.
func (e *MaxStepsError) Unwrap() error {
	return ErrMaxSteps
}

// JournalError wraps a journal failure.
type JournalError struct {
	RunID string
	// Op is the failed operation ("encode", "save", "load", "decode").
	Op  string
	Err error
}

// Error implements the error interface.
func (e *JournalError) Error() string {
	return fmt.Sprintf("journal %s for run %s: %v", e.Op, e.RunID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *JournalError) Unwrap() error {
	return e.Err
}

// DiagramError wraps a failure to describe or render the flow diagram.
type DiagramError struct {
	Title string
	// Op is "describe" or "render".
	Op  string
	Err error
}

// Error implements the error interface.
func (e *DiagramError) Error() string {
	return fmt.Sprintf("diagram %q: %s: %v", e.Title, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DiagramError) Unwrap() error {
	return e.Err
}
