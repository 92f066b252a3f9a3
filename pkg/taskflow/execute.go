package taskflow

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/taskflow/pkg/taskflow/journal"
	"github.com/randalmurphal/taskflow/pkg/taskflow/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Run executes the flow against p and returns the final payload.
//
// Run blocks until the run finishes: it walked to a terminal task, ctx was
// cancelled, or a failure stopped it. It never returns an error; setup
// problems, step errors and rejected transitions are reported to listeners
// as ErrorOccurred notifications. Subscribe a History to inspect the cause.
//
// ctx must carry a cancellation signal (context.Background alone does not);
// use context.WithCancel or context.WithTimeout.
//
// Execution flow:
//  1. Start at the initial task
//  2. Stop if ctx is cancelled
//  3. Notify StateChanged and run the task's step
//  4. Resolve the next task from the step's NextTask
//  5. Repeat until there is no next task
//
// Example:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	history := taskflow.NewHistory()
//	out := flow.Run(ctx, in, taskflow.WithListener(history))
//	if errs := history.Errors(); len(errs) > 0 {
//	    // inspect errs
//	}
func (f *Flow[P]) Run(ctx context.Context, p P, opts ...RunOption) P {
	cfg := newRunConfig(opts)
	return f.execute(ctx, p, &cfg, resumePoint{})
}

// Execution is a run started with Start.
type Execution[P any] struct {
	runID  string
	done   chan struct{}
	result P
}

// Start runs the flow on its own goroutine and returns immediately.
func (f *Flow[P]) Start(ctx context.Context, p P, opts ...RunOption) *Execution[P] {
	cfg := newRunConfig(opts)
	e := &Execution[P]{runID: cfg.runID, done: make(chan struct{})}

	go func() {
		defer close(e.done)
		e.result = f.execute(ctx, p, &cfg, resumePoint{})
	}()
	return e
}

// RunID returns the id of the run.
func (e *Execution[P]) RunID() string {
	return e.runID
}

// Done is closed when the run has finished.
func (e *Execution[P]) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the run finishes and returns the final payload.
func (e *Execution[P]) Wait() P {
	<-e.done
	return e.result
}

// resumePoint describes where a run begins. The zero value starts at the
// initial task.
type resumePoint struct {
	resumed         bool
	task            string
	unhandledRouted bool
	sequence        int
}

// runState is owned by one run.
type runState struct {
	current string

	// unhandledRouted is set once the run has been sent to the
	// unhandled-exception task; a second step error stops the run.
	unhandledRouted bool

	steps    int
	sequence int
	last     string
}

func (f *Flow[P]) execute(ctx context.Context, p P, cfg *runConfig, from resumePoint) P {
	n := newNotifier(cfg.runID, cfg.logger, f.subscribers(), cfg.listeners)

	snap, start, err := f.prepare(ctx, from)
	if err != nil {
		observability.LogSetupError(cfg.logger, cfg.runID, err)
		n.reportError(SourceRun, err)
		return p
	}

	began := time.Now()
	runCtx, runSpan := cfg.spans.StartRunSpan(ctx, cfg.flowName, cfg.runID)

	observability.LogRunStart(cfg.logger, cfg.runID, start)
	n.emit(Notification{Type: RunStarted})

	st := &runState{
		current:         start,
		unhandledRouted: from.unhandledRouted,
		sequence:        from.sequence,
	}

	var fatal error
	for st.current != "" && ctx.Err() == nil {
		if cfg.maxSteps > 0 && st.steps >= cfg.maxSteps {
			fatal = &MaxStepsError{Max: cfg.maxSteps, Task: st.current}
			n.reportError(SourceRun, fatal)
			break
		}
		if p, fatal = f.step(runCtx, snap, cfg, n, st, p); fatal != nil {
			break
		}
	}

	outcome := observability.OutcomeFinished
	if ctx.Err() != nil {
		outcome = observability.OutcomeAborted
		observability.LogRunAborted(cfg.logger, cfg.runID, st.last)
		n.emit(Notification{Type: RunAborted})
	} else if fatal != nil {
		outcome = observability.OutcomeFailed
	}

	elapsed := time.Since(began)
	cfg.metrics.RecordRun(runCtx, outcome, elapsed)
	cfg.spans.EndSpanWithError(runSpan, fatal)
	observability.LogRunComplete(cfg.logger, cfg.runID, float64(elapsed.Milliseconds()), st.steps)
	n.emit(Notification{Type: RunCompleted})

	return p
}

// prepare validates the run setup and snapshots the flow.
func (f *Flow[P]) prepare(ctx context.Context, from resumePoint) (flowSnapshot[P], string, error) {
	if ctx == nil {
		return flowSnapshot[P]{}, "", ErrNilContext
	}
	if ctx.Done() == nil {
		return flowSnapshot[P]{}, "", ErrNoCancellation
	}

	snap := f.snapshot()
	if len(snap.tasks) == 0 {
		return snap, "", ErrNoTasks
	}
	if from.resumed {
		return snap, from.task, nil
	}

	start := snap.initial()
	if start == "" {
		return snap, "", ErrNoInitialTask
	}
	return snap, start, nil
}

// step runs st.current and advances st.current. A non-nil error is fatal
// to the run.
func (f *Flow[P]) step(runCtx context.Context, snap flowSnapshot[P], cfg *runConfig, n *notifier, st *runState, p P) (P, error) {
	task := st.current
	st.last = task
	successors := snap.successors(task)

	n.stateChanged(task, successors)
	observability.LogTaskStart(cfg.logger, task, successors)

	// A listener may have cancelled the run on StateChanged.
	if runCtx.Err() != nil {
		observability.LogTaskCancelled(cfg.logger, task)
		return p, nil
	}

	fn, ok := snap.tasks[task]
	if !ok || fn == nil {
		observability.LogTaskNeverConfigured(cfg.logger, task)
		st.current = ""
		return p, nil
	}

	taskCtx, span := cfg.spans.StartTaskSpan(runCtx, task)
	var spanErr error
	defer func() { cfg.spans.EndSpanWithError(span, spanErr) }()

	sctx := newStepContext(taskCtx, cfg.runID, task, successors, cfg.logger)

	began := time.Now()
	result, err := invoke(fn, sctx, task, p)
	elapsed := time.Since(began)
	st.steps++
	cfg.metrics.RecordTaskExecution(taskCtx, task, elapsed, err)
	spanErr = err

	// Cancellation wins over everything the step did afterwards, but
	// progress from a step that returned normally is kept.
	if runCtx.Err() != nil {
		observability.LogTaskCancelled(cfg.logger, task)
		if err == nil {
			p = result
		}
		return p, nil
	}

	if err != nil {
		routed := ""
		if !st.unhandledRouted {
			routed = UnhandledExceptionTask
			st.unhandledRouted = true
		}
		observability.LogTaskError(cfg.logger, task, err, routed)
		n.reportError(task, err)

		st.current = routed
		if routed == "" {
			return p, err
		}
		f.record(taskCtx, cfg, n, st, task, p)
		return p, nil
	}

	p = result
	requested := sctx.NextTask()
	next, checked, err := snap.resolve(task, requested, cfg.permissive)
	if err != nil {
		cfg.metrics.RecordTransitionRejected(taskCtx, task)
		observability.LogTransitionRejected(cfg.logger, task, requested)
		n.reportError(task, err)
		spanErr = err
		st.current = ""
		return p, err
	}
	if !checked {
		observability.LogTransitionUnchecked(cfg.logger, task, requested)
	}

	cfg.spans.AddSpanEvent(taskCtx, "next_task", attribute.String("task.next", next))
	observability.LogTaskComplete(cfg.logger, task, next, float64(elapsed.Milliseconds()))

	st.current = next
	f.record(taskCtx, cfg, n, st, task, p)
	return p, nil
}

// invoke runs one step, converting panics to *PanicError and wrapping
// returned errors in *StepError.
func invoke[P any](fn StepFunc[P], ctx Context, task string, p P) (result P, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = p
			err = &PanicError{
				Task:  task,
				Value: r,
				Stack: string(debug.Stack()),
			}
		}
	}()

	result, err = fn(ctx, p)
	if err != nil {
		return result, &StepError{Task: task, Err: err}
	}
	return result, nil
}

// record journals the transition out of task. Failures are reported and
// logged but never stop the run.
func (f *Flow[P]) record(ctx context.Context, cfg *runConfig, n *notifier, st *runState, task string, p P) {
	if cfg.journal == nil {
		return
	}

	payload, err := json.Marshal(p)
	if err != nil {
		observability.LogJournalError(cfg.logger, task, "encode", err)
		n.reportError(task, &JournalError{RunID: cfg.runID, Op: "encode", Err: err})
		return
	}

	st.sequence++
	rec := journal.NewRecord(cfg.runID, task, st.sequence, payload, st.current).
		WithUnhandledRouted(st.unhandledRouted)

	size, err := journal.Append(cfg.journal, rec)
	if err != nil {
		st.sequence--
		observability.LogJournalError(cfg.logger, task, "save", err)
		n.reportError(task, &JournalError{RunID: cfg.runID, Op: "save", Err: err})
		return
	}

	observability.LogJournal(cfg.logger, task, size)
	cfg.metrics.RecordJournal(ctx, task, int64(size))
}
