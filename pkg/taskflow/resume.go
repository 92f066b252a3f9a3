package taskflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randalmurphal/taskflow/pkg/taskflow/journal"
)

// Resume continues a journaled run from its last recorded transition.
//
// The payload is decoded from the latest record of runID and the run picks
// up at the task that record points to, with the same run id, the same
// unhandled-exception state and journaling into the same store. Errors are
// returned only when the journal cannot be used; once the run starts it
// behaves like Run.
//
// Example:
//
//	store, _ := journal.NewSQLiteStore("runs.db")
//	out := flow.Run(ctx, in, taskflow.WithRunID("order-42"), taskflow.WithJournal(store))
//	// after a crash:
//	out, err := flow.Resume(ctx, store, "order-42")
func (f *Flow[P]) Resume(ctx context.Context, store journal.Store, runID string, opts ...RunOption) (P, error) {
	var zero P
	if store == nil {
		return zero, ErrNoJournal
	}

	rec, err := journal.LoadLatest(store, runID)
	if err != nil {
		return zero, &JournalError{RunID: runID, Op: "load", Err: err}
	}

	if rec.Version != journal.Version {
		return zero, &JournalError{
			RunID: runID,
			Op:    "load",
			Err:   fmt.Errorf("%w: got %d, want %d", ErrJournalVersion, rec.Version, journal.Version),
		}
	}

	if !f.canResumeAt(rec.NextTask) {
		return zero, &JournalError{
			RunID: runID,
			Op:    "load",
			Err:   fmt.Errorf("%w: %s", ErrUnknownResumeTask, rec.NextTask),
		}
	}

	var p P
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return zero, &JournalError{RunID: runID, Op: "decode", Err: err}
	}

	all := make([]RunOption, 0, len(opts)+2)
	all = append(all, WithJournal(store))
	all = append(all, opts...)
	all = append(all, WithRunID(runID))
	cfg := newRunConfig(all)

	return f.execute(ctx, p, &cfg, resumePoint{
		resumed:         true,
		task:            rec.NextTask,
		unhandledRouted: rec.UnhandledRouted,
		sequence:        rec.Sequence,
	}), nil
}

// canResumeAt reports whether a run may continue at task.
func (f *Flow[P]) canResumeAt(task string) bool {
	if task == "" || task == UnhandledExceptionTask {
		return true
	}
	return contains(f.Names(), task)
}

// IsSetupError reports whether err kept a run from starting.
func IsSetupError(err error) bool {
	return errors.Is(err, ErrNilContext) ||
		errors.Is(err, ErrNoCancellation) ||
		errors.Is(err, ErrNoTasks) ||
		errors.Is(err, ErrNoInitialTask)
}
