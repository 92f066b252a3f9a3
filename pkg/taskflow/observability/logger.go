// Package observability provides logging, metrics and tracing for taskflow runs.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - A line-oriented debug file sink
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// Metrics and tracing are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"strings"
	"time"
)

// EnrichLogger adds run and task context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "review")
//	enriched.Info("doing work") // includes run_id and task
func EnrichLogger(logger *slog.Logger, runID, task string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("task", task),
	)
}

// LogSetupError logs a configuration problem that prevented a run from starting.
func LogSetupError(logger *slog.Logger, runID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("task flow setup failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
	)
}

// LogRunStart logs the start of a flow run.
func LogRunStart(logger *slog.Logger, runID, initial string) {
	if logger == nil {
		return
	}
	logger.Info("task flow started",
		slog.String("run_id", runID),
		slog.String("initial_task", initial),
	)
}

// LogRunComplete logs the end of a flow run, whatever the cause.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, steps int) {
	if logger == nil {
		return
	}
	logger.Info("task flow completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps_executed", steps),
	)
}

// LogRunAborted logs a run stopped by its cancellation signal.
func LogRunAborted(logger *slog.Logger, runID, lastTask string) {
	if logger == nil {
		return
	}
	logger.Info("task flow has been cancelled",
		slog.String("run_id", runID),
		slog.String("last_task", lastTask),
	)
}

// LogTaskStart logs a task becoming current.
func LogTaskStart(logger *slog.Logger, task string, successors []string) {
	if logger == nil {
		return
	}
	logger.Debug("task starting",
		slog.String("task", task),
		slog.String("successors", strings.Join(successors, ",")),
	)
}

// LogTaskComplete logs a task that returned normally.
func LogTaskComplete(logger *slog.Logger, task, next string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("task completed",
		slog.String("task", task),
		slog.String("next_task", next),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogTaskError logs a task that raised an error and where the run goes next.
// An empty routedTo means the run stops.
func LogTaskError(logger *slog.Logger, task string, err error, routedTo string) {
	if logger == nil {
		return
	}
	logger.Error("task failed",
		slog.String("task", task),
		slog.String("error", err.Error()),
		slog.String("routed_to", routedTo),
	)
}

// LogTaskCancelled logs a task that was running when the run was cancelled.
func LogTaskCancelled(logger *slog.Logger, task string) {
	if logger == nil {
		return
	}
	logger.Info("task has been cancelled",
		slog.String("task", task),
	)
}

// LogTaskNeverConfigured logs a task that is part of the flow but has no step.
func LogTaskNeverConfigured(logger *slog.Logger, task string) {
	if logger == nil {
		return
	}
	logger.Warn("task has never been configured",
		slog.String("task", task),
	)
}

// LogTransitionRejected logs a next-task request the flow does not permit.
func LogTransitionRejected(logger *slog.Logger, from, requested string) {
	if logger == nil {
		return
	}
	logger.Error("next task does not follow current task",
		slog.String("task", from),
		slog.String("requested", requested),
	)
}

// LogTransitionUnchecked logs a next-task request accepted without validation.
func LogTransitionUnchecked(logger *slog.Logger, from, requested string) {
	if logger == nil {
		return
	}
	logger.Warn("accepting next task outside the declared flow",
		slog.String("task", from),
		slog.String("requested", requested),
	)
}

// LogJournal logs a journal record being written.
func LogJournal(logger *slog.Logger, task string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("journal record saved",
		slog.String("task", task),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogJournalError logs a journal failure. Journal failures never stop a run.
func LogJournalError(logger *slog.Logger, task, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("journal record failed",
		slog.String("task", task),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// The returned function reports the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
