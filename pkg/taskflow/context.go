package taskflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/randalmurphal/taskflow/pkg/taskflow/observability"
)

// Context is passed to every step. It extends context.Context (the run's
// cancellation signal) with the next-task override and run metadata.
//
// Before a step runs, the engine sets NextTask to the task's default
// successor. A step selects a branch, or escapes to a handled-exception task,
// by calling SetNextTask before it returns.
type Context interface {
	context.Context

	// NextTask returns the task the run will continue with.
	// Empty means the run stops after this step.
	NextTask() string

	// SetNextTask overrides the next task. The name must be a successor of
	// the current task or a handled-exception task.
	SetNextTask(name string)

	// Task returns the name of the running task.
	Task() string

	// Successors returns a copy of the running task's successors.
	Successors() []string

	// RunID returns the identifier of the run.
	RunID() string

	// Logger returns a logger enriched with run_id and task.
	// Never returns nil.
	Logger() *slog.Logger
}

// override is the next-task slot shared between the engine and one step.
// Steps may hand their Context to helper goroutines.
type override struct {
	mu   sync.Mutex
	next string
}

func (o *override) get() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.next
}

func (o *override) set(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next = name
}

type stepContext struct {
	context.Context

	next       *override
	task       string
	successors []string
	runID      string
	logger     *slog.Logger
}

func (c *stepContext) NextTask() string        { return c.next.get() }
func (c *stepContext) SetNextTask(name string) { c.next.set(name) }
func (c *stepContext) Task() string            { return c.task }
func (c *stepContext) RunID() string           { return c.runID }
func (c *stepContext) Logger() *slog.Logger    { return c.logger }

func (c *stepContext) Successors() []string {
	return append([]string(nil), c.successors...)
}

// newStepContext builds the Context for one step. The override starts at the
// default successor.
func newStepContext(ctx context.Context, runID, task string, successors []string, logger *slog.Logger) *stepContext {
	def := ""
	if len(successors) > 0 {
		def = successors[0]
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &stepContext{
		Context:    ctx,
		next:       &override{next: def},
		task:       task,
		successors: successors,
		runID:      runID,
		logger:     observability.EnrichLogger(logger, runID, task),
	}
}

// ContextOption configures NewContext.
type ContextOption func(*contextConfig)

type contextConfig struct {
	runID      string
	task       string
	successors []string
	logger     *slog.Logger
}

// WithContextRunID sets the run id reported by the Context.
func WithContextRunID(id string) ContextOption {
	return func(c *contextConfig) { c.runID = id }
}

// WithContextTask sets the current task and its successors. The first
// successor becomes the initial NextTask.
func WithContextTask(task string, successors ...string) ContextOption {
	return func(c *contextConfig) {
		c.task = task
		c.successors = append([]string(nil), successors...)
	}
}

// WithContextLogger sets the base logger.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *contextConfig) { c.logger = logger }
}

// NewContext creates a standalone Context, mainly for exercising a StepFunc
// outside of a run.
//
// Example:
//
//	ctx := taskflow.NewContext(context.Background(),
//	    taskflow.WithContextTask("review", "approve", "reject"))
//	out, err := reviewStep(ctx, in)
//	// ctx.NextTask() reports the branch the step chose
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	cfg := contextConfig{
		runID:  uuid.NewString(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return newStepContext(ctx, cfg.runID, cfg.task, cfg.successors, cfg.logger)
}
