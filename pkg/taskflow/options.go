package taskflow

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/randalmurphal/taskflow/pkg/taskflow/journal"
	"github.com/randalmurphal/taskflow/pkg/taskflow/observability"
)

// runConfig holds configuration for one run.
type runConfig struct {
	runID    string
	flowName string
	maxSteps int

	// permissive accepts any requested next task instead of validating it.
	permissive bool

	logger         *slog.Logger
	metricsEnabled bool
	metrics        observability.MetricsRecorder
	tracingEnabled bool
	spans          observability.SpanManager

	listeners []Listener
	journal   journal.Store
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		flowName: "taskflow",
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
}

// newRunConfig applies opts over the defaults and fills in a run id.
func newRunConfig(opts []RunOption) runConfig {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}
	if cfg.metricsEnabled {
		cfg.metrics = observability.NewMetricsRecorder()
	}
	if cfg.tracingEnabled {
		cfg.spans = observability.NewSpanManager()
	}
	return cfg
}

// RunOption configures a run.
type RunOption func(*runConfig)

// WithRunID sets the run identifier. Default: a random UUID.
// Journaled runs are resumed by this id.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithFlowName names the flow in traces. Default: "taskflow".
func WithFlowName(name string) RunOption {
	return func(c *runConfig) {
		if name != "" {
			c.flowName = name
		}
	}
}

// WithMaxSteps bounds the number of steps a run may execute.
// Default: 0 (unlimited). Flows with cycles are legal, so the budget is
// opt-in; exceeding it reports a MaxStepsError and stops the run.
func WithMaxSteps(n int) RunOption {
	return func(c *runConfig) {
		if n >= 0 {
			c.maxSteps = n
		}
	}
}

// WithPermissiveTransitions accepts whatever next task a step requests
// without checking it against the flow. Unchecked requests are logged at
// warn level. By default a request outside the current task's successors
// and the handled-exception tasks fails the run with a TransitionError.
func WithPermissiveTransitions() RunOption {
	return func(c *runConfig) {
		c.permissive = true
	}
}

// WithLogger sets the logger for run progress. Default: slog.Default().
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry metrics through the global meter provider.
//
// Example:
//
//	otel.SetMeterProvider(provider)
//	flow.Run(ctx, payload, taskflow.WithMetrics(true))
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		c.metricsEnabled = enabled
	}
}

// WithTracing enables OpenTelemetry spans through the global tracer provider.
// A run produces a "taskflow.run" span with one "taskflow.task.<name>" child
// per step.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		c.tracingEnabled = enabled
	}
}

// WithListener adds a listener for this run only. Run listeners are notified
// after the flow's subscribers.
func WithListener(l Listener) RunOption {
	return func(c *runConfig) {
		if l != nil {
			c.listeners = append(c.listeners, l)
		}
	}
}

// WithJournal records every transition in store so the run can be resumed
// with Resume. Journal failures are logged and never stop the run.
func WithJournal(store journal.Store) RunOption {
	return func(c *runConfig) {
		c.journal = store
	}
}
