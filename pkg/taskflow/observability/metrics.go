package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Run outcomes recorded on taskflow.run.runs.
const (
	OutcomeFinished = "finished"
	OutcomeAborted  = "aborted"
	OutcomeFailed   = "failed"
)

// MetricsRecorder records taskflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordTaskExecution records one step invocation with its duration and error status.
	RecordTaskExecution(ctx context.Context, task string, duration time.Duration, err error)

	// RecordRun records a finished run. outcome is one of the Outcome constants.
	RecordRun(ctx context.Context, outcome string, duration time.Duration)

	// RecordTransitionRejected records a next-task request the flow refused.
	RecordTransitionRejected(ctx context.Context, from string)

	// RecordJournal records a journal write.
	RecordJournal(ctx context.Context, task string, sizeBytes int64)
}

type otelMetrics struct {
	taskExecutions metric.Int64Counter
	taskLatency    metric.Float64Histogram
	taskErrors     metric.Int64Counter
	runs           metric.Int64Counter
	runLatency     metric.Float64Histogram
	rejections     metric.Int64Counter
	journalSize    metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("taskflow")

	taskExecutions, err := meter.Int64Counter("taskflow.task.executions",
		metric.WithDescription("Number of task step invocations"),
	)
	if err != nil {
		return nil, err
	}

	taskLatency, err := meter.Float64Histogram("taskflow.task.latency_ms",
		metric.WithDescription("Task step latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	taskErrors, err := meter.Int64Counter("taskflow.task.errors",
		metric.WithDescription("Number of task steps that raised an error"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter("taskflow.run.runs",
		metric.WithDescription("Number of flow runs"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("taskflow.run.latency_ms",
		metric.WithDescription("Flow run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter("taskflow.transition.rejections",
		metric.WithDescription("Number of next-task requests outside the declared flow"),
	)
	if err != nil {
		return nil, err
	}

	journalSize, err := meter.Int64Histogram("taskflow.journal.size_bytes",
		metric.WithDescription("Journal record size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		taskExecutions: taskExecutions,
		taskLatency:    taskLatency,
		taskErrors:     taskErrors,
		runs:           runs,
		runLatency:     runLatency,
		rejections:     rejections,
		journalSize:    journalSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel
// meter provider, or a no-op recorder if the instruments cannot be created.
// Configure the provider before the first call:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordTaskExecution(ctx context.Context, task string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("task", task))

	m.taskExecutions.Add(ctx, 1, attrs)
	m.taskLatency.Record(ctx, float64(duration.Milliseconds()), attrs)

	if err != nil {
		m.taskErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordRun(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordTransitionRejected(ctx context.Context, from string) {
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("task", from)))
}

func (m *otelMetrics) RecordJournal(ctx context.Context, task string, sizeBytes int64) {
	m.journalSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("task", task)))
}
