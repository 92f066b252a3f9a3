package taskflow

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// captureHandler records log records as JSON lines.
type captureHandler struct {
	mu    *sync.Mutex
	buf   *bytes.Buffer
	attrs []slog.Attr
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{mu: &sync.Mutex{}, buf: &bytes.Buffer{}}
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, a := range h.attrs {
		data[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &captureHandler{mu: h.mu, buf: h.buf, attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func (h *captureHandler) records() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []map[string]any
	for _, line := range bytes.Split(h.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (h *captureHandler) messages() []string {
	var out []string
	for _, r := range h.records() {
		out = append(out, r["msg"].(string))
	}
	return out
}

func TestRun_Logging(t *testing.T) {
	h := newCaptureHandler()
	f := chain("a", "b")
	f.RegisterTask("a", func(ctx Context, tr Trail) (Trail, error) {
		ctx.Logger().Info("working")
		return tr, nil
	})

	f.Run(testCtx(t), Trail{}, WithRunID("log-run"), WithLogger(slog.New(h)))

	msgs := h.messages()
	assert.Equal(t, []string{
		"task flow started",
		"task starting",
		"working",
		"task completed",
		"task starting",
		"task completed",
		"task flow completed",
	}, msgs)

	for _, r := range h.records() {
		if r["msg"] == "working" {
			assert.Equal(t, "log-run", r["run_id"])
			assert.Equal(t, "a", r["task"])
		}
	}
}

func TestRun_LoggingFailures(t *testing.T) {
	h := newCaptureHandler()
	f := chain("a", "b", "c")
	f.RegisterTask("a", routeTo("a", "nowhere"))

	f.Run(testCtx(t), Trail{}, WithLogger(slog.New(h)))
	assert.Contains(t, h.messages(), "next task does not follow current task")

	h = newCaptureHandler()
	f.Run(testCtx(t), Trail{}, WithLogger(slog.New(h)), WithPermissiveTransitions())
	assert.Contains(t, h.messages(), "accepting next task outside the declared flow")
	assert.Contains(t, h.messages(), "task has never been configured")

	h = newCaptureHandler()
	f.RegisterTask("a", failWith("a", errBoom))
	f.Run(testCtx(t), Trail{}, WithLogger(slog.New(h)))
	assert.Contains(t, h.messages(), "task failed")
}

// The global providers can only be installed once per process, so metrics
// and tracing share one test.
func TestRun_MetricsAndTracing(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := chain("a", "b")
	f.RegisterTask("b", failWith("b", errBoom))
	f.AddUnhandledExceptionTask(visit("global"))

	runWithHistory(t, f, Trail{}, WithMetrics(true), WithTracing(true), WithFlowName("traced"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(3), sums["taskflow.task.executions"])
	assert.Equal(t, int64(1), sums["taskflow.task.errors"])
	assert.Equal(t, int64(1), sums["taskflow.run.runs"])

	spans := exporter.GetSpans()
	names := map[string]bool{}
	for _, s := range spans {
		names[s.Name] = true
	}
	assert.True(t, names["taskflow.run"])
	assert.True(t, names["taskflow.task.a"])
	assert.True(t, names["taskflow.task.b"])
	assert.True(t, names["taskflow.task."+UnhandledExceptionTask])
}
