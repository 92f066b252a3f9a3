package taskflow

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

// Trail is the payload used across tests.
type Trail struct {
	Visited []string `json:"visited"`
	Count   int      `json:"count"`
}

func (t Trail) with(name string) Trail {
	t.Visited = append(append([]string(nil), t.Visited...), name)
	t.Count++
	return t
}

// visit records its name and keeps the default successor.
func visit(name string) StepFunc[Trail] {
	return func(_ Context, t Trail) (Trail, error) {
		return t.with(name), nil
	}
}

// routeTo records its name and requests next.
func routeTo(name, next string) StepFunc[Trail] {
	return func(ctx Context, t Trail) (Trail, error) {
		ctx.SetNextTask(next)
		return t.with(name), nil
	}
}

// failWith records its name and returns err.
func failWith(name string, err error) StepFunc[Trail] {
	return func(_ Context, t Trail) (Trail, error) {
		return t.with(name), err
	}
}

// visitAll registers a visit step for every name.
func visitAll(f *Flow[Trail], names ...string) *Flow[Trail] {
	for _, name := range names {
		f.RegisterTask(name, visit(name))
	}
	return f
}

// chain builds a linear flow over names with a visit step per task.
func chain(names ...string) *Flow[Trail] {
	f := visitAll(NewFlow[Trail](), names...)
	f.StartWith(names[0])
	for _, name := range names[1:] {
		f.FollowedBy(name)
	}
	return f
}

// testCtx returns a cancellable context cleaned up with the test.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runWithHistory runs f quietly and returns the result and what listeners saw.
func runWithHistory(t *testing.T, f *Flow[Trail], in Trail, opts ...RunOption) (Trail, *History) {
	t.Helper()
	h := NewHistory()
	opts = append([]RunOption{WithLogger(quietLogger()), WithListener(h)}, opts...)
	return f.Run(testCtx(t), in, opts...), h
}
