package benchmarks

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/randalmurphal/taskflow/pkg/taskflow"
	"github.com/randalmurphal/taskflow/pkg/taskflow/route"
)

func benchContext(b *testing.B) context.Context {
	b.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	b.Cleanup(cancel)
	return ctx
}

// quiet discards run logs.
var quiet = taskflow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

func benchRun(b *testing.B, f *taskflow.Flow[State], opts ...taskflow.RunOption) {
	b.Helper()
	ctx := benchContext(b)
	opts = append([]taskflow.RunOption{quiet}, opts...)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = f.Run(ctx, State{Value: i}, opts...)
	}
}

// BenchmarkRun_Linear_5 runs a 5-task chain.
func BenchmarkRun_Linear_5(b *testing.B) {
	benchRun(b, buildLinearFlow(5))
}

// BenchmarkRun_Linear_10 runs a 10-task chain.
func BenchmarkRun_Linear_10(b *testing.B) {
	benchRun(b, buildLinearFlow(10))
}

// BenchmarkRun_Linear_50 runs a 50-task chain.
func BenchmarkRun_Linear_50(b *testing.B) {
	benchRun(b, buildLinearFlow(50))
}

// BenchmarkRun_Linear_100 runs a 100-task chain.
func BenchmarkRun_Linear_100(b *testing.B) {
	benchRun(b, buildLinearFlow(100))
}

// BenchmarkRun_Branching runs a flow whose router picks a branch.
func BenchmarkRun_Branching(b *testing.B) {
	benchRun(b, buildBranchingFlow())
}

// BenchmarkRun_ExpressionRouting picks the branch with a compiled expression.
func BenchmarkRun_ExpressionRouting(b *testing.B) {
	sel := route.MustCompileIndex("payload.Value % len(successors)")
	f := buildBranchingFlow().RegisterTask("router", route.IndexStep[State](sel, nil))
	benchRun(b, f)
}

// BenchmarkRun_Loop runs a flow looping 3 times.
func BenchmarkRun_Loop(b *testing.B) {
	benchRun(b, buildLoopFlow(3))
}

// BenchmarkRun_Loop_10 runs a flow looping 10 times.
func BenchmarkRun_Loop_10(b *testing.B) {
	benchRun(b, buildLoopFlow(10))
}

// BenchmarkRun_WithHistory runs a 10-task chain with a recording listener.
func BenchmarkRun_WithHistory(b *testing.B) {
	benchRun(b, buildLinearFlow(10), taskflow.WithListener(taskflow.NewHistory()))
}

// BenchmarkRun_Permissive runs a 10-task chain without transition checks.
func BenchmarkRun_Permissive(b *testing.B) {
	benchRun(b, buildLinearFlow(10), taskflow.WithPermissiveTransitions())
}

func buildLoopFlow(maxIterations int) *taskflow.Flow[State] {
	start := func(name string) *taskflow.Flow[State] {
		return taskflow.NewFlow[State]().StartWith(name)
	}
	return taskflow.NewFlow[State]().
		RegisterTask("increment", func(ctx taskflow.Context, s State) (State, error) {
			s.Count++
			if s.Count < maxIterations {
				ctx.SetNextTask("increment")
			}
			return s, nil
		}).
		RegisterTask("done", noopTask).
		StartWith("increment").
		ConditionalFlow(
			start("done"),
			start("increment"),
		)
}
