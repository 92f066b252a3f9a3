// Package demo builds the sample flow used by the taskflow CLI.
//
// The flow exercises every builder operation:
//
//	A -> B -> C -> { D -> G -> H
//	                 E -> { I -> J -> D, B, C, E }
//	                 F -> A             (always fails)
//	                 K -> A             (routes to HandledExceptionTask)
//	                 L -> A }           (routes to AnotherHandledExceptionTask)
//
// C and E pick their branch through a Chooser.
package demo

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/randalmurphal/taskflow/pkg/taskflow"
	"github.com/randalmurphal/taskflow/pkg/taskflow/route"
)

// Handled-exception task names.
const (
	HandledExceptionTask        = "HandledExceptionTask"
	AnotherHandledExceptionTask = "AnotherHandledExceptionTask"
)

// ticks is the number of cancellation checks a simple task makes.
const ticks = 10

// Payload is threaded through the demo flow.
type Payload struct {
	Message string   `json:"message"`
	Choice  int      `json:"choice"`
	Log     []string `json:"log"`
}

func (p Payload) note(format string, args ...any) Payload {
	p.Log = append(append([]string(nil), p.Log...), fmt.Sprintf(format, args...))
	return p
}

// Chooser picks a branch index in [0, cases) for a branching task.
type Chooser func(task string, cases int) int

// Scripted returns a Chooser that answers from choices in order and then
// always picks the first branch. It is safe for concurrent use.
func Scripted(choices ...int) Chooser {
	var mu sync.Mutex
	queue := append([]int(nil), choices...)
	return func(string, int) int {
		mu.Lock()
		defer mu.Unlock()
		if len(queue) == 0 {
			return 0
		}
		c := queue[0]
		queue = queue[1:]
		return c
	}
}

// Random returns a seeded Chooser. It is safe for concurrent use.
func Random(seed uint64) Chooser {
	var mu sync.Mutex
	rng := rand.New(rand.NewPCG(seed, seed))
	return func(_ string, cases int) int {
		mu.Lock()
		defer mu.Unlock()
		return rng.IntN(cases)
	}
}

// Options configures the demo flow.
type Options struct {
	// Delay is the simulated work per task. Zero runs instantly.
	Delay time.Duration

	// Choose picks branches for C and E. Default: always the first branch.
	Choose Chooser
}

// selectCase routes on the choice the branching step stored in the payload.
var selectCase = route.MustCompileIndex("payload.Choice % len(successors)")

// Build returns the demo flow.
func Build(opts Options) *taskflow.Flow[Payload] {
	if opts.Choose == nil {
		opts.Choose = Scripted()
	}

	tasks := []taskflow.Task[Payload]{
		{Name: "A", Step: simple("A", opts.Delay)},
		{Name: "B", Step: simple("B", opts.Delay)},
		{Name: "C", Step: branching("C", 5, opts)},
		{Name: "D", Step: simple("D", opts.Delay)},
		{Name: "E", Step: branching("E", 4, opts)},
		{Name: "F", Step: failing("F", opts.Delay)},
		{Name: "G", Step: simple("G", opts.Delay)},
		{Name: "H", Step: simple("H", opts.Delay)},
		{Name: "I", Step: simple("I", opts.Delay)},
		{Name: "J", Step: simple("J", opts.Delay)},
		{Name: "K", Step: escaping("K", HandledExceptionTask, opts.Delay)},
		{Name: "L", Step: escaping("L", AnotherHandledExceptionTask, opts.Delay)},
		{Name: HandledExceptionTask, Step: recovery("the handled exception state, doing something afterwards")},
		{Name: AnotherHandledExceptionTask, Step: recovery("another handled exception state")},
	}

	start := func(name string) *taskflow.Flow[Payload] {
		return taskflow.NewFlow[Payload]().StartWith(name)
	}

	flow := taskflow.NewFlow[Payload]().
		RegisterTasks(tasks...).
		StartWith("A").
		FollowedBy("B").
		FollowedBy("C").
		ConditionalFlow(
			start("D").FollowedBy("G").FollowedBy("H"),
			start("E").ConditionalFlow(
				start("I").FollowedBy("J").FollowedBy("D"),
				start("B"),
				start("C"),
				start("E"),
			),
			start("F").FollowedBy("A"),
			start("K").FollowedBy("A"),
			start("L").FollowedBy("A"),
		).
		AddHandledExceptionTasks(HandledExceptionTask, AnotherHandledExceptionTask)
	flow.AddUnhandledExceptionTask(recovery("the unhandled exception state, handling the global exception"))
	return flow
}

// work simulates a task, checking for cancellation between ticks.
// It reports false if the run was cancelled.
func work(ctx taskflow.Context, delay time.Duration) bool {
	for i := 0; i < ticks; i++ {
		if ctx.Err() != nil {
			ctx.Logger().Info("task cancelled", slog.Int("tick", i))
			return false
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(delay / ticks):
			}
		}
	}
	return true
}

func simple(name string, delay time.Duration) taskflow.StepFunc[Payload] {
	return func(ctx taskflow.Context, p Payload) (Payload, error) {
		ctx.Logger().Info("run task", slog.String("previous", p.Message))
		p = p.note("run task %s", name)
		if !work(ctx, delay) {
			return p, nil
		}
		p.Message = "a message comes from task " + name
		return p, nil
	}
}

func branching(name string, cases int, opts Options) taskflow.StepFunc[Payload] {
	choose := func(ctx taskflow.Context, p Payload) (Payload, error) {
		p, err := simple(name, opts.Delay)(ctx, p)
		if err != nil {
			return p, err
		}
		p.Choice = opts.Choose(name, cases)
		ctx.Logger().Info("branch chosen", slog.Int("choice", p.Choice))
		return p, nil
	}
	return route.IndexStep(selectCase, choose)
}

func failing(name string, delay time.Duration) taskflow.StepFunc[Payload] {
	return func(ctx taskflow.Context, p Payload) (Payload, error) {
		p = p.note("run task %s", name)
		ctx.Logger().Info("going to fail")
		work(ctx, delay)
		return p, fmt.Errorf("exception thrown by %s", name)
	}
}

func escaping(name, handler string, delay time.Duration) taskflow.StepFunc[Payload] {
	return func(ctx taskflow.Context, p Payload) (Payload, error) {
		p = p.note("run task %s", name)
		work(ctx, delay)
		ctx.Logger().Info("recovered locally", slog.String("handler", handler))
		ctx.SetNextTask(handler)
		return p, nil
	}
}

func recovery(message string) taskflow.StepFunc[Payload] {
	return func(ctx taskflow.Context, p Payload) (Payload, error) {
		ctx.Logger().Info(message)
		return p.note("%s", message), nil
	}
}
