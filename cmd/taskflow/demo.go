package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/taskflow/internal/demo"
	"github.com/randalmurphal/taskflow/pkg/taskflow"
	"github.com/randalmurphal/taskflow/pkg/taskflow/event"
	"github.com/randalmurphal/taskflow/pkg/taskflow/journal"
)

type demoOptions struct {
	runs     int
	seed     uint64
	choices  string
	delay    time.Duration
	maxSteps int
	journal  string
	resume   string
	events   bool
}

func newDemoCmd(global *globalOptions) *cobra.Command {
	opts := &demoOptions{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the sample task flow",
		Long: `Run the sample A..L task flow and print the path every run took.

Branches at C and E follow --choices (comma separated indexes, then the
default branch) or a random generator seeded with --seed. Press Ctrl-C to
cancel; tasks stop at their next cancellation check.

With --journal every transition is stored in a SQLite file and
--resume <run-id> continues a cancelled run from its last transition.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, global, opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.runs, "runs", 1, "number of concurrent runs")
	f.Uint64Var(&opts.seed, "seed", 0, "seed for random branch choices")
	f.StringVar(&opts.choices, "choices", "", "scripted branch choices, e.g. 2,0")
	f.DurationVar(&opts.delay, "delay", 0, "simulated work per task")
	f.IntVar(&opts.maxSteps, "max-steps", 0, "stop a run after this many steps (0 = config or unlimited)")
	f.StringVar(&opts.journal, "journal", "", "SQLite journal file")
	f.StringVar(&opts.resume, "resume", "", "resume this run id from the journal")
	f.BoolVar(&opts.events, "events", false, "print every notification as a JSON event")
	return cmd
}

// demoResult is what one run printed.
type demoResult struct {
	runID   string
	payload demo.Payload
	history *taskflow.History
	err     error
}

func runDemo(cmd *cobra.Command, global *globalOptions, opts *demoOptions) error {
	if opts.runs < 1 {
		return fmt.Errorf("--runs must be at least 1, got %d", opts.runs)
	}
	if opts.resume != "" && opts.journal == "" {
		return errors.New("--resume requires --journal")
	}
	scripted, err := parseChoices(opts.choices)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	out := &lockedWriter{w: cmd.OutOrStdout()}

	runOpts := taskflow.OptionsFromConfig(global.cfg.Sub("run"))
	runOpts = append(runOpts, taskflow.WithLogger(global.logger))
	if opts.maxSteps > 0 {
		runOpts = append(runOpts, taskflow.WithMaxSteps(opts.maxSteps))
	}

	var store journal.Store
	if opts.journal != "" {
		s, err := journal.NewSQLiteStore(opts.journal)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer s.Close()
		store = s
		runOpts = append(runOpts, taskflow.WithJournal(store))
	}

	// flush drains queued events so they print before the summary.
	flush := func() {}
	if opts.events {
		bus := event.NewBus(event.BusConfig{})
		bus.Subscribe(event.Typed(func(_ context.Context, p taskflow.NotificationPayload, meta event.Metadata) error {
			return printEvent(out, meta, p)
		}))
		defer bus.Close()
		flush = func() { _ = bus.Close() }
		runOpts = append(runOpts, taskflow.WithListener(taskflow.BusListener(bus)))
	}

	flowFor := func(i int) *taskflow.Flow[demo.Payload] {
		o := demo.Options{Delay: opts.delay}
		switch {
		case scripted != nil:
			o.Choose = demo.Scripted(scripted...)
		case cmd.Flags().Changed("seed"):
			o.Choose = demo.Random(opts.seed + uint64(i))
		}
		return demo.Build(o)
	}

	if opts.resume != "" {
		res := demoResult{runID: opts.resume, history: taskflow.NewHistory()}
		ropts := append(append([]taskflow.RunOption(nil), runOpts...), taskflow.WithListener(res.history))
		res.payload, res.err = flowFor(0).Resume(ctx, store, opts.resume, ropts...)
		flush()
		if res.err != nil {
			return fmt.Errorf("resume %s: %w", opts.resume, res.err)
		}
		printResult(out, res)
		return nil
	}

	results := make([]demoResult, opts.runs)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			res := &results[i]
			res.history = taskflow.NewHistory()
			ropts := append(append([]taskflow.RunOption(nil), runOpts...), taskflow.WithListener(res.history))

			run := flowFor(i).Start(ctx, demo.Payload{Message: "demo run"}, ropts...)
			res.runID = run.RunID()
			res.payload = run.Wait()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	flush()

	for _, res := range results {
		printResult(out, res)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("demo interrupted: %w", ctx.Err())
	}
	return nil
}

func parseChoices(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid --choices entry %q: %w", p, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid --choices entry %q: must not be negative", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func printResult(w io.Writer, res demoResult) {
	outcome := "finished"
	for _, t := range res.history.Types() {
		if t == taskflow.RunAborted {
			outcome = "aborted"
		}
	}

	fmt.Fprintf(w, "run %s (%s)\n", res.runID, outcome)
	fmt.Fprintf(w, "  path:    %s\n", strings.Join(res.history.Visited(), " -> "))
	fmt.Fprintf(w, "  message: %s\n", res.payload.Message)
	for _, err := range res.history.Errors() {
		fmt.Fprintf(w, "  error:   %v\n", err)
	}
}

type eventLine struct {
	Type      string                       `json:"type"`
	RunID     string                       `json:"run_id"`
	Timestamp time.Time                    `json:"timestamp"`
	Data      taskflow.NotificationPayload `json:"data"`
}

func printEvent(w io.Writer, meta event.Metadata, p taskflow.NotificationPayload) error {
	line, err := json.Marshal(eventLine{
		Type:      meta.EventType,
		RunID:     meta.CorrelationID,
		Timestamp: meta.Timestamp,
		Data:      p,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", line)
	return err
}

// lockedWriter serializes writes from the event bus and the run summary.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
