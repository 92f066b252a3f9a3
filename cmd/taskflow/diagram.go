package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/taskflow/internal/demo"
	"github.com/randalmurphal/taskflow/pkg/taskflow"
	"github.com/randalmurphal/taskflow/pkg/taskflow/render"
)

type diagramOptions struct {
	title  string
	format string
	render bool
	save   bool
	dir    string
	out    string
	dot    string
}

func newDiagramCmd(global *globalOptions) *cobra.Command {
	opts := &diagramOptions{}

	cmd := &cobra.Command{
		Use:   "diagram",
		Short: "Describe the sample task flow",
		Long: `Print the sample flow as a Graphviz DOT or Mermaid description.

With --render the DOT description is piped through the Graphviz dot binary.
--save keeps the image as <title>.png in --dir, --out writes it to a file,
otherwise the image bytes go to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiagram(cmd, global, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.title, "title", taskflow.DefaultDiagramTitle, "diagram title")
	f.StringVar(&opts.format, "format", "dot", "description format: dot or mermaid")
	f.BoolVar(&opts.render, "render", false, "render the DOT description with Graphviz")
	f.BoolVar(&opts.save, "save", false, "save the rendered image as <title>.png")
	f.StringVar(&opts.dir, "dir", "", "directory for --save")
	f.StringVarP(&opts.out, "out", "o", "", "write the rendered image to this file")
	f.StringVar(&opts.dot, "dot", "dot", "path to the Graphviz dot binary")
	return cmd
}

func runDiagram(cmd *cobra.Command, global *globalOptions, opts *diagramOptions) error {
	flow := demo.Build(demo.Options{})

	if !opts.render {
		var (
			desc string
			err  error
		)
		switch opts.format {
		case "dot":
			desc, err = flow.DOT(opts.title)
		case "mermaid":
			desc, err = flow.Mermaid()
		default:
			return fmt.Errorf("unknown format %q, want dot or mermaid", opts.format)
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), desc)
		return err
	}

	if opts.format != "dot" {
		return fmt.Errorf("--render needs --format dot, got %q", opts.format)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	gv := render.NewGraphviz(render.WithPath(opts.dot), render.WithOutputDir(opts.dir))
	logErrors := taskflow.ListenerFunc(func(n taskflow.Notification) {
		global.logger.Error("diagram failed",
			slog.String("source", n.Source),
			slog.String("error", n.Err.Error()),
		)
	})

	img, err := flow.DrawDiagram(ctx, gv, opts.title, opts.save, logErrors)
	if err != nil {
		return err
	}

	switch {
	case opts.out != "":
		if err := os.WriteFile(opts.out, img, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", opts.out, err)
		}
	case !opts.save:
		_, err = cmd.OutOrStdout().Write(img)
		return err
	}
	return nil
}
