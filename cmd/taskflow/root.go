package main

import (
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/taskflow/pkg/taskflow/config"
	"github.com/randalmurphal/taskflow/pkg/taskflow/observability"
)

var version = "dev"

// globalOptions is shared by every subcommand and filled in before they run.
type globalOptions struct {
	configPath string
	logLevel   string
	logFile    string

	cfg    config.Config
	logger *slog.Logger
	closer io.Closer
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "taskflow",
		Short: "Run and inspect task flows",
		Long: `taskflow drives the sample task flow: a directed graph of named tasks
with conditional branches, handled exception tasks and a global unhandled
exception task.

Use "demo" to run it and "diagram" to describe it as Graphviz or Mermaid.`,
		Version:           version,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
		PersistentPreRunE: opts.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return opts.teardown()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML or JSON config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "append logs to this file instead of stderr (overrides config)")

	cmd.AddCommand(
		newDemoCmd(opts),
		newDiagramCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *globalOptions) setup(_ *cobra.Command, _ []string) error {
	o.cfg = config.New(nil)
	if o.configPath != "" {
		cfg, err := config.FromFile(o.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		o.cfg = cfg
	}

	logValues := maps.Clone(o.cfg.Sub("log").Raw())
	if logValues == nil {
		logValues = make(map[string]any)
	}
	if _, ok := logValues["level"]; !ok {
		logValues["level"] = "warn"
	}
	if o.logLevel != "" {
		logValues["level"] = o.logLevel
	}
	if o.logFile != "" {
		logValues["file"] = o.logFile
	}

	logger, closer, err := observability.LoggerFromConfig(config.New(logValues))
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	o.logger = logger
	o.closer = closer
	return nil
}

func (o *globalOptions) teardown() error {
	if o.closer == nil {
		return nil
	}
	err := o.closer.Close()
	o.closer = nil
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskflow version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskflow %s\n", version)
		},
	}
}
