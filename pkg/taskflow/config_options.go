package taskflow

import (
	"github.com/randalmurphal/taskflow/pkg/taskflow/config"
)

// OptionsFromConfig maps a configuration section onto run options.
//
// Recognised keys:
//
//	run_id:             fixed run id (default: random)
//	flow_name:          flow name in traces
//	max_steps:          step budget, 0 for unlimited
//	strict_transitions: reject undeclared next tasks (default true)
//	metrics:            enable OpenTelemetry metrics
//	tracing:            enable OpenTelemetry tracing
//
// Unknown keys are ignored. Options passed to Run after these override them.
func OptionsFromConfig(cfg config.Config) []RunOption {
	var opts []RunOption

	if id := cfg.String("run_id", ""); id != "" {
		opts = append(opts, WithRunID(id))
	}
	if name := cfg.String("flow_name", ""); name != "" {
		opts = append(opts, WithFlowName(name))
	}
	if n := cfg.Int("max_steps", 0); n > 0 {
		opts = append(opts, WithMaxSteps(n))
	}
	if !cfg.Bool("strict_transitions", true) {
		opts = append(opts, WithPermissiveTransitions())
	}
	if cfg.Bool("metrics", false) {
		opts = append(opts, WithMetrics(true))
	}
	if cfg.Bool("tracing", false) {
		opts = append(opts, WithTracing(true))
	}
	return opts
}
