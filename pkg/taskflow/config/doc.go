// Package config reads taskflow settings from YAML or JSON.
//
// A typical file groups run settings and logging settings:
//
//	run:
//	  max_steps: 500
//	  strict_transitions: true
//	  metrics: true
//	log:
//	  level: debug
//	  file: flow.log
//	  override: true
//
// Load it and pass sections to the packages that consume them:
//
//	cfg, err := config.FromFile("taskflow.yaml")
//	if err != nil {
//	    return err
//	}
//	opts := taskflow.OptionsFromConfig(cfg.Sub("run"))
//	logger, closer, err := observability.LoggerFromConfig(cfg.Sub("log"))
//
// Accessors never fail. A missing key or a value of the wrong type yields the
// fallback passed by the caller.
package config
