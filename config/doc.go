/*
Package config provides the MemFlow configuration tree with defaults,
validation, and a loader that layers YAML files and environment overrides.

Priority: defaults, then the YAML file, then MEMFLOW_* environment
variables. Every option has a working default, so the library is fully
operable with zero configuration:

	cfg, err := config.NewLoader().
	    WithConfigPath("memflow.yaml").
	    Load()

Validation failures surface as INVALID_CONFIGURATION errors and are fatal
at construction time.
*/
package config
