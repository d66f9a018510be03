// Package memflow provides a top-level convenience entry point for the
// task-memory and parameter-evolution pipeline.
//
// Usage:
//
//	import "github.com/BaSui01/memflow"
//
//	co, err := memflow.New()
//	co, err := memflow.New(memflow.WithConfigFile("memflow.yaml"))
//	co, err := memflow.New(memflow.WithArchive("memflow.db"))
//
// This is a thin wrapper around [quick.New]; both produce identical
// results. Use this package when you prefer the shorter import path.
package memflow

import (
	"github.com/BaSui01/memflow/core"
	"github.com/BaSui01/memflow/quick"
)

// Option configures the coordinator created by [New].
type Option = quick.Option

// New creates a [core.Coordinator] with minimal configuration. With no
// options it is fully operable on defaults.
func New(opts ...Option) (*core.Coordinator, error) {
	return quick.New(opts...)
}

// Re-export option constructors so callers never need to import quick/.

// WithConfig supplies a pre-built configuration.
var WithConfig = quick.WithConfig

// WithConfigFile loads configuration from a YAML file.
var WithConfigFile = quick.WithConfigFile

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger

// WithRedis backs the short-term tier with Redis.
var WithRedis = quick.WithRedis

// WithArchive persists long-term memory in a SQLite file.
var WithArchive = quick.WithArchive

// WithCoordinatorOptions forwards construction options to core.
var WithCoordinatorOptions = quick.WithCoordinatorOptions
