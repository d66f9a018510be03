// =============================================================================
// Package quick — One-Line Pipeline Construction
// =============================================================================
// Provides a convenience entry point for creating a fully wired
// Coordinator with minimal boilerplate. Delegates to config.Loader and
// core.NewCoordinator internally.
//
// Usage:
//
//	import "github.com/BaSui01/memflow/quick"
//
//	co, err := quick.New()
//	co, err := quick.New(quick.WithConfigFile("memflow.yaml"))
//	co, err := quick.New(quick.WithArchive("memflow.db"), quick.WithRedis("localhost:6379"))
//
// Without WithConfigFile, the path in the MEMFLOW_CONFIG environment
// variable is used; without that, defaults plus MEMFLOW_* overrides.
// =============================================================================
package quick

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/core"
)

// Option configures the coordinator created by New.
type Option func(*options)

type options struct {
	cfg         *config.Config
	configPath  string
	logger      *zap.Logger
	redisAddr   string
	archivePath string
	coordOpts   []core.Option
}

// WithConfig supplies a pre-built configuration, skipping the loader.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigFile loads configuration from the given YAML file. A
// missing file leaves defaults in effect.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithLogger sets a custom zap logger. Defaults to a logger built
// from the loaded log configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRedis backs the short-term tier with the Redis server at addr.
func WithRedis(addr string) Option {
	return func(o *options) { o.redisAddr = addr }
}

// WithArchive persists long-term memory in a SQLite file at path,
// restored on Start and snapshotted on Stop.
func WithArchive(path string) Option {
	return func(o *options) { o.archivePath = path }
}

// WithCoordinatorOptions forwards construction options to
// core.NewCoordinator, for injecting clocks, random sources, or
// stores.
func WithCoordinatorOptions(opts ...core.Option) Option {
	return func(o *options) { o.coordOpts = append(o.coordOpts, opts...) }
}

// New creates a Coordinator with minimal configuration.
func New(opts ...Option) (*core.Coordinator, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil {
		path := o.configPath
		if path == "" {
			path = os.Getenv("MEMFLOW_CONFIG")
		}
		var err error
		cfg, err = config.NewLoader().WithConfigPath(path).Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		// Shortcut options below must not mutate the caller's struct.
		copied := *cfg
		cfg = &copied
	}

	if o.redisAddr != "" {
		cfg.Memory.ShortTermBackend = "redis"
		cfg.Memory.Redis.Addr = o.redisAddr
	}
	if o.archivePath != "" {
		cfg.Memory.Archive.Enabled = true
		cfg.Memory.Archive.Path = o.archivePath
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = cfg.Log.BuildLogger()
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}

	return core.NewCoordinator(cfg, logger, o.coordOpts...)
}
