// =============================================================================
// MemFlow configuration loader
// =============================================================================
// Unified configuration loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("memflow.yaml").
//	    WithEnvPrefix("MEMFLOW").
//	    Load()
//
// Priority: defaults -> YAML file -> environment variables.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// Configuration structure
// =============================================================================

// Config is the complete MemFlow configuration.
type Config struct {
	// Memory configures the two store tiers, retrieval, and consolidation.
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`

	// Evolution configures the genome population and generation advance.
	Evolution EvolutionConfig `yaml:"evolution" env:"EVOLUTION"`

	// Fitness configures the outcome-to-fitness mapping.
	Fitness FitnessConfig `yaml:"fitness" env:"FITNESS"`

	// Log configures the zap logger built by LogConfig.BuildLogger.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics configures the Prometheus collector.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry configures the OpenTelemetry SDK.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// MemoryConfig configures both memory tiers and the consolidation pass.
type MemoryConfig struct {
	// ShortTermMax bounds the short-term tier; beyond it the
	// least-recently-inserted unpromoted record is evicted.
	ShortTermMax int `yaml:"short_term_max" env:"SHORT_TERM_MAX"`

	// LongTermMax soft-bounds the long-term tier; beyond it the
	// lowest-value record is evicted.
	LongTermMax int `yaml:"long_term_max" env:"LONG_TERM_MAX"`

	// SimilarityThreshold excludes retrieval results scoring below it.
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`

	// ResultLimit truncates retrieval results when the caller does not
	// override the limit.
	ResultLimit int `yaml:"result_limit" env:"RESULT_LIMIT"`

	// ConsolidationInterval is the wall-clock period of the background
	// consolidation pass. Half the interval is also the age gate for
	// promoting records that were never retrieved.
	ConsolidationInterval time.Duration `yaml:"consolidation_interval" env:"CONSOLIDATION_INTERVAL"`

	// HistoryMax bounds the task-history ring.
	HistoryMax int `yaml:"history_max" env:"HISTORY_MAX"`

	// ExperienceMax bounds the experience log.
	ExperienceMax int `yaml:"experience_max" env:"EXPERIENCE_MAX"`

	// SignificantKeys lists the context keys whose string values are
	// folded into the fingerprint.
	SignificantKeys []string `yaml:"significant_keys" env:"SIGNIFICANT_KEYS"`

	// ShortTermBackend selects the short-tier store: "memory" or "redis".
	ShortTermBackend string `yaml:"short_term_backend" env:"SHORT_TERM_BACKEND"`

	// Redis configures the short tier when ShortTermBackend is "redis".
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Archive configures the SQLite snapshot of the long-term tier.
	Archive ArchiveConfig `yaml:"archive" env:"ARCHIVE"`
}

// RedisConfig configures the optional Redis-backed short tier.
type RedisConfig struct {
	// Address of the Redis server.
	Addr string `yaml:"addr" env:"ADDR"`
	// Password, empty for none.
	Password string `yaml:"password" env:"PASSWORD"`
	// Database number.
	DB int `yaml:"db" env:"DB"`
	// Connection pool size.
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// Minimum idle connections.
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// KeyPrefix namespaces the keys used by the store.
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// ArchiveConfig configures the long-term tier snapshot archive.
type ArchiveConfig struct {
	// Enabled turns the archive on; Start restores and Stop snapshots.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Path of the SQLite database file.
	Path string `yaml:"path" env:"PATH"`
}

// EvolutionConfig configures the genome population.
type EvolutionConfig struct {
	// PopulationSize is the constant population size N, at least 4.
	PopulationSize int `yaml:"population_size" env:"POPULATION_SIZE"`

	// MinSamples gates generation advancement on the number of fitness
	// samples accumulated for the active genome.
	MinSamples int `yaml:"min_samples" env:"MIN_SAMPLES"`

	// TargetFitness normalizes the evolution-progress metric.
	TargetFitness float64 `yaml:"target_fitness" env:"TARGET_FITNESS"`

	// HistoryMax bounds the generation-history ring.
	HistoryMax int `yaml:"history_max" env:"HISTORY_MAX"`

	// InitialLearningRate seeds genome zero. Bounds [1e-5, 1.0].
	InitialLearningRate float64 `yaml:"initial_learning_rate" env:"INITIAL_LEARNING_RATE"`

	// InitialExplorationFactor seeds genome zero. Bounds [0, 1].
	InitialExplorationFactor float64 `yaml:"initial_exploration_factor" env:"INITIAL_EXPLORATION_FACTOR"`

	// InitialMutationRate seeds genome zero. Bounds [0, 1].
	InitialMutationRate float64 `yaml:"initial_mutation_rate" env:"INITIAL_MUTATION_RATE"`
}

// FitnessConfig configures the outcome-to-fitness mapping.
type FitnessConfig struct {
	// SuccessWeight scales the success flag contribution.
	SuccessWeight float64 `yaml:"success_weight" env:"SUCCESS_WEIGHT"`
	// ConfidenceWeight scales the confidence contribution.
	ConfidenceWeight float64 `yaml:"confidence_weight" env:"CONFIDENCE_WEIGHT"`
	// LatencyWeight scales the latency contribution.
	LatencyWeight float64 `yaml:"latency_weight" env:"LATENCY_WEIGHT"`
	// LatencyCap is the ceiling beyond which latency contributes zero.
	LatencyCap time.Duration `yaml:"latency_cap" env:"LATENCY_CAP"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths for the logger.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with the call site.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace attaches stack traces at error level.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	// Enabled registers the collector with the default registry.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig configures the OpenTelemetry SDK.
type TelemetryConfig struct {
	// Enabled turns SDK initialization on; off means noop providers.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLPEndpoint receives traces and metrics over gRPC.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// ServiceName reported in the OTel resource.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// SampleRate for trace sampling, in [0, 1].
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// Loader
// =============================================================================

// Loader loads configuration using the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "MEMFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a custom validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the configuration.
// Priority: defaults -> YAML file -> environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile reads the YAML file into cfg. A missing file is not an
// error; defaults stay in effect.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv applies environment variable overrides.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct recursively, matching env tags.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue parses value into the field according to its kind.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration accepts "1h30m" style values.
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// MustLoad loads the configuration and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads the configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks every bound documented on the config fields.
// It returns an INVALID_CONFIGURATION error naming all violations.
func (c *Config) Validate() error {
	var errs []string

	if c.Memory.ShortTermMax <= 0 {
		errs = append(errs, fmt.Sprintf("memory.short_term_max must be positive, got %d", c.Memory.ShortTermMax))
	}
	if c.Memory.LongTermMax <= 0 {
		errs = append(errs, fmt.Sprintf("memory.long_term_max must be positive, got %d", c.Memory.LongTermMax))
	}
	if c.Memory.SimilarityThreshold < 0 || c.Memory.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Sprintf("memory.similarity_threshold must be in [0,1], got %g", c.Memory.SimilarityThreshold))
	}
	if c.Memory.ResultLimit <= 0 {
		errs = append(errs, fmt.Sprintf("memory.result_limit must be positive, got %d", c.Memory.ResultLimit))
	}
	if c.Memory.ConsolidationInterval <= 0 {
		errs = append(errs, fmt.Sprintf("memory.consolidation_interval must be positive, got %s", c.Memory.ConsolidationInterval))
	}
	if c.Memory.HistoryMax <= 0 {
		errs = append(errs, fmt.Sprintf("memory.history_max must be positive, got %d", c.Memory.HistoryMax))
	}
	if c.Memory.ExperienceMax <= 0 {
		errs = append(errs, fmt.Sprintf("memory.experience_max must be positive, got %d", c.Memory.ExperienceMax))
	}
	switch c.Memory.ShortTermBackend {
	case "", "memory":
	case "redis":
		if c.Memory.Redis.Addr == "" {
			errs = append(errs, "memory.redis.addr is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("memory.short_term_backend must be memory or redis, got %q", c.Memory.ShortTermBackend))
	}
	if c.Memory.Archive.Enabled && c.Memory.Archive.Path == "" {
		errs = append(errs, "memory.archive.path is required when the archive is enabled")
	}

	if c.Evolution.PopulationSize < 4 {
		errs = append(errs, fmt.Sprintf("evolution.population_size must be at least 4, got %d", c.Evolution.PopulationSize))
	}
	if c.Evolution.MinSamples <= 0 {
		errs = append(errs, fmt.Sprintf("evolution.min_samples must be positive, got %d", c.Evolution.MinSamples))
	}
	if c.Evolution.TargetFitness <= 0 || c.Evolution.TargetFitness > 1 {
		errs = append(errs, fmt.Sprintf("evolution.target_fitness must be in (0,1], got %g", c.Evolution.TargetFitness))
	}
	if c.Evolution.HistoryMax <= 0 {
		errs = append(errs, fmt.Sprintf("evolution.history_max must be positive, got %d", c.Evolution.HistoryMax))
	}
	if c.Evolution.InitialLearningRate < 1e-5 || c.Evolution.InitialLearningRate > 1 {
		errs = append(errs, fmt.Sprintf("evolution.initial_learning_rate must be in [1e-5,1], got %g", c.Evolution.InitialLearningRate))
	}
	if c.Evolution.InitialExplorationFactor < 0 || c.Evolution.InitialExplorationFactor > 1 {
		errs = append(errs, fmt.Sprintf("evolution.initial_exploration_factor must be in [0,1], got %g", c.Evolution.InitialExplorationFactor))
	}
	if c.Evolution.InitialMutationRate < 0 || c.Evolution.InitialMutationRate > 1 {
		errs = append(errs, fmt.Sprintf("evolution.initial_mutation_rate must be in [0,1], got %g", c.Evolution.InitialMutationRate))
	}

	if c.Fitness.SuccessWeight < 0 {
		errs = append(errs, fmt.Sprintf("fitness.success_weight must not be negative, got %g", c.Fitness.SuccessWeight))
	}
	if c.Fitness.ConfidenceWeight < 0 {
		errs = append(errs, fmt.Sprintf("fitness.confidence_weight must not be negative, got %g", c.Fitness.ConfidenceWeight))
	}
	if c.Fitness.LatencyWeight < 0 {
		errs = append(errs, fmt.Sprintf("fitness.latency_weight must not be negative, got %g", c.Fitness.LatencyWeight))
	}
	if c.Fitness.LatencyCap <= 0 {
		errs = append(errs, fmt.Sprintf("fitness.latency_cap must be positive, got %s", c.Fitness.LatencyCap))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("telemetry.sample_rate must be in [0,1], got %g", c.Telemetry.SampleRate))
	}

	if len(errs) > 0 {
		return types.NewInvalidConfiguration("%s", strings.Join(errs, "; "))
	}

	return nil
}
