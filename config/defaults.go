package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Memory:    DefaultMemoryConfig(),
		Evolution: DefaultEvolutionConfig(),
		Fitness:   DefaultFitnessConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultMemoryConfig returns the default memory configuration.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		ShortTermMax:          1000,
		LongTermMax:           5000,
		SimilarityThreshold:   0.7,
		ResultLimit:           10,
		ConsolidationInterval: time.Hour,
		HistoryMax:            5000,
		ExperienceMax:         5000,
		SignificantKeys:       []string{"category"},
		ShortTermBackend:      "memory",
		Redis:                 DefaultRedisConfig(),
		Archive:               DefaultArchiveConfig(),
	}
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "memflow",
	}
}

// DefaultArchiveConfig returns the default archive configuration.
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled: false,
		Path:    "memflow.db",
	}
}

// DefaultEvolutionConfig returns the default evolution configuration.
func DefaultEvolutionConfig() EvolutionConfig {
	return EvolutionConfig{
		PopulationSize:           8,
		MinSamples:               5,
		TargetFitness:            0.98,
		HistoryMax:               100,
		InitialLearningRate:      0.001,
		InitialExplorationFactor: 0.1,
		InitialMutationRate:      0.05,
	}
}

// DefaultFitnessConfig returns the default fitness configuration.
func DefaultFitnessConfig() FitnessConfig {
	return FitnessConfig{
		SuccessWeight:    0.6,
		ConfidenceWeight: 0.3,
		LatencyWeight:    0.1,
		LatencyCap:       5 * time.Second,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "memflow",
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "memflow",
		SampleRate:   0.1,
	}
}
