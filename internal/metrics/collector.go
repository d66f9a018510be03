package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records the pipeline's Prometheus metrics.
// The underlying vectors are safe for concurrent use.
type Collector struct {
	tasksRecorded  *prometheus.CounterVec
	taskLatency    *prometheus.HistogramVec
	fitnessSamples prometheus.Histogram

	retrievalsTotal  *prometheus.CounterVec
	retrievalMatches prometheus.Histogram
	retrievalLatency prometheus.Histogram

	consolidationRuns   *prometheus.CounterVec
	recordsConsolidated prometheus.Counter
	recordsEvicted      prometheus.Counter
	historyTrimmed      prometheus.Counter

	tierSize *prometheus.GaugeVec

	generation         prometheus.Gauge
	generationAdvances prometheus.Counter
	avgFitness         prometheus.Gauge
	maxFitness         prometheus.Gauge
	evolutionProgress  prometheus.Gauge

	logger *zap.Logger
}

// NewCollector creates a collector with all metrics registered on the
// default registry under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.tasksRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_recorded_total",
			Help:      "Total number of task outcomes recorded",
		},
		[]string{"status"},
	)

	c.taskLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_latency_seconds",
			Help:      "Reported task execution latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)

	c.fitnessSamples = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fitness_samples",
			Help:      "Distribution of fitness samples fed to the evolution engine",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	c.retrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of similarity retrievals",
		},
		[]string{"outcome"},
	)

	c.retrievalMatches = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_matches",
			Help:      "Number of matches returned per retrieval",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
		},
	)

	c.retrievalLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_latency_seconds",
			Help:      "Similarity retrieval latency in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	c.consolidationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_runs_total",
			Help:      "Total number of consolidation passes",
		},
		[]string{"trigger"},
	)

	c.recordsConsolidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_consolidated_total",
			Help:      "Total number of records promoted to long-term memory",
		},
	)

	c.recordsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_evicted_total",
			Help:      "Total number of records evicted during consolidation",
		},
	)

	c.historyTrimmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_trimmed_total",
			Help:      "Total number of history entries trimmed during optimization",
		},
	)

	c.tierSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tier_records",
			Help:      "Current number of records per memory tier",
		},
		[]string{"tier"},
	)

	c.generation = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "evolution_generation",
			Help:      "Current evolution generation",
		},
	)

	c.generationAdvances = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_advances_total",
			Help:      "Total number of generation advances",
		},
	)

	c.avgFitness = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "population_avg_fitness",
			Help:      "Average fitness across the genome population",
		},
	)

	c.maxFitness = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "population_max_fitness",
			Help:      "Best fitness across the genome population",
		},
	)

	c.evolutionProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "evolution_progress",
			Help:      "Progress toward the target fitness, saturating at 1",
		},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordTaskOutcome records one stored task outcome and the fitness
// sample derived from it.
func (c *Collector) RecordTaskOutcome(success bool, latency time.Duration, fitness float64) {
	status := outcomeStatus(success)
	c.tasksRecorded.WithLabelValues(status).Inc()
	c.taskLatency.WithLabelValues(status).Observe(latency.Seconds())
	c.fitnessSamples.Observe(fitness)
}

// RecordRetrieval records one similarity lookup.
func (c *Collector) RecordRetrieval(matches int, duration time.Duration) {
	outcome := "hit"
	if matches == 0 {
		outcome = "miss"
	}
	c.retrievalsTotal.WithLabelValues(outcome).Inc()
	c.retrievalMatches.Observe(float64(matches))
	c.retrievalLatency.Observe(duration.Seconds())
}

// RecordConsolidation records one consolidation pass and its effects.
func (c *Collector) RecordConsolidation(trigger string, consolidated, evicted, trimmed int) {
	c.consolidationRuns.WithLabelValues(trigger).Inc()
	c.recordsConsolidated.Add(float64(consolidated))
	c.recordsEvicted.Add(float64(evicted))
	c.historyTrimmed.Add(float64(trimmed))
}

// SetTierSizes updates the per-tier record gauges.
func (c *Collector) SetTierSizes(shortTerm, longTerm int) {
	c.tierSize.WithLabelValues("short_term").Set(float64(shortTerm))
	c.tierSize.WithLabelValues("long_term").Set(float64(longTerm))
}

// RecordGenerationAdvance updates the evolution gauges after a
// generation boundary.
func (c *Collector) RecordGenerationAdvance(generation int, avgFitness, maxFitness, progress float64) {
	c.generation.Set(float64(generation))
	c.generationAdvances.Inc()
	c.avgFitness.Set(avgFitness)
	c.maxFitness.Set(maxFitness)
	c.evolutionProgress.Set(progress)
}

func outcomeStatus(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
