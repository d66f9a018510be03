/*
Package metrics provides Prometheus instrumentation for the task memory
and evolution pipeline.

The Collector registers its metrics through promauto under one
namespace, grouped by concern:

  - Task metrics: recorded outcomes by status, task latency, and the
    distribution of fitness samples fed to the evolution engine.
  - Retrieval metrics: similarity lookups by hit/miss, match counts per
    query, and lookup latency.
  - Consolidation metrics: passes by trigger, promoted and evicted
    record counts.
  - Tier gauges: current short-term and long-term record counts.
  - Evolution gauges: generation number, fitness aggregates, and
    progress toward the target fitness.
*/
package metrics
