/*
Package core wires the memory tiers, the consolidation scheduler, the
fitness evaluator, and the evolution engine into one Coordinator, the
single object a task executor depends on.

The executor loop is three calls: FindSimilar before dispatching a
task, CurrentParameters for routing heuristics, and RecordOutcome once
the task finishes. RecordOutcome stores the record, converts the
outcome into a fitness sample, and advances a generation when enough
samples have accumulated.

Start and Stop manage the background pieces: the consolidation
scheduler, the optional OpenTelemetry SDK, and the optional SQLite
archive that persists long-term memory across runs. A Coordinator
without Start still serves every synchronous operation; only the
scheduled consolidation and the archive restore need the lifecycle.
*/
package core
