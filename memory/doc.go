// Package memory implements the dual-tier task memory.
//
// Completed task outcomes enter a bounded short-term tier. A background
// consolidation pass promotes records that proved useful (successful and
// retrieved at least once, or successful and old enough to have survived
// half a consolidation interval) into the long-term tier, and evicts
// records that were neither. Promotion moves a record between tiers; an
// id never exists in both at once.
//
// Retrieval is fingerprint based: task descriptions are normalized into
// token sets and candidates from both tiers are ranked by Jaccard
// similarity. Every returned record has its access count incremented,
// which in turn raises its value against long-term eviction.
//
// The Manager serializes all store mutations and similarity scans behind
// a single lock. The short-term tier is pluggable (in-memory or Redis);
// the long-term tier is in-memory with an optional SQLite archive for
// persistence across restarts.
package memory
