package core

import (
	"time"

	"github.com/BaSui01/memflow/evolution"
	"github.com/BaSui01/memflow/memory"
)

// Option customizes coordinator construction. Options exist for the
// seams tests and embedders need; everything else comes from config.
type Option func(*options)

type options struct {
	rand  evolution.RandomSource
	clock func() time.Time
	store memory.ShortTermStore
}

// WithRandomSource injects the random source used by the evolution
// engine. Defaults to a time-seeded math/rand source.
func WithRandomSource(rs evolution.RandomSource) Option {
	return func(o *options) { o.rand = rs }
}

// WithClock injects the clock used for record timestamps, history
// entries, and uptime. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithShortTermStore injects a pre-built short-term store, overriding
// the backend named in the configuration.
func WithShortTermStore(store memory.ShortTermStore) Option {
	return func(o *options) { o.store = store }
}

// RetrieveOption overrides retrieval defaults for one FindSimilar call.
type RetrieveOption func(*retrieveOptions)

type retrieveOptions struct {
	threshold float64
	limit     int
}

// WithThreshold sets the minimum similarity score for this retrieval.
// Zero is a valid threshold and admits non-overlapping fingerprints.
func WithThreshold(threshold float64) RetrieveOption {
	return func(o *retrieveOptions) { o.threshold = threshold }
}

// WithLimit caps the number of matches returned by this retrieval.
func WithLimit(limit int) RetrieveOption {
	return func(o *retrieveOptions) { o.limit = limit }
}
