package memory

import (
	"time"
)

// Experience is a free-form learning note recorded alongside task
// outcomes, retrievable by category.
type Experience struct {
	ID        string         `json:"id"`
	Category  string         `json:"category"`
	Summary   string         `json:"summary"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// HistoryEntry is a compact trace of one stored task outcome.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Success     bool      `json:"success"`
	CreatedAt   time.Time `json:"created_at"`
}

// ring is a bounded append-only buffer that drops its oldest entries
// once full.
type ring[T any] struct {
	entries []T
	max     int
}

func newRing[T any](max int) *ring[T] {
	return &ring[T]{entries: make([]T, 0), max: max}
}

func (r *ring[T]) append(entry T) {
	r.entries = append(r.entries, entry)
	if r.max > 0 && len(r.entries) > r.max {
		overflow := len(r.entries) - r.max
		r.entries = append(r.entries[:0], r.entries[overflow:]...)
	}
}

// tail returns up to limit of the most recent entries, oldest first.
// A non-positive limit returns everything.
func (r *ring[T]) tail(limit int) []T {
	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	start := len(r.entries) - limit
	out := make([]T, limit)
	copy(out, r.entries[start:])
	return out
}

// trim drops the oldest entries down to max and reports how many went.
func (r *ring[T]) trim(max int) int {
	if max <= 0 || len(r.entries) <= max {
		return 0
	}
	dropped := len(r.entries) - max
	r.entries = append(r.entries[:0], r.entries[dropped:]...)
	return dropped
}

func (r *ring[T]) len() int {
	return len(r.entries)
}
