package types

import "time"

// StoreTier identifies which memory tier currently holds a record.
// A record lives in exactly one tier at a time; consolidation moves it
// from short-term to long-term, it never copies.
type StoreTier string

const (
	// TierShortTerm holds recent records in insertion order with
	// capacity-based FIFO eviction.
	TierShortTerm StoreTier = "short_term"

	// TierLongTerm holds consolidated records indexed for similarity
	// search, evicted lowest-value first under capacity pressure.
	TierLongTerm StoreTier = "long_term"
)

// Fingerprint is the normalized token-set representation of a task,
// stored canonically as a sorted slice of unique tokens. An empty
// fingerprint matches nothing.
type Fingerprint []string

// Clone returns an independent copy of the fingerprint.
func (f Fingerprint) Clone() Fingerprint {
	if f == nil {
		return nil
	}
	out := make(Fingerprint, len(f))
	copy(out, f)
	return out
}

// TaskRecord is a completed task held in the memory tiers.
// The fingerprint is immutable once computed; AccessCount only increases.
type TaskRecord struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Fingerprint Fingerprint    `json:"fingerprint"`
	Context     map[string]any `json:"context,omitempty"`
	Result      any            `json:"result,omitempty"`
	Success     bool           `json:"success"`
	Confidence  float64        `json:"confidence"`
	CreatedAt   time.Time      `json:"created_at"`
	AccessCount int            `json:"access_count"`
	StoreTier   StoreTier      `json:"store_tier"`
}

// Clone returns a copy of the record safe to hand to callers.
// The fingerprint and context map are copied; Result stays shared
// because it is an opaque payload the library never mutates.
func (r *TaskRecord) Clone() *TaskRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Fingerprint = r.Fingerprint.Clone()
	if r.Context != nil {
		out.Context = make(map[string]any, len(r.Context))
		for k, v := range r.Context {
			out.Context[k] = v
		}
	}
	return &out
}

// Outcome is the executor-reported result of a completed task.
// Confidence is expected in [0,1]; out-of-range values are clamped by
// consumers rather than rejected.
type Outcome struct {
	Success    bool          `json:"success"`
	Confidence float64       `json:"confidence"`
	Latency    time.Duration `json:"latency"`
}
