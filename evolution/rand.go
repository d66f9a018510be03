package evolution

import (
	"math/rand"
	"time"
)

// RandomSource supplies the randomness behind parent selection and
// mutation. Implementations need not be safe for concurrent use; the
// engine serializes all draws behind its own lock.
type RandomSource interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
}

type seededSource struct {
	rng *rand.Rand
}

func (s *seededSource) Float64() float64 { return s.rng.Float64() }

// NewRandomSource returns a deterministic source for the given seed.
func NewRandomSource(seed int64) RandomSource {
	return &seededSource{rng: rand.New(rand.NewSource(seed))}
}

func defaultRandomSource() RandomSource {
	return &seededSource{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}
