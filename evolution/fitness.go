package evolution

import (
	"time"

	"github.com/BaSui01/memflow/types"
)

// EvaluatorConfig weights the components of the fitness score.
type EvaluatorConfig struct {
	// SuccessWeight scales the binary success component.
	SuccessWeight float64 `json:"success_weight"`
	// ConfidenceWeight scales the reported confidence.
	ConfidenceWeight float64 `json:"confidence_weight"`
	// LatencyWeight scales the speed component.
	LatencyWeight float64 `json:"latency_weight"`
	// LatencyCap is the latency at and beyond which the speed component
	// contributes zero.
	LatencyCap time.Duration `json:"latency_cap"`
}

// DefaultEvaluatorConfig returns the standard 0.6/0.3/0.1 weighting
// with a 5 second latency ceiling.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		SuccessWeight:    0.6,
		ConfidenceWeight: 0.3,
		LatencyWeight:    0.1,
		LatencyCap:       5 * time.Second,
	}
}

// Evaluator maps completed task outcomes to a scalar fitness in [0,1].
// Evaluate is pure: same outcome, same fitness, no side effects.
type Evaluator struct {
	config EvaluatorConfig
}

// NewEvaluator builds an evaluator, falling back to defaults for any
// weight left at zero alongside the others and for a non-positive
// latency cap.
func NewEvaluator(config EvaluatorConfig) *Evaluator {
	if config.SuccessWeight == 0 && config.ConfidenceWeight == 0 && config.LatencyWeight == 0 {
		defaults := DefaultEvaluatorConfig()
		config.SuccessWeight = defaults.SuccessWeight
		config.ConfidenceWeight = defaults.ConfidenceWeight
		config.LatencyWeight = defaults.LatencyWeight
	}
	if config.LatencyCap <= 0 {
		config.LatencyCap = DefaultEvaluatorConfig().LatencyCap
	}
	return &Evaluator{config: config}
}

// Evaluate scores an outcome. Out-of-range inputs are clamped rather
// than rejected: degraded scoring beats halting the caller.
func (e *Evaluator) Evaluate(outcome types.Outcome) float64 {
	success := 0.0
	if outcome.Success {
		success = 1.0
	}
	confidence := clamp01(outcome.Confidence)
	speed := clamp01(1 - float64(outcome.Latency)/float64(e.config.LatencyCap))

	fitness := e.config.SuccessWeight*success +
		e.config.ConfidenceWeight*confidence +
		e.config.LatencyWeight*speed
	return clamp01(fitness)
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
