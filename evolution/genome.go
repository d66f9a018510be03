package evolution

import "github.com/BaSui01/memflow/types"

// Parameter bounds. Mutation and crossover results are always
// re-clamped into these ranges.
const (
	MinLearningRate      = 1e-5
	MaxLearningRate      = 1.0
	MinExplorationFactor = 0.0
	MaxExplorationFactor = 1.0
	MinMutationRate      = 0.0
	MaxMutationRate      = 1.0
)

const (
	// mutationSpan is the share of a parameter's range that one
	// mutation may move it by, in either direction.
	mutationSpan = 0.10

	// seedFitness is the neutral prior carried by genomes that have
	// never been evaluated, so callers never observe an unset fitness.
	seedFitness = 0.5

	// parentFitnessFloor keeps zero-fitness genomes selectable so no
	// lineage starves out of the parent pool entirely.
	parentFitnessFloor = 0.01

	// eliteCount is how many top genomes survive a generation advance
	// untouched.
	eliteCount = 2
)

func clampGenome(g types.ParameterGenome) types.ParameterGenome {
	g.LearningRate = clamp(g.LearningRate, MinLearningRate, MaxLearningRate)
	g.ExplorationFactor = clamp(g.ExplorationFactor, MinExplorationFactor, MaxExplorationFactor)
	g.MutationRate = clamp(g.MutationRate, MinMutationRate, MaxMutationRate)
	g.Fitness = clamp01(g.Fitness)
	return g
}

// crossover produces a child averaging the parents' parameters. The
// mutation rate is the exception: the fitter parent passes its own down
// unchanged, so well-performing lineages keep their mutation appetite.
// The child's fitness starts as the parents' mean, a prior refined once
// the child is evaluated itself.
func crossover(a, b types.ParameterGenome) types.ParameterGenome {
	fitter := a
	if b.Fitness > a.Fitness {
		fitter = b
	}
	return clampGenome(types.ParameterGenome{
		LearningRate:      (a.LearningRate + b.LearningRate) / 2,
		ExplorationFactor: (a.ExplorationFactor + b.ExplorationFactor) / 2,
		MutationRate:      fitter.MutationRate,
		Fitness:           (a.Fitness + b.Fitness) / 2,
	})
}

// mutate rolls once against the genome's own mutation rate; on a hit
// every parameter shifts by an independent uniform delta within
// mutationSpan of its range, then re-clamps.
func mutate(g types.ParameterGenome, rng RandomSource) types.ParameterGenome {
	if rng.Float64() >= g.MutationRate {
		return g
	}
	g.LearningRate += mutationDelta(rng, MinLearningRate, MaxLearningRate)
	g.ExplorationFactor += mutationDelta(rng, MinExplorationFactor, MaxExplorationFactor)
	g.MutationRate += mutationDelta(rng, MinMutationRate, MaxMutationRate)
	return clampGenome(g)
}

func mutationDelta(rng RandomSource, lo, hi float64) float64 {
	span := (hi - lo) * mutationSpan
	return (rng.Float64()*2 - 1) * span
}
