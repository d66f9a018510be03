package evolution

import (
	"math"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BaSui01/memflow/types"
)

func genomeWithinBounds(g types.ParameterGenome) bool {
	return g.LearningRate >= MinLearningRate && g.LearningRate <= MaxLearningRate &&
		g.ExplorationFactor >= MinExplorationFactor && g.ExplorationFactor <= MaxExplorationFactor &&
		g.MutationRate >= MinMutationRate && g.MutationRate <= MaxMutationRate &&
		g.Fitness >= 0 && g.Fitness <= 1
}

// boundarySeeds sits every parameter on an edge of its range with the
// mutation rate pinned to 1 so each child is perturbed and re-clamped.
func boundarySeeds() []types.ParameterGenome {
	return []types.ParameterGenome{
		{LearningRate: MaxLearningRate, ExplorationFactor: MaxExplorationFactor, MutationRate: 1.0, Fitness: 0.8},
		{LearningRate: MinLearningRate, ExplorationFactor: MinExplorationFactor, MutationRate: 1.0, Fitness: 0.6},
		{LearningRate: MaxLearningRate, ExplorationFactor: MinExplorationFactor, MutationRate: 1.0, Fitness: 0.4},
		{LearningRate: MinLearningRate, ExplorationFactor: MaxExplorationFactor, MutationRate: 1.0, Fitness: 0.2},
	}
}

func TestEngineProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("top two genomes survive each advance unchanged", prop.ForAll(
		func(seed int64, fits []float64, sample float64) bool {
			seeds := make([]types.ParameterGenome, len(fits))
			for i, f := range fits {
				seeds[i] = types.ParameterGenome{
					LearningRate:      0.001 * float64(i+1),
					ExplorationFactor: 0.1,
					MutationRate:      0.5,
					Fitness:           f,
				}
			}
			e := NewEngine(EngineConfig{MinSamples: 1, SeedPopulation: seeds}, NewRandomSource(seed), nil)

			// Predict the ranking after the active genome absorbs the
			// sample. Learning rates are distinct, so they identify the
			// active slot.
			expected := e.Population()
			activeLR := e.CurrentParameters().LearningRate
			for i := range expected {
				if expected[i].LearningRate == activeLR {
					expected[i].Fitness = clamp01(sample)
					break
				}
			}
			sort.SliceStable(expected, func(i, j int) bool {
				return expected[i].Fitness > expected[j].Fitness
			})

			e.RecordSample(sample)
			if !e.MaybeAdvanceGeneration() {
				t.Logf("advance did not trigger with one pending sample")
				return false
			}

			post := e.Population()
			if post[0] != expected[0] || post[1] != expected[1] {
				t.Logf("elites changed: got %+v / %+v, want %+v / %+v",
					post[0], post[1], expected[0], expected[1])
				return false
			}
			return true
		},
		gen.Int64(),
		gen.SliceOfN(6, gen.Float64Range(0, 1)),
		gen.Float64Range(0, 1),
	))

	properties.Property("each advance increments the generation exactly once", prop.ForAll(
		func(seed int64, samples []float64) bool {
			e := NewEngine(EngineConfig{MinSamples: 1, PopulationSize: 5}, NewRandomSource(seed), nil)
			for i, s := range samples {
				e.RecordSample(s)
				if !e.MaybeAdvanceGeneration() {
					t.Logf("sample %d did not trigger an advance", i)
					return false
				}
				m := e.Metrics()
				if m.Generation != i+1 {
					t.Logf("generation %d after %d advances", m.Generation, i+1)
					return false
				}
				if m.PendingSamples != 0 {
					t.Logf("pending samples not consumed: %d", m.PendingSamples)
					return false
				}
				if m.PopulationSize != 5 {
					t.Logf("population size drifted to %d", m.PopulationSize)
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.SliceOf(gen.Float64Range(-0.5, 1.5)),
	))

	properties.Property("genomes stay inside parameter bounds", prop.ForAll(
		func(seed int64, samples []float64) bool {
			e := NewEngine(EngineConfig{MinSamples: 1, SeedPopulation: boundarySeeds()}, NewRandomSource(seed), nil)
			for _, s := range samples {
				e.RecordSample(s)
				e.MaybeAdvanceGeneration()
				for _, g := range e.Population() {
					if !genomeWithinBounds(g) {
						t.Logf("genome escaped bounds: %+v", g)
						return false
					}
				}
			}
			return true
		},
		gen.Int64(),
		gen.SliceOf(gen.Float64Range(0, 1)),
	))

	properties.Property("the active genome is always a fittest member", prop.ForAll(
		func(seed int64, samples []float64) bool {
			e := NewEngine(EngineConfig{MinSamples: 1, PopulationSize: 6}, NewRandomSource(seed), nil)
			for _, s := range samples {
				e.RecordSample(s)
				e.MaybeAdvanceGeneration()

				m := e.Metrics()
				if m.ActiveParameters.Fitness != m.MaxFitness {
					t.Logf("active fitness %v below max %v", m.ActiveParameters.Fitness, m.MaxFitness)
					return false
				}

				want := m.MaxFitness / 0.98
				if want > 1 {
					want = 1
				}
				if math.Abs(m.EvolutionProgress-want) > 1e-12 {
					t.Logf("progress %v, want %v", m.EvolutionProgress, want)
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.SliceOf(gen.Float64Range(0, 1)),
	))

	properties.TestingRun(t)
}
