package evolution

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// Phase identifies where the engine sits in its generation cycle.
type Phase string

const (
	// PhaseInitialized means the population is seeded and no fitness
	// sample has arrived yet.
	PhaseInitialized Phase = "initialized"
	// PhaseAccumulating means fitness samples are being collected for
	// the active genome.
	PhaseAccumulating Phase = "accumulating"
	// PhaseAdvancing covers the generation boundary itself.
	PhaseAdvancing Phase = "advancing"
)

// minPopulation is the smallest population that still leaves room for
// children next to the elites.
const minPopulation = 4

// EngineConfig configures the evolution engine.
type EngineConfig struct {
	// PopulationSize is the fixed genome count, minimum 4. Ignored when
	// SeedPopulation is provided.
	PopulationSize int `json:"population_size"`
	// MinSamples is how many fitness samples must accumulate before a
	// generation can advance.
	MinSamples int `json:"min_samples"`
	// TargetFitness anchors the progress metric; reaching it does not
	// stop evolution.
	TargetFitness float64 `json:"target_fitness"`
	// HistoryMax bounds the retained generation records.
	HistoryMax int `json:"history_max"`

	// Initial parameter values for generated seed genomes.
	InitialLearningRate      float64 `json:"initial_learning_rate"`
	InitialExplorationFactor float64 `json:"initial_exploration_factor"`
	InitialMutationRate      float64 `json:"initial_mutation_rate"`

	// SeedPopulation, when non-empty, becomes the starting population
	// verbatim (clamped to bounds, padded to the minimum size).
	SeedPopulation []types.ParameterGenome `json:"-"`

	// Now supplies timestamps for generation records.
	Now func() time.Time `json:"-"`
}

// DefaultEngineConfig returns the standard engine settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PopulationSize:           8,
		MinSamples:               5,
		TargetFitness:            0.98,
		HistoryMax:               100,
		InitialLearningRate:      0.001,
		InitialExplorationFactor: 0.1,
		InitialMutationRate:      0.05,
	}
}

// GenerationRecord captures one completed generation advance.
type GenerationRecord struct {
	Generation int                   `json:"generation"`
	AvgFitness float64               `json:"avg_fitness"`
	MaxFitness float64               `json:"max_fitness"`
	Samples    int                   `json:"samples"`
	Best       types.ParameterGenome `json:"best"`
	AdvancedAt time.Time             `json:"advanced_at"`
}

// Metrics is a point-in-time snapshot of engine state.
type Metrics struct {
	Generation        int                   `json:"generation"`
	Phase             Phase                 `json:"phase"`
	AvgFitness        float64               `json:"avg_fitness"`
	MaxFitness        float64               `json:"max_fitness"`
	EvolutionProgress float64               `json:"evolution_progress"`
	PendingSamples    int                   `json:"pending_samples"`
	PopulationSize    int                   `json:"population_size"`
	ActiveParameters  types.ParameterGenome `json:"active_parameters"`
}

// Engine maintains the genome population and advances it at generation
// boundaries. All state lives behind one mutex that is independent of
// any memory store lock: recording a sample never waits on storage and
// storage never waits on evolution.
type Engine struct {
	config EngineConfig

	mu         sync.Mutex
	phase      Phase
	generation int
	population []types.ParameterGenome
	activeIdx  int
	avgFitness float64
	maxFitness float64
	pending    []float64
	history    []GenerationRecord
	rng        RandomSource
	now        func() time.Time

	logger *zap.Logger
}

// NewEngine seeds a population and returns an engine in the initialized
// phase. A nil rng gets a time-seeded source, a nil logger a no-op one,
// and zero config fields their defaults.
func NewEngine(config EngineConfig, rng RandomSource, logger *zap.Logger) *Engine {
	defaults := DefaultEngineConfig()
	if config.PopulationSize < minPopulation {
		config.PopulationSize = defaults.PopulationSize
	}
	if config.MinSamples <= 0 {
		config.MinSamples = defaults.MinSamples
	}
	if config.TargetFitness <= 0 || config.TargetFitness > 1 {
		config.TargetFitness = defaults.TargetFitness
	}
	if config.HistoryMax <= 0 {
		config.HistoryMax = defaults.HistoryMax
	}
	if config.InitialLearningRate == 0 {
		config.InitialLearningRate = defaults.InitialLearningRate
	}
	if config.InitialExplorationFactor == 0 {
		config.InitialExplorationFactor = defaults.InitialExplorationFactor
	}
	if config.InitialMutationRate == 0 {
		config.InitialMutationRate = defaults.InitialMutationRate
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if rng == nil {
		rng = defaultRandomSource()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		config:     config,
		phase:      PhaseInitialized,
		population: seedPopulation(config, rng),
		rng:        rng,
		now:        config.Now,
		logger:     logger.With(zap.String("component", "evolution_engine")),
	}
	e.activeIdx = bestIndex(e.population)
	e.avgFitness, e.maxFitness = fitnessAggregates(e.population)

	e.logger.Info("evolution engine initialized",
		zap.Int("population", len(e.population)),
		zap.Int("min_samples", e.config.MinSamples))
	return e
}

func seedPopulation(config EngineConfig, rng RandomSource) []types.ParameterGenome {
	if len(config.SeedPopulation) > 0 {
		pop := make([]types.ParameterGenome, 0, len(config.SeedPopulation))
		for _, g := range config.SeedPopulation {
			pop = append(pop, clampGenome(g))
		}
		for len(pop) < minPopulation {
			pop = append(pop, perturbedGenome(config, rng))
		}
		return pop
	}

	pop := make([]types.ParameterGenome, config.PopulationSize)
	pop[0] = initialGenome(config)
	for i := 1; i < len(pop); i++ {
		pop[i] = perturbedGenome(config, rng)
	}
	return pop
}

// perturbedGenome spreads the starting population around the configured
// initial point, one mutation-sized delta per parameter, so the first
// generations have variation to select over.
func perturbedGenome(config EngineConfig, rng RandomSource) types.ParameterGenome {
	g := initialGenome(config)
	g.LearningRate += mutationDelta(rng, MinLearningRate, MaxLearningRate)
	g.ExplorationFactor += mutationDelta(rng, MinExplorationFactor, MaxExplorationFactor)
	g.MutationRate += mutationDelta(rng, MinMutationRate, MaxMutationRate)
	return clampGenome(g)
}

func initialGenome(config EngineConfig) types.ParameterGenome {
	return clampGenome(types.ParameterGenome{
		LearningRate:      config.InitialLearningRate,
		ExplorationFactor: config.InitialExplorationFactor,
		MutationRate:      config.InitialMutationRate,
		Fitness:           seedFitness,
	})
}

// RecordSample adds one fitness sample for the active genome. The
// population itself is untouched until the next generation boundary.
func (e *Engine) RecordSample(fitness float64) {
	fitness = clamp01(fitness)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, fitness)
	if e.phase == PhaseInitialized {
		e.phase = PhaseAccumulating
	}
}

// MaybeAdvanceGeneration advances one generation if enough samples have
// accumulated, and reports whether it did.
func (e *Engine) MaybeAdvanceGeneration() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) < e.config.MinSamples {
		return false
	}
	e.advanceLocked()
	return true
}

func (e *Engine) advanceLocked() {
	e.phase = PhaseAdvancing

	// The active genome earns the mean of everything recorded against
	// it this generation; the rest keep their prior fitness.
	e.population[e.activeIdx].Fitness = mean(e.pending)
	e.avgFitness, e.maxFitness = fitnessAggregates(e.population)

	e.population = e.nextPopulationLocked()
	e.activeIdx = bestIndex(e.population)
	e.generation++
	samples := len(e.pending)
	e.pending = e.pending[:0]

	e.history = append(e.history, GenerationRecord{
		Generation: e.generation,
		AvgFitness: e.avgFitness,
		MaxFitness: e.maxFitness,
		Samples:    samples,
		Best:       e.population[e.activeIdx],
		AdvancedAt: e.now(),
	})
	if len(e.history) > e.config.HistoryMax {
		e.history = e.history[len(e.history)-e.config.HistoryMax:]
	}

	e.phase = PhaseAccumulating
	e.logger.Info("generation advanced",
		zap.Int("generation", e.generation),
		zap.Int("samples", samples),
		zap.Float64("avg_fitness", e.avgFitness),
		zap.Float64("max_fitness", e.maxFitness))
}

// nextPopulationLocked keeps the top genomes unchanged and fills the
// rest with mutated children of fitness-proportional parents.
func (e *Engine) nextPopulationLocked() []types.ParameterGenome {
	sorted := append([]types.ParameterGenome(nil), e.population...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Fitness > sorted[j].Fitness
	})

	next := make([]types.ParameterGenome, 0, len(sorted))
	next = append(next, sorted[:eliteCount]...)
	for len(next) < len(sorted) {
		a := e.pickParent(sorted)
		b := e.pickParent(sorted)
		next = append(next, mutate(crossover(a, b), e.rng))
	}
	return next
}

func (e *Engine) pickParent(pool []types.ParameterGenome) types.ParameterGenome {
	total := 0.0
	for _, g := range pool {
		total += parentWeight(g)
	}

	target := e.rng.Float64() * total
	for _, g := range pool {
		target -= parentWeight(g)
		if target <= 0 {
			return g
		}
	}
	return pool[len(pool)-1]
}

func parentWeight(g types.ParameterGenome) float64 {
	if g.Fitness < parentFitnessFloor {
		return parentFitnessFloor
	}
	return g.Fitness
}

// CurrentParameters returns the active genome. Genomes are values, so
// the caller gets an independent copy.
func (e *Engine) CurrentParameters() types.ParameterGenome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.population[e.activeIdx]
}

// Metrics snapshots generation, fitness aggregates, and progress toward
// the target fitness. Progress saturates at 1 and may regress when a
// later generation's best genome explores downhill.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	progress := e.maxFitness / e.config.TargetFitness
	if progress > 1 {
		progress = 1
	}
	return Metrics{
		Generation:        e.generation,
		Phase:             e.phase,
		AvgFitness:        e.avgFitness,
		MaxFitness:        e.maxFitness,
		EvolutionProgress: progress,
		PendingSamples:    len(e.pending),
		PopulationSize:    len(e.population),
		ActiveParameters:  e.population[e.activeIdx],
	}
}

// History returns up to limit of the most recent generation records,
// oldest first. A non-positive limit returns everything retained.
func (e *Engine) History(limit int) []GenerationRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]GenerationRecord, limit)
	copy(out, e.history[n-limit:])
	return out
}

// Population returns a copy of the current population.
func (e *Engine) Population() []types.ParameterGenome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.ParameterGenome(nil), e.population...)
}

// BoostLearning nudges the active genome toward faster adaptation,
// raising its learning rate by 20% and its exploration factor by 10%,
// re-clamped to bounds. It returns the parameters before and after.
func (e *Engine) BoostLearning() (before, after types.ParameterGenome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	before = e.population[e.activeIdx]
	after = before
	after.LearningRate = clamp(after.LearningRate*1.2, MinLearningRate, MaxLearningRate)
	after.ExplorationFactor = clamp(after.ExplorationFactor*1.1, MinExplorationFactor, MaxExplorationFactor)
	e.population[e.activeIdx] = after

	e.logger.Info("learning boosted",
		zap.Float64("learning_rate", after.LearningRate),
		zap.Float64("exploration_factor", after.ExplorationFactor))
	return before, after
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range samples {
		total += s
	}
	return total / float64(len(samples))
}

func fitnessAggregates(pop []types.ParameterGenome) (avg, max float64) {
	if len(pop) == 0 {
		return 0, 0
	}
	total := 0.0
	max = pop[0].Fitness
	for _, g := range pop {
		total += g.Fitness
		if g.Fitness > max {
			max = g.Fitness
		}
	}
	return total / float64(len(pop)), max
}

// bestIndex returns the index of the fittest genome, ties broken toward
// the lowest index.
func bestIndex(pop []types.ParameterGenome) int {
	best := 0
	for i, g := range pop {
		if g.Fitness > pop[best].Fitness {
			best = i
		}
	}
	return best
}
