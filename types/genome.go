package types

// ParameterGenome is one set of tunable execution parameters together with
// the fitness it earned. Genomes are value types: a new generation produces
// new values, and callers always receive copies.
//
// Bounds: LearningRate in [1e-5, 1.0], ExplorationFactor and MutationRate
// in [0, 1]. Fitness is in [0, 1]; seed genomes start at the neutral 0.5,
// so a caller never observes an unset fitness.
type ParameterGenome struct {
	LearningRate      float64 `json:"learning_rate"`
	ExplorationFactor float64 `json:"exploration_factor"`
	MutationRate      float64 `json:"mutation_rate"`
	Fitness           float64 `json:"fitness"`
}
