// Package evolution tunes execution parameters across generations.
//
// An Engine holds a fixed-size population of parameter genomes and
// exposes one active genome to callers. Fitness samples for the active
// genome accumulate until a generation boundary, at which point the
// population is replaced through elitism, fitness-proportional
// crossover, and bounded mutation. An Evaluator turns raw task outcomes
// into the scalar fitness samples the engine consumes.
//
// The engine never converges or halts: evolution runs for the lifetime
// of the process, and the progress metric saturates at 1 without
// stopping advancement.
package evolution
