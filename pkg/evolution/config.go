// Package evolution implements the agent evolutionary optimization engine:
// multi-dimensional fitness evaluation, mutation, crossover, speciation,
// diversity maintenance, tournament selection and generation orchestration.
//
// All computation is CPU-bound and in-process. Agent values are immutable, so
// per-agent evaluation runs fork-join parallel within a generation while the
// population container itself is only updated between steps.
package evolution

import (
	"math"
	"math/rand"

	"github.com/XiaoConstantine/evo-go/pkg/errors"
)

// ReplacementStrategy names one of the four population replacement policies.
// Unrecognized values fall back to ReplaceSteadyState at use time rather than
// failing validation; that default-branch behavior is part of the contract.
type ReplacementStrategy string

const (
	ReplaceGenerational  ReplacementStrategy = "generational"
	ReplaceSteadyState   ReplacementStrategy = "steady_state"
	ReplaceElitePreserve ReplacementStrategy = "elite_preserve"
	ReplaceIslandModel   ReplacementStrategy = "island_model"
)

// PopulationConfig contains the tunable policy knobs of the population manager.
type PopulationConfig struct {
	MaxSize             int                 `yaml:"max_size" validate:"min=1"`
	MinSize             int                 `yaml:"min_size" validate:"min=1"`
	TargetDiversity     float64             `yaml:"target_diversity" validate:"min=0,max=1"`
	ElitismRate         float64             `yaml:"elitism_rate" validate:"min=0,max=1"`
	MigrationRate       float64             `yaml:"migration_rate" validate:"min=0,max=1"`
	SpeciesThreshold    float64             `yaml:"species_threshold" validate:"min=0,max=1"`
	AgingEnabled        bool                `yaml:"aging_enabled"`
	MaxAgentAge         int                 `yaml:"max_agent_age" validate:"min=1"`
	SelectionPressure   float64             `yaml:"selection_pressure" validate:"min=0,max=1"`
	ReplacementStrategy ReplacementStrategy `yaml:"replacement_strategy"`

	// Concurrency bounds the worker pool used for per-agent fitness
	// evaluation within a generation.
	Concurrency int `yaml:"concurrency" validate:"min=1"`

	// TaskDomain seeds the synthesized evaluation context.
	TaskDomain string `yaml:"task_domain"`
}

// DefaultPopulationConfig returns the default population policy.
func DefaultPopulationConfig() PopulationConfig {
	return PopulationConfig{
		MaxSize:             50,
		MinSize:             10,
		TargetDiversity:     0.6,
		ElitismRate:         0.1,
		MigrationRate:       0.05,
		SpeciesThreshold:    0.55,
		AgingEnabled:        true,
		MaxAgentAge:         20,
		SelectionPressure:   0.6,
		ReplacementStrategy: ReplaceSteadyState,
		Concurrency:         4,
		TaskDomain:          "general",
	}
}

// Validate checks structural constraints the validator tags cannot express.
func (c PopulationConfig) Validate() error {
	if c.MaxSize < 1 {
		return errors.New(errors.InvalidConfig, "max population size must be at least 1")
	}
	if c.MinSize < 1 || c.MinSize > c.MaxSize {
		return errors.WithFields(
			errors.New(errors.InvalidConfig, "min population size must be in [1, max size]"),
			errors.Fields{"min_size": c.MinSize, "max_size": c.MaxSize})
	}
	if c.ElitismRate < 0 || c.ElitismRate > 1 {
		return errors.New(errors.InvalidConfig, "elitism rate must be in [0, 1]")
	}
	if c.TargetDiversity < 0 || c.TargetDiversity > 1 {
		return errors.New(errors.InvalidConfig, "target diversity must be in [0, 1]")
	}
	if c.Concurrency < 1 {
		return errors.New(errors.InvalidConfig, "concurrency must be at least 1")
	}
	return nil
}

// MutationConfig controls the mutation engine.
type MutationConfig struct {
	// Rate is both the per-capability perturbation probability and the
	// per-agent gate in MutatePopulation.
	Rate float64 `yaml:"rate" validate:"min=0,max=1"`

	// Strength is the base sigma for gaussian noise and the scale for the
	// other strategies' step sizes.
	Strength float64 `yaml:"strength" validate:"min=0"`

	// UniformBound is the half-width of the uniform strategy's noise range
	// before scaling by Strength.
	UniformBound float64 `yaml:"uniform_bound" validate:"min=0"`

	// EnableStructural permits capability addition, removal and merging.
	EnableStructural bool `yaml:"enable_structural"`

	// MaxCapabilities caps structural growth of a single agent.
	MaxCapabilities int `yaml:"max_capabilities" validate:"min=1"`
}

// DefaultMutationConfig returns the default mutation policy.
func DefaultMutationConfig() MutationConfig {
	return MutationConfig{
		Rate:             0.3,
		Strength:         0.1,
		UniformBound:     1.0,
		EnableStructural: true,
		MaxCapabilities:  12,
	}
}

// Validate checks mutation parameter bounds.
func (c MutationConfig) Validate() error {
	if c.Rate < 0 || c.Rate > 1 {
		return errors.New(errors.InvalidConfig, "mutation rate must be in [0, 1]")
	}
	if c.Strength < 0 {
		return errors.New(errors.InvalidConfig, "mutation strength must be non-negative")
	}
	if c.MaxCapabilities < 1 {
		return errors.New(errors.InvalidConfig, "max capabilities must be at least 1")
	}
	return nil
}

// CrossoverConfig controls the crossover engine.
type CrossoverConfig struct {
	// Rate is the per-pair gate in PerformBatchCrossover.
	Rate float64 `yaml:"rate" validate:"min=0,max=1"`

	// CompatibilityThreshold is the minimum parent compatibility below which
	// PerformCrossover fails with IncompatibleParents.
	CompatibilityThreshold float64 `yaml:"compatibility_threshold" validate:"min=0,max=1"`
}

// DefaultCrossoverConfig returns the default crossover policy.
func DefaultCrossoverConfig() CrossoverConfig {
	return CrossoverConfig{
		Rate:                   0.7,
		CompatibilityThreshold: 0.3,
	}
}

// Validate checks crossover parameter bounds.
func (c CrossoverConfig) Validate() error {
	if c.Rate < 0 || c.Rate > 1 {
		return errors.New(errors.InvalidConfig, "crossover rate must be in [0, 1]")
	}
	if c.CompatibilityThreshold < 0 || c.CompatibilityThreshold > 1 {
		return errors.New(errors.InvalidConfig, "compatibility threshold must be in [0, 1]")
	}
	return nil
}

// Config aggregates the engine configuration. Seed makes every stochastic
// operator reproducible: all randomness flows through rand.Rand instances
// derived from it, never through the global source.
type Config struct {
	Population PopulationConfig `yaml:"population"`
	Mutation   MutationConfig   `yaml:"mutation"`
	Crossover  CrossoverConfig  `yaml:"crossover"`
	Seed       int64            `yaml:"seed"`
}

// DefaultConfig returns the complete default engine configuration.
func DefaultConfig() Config {
	return Config{
		Population: DefaultPopulationConfig(),
		Mutation:   DefaultMutationConfig(),
		Crossover:  DefaultCrossoverConfig(),
	}
}

// Validate checks all sub-configurations.
func (c Config) Validate() error {
	if err := c.Population.Validate(); err != nil {
		return err
	}
	if err := c.Mutation.Validate(); err != nil {
		return err
	}
	return c.Crossover.Validate()
}

// newRNG derives a child random source from a parent, keeping the engines'
// random streams independent of each other while remaining seed-determined.
func newRNG(parent *rand.Rand) *rand.Rand {
	return rand.New(rand.NewSource(parent.Int63()))
}

// gaussian draws a normal sample with mean 0 via the Box-Muller transform,
// scaled by sigma.
func gaussian(rng *rand.Rand, sigma float64) float64 {
	u1 := rng.Float64()
	for u1 == 0 {
		u1 = rng.Float64()
	}
	u2 := rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2) * sigma
}
