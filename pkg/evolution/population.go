package evolution

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/evo-go/pkg/core"
	"github.com/XiaoConstantine/evo-go/pkg/errors"
	"github.com/XiaoConstantine/evo-go/pkg/logging"
)

// Phase names the step of the generation loop the manager is currently in.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseEvaluating   Phase = "evaluating"
	PhaseSpeciating   Phase = "speciating"
	PhaseSelecting    Phase = "selecting"
	PhaseReproducing  Phase = "reproducing"
	PhaseReplacing    Phase = "replacing"
	PhaseAging        Phase = "aging"
	PhaseDiversifying Phase = "diversifying"
	PhaseRecording    Phase = "recording"
)

const (
	// metricsHistorySize bounds the manager's retained generation snapshots.
	metricsHistorySize = 100

	// Convergence detection: the run stops early when the variance of recent
	// average fitness falls below the threshold or stagnation saturates.
	convergenceWindow    = 10
	convergenceVariance  = 0.001
	stagnationStopLevel  = 0.9
	stagnationRateWindow = 5

	// selectionFraction is the share of the population chosen as parents each
	// generation.
	selectionFraction = 0.6
)

// PopulationMetrics is one generation's snapshot of population health.
type PopulationMetrics struct {
	Generation      int
	Size            int
	AverageFitness  float64
	BestFitness     float64
	FitnessVariance float64
	DiversityIndex  float64
	SpeciesCount    int
	AverageAge      float64
	EvolutionRate   float64
	StagnationLevel float64
	Timestamp       time.Time
}

// Recorder persists per-generation results. The sqlite archive implements it;
// a nil recorder disables persistence.
type Recorder interface {
	RecordGeneration(ctx context.Context, runID string, metrics PopulationMetrics, best []*core.Agent) error
}

// PopulationAnalysis is the on-demand health report of AnalyzePopulation.
type PopulationAnalysis struct {
	Metrics          PopulationMetrics
	Bottlenecks      map[core.Dimension]int
	SpeciesSizes     map[string]int
	AtRiskSpecies    []string
	FitnessDiversity float64
}

// Option configures a PopulationManager.
type Option func(*PopulationManager)

// WithRecorder attaches a generation recorder.
func WithRecorder(r Recorder) Option {
	return func(pm *PopulationManager) { pm.recorder = r }
}

// PopulationManager owns the population and drives the generation loop:
// evaluate, speciate, select, reproduce, replace, age, diversify, record.
// Reads are safe for concurrent use; EvolveGeneration must not be called
// concurrently with itself.
type PopulationManager struct {
	mu      sync.RWMutex
	config  Config
	agents  []*core.Agent
	species []*Species
	metrics *core.Ring[PopulationMetrics]

	evaluator *FitnessEvaluator
	mutation  *MutationManager
	crossover *CrossoverManager

	rng        *rand.Rand
	runID      string
	generation int
	phase      Phase
	recorder   Recorder
}

// NewPopulationManager builds a manager with engines derived from the
// config's seed. A zero seed is replaced with the current time, so explicit
// seeds give reproducible runs and the default stays varied.
func NewPopulationManager(config Config, opts ...Option) (*PopulationManager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	root := rand.New(rand.NewSource(seed))

	mutation, err := NewMutationManager(config.Mutation, newRNG(root))
	if err != nil {
		return nil, err
	}
	crossover, err := NewCrossoverManager(config.Crossover, newRNG(root))
	if err != nil {
		return nil, err
	}

	pm := &PopulationManager{
		config:    config,
		metrics:   core.NewRing[PopulationMetrics](metricsHistorySize),
		evaluator: NewFitnessEvaluator(),
		mutation:  mutation,
		crossover: crossover,
		rng:       newRNG(root),
		runID:     uuid.New().String(),
		phase:     PhaseIdle,
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm, nil
}

// RunID returns the manager's run identifier, stamped on logs and archive rows.
func (pm *PopulationManager) RunID() string {
	return pm.runID
}

// Evaluator exposes the fitness evaluator for weight tuning and analysis.
func (pm *PopulationManager) Evaluator() *FitnessEvaluator {
	return pm.evaluator
}

// CurrentPhase reports the manager's position in the generation loop.
func (pm *PopulationManager) CurrentPhase() Phase {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.phase
}

// InitializePopulation installs the seed agents and synthesizes random agents
// up to the configured maximum size.
func (pm *PopulationManager) InitializePopulation(ctx context.Context, seed []*core.Agent) error {
	if err := errors.CheckContext(ctx, "initialize population"); err != nil {
		return err
	}
	logger := logging.GetLogger()
	ctx = logging.WithRunID(ctx, pm.runID)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.agents = make([]*core.Agent, 0, pm.config.Population.MaxSize)
	for _, a := range seed {
		if len(pm.agents) >= pm.config.Population.MaxSize {
			break
		}
		pm.agents = append(pm.agents, a.Clone())
	}
	synthesized := 0
	for len(pm.agents) < pm.config.Population.MaxSize {
		pm.agents = append(pm.agents, randomAgent(pm.rng, nil))
		synthesized++
	}
	pm.species = nil
	pm.generation = 0

	logger.Info(ctx, "initialized population: %d seeded, %d synthesized", len(seed), synthesized)
	return nil
}

// EvolveGeneration runs one full generation and returns its metrics snapshot.
func (pm *PopulationManager) EvolveGeneration(ctx context.Context) (*PopulationMetrics, error) {
	logger := logging.GetLogger()
	ctx = logging.WithRunID(ctx, pm.runID)
	ctx = logging.WithGeneration(ctx, pm.generation+1)

	pm.mu.Lock()
	defer pm.mu.Unlock()
	defer pm.setPhase(PhaseIdle)

	if len(pm.agents) == 0 {
		return nil, errors.New(errors.EmptyPopulation, "population has not been initialized")
	}
	if err := errors.CheckContext(ctx, "evolve generation"); err != nil {
		return nil, err
	}

	pm.generation++
	fctx := pm.synthesizeContext()

	pm.setPhase(PhaseEvaluating)
	pm.evaluateAll(ctx, fctx)

	pm.setPhase(PhaseSpeciating)
	pm.species = UpdateSpecies(ctx, pm.species, pm.agents, pm.config.Population.SpeciesThreshold)

	pm.setPhase(PhaseSelecting)
	parentCount := maxInt(2, int(float64(len(pm.agents))*selectionFraction))
	selection, err := SelectParents(pm.agents, parentCount, pm.config.Population.ElitismRate, pm.rng)
	if err != nil {
		return nil, err
	}

	pm.setPhase(PhaseReproducing)
	offspring := pm.reproduce(ctx, selection.Parents, fctx)

	pm.setPhase(PhaseReplacing)
	pm.replace(ctx, offspring, selection.EliteCount)

	if pm.config.Population.AgingEnabled {
		pm.setPhase(PhaseAging)
		pm.age(ctx)
	}

	pm.setPhase(PhaseDiversifying)
	pm.agents = MaintainDiversity(ctx, pm.agents, pm.config.Population.TargetDiversity, pm.config.Population.MaxSize, pm.rng)
	pm.clampSize(ctx)
	pm.evaluator.Forget(pm.liveIDs())

	pm.setPhase(PhaseRecording)
	metrics := pm.snapshot()
	pm.metrics.Push(metrics)
	if pm.recorder != nil {
		if err := pm.recorder.RecordGeneration(ctx, pm.runID, metrics, pm.bestLocked(3)); err != nil {
			logger.Warn(ctx, "generation archive failed: %v", err)
		}
	}

	logger.Info(ctx, "generation %d: size=%d avg=%.3f best=%.3f diversity=%.3f species=%d",
		metrics.Generation, metrics.Size, metrics.AverageFitness, metrics.BestFitness,
		metrics.DiversityIndex, metrics.SpeciesCount)
	return &metrics, nil
}

// EvolvePopulation runs up to generations generation cycles, stopping early
// on convergence or context cancellation. It returns the metrics of every
// generation that completed.
func (pm *PopulationManager) EvolvePopulation(ctx context.Context, generations int) ([]PopulationMetrics, error) {
	logger := logging.GetLogger()
	ctx = logging.WithRunID(ctx, pm.runID)

	var history []PopulationMetrics
	for i := 0; i < generations; i++ {
		if err := errors.CheckContext(ctx, "evolve population"); err != nil {
			return history, err
		}
		metrics, err := pm.EvolveGeneration(ctx)
		if err != nil {
			return history, err
		}
		history = append(history, *metrics)

		if pm.converged() {
			logger.Info(ctx, "converged after %d generations (stagnation %.2f)", i+1, metrics.StagnationLevel)
			break
		}
	}
	return history, nil
}

// GetCurrentPopulation returns a snapshot copy of the population slice. The
// agents themselves are shared; treat them as read-only.
func (pm *PopulationManager) GetCurrentPopulation() []*core.Agent {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	out := make([]*core.Agent, len(pm.agents))
	copy(out, pm.agents)
	return out
}

// GetBestAgents returns the k fittest agents, fittest first.
func (pm *PopulationManager) GetBestAgents(k int) []*core.Agent {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.bestLocked(k)
}

// GetPopulationMetrics returns the retained generation snapshots oldest-first.
func (pm *PopulationManager) GetPopulationMetrics() []PopulationMetrics {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.metrics.Values()
}

// Species returns the current species partition.
func (pm *PopulationManager) Species() []*Species {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	out := make([]*Species, len(pm.species))
	copy(out, pm.species)
	return out
}

// AnalyzePopulation produces an on-demand health report without advancing the
// generation loop.
func (pm *PopulationManager) AnalyzePopulation(ctx context.Context) (*PopulationAnalysis, error) {
	if err := errors.CheckContext(ctx, "analyze population"); err != nil {
		return nil, err
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if len(pm.agents) == 0 {
		return nil, errors.New(errors.EmptyPopulation, "population has not been initialized")
	}

	fctx := pm.synthesizeContext()
	bottlenecks := make(map[core.Dimension]int)
	profiles := make([]*core.FitnessProfile, 0, len(pm.agents))
	for _, a := range pm.agents {
		profile := pm.evaluator.EvaluateFitness(a, fctx, nil)
		profiles = append(profiles, profile)
		for _, d := range pm.evaluator.IdentifyBottlenecks(profile) {
			bottlenecks[d]++
		}
	}

	sizes := make(map[string]int, len(pm.species))
	var atRisk []string
	for _, s := range pm.species {
		sizes[s.ID] = len(s.Members)
		if s.ExtinctionRisk >= 0.5 {
			atRisk = append(atRisk, s.ID)
		}
	}

	return &PopulationAnalysis{
		Metrics:          pm.snapshot(),
		Bottlenecks:      bottlenecks,
		SpeciesSizes:     sizes,
		AtRiskSpecies:    atRisk,
		FitnessDiversity: pm.evaluator.CalculateFitnessDiversity(profiles),
	}, nil
}

// MigrateAgents moves count agents (the configured migration share when count
// is zero) into the target manager, preferring diverse emigrants. Used by the
// island replacement model and exposed for multi-population setups.
func (pm *PopulationManager) MigrateAgents(ctx context.Context, target *PopulationManager, count int) error {
	if target == nil || target == pm {
		return errors.New(errors.InvalidInput, "migration requires a distinct target population")
	}
	if err := errors.CheckContext(ctx, "migrate agents"); err != nil {
		return err
	}
	logger := logging.GetLogger()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if count <= 0 {
		count = int(pm.config.Population.MigrationRate * float64(len(pm.agents)))
	}
	if count < 1 {
		count = 1
	}
	if len(pm.agents)-count < pm.config.Population.MinSize {
		count = len(pm.agents) - pm.config.Population.MinSize
	}
	if count <= 0 {
		return errors.WithFields(
			errors.New(errors.InvalidInput, "source population too small to emigrate from"),
			errors.Fields{"size": len(pm.agents), "min_size": pm.config.Population.MinSize})
	}

	emigrants := SelectDiverseAgents(pm.agents, count, pm.rng)
	leaving := make(map[string]struct{}, len(emigrants))
	for _, a := range emigrants {
		leaving[a.ID] = struct{}{}
	}
	kept := pm.agents[:0]
	for _, a := range pm.agents {
		if _, ok := leaving[a.ID]; !ok {
			kept = append(kept, a)
		}
	}
	pm.agents = kept

	target.mu.Lock()
	for _, a := range emigrants {
		target.agents = append(target.agents, a)
	}
	if len(target.agents) > target.config.Population.MaxSize {
		target.agents = sortByFitnessDesc(target.agents)[:target.config.Population.MaxSize]
	}
	target.mu.Unlock()

	logger.Info(ctx, "migrated %d agents from %s to %s", len(emigrants), pm.runID, target.runID)
	return nil
}

// evaluateAll scores every agent in parallel, bounded by the configured
// concurrency, and caches the overall score on the agent.
func (pm *PopulationManager) evaluateAll(ctx context.Context, fctx core.FitnessContext) {
	p := pool.New().WithMaxGoroutines(pm.config.Population.Concurrency)
	for _, agent := range pm.agents {
		agent := agent
		p.Go(func() {
			profile := pm.evaluator.EvaluateFitness(agent, fctx, nil)
			agent.Fitness = profile.Overall
		})
	}
	p.Wait()
}

// reproduce crosses selected parents and mutates the resulting offspring.
// Offspring of failed mutations survive unmutated.
func (pm *PopulationManager) reproduce(ctx context.Context, parents []*core.Agent, fctx core.FitnessContext) []*core.Agent {
	var offspring []*core.Agent
	for _, result := range pm.crossover.PerformBatchCrossover(ctx, parents, nil) {
		offspring = append(offspring, result.Offspring...)
	}

	for _, m := range pm.mutation.MutatePopulation(ctx, offspring, &fctx) {
		// A mutant replaces the child it was derived from, located through its
		// adaptation history.
		for i, child := range offspring {
			if sameLineage(child, m.Agent) {
				offspring[i] = m.Agent
				break
			}
		}
	}
	return offspring
}

// replace merges offspring into the population under the configured policy.
// Unrecognized strategies silently use steady-state.
func (pm *PopulationManager) replace(ctx context.Context, offspring []*core.Agent, eliteCount int) {
	if len(offspring) == 0 {
		return
	}
	logger := logging.GetLogger()

	switch pm.config.Population.ReplacementStrategy {
	case ReplaceGenerational:
		elites := pm.bestLocked(maxInt(eliteCount, 1))
		pm.agents = append(elites, offspring...)

	case ReplaceElitePreserve:
		elites := pm.bestLocked(maxInt(eliteCount, 1))
		seen := make(map[string]struct{}, len(elites))
		for _, a := range elites {
			seen[a.ID] = struct{}{}
		}
		var rest []*core.Agent
		for _, a := range append(append([]*core.Agent{}, offspring...), pm.agents...) {
			if _, ok := seen[a.ID]; ok {
				continue
			}
			seen[a.ID] = struct{}{}
			rest = append(rest, a)
		}
		// Elites survive outright; the remaining slots go to the most
		// mutually distant of the rest rather than the next-fittest.
		slots := pm.config.Population.MaxSize - len(elites)
		pm.agents = append(elites, SelectDiverseAgents(rest, slots, pm.rng)...)

	case ReplaceIslandModel:
		pm.replaceWithinSpecies(ctx, offspring)

	case ReplaceSteadyState:
		pm.replaceSteadyState(offspring)

	default:
		logger.Debug(ctx, "unknown replacement strategy %q, using steady state",
			pm.config.Population.ReplacementStrategy)
		pm.replaceSteadyState(offspring)
	}
}

// replaceSteadyState merges offspring with the current population and keeps
// the fittest MaxSize agents, so the global best always survives.
func (pm *PopulationManager) replaceSteadyState(offspring []*core.Agent) {
	merged := append(append([]*core.Agent{}, pm.agents...), offspring...)
	merged = sortByFitnessDesc(merged)
	if len(merged) > pm.config.Population.MaxSize {
		merged = merged[:pm.config.Population.MaxSize]
	}
	pm.agents = merged
}

// replaceWithinSpecies treats each species as an island: offspring join the
// island of their most compatible species representative and compete only
// there, with the migration rate's share of offspring allowed to cross over
// to a random other island.
func (pm *PopulationManager) replaceWithinSpecies(ctx context.Context, offspring []*core.Agent) {
	if len(pm.species) == 0 {
		pm.replaceSteadyState(offspring)
		return
	}

	islands := make([][]*core.Agent, len(pm.species))
	for i, s := range pm.species {
		islands[i] = append([]*core.Agent{}, s.Members...)
	}

	for _, child := range offspring {
		home := 0
		bestCompat := -1.0
		for i, s := range pm.species {
			if c := Compatibility(child, s.Representative); c > bestCompat {
				bestCompat = c
				home = i
			}
		}
		if len(pm.species) > 1 && pm.rng.Float64() < pm.config.Population.MigrationRate {
			hop := pm.rng.Intn(len(pm.species) - 1)
			if hop >= home {
				hop++
			}
			home = hop
		}
		islands[home] = append(islands[home], child)
	}

	// Island capacity is proportional to the species' share of total species
	// fitness, so productive islands grow at the expense of weak ones.
	total := 0.0
	for _, s := range pm.species {
		total += math.Max(s.AverageFitness, 0)
	}
	var merged []*core.Agent
	for i, island := range islands {
		capacity := pm.config.Population.MaxSize / len(islands)
		if total > 0 {
			capacity = int(float64(pm.config.Population.MaxSize) * math.Max(pm.species[i].AverageFitness, 0) / total)
		}
		if capacity < 1 {
			capacity = 1
		}
		island = sortByFitnessDesc(island)
		if len(island) > capacity {
			island = island[:capacity]
		}
		merged = append(merged, island...)
	}
	pm.agents = merged
}

// age increments every agent's age and retires non-elite agents past the
// maximum age, refilling to the minimum size when retirement cuts too deep.
func (pm *PopulationManager) age(ctx context.Context) {
	logger := logging.GetLogger()
	eliteCount := maxInt(1, int(float64(len(pm.agents))*pm.config.Population.ElitismRate))
	elites := make(map[string]struct{}, eliteCount)
	for _, a := range pm.bestLocked(eliteCount) {
		elites[a.ID] = struct{}{}
	}

	survivors := pm.agents[:0]
	retired := 0
	for _, a := range pm.agents {
		a.Age++
		if a.Age > pm.config.Population.MaxAgentAge {
			if _, isElite := elites[a.ID]; !isElite {
				retired++
				continue
			}
		}
		survivors = append(survivors, a)
	}
	pm.agents = survivors

	refilled := 0
	for len(pm.agents) < pm.config.Population.MinSize {
		pm.agents = append(pm.agents, randomAgent(pm.rng, nil))
		refilled++
	}
	if retired > 0 || refilled > 0 {
		logger.Debug(ctx, "aging retired %d agents, refilled %d", retired, refilled)
	}
}

// clampSize enforces the configured size bounds after all per-generation
// steps ran.
func (pm *PopulationManager) clampSize(ctx context.Context) {
	if len(pm.agents) > pm.config.Population.MaxSize {
		pm.agents = sortByFitnessDesc(pm.agents)[:pm.config.Population.MaxSize]
	}
	for len(pm.agents) < pm.config.Population.MinSize {
		pm.agents = append(pm.agents, randomAgent(pm.rng, nil))
	}
}

// snapshot computes the current generation's metrics. Call with the lock held.
func (pm *PopulationManager) snapshot() PopulationMetrics {
	fitnesses := make([]float64, len(pm.agents))
	totalAge := 0
	best := 0.0
	for i, a := range pm.agents {
		fitnesses[i] = a.Fitness
		totalAge += a.Age
		if a.Fitness > best {
			best = a.Fitness
		}
	}
	avg := mean(fitnesses)

	evolutionRate := 0.0
	if previous, ok := pm.metrics.Latest(); ok {
		evolutionRate = avg - previous.AverageFitness
	}

	avgAge := 0.0
	if len(pm.agents) > 0 {
		avgAge = float64(totalAge) / float64(len(pm.agents))
	}

	return PopulationMetrics{
		Generation:      pm.generation,
		Size:            len(pm.agents),
		AverageFitness:  avg,
		BestFitness:     best,
		FitnessVariance: variance(fitnesses),
		DiversityIndex:  DiversityIndex(pm.agents),
		SpeciesCount:    len(pm.species),
		AverageAge:      avgAge,
		EvolutionRate:   evolutionRate,
		StagnationLevel: pm.stagnationLevel(evolutionRate),
		Timestamp:       time.Now(),
	}
}

// stagnationLevel maps the mean absolute evolution rate of the recent window
// onto [0, 1]: 1 when average fitness stopped moving entirely. Early
// generations have no rate history yet and report zero until a full window
// accumulated, so a run is never declared stagnant on startup.
func (pm *PopulationManager) stagnationLevel(currentRate float64) float64 {
	rates := []float64{abs(currentRate)}
	for _, m := range pm.metrics.Last(stagnationRateWindow - 1) {
		rates = append(rates, abs(m.EvolutionRate))
	}
	if len(rates) < stagnationRateWindow {
		return 0
	}
	return clamp01(1 - 10*mean(rates))
}

// converged reports whether the run should stop early: average fitness has
// flatlined over the convergence window or stagnation saturated.
func (pm *PopulationManager) converged() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	latest, ok := pm.metrics.Latest()
	if ok && latest.StagnationLevel > stagnationStopLevel {
		return true
	}

	window := pm.metrics.Last(convergenceWindow)
	if len(window) < convergenceWindow {
		return false
	}
	averages := make([]float64, len(window))
	for i, m := range window {
		averages[i] = m.AverageFitness
	}
	return variance(averages) < convergenceVariance
}

// synthesizeContext derives the generation's evaluation context from the
// configured task domain and the population's current pressure signals.
func (pm *PopulationManager) synthesizeContext() core.FitnessContext {
	pressure := pm.config.Population.SelectionPressure
	stagnation := 0.0
	if latest, ok := pm.metrics.Latest(); ok {
		stagnation = latest.StagnationLevel
	}
	return core.FitnessContext{
		TaskDomain:                pm.config.Population.TaskDomain,
		ComplexityLevel:           1 + 2*pressure,
		TimeConstraints:           60,
		CollaborationRequirements: 2,
		AdaptationPressure:        clamp01(pressure + 0.3*stagnation),
		InnovationDemand:          clamp01(0.3 + 0.7*stagnation),
		StabilityRequirement:      clamp01(1 - pressure),
	}
}

// bestLocked returns the k fittest agents. Call with at least a read lock.
func (pm *PopulationManager) bestLocked(k int) []*core.Agent {
	sorted := sortByFitnessDesc(pm.agents)
	if k > len(sorted) {
		k = len(sorted)
	}
	if k < 0 {
		k = 0
	}
	return sorted[:k]
}

// liveIDs returns the ID set of the current population.
func (pm *PopulationManager) liveIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(pm.agents))
	for _, a := range pm.agents {
		ids[a.ID] = struct{}{}
	}
	return ids
}

func (pm *PopulationManager) setPhase(p Phase) {
	pm.phase = p
}

// sameLineage reports whether the mutant was derived from the candidate by
// comparing adaptation histories: a mutant carries its source's full history
// plus its own mutation event.
func sameLineage(source, mutant *core.Agent) bool {
	if len(mutant.AdaptationHistory) != len(source.AdaptationHistory)+1 {
		return false
	}
	for i, e := range source.AdaptationHistory {
		if mutant.AdaptationHistory[i] != e {
			return false
		}
	}
	return true
}
