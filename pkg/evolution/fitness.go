package evolution

import (
	"math"
	"sync"

	"github.com/XiaoConstantine/evo-go/pkg/core"
	"github.com/XiaoConstantine/evo-go/pkg/errors"
)

const (
	// performanceWindow bounds how many recent records and prior evaluations
	// feed the performance, stability and learning-velocity dimensions.
	performanceWindow = 10

	// bottleneckThreshold marks a dimension as a bottleneck.
	bottleneckThreshold = 0.4

	// Defaults used when an agent has too little recorded history.
	defaultStability        = 0.7
	defaultLearningVelocity = 0.5
)

// paretoObjectives is the fixed 5-objective subset used by Dominates.
var paretoObjectives = []core.Dimension{
	core.DimPerformance,
	core.DimAdaptability,
	core.DimEfficiency,
	core.DimInnovation,
	core.DimStability,
}

// FitnessEvaluator scores agents against a context across eleven dimensions.
// It keeps a bounded per-agent history of past overall-performance values to
// derive stability and learning velocity. Safe for concurrent use.
type FitnessEvaluator struct {
	mu      sync.RWMutex
	weights core.Weights
	history map[string]*core.Ring[float64]
}

// NewFitnessEvaluator creates an evaluator with the default dimension weights.
func NewFitnessEvaluator() *FitnessEvaluator {
	return &FitnessEvaluator{
		weights: core.DefaultWeights(),
		history: make(map[string]*core.Ring[float64]),
	}
}

// EvaluateFitness scores the agent against the context. The optional history
// supplies observed task outcomes; when empty, the performance dimension
// falls back to the agent's last cached fitness.
func (e *FitnessEvaluator) EvaluateFitness(agent *core.Agent, fctx core.FitnessContext, history []core.PerformanceRecord) *core.FitnessProfile {
	profile := &core.FitnessProfile{
		Performance:      e.scorePerformance(agent, history),
		Adaptability:     scoreAdaptability(agent),
		Efficiency:       scoreEfficiency(agent, fctx),
		Specialization:   scoreSpecialization(agent),
		Generalization:   scoreGeneralization(agent),
		Innovation:       scoreInnovation(agent, fctx),
		Robustness:       scoreRobustness(agent),
		Sustainability:   scoreSustainability(agent),
		Collaboration:    scoreCollaboration(agent, fctx),
		Stability:        e.scoreStability(agent),
		LearningVelocity: e.scoreLearningVelocity(agent),
	}

	e.mu.Lock()
	weights := e.weights.Clone()
	ring, ok := e.history[agent.ID]
	if !ok {
		ring = core.NewRing[float64](performanceWindow * 2)
		e.history[agent.ID] = ring
	}
	ring.Push(profile.Performance)
	e.mu.Unlock()

	profile.Overall = weights.WeightedSum(profile)
	return profile
}

// Dominates reports Pareto dominance of a over b across the fixed objective
// subset {performance, adaptability, efficiency, innovation, stability}:
// true iff a is at least as good on every objective and strictly better on
// one. Irreflexive and asymmetric.
func (e *FitnessEvaluator) Dominates(a, b *core.FitnessProfile) bool {
	if a == nil || b == nil {
		return false
	}
	strictlyBetter := false
	for _, obj := range paretoObjectives {
		va, vb := a.Get(obj), b.Get(obj)
		if va < vb {
			return false
		}
		if va > vb {
			strictlyBetter = true
		}
	}
	return strictlyBetter
}

// CalculateFitnessDiversity returns the mean pairwise Euclidean distance of
// the profiles over the eleven dimensions. Fewer than two profiles, or
// identical profiles, yield zero.
func (e *FitnessEvaluator) CalculateFitnessDiversity(profiles []*core.FitnessProfile) float64 {
	if len(profiles) < 2 {
		return 0
	}
	total := 0.0
	pairs := 0
	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			total += profiles[i].Distance(profiles[j])
			pairs++
		}
	}
	return total / float64(pairs)
}

// IdentifyBottlenecks returns every dimension scoring below the bottleneck
// threshold, in declaration order.
func (e *FitnessEvaluator) IdentifyBottlenecks(profile *core.FitnessProfile) []core.Dimension {
	var bottlenecks []core.Dimension
	for _, d := range core.Dimensions() {
		if profile.Get(d) < bottleneckThreshold {
			bottlenecks = append(bottlenecks, d)
		}
	}
	return bottlenecks
}

// SetFitnessWeights applies a partial weight update and renormalizes all
// weights to sum to 1.
func (e *FitnessEvaluator) SetFitnessWeights(partial core.Weights) error {
	for d, v := range partial {
		if v < 0 {
			return errors.WithFields(
				errors.New(errors.InvalidInput, "fitness weights must be non-negative"),
				errors.Fields{"dimension": d.String(), "value": v})
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for d, v := range partial {
		e.weights[d] = v
	}
	e.weights.Normalize()
	return nil
}

// Weights returns a copy of the current normalized weights.
func (e *FitnessEvaluator) Weights() core.Weights {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights.Clone()
}

// recordedPerformance returns the agent's recorded performance values,
// oldest-first, capped at the performance window.
func (e *FitnessEvaluator) recordedPerformance(agentID string) []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ring, ok := e.history[agentID]
	if !ok {
		return nil
	}
	return ring.Last(performanceWindow)
}

// Forget drops the evaluator's recorded history for agents no longer in the
// population, bounding memory across long runs.
func (e *FitnessEvaluator) Forget(liveIDs map[string]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.history {
		if _, ok := liveIDs[id]; !ok {
			delete(e.history, id)
		}
	}
}

// scorePerformance derives the performance dimension from the most recent
// task records (accuracy 0.4 / efficiency 0.3 / quality 0.3), falling back to
// the agent's cached fitness when no history is supplied.
func (e *FitnessEvaluator) scorePerformance(agent *core.Agent, history []core.PerformanceRecord) float64 {
	if len(history) == 0 {
		return clamp01(agent.Fitness)
	}
	if len(history) > performanceWindow {
		history = history[len(history)-performanceWindow:]
	}
	total := 0.0
	for _, r := range history {
		total += r.TaskScore()
	}
	return clamp01(total / float64(len(history)))
}

// scoreAdaptability blends capability-count diversity (contribution capped at
// ten capabilities) with adaptation-history length (capped at twenty events).
func scoreAdaptability(agent *core.Agent) float64 {
	capDiversity := math.Min(float64(len(agent.Capabilities))/10.0, 1.0)
	historyDepth := math.Min(float64(len(agent.AdaptationHistory))/20.0, 1.0)
	return clamp01(0.6*capDiversity + 0.4*historyDepth)
}

// scoreEfficiency blends capability-count utilization against a
// context-derived optimum with a resource-efficiency term. Resource
// efficiency rewards strong capabilities with consistent strengths: the mean
// strength discounted by strength variance, so an agent carrying a few dead
// capabilities scores below one whose capabilities all pull their weight.
func scoreEfficiency(agent *core.Agent, fctx core.FitnessContext) float64 {
	optimal := 3.0 * math.Max(fctx.ComplexityLevel, 0.1) * math.Max(1, fctx.CollaborationRequirements)
	count := float64(len(agent.Capabilities))
	utilization := 1.0
	if optimal > 0 {
		utilization = 1 - math.Abs(count-optimal)/math.Max(optimal, math.Max(count, 1))
	}

	strengths := capabilityStrengths(agent)
	resource := mean(strengths) * (1 - clamp01(variance(strengths)*2))

	return clamp01(0.6*utilization + 0.4*resource)
}

// scoreSpecialization measures how focused the agent's capabilities are:
// mean tag depth per capability blended with the concentration of the most
// common specialization cluster.
func scoreSpecialization(agent *core.Agent) float64 {
	if len(agent.Capabilities) == 0 {
		return 0
	}
	tagCounts := make(map[string]int)
	totalTags := 0
	for _, c := range agent.Capabilities {
		totalTags += len(c.Specializations)
		for _, t := range c.Specializations {
			tagCounts[t]++
		}
	}
	if totalTags == 0 {
		return 0
	}
	maxCount := 0
	for _, n := range tagCounts {
		if n > maxCount {
			maxCount = n
		}
	}
	depth := math.Min(float64(totalTags)/float64(len(agent.Capabilities))/3.0, 1.0)
	concentration := float64(maxCount) / float64(totalTags)
	return clamp01(0.5*depth + 0.5*concentration)
}

// scoreGeneralization is inversely related to specialization depth, scaled
// by capability-type diversity. Agents whose capabilities pile tags onto few
// clusters are penalized.
func scoreGeneralization(agent *core.Agent) float64 {
	if len(agent.Capabilities) == 0 {
		return 0
	}
	distinctIDs := len(agent.CapabilityIDs())
	typeDiversity := float64(distinctIDs) / float64(len(agent.Capabilities))

	totalTags := 0
	for _, c := range agent.Capabilities {
		totalTags += len(c.Specializations)
	}
	meanTags := float64(totalTags) / float64(len(agent.Capabilities))
	overSpecialization := clamp01((meanTags - 2) / 4)

	clusters := len(agent.SpecializationSet())
	spread := math.Min(float64(clusters)/6.0, 1.0)

	return clamp01(typeDiversity * (1 - 0.5*overSpecialization) * (0.5 + 0.5*spread))
}

// scoreInnovation combines specialization novelty (tags owned by exactly one
// capability), adaptation-rate headroom and recent adaptation activity,
// weighted against the context's innovation demand.
func scoreInnovation(agent *core.Agent, fctx core.FitnessContext) float64 {
	if len(agent.Capabilities) == 0 {
		return 0
	}
	tagOwners := make(map[string]int)
	for _, c := range agent.Capabilities {
		for _, t := range c.Specializations {
			tagOwners[t]++
		}
	}
	unique := 0
	for _, owners := range tagOwners {
		if owners == 1 {
			unique++
		}
	}
	novelty := 0.0
	if len(tagOwners) > 0 {
		novelty = float64(unique) / float64(len(tagOwners))
	}

	rates := make([]float64, len(agent.Capabilities))
	for i, c := range agent.Capabilities {
		rates[i] = c.AdaptationRate
	}
	plasticity := (mean(rates) - core.MinAdaptationRate) / (core.MaxAdaptationRate - core.MinAdaptationRate)

	activity := math.Min(float64(len(agent.AdaptationHistory))/10.0, 1.0)

	base := 0.4*novelty + 0.3*plasticity + 0.3*activity
	demand := clamp01(fctx.InnovationDemand)
	// Innovation demand amplifies or dampens the intrinsic score around its midpoint.
	return clamp01(base * (0.7 + 0.6*demand))
}

// scoreRobustness combines capability redundancy (specializations covered by
// more than one capability), morphology resilience (richness of structural
// metadata) and raw capability strength.
func scoreRobustness(agent *core.Agent) float64 {
	if len(agent.Capabilities) == 0 {
		return 0
	}
	tagOwners := make(map[string]int)
	for _, c := range agent.Capabilities {
		for _, t := range c.Specializations {
			tagOwners[t]++
		}
	}
	redundant := 0
	for _, owners := range tagOwners {
		if owners > 1 {
			redundant++
		}
	}
	redundancy := 0.0
	if len(tagOwners) > 0 {
		redundancy = float64(redundant) / float64(len(tagOwners))
	}

	morphRes := 0.0
	for _, c := range agent.Capabilities {
		morphRes += math.Min(float64(len(c.Morphology))/4.0, 1.0)
	}
	morphRes /= float64(len(agent.Capabilities))

	return clamp01(0.5*redundancy + 0.3*morphRes + 0.2*mean(capabilityStrengths(agent)))
}

// scoreSustainability rewards balanced strength distributions, moderate
// adaptation rates and agents that have not outlived their usefulness.
func scoreSustainability(agent *core.Agent) float64 {
	if len(agent.Capabilities) == 0 {
		return 0
	}
	strengths := capabilityStrengths(agent)
	balance := 1 - clamp01(variance(strengths)*4)

	rates := make([]float64, len(agent.Capabilities))
	for i, c := range agent.Capabilities {
		rates[i] = c.AdaptationRate
	}
	// 0.2 is the sustainable sweet spot: high enough to keep adapting, low
	// enough not to churn.
	moderation := 1 - clamp01(math.Abs(mean(rates)-0.2)/0.2)

	longevity := clamp01(1 - float64(agent.Age)/100.0)

	return clamp01(0.5*balance + 0.3*moderation + 0.2*longevity)
}

// scoreCollaboration measures internal capability connectivity (mean pairwise
// specialization overlap) against the context's collaboration requirements.
func scoreCollaboration(agent *core.Agent, fctx core.FitnessContext) float64 {
	n := len(agent.Capabilities)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return clamp01(0.3 * fctx.CollaborationRequirements / 5.0)
	}

	total := 0.0
	pairs := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			total += jaccard(tagSet(agent.Capabilities[i]), tagSet(agent.Capabilities[j]))
			pairs++
		}
	}
	connectivity := total / float64(pairs)
	demand := clamp01(fctx.CollaborationRequirements / 5.0)
	return clamp01(0.7*connectivity + 0.3*demand)
}

// scoreStability is 1 - 2*variance over the agent's last ten recorded
// performance values, defaulting for agents with fewer than three prior
// evaluations.
func (e *FitnessEvaluator) scoreStability(agent *core.Agent) float64 {
	recorded := e.recordedPerformance(agent.ID)
	if len(recorded) < 3 {
		return defaultStability
	}
	return clamp01(1 - 2*variance(recorded))
}

// scoreLearningVelocity clamps the least-squares slope of the agent's
// historical performance sequence scaled by ten, defaulting for agents with
// fewer than five samples.
func (e *FitnessEvaluator) scoreLearningVelocity(agent *core.Agent) float64 {
	recorded := e.recordedPerformance(agent.ID)
	if len(recorded) < 5 {
		return defaultLearningVelocity
	}
	return clamp01(slope(recorded) * 10)
}

func capabilityStrengths(agent *core.Agent) []float64 {
	strengths := make([]float64, len(agent.Capabilities))
	for i, c := range agent.Capabilities {
		strengths[i] = c.Strength
	}
	return strengths
}

func tagSet(c *core.Capability) map[string]struct{} {
	set := make(map[string]struct{}, len(c.Specializations))
	for _, t := range c.Specializations {
		set[t] = struct{}{}
	}
	return set
}
