package evolution

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/XiaoConstantine/evo-go/pkg/core"
	"github.com/XiaoConstantine/evo-go/pkg/errors"
	"github.com/XiaoConstantine/evo-go/pkg/logging"
)

// MutationType tags one of the six mutation strategies.
type MutationType string

const (
	MutationGaussian    MutationType = "gaussian"
	MutationUniform     MutationType = "uniform"
	MutationAdaptive    MutationType = "adaptive"
	MutationDirectional MutationType = "directional"
	MutationStructural  MutationType = "structural"
	MutationCreative    MutationType = "creative"
)

// DirectionalGoal names the goal vector of a directional mutation.
type DirectionalGoal string

const (
	GoalImprovePerformance DirectionalGoal = "improve_performance"
	GoalIncreaseDiversity  DirectionalGoal = "increase_diversity"
	GoalEnhanceStability   DirectionalGoal = "enhance_stability"
	GoalBoostCreativity    DirectionalGoal = "boost_creativity"
)

// StructuralOp names one structural mutation operation.
type StructuralOp string

const (
	StructuralAdd    StructuralOp = "add_capability"
	StructuralRemove StructuralOp = "remove_capability"
	StructuralMerge  StructuralOp = "merge_capabilities"
)

// MutationPoint records one capability-level change.
type MutationPoint struct {
	Location   string // capability ID, optionally suffixed with the field touched
	Before     float64
	After      float64
	Confidence float64
}

// MutationResult is the output of one mutation application. The contained
// agent is a new value; the input agent is never modified.
type MutationResult struct {
	Agent          *core.Agent
	Type           MutationType
	Points         []MutationPoint
	Strength       float64
	ExpectedImpact float64
	RiskLevel      float64
	Reversible     bool
}

// minMutationPotential gates whether mutating an agent is worthwhile.
const minMutationPotential = 0.1

// MutationManager perturbs single agents under one of six strategies. Not
// safe for concurrent use; the population manager drives it from a single
// goroutine per generation.
type MutationManager struct {
	config MutationConfig
	rng    *rand.Rand
}

// NewMutationManager creates a mutation engine drawing randomness from rng.
func NewMutationManager(config MutationConfig, rng *rand.Rand) (*MutationManager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New(errors.InvalidInput, "mutation manager requires a random source")
	}
	return &MutationManager{config: config, rng: rng}, nil
}

// MutationPotential scores how worthwhile mutating the agent is, from its
// fitness headroom, capability diversity shortfall and adaptation-history
// saturation.
func (m *MutationManager) MutationPotential(agent *core.Agent) float64 {
	capDiversity := 0.0
	if len(agent.Capabilities) > 0 {
		capDiversity = float64(len(agent.CapabilityIDs())) / math.Max(float64(len(agent.Capabilities)), 10)
	}
	historyRoom := math.Max(0, 1-float64(len(agent.AdaptationHistory))/100.0)
	return (1-clamp01(agent.Fitness))*0.5 + (1-clamp01(capDiversity))*0.3 + historyRoom*0.2
}

// RecommendStrategies orders candidate strategies by the agent's state. The
// adaptive strategy is always a candidate.
func (m *MutationManager) RecommendStrategies(agent *core.Agent) []MutationType {
	var recommended []MutationType
	switch {
	case agent.Fitness < 0.4:
		recommended = append(recommended, MutationDirectional)
	case len(agent.Capabilities) < 3:
		recommended = append(recommended, MutationStructural)
	case agent.Fitness > 0.7:
		recommended = append(recommended, MutationCreative)
	default:
		recommended = append(recommended, MutationGaussian)
	}
	return append(recommended, MutationAdaptive)
}

// MutateAgent selects and applies the top recommended strategy, failing with
// InsufficientMutationPotential when the agent offers too little headroom.
func (m *MutationManager) MutateAgent(agent *core.Agent, fctx *core.FitnessContext) (*MutationResult, error) {
	potential := m.MutationPotential(agent)
	if potential < minMutationPotential {
		return nil, errors.WithFields(
			errors.New(errors.InsufficientMutationPotential, "agent offers too little mutation potential"),
			errors.Fields{"agent_id": agent.ID, "potential": potential})
	}

	for _, strategy := range m.RecommendStrategies(agent) {
		result, err := m.Mutate(agent, strategy, fctx)
		if err == nil {
			return result, nil
		}
		// Structural mutation can be disabled or refused; fall through to the
		// next recommendation instead of failing the whole call.
		if !errors.HasCode(err, errors.StructuralMutationDisabled) && !errors.HasCode(err, errors.InvalidInput) {
			return nil, err
		}
	}
	return m.Mutate(agent, MutationGaussian, fctx)
}

// Mutate applies the named strategy. Unknown strategies fail with
// StrategyNotFound.
func (m *MutationManager) Mutate(agent *core.Agent, strategy MutationType, fctx *core.FitnessContext) (*MutationResult, error) {
	switch strategy {
	case MutationGaussian:
		return m.mutateGaussian(agent), nil
	case MutationUniform:
		return m.mutateUniform(agent), nil
	case MutationAdaptive:
		return m.mutateAdaptive(agent, fctx), nil
	case MutationDirectional:
		return m.MutateDirectional(agent, m.pickGoal(agent), nil)
	case MutationStructural:
		return m.MutateStructural(agent, m.pickStructuralOp(agent))
	case MutationCreative:
		return m.mutateCreative(agent), nil
	default:
		return nil, errors.WithFields(
			errors.New(errors.StrategyNotFound, "unknown mutation strategy"),
			errors.Fields{"strategy": string(strategy)})
	}
}

// MutatePopulation applies MutateAgent independently per agent with
// probability equal to the mutation rate. Per-agent failures are logged and
// skipped; the returned slice holds whatever subset succeeded.
func (m *MutationManager) MutatePopulation(ctx context.Context, agents []*core.Agent, fctx *core.FitnessContext) []*MutationResult {
	logger := logging.GetLogger()
	results := make([]*MutationResult, 0, len(agents))
	for _, agent := range agents {
		if m.rng.Float64() >= m.config.Rate {
			continue
		}
		result, err := m.MutateAgent(agent, fctx)
		if err != nil {
			logger.Debug(ctx, "skipping mutation for agent %s: %v", agent.ID, err)
			continue
		}
		results = append(results, result)
	}
	return results
}

// mutateGaussian perturbs each capability's strength with Box-Muller noise
// (sigma = configured strength) with probability equal to the mutation rate,
// and its adaptation rate with smaller-sigma noise.
func (m *MutationManager) mutateGaussian(agent *core.Agent) *MutationResult {
	mutant := agent.Derive()
	var points []MutationPoint

	for _, c := range mutant.Capabilities {
		if m.rng.Float64() >= m.config.Rate {
			continue
		}
		before := c.Strength
		c.Strength = core.ClampStrength(c.Strength + gaussian(m.rng, m.config.Strength))
		points = append(points, MutationPoint{
			Location: c.ID, Before: before, After: c.Strength, Confidence: 0.8,
		})

		rateBefore := c.AdaptationRate
		c.AdaptationRate = core.ClampAdaptationRate(c.AdaptationRate + gaussian(m.rng, m.config.Strength*0.3))
		points = append(points, MutationPoint{
			Location: c.ID + "/adaptation_rate", Before: rateBefore, After: c.AdaptationRate, Confidence: 0.8,
		})
	}

	mutant.RecordAdaptation("mutation", string(MutationGaussian))
	return m.finalize(mutant, MutationGaussian, points, true)
}

// mutateUniform perturbs strengths with uniform noise over the configured
// bound scaled by the mutation strength.
func (m *MutationManager) mutateUniform(agent *core.Agent) *MutationResult {
	mutant := agent.Derive()
	var points []MutationPoint
	bound := m.config.UniformBound * m.config.Strength

	for _, c := range mutant.Capabilities {
		if m.rng.Float64() >= m.config.Rate {
			continue
		}
		before := c.Strength
		c.Strength = core.ClampStrength(c.Strength + (m.rng.Float64()*2-1)*bound)
		points = append(points, MutationPoint{
			Location: c.ID, Before: before, After: c.Strength, Confidence: 0.7,
		})

		rateBefore := c.AdaptationRate
		c.AdaptationRate = core.ClampAdaptationRate(c.AdaptationRate + (m.rng.Float64()*2-1)*bound*0.3)
		points = append(points, MutationPoint{
			Location: c.ID + "/adaptation_rate", Before: rateBefore, After: c.AdaptationRate, Confidence: 0.7,
		})
	}

	mutant.RecordAdaptation("mutation", string(MutationUniform))
	return m.finalize(mutant, MutationUniform, points, true)
}

// mutateAdaptive scales per-capability mutation probability and step size
// inversely with the capability's own recent performance and with the agent's
// overall fitness: the worse a capability performs, the harder it mutates.
// Environmental adaptation pressure from the context raises the baseline.
func (m *MutationManager) mutateAdaptive(agent *core.Agent, fctx *core.FitnessContext) *MutationResult {
	envPressure := 0.0
	if fctx != nil {
		envPressure = clamp01(fctx.AdaptationPressure)
	}

	mutant := agent.Derive()
	var points []MutationPoint

	for _, c := range mutant.Capabilities {
		capPerf := c.MeanPerformance(0.5)
		pressure := 0.4*(1-capPerf) + 0.4*(1-clamp01(agent.Fitness)) + 0.2*envPressure
		probability := clamp01(m.config.Rate * (0.5 + pressure))
		if m.rng.Float64() >= probability {
			continue
		}
		step := m.config.Strength * (0.5 + pressure)
		confidence := clamp01(1 - 0.5*pressure)

		before := c.Strength
		c.Strength = core.ClampStrength(c.Strength + gaussian(m.rng, step))
		points = append(points, MutationPoint{
			Location: c.ID, Before: before, After: c.Strength, Confidence: confidence,
		})
	}

	mutant.RecordAdaptation("mutation", string(MutationAdaptive))
	return m.finalize(mutant, MutationAdaptive, points, true)
}

// MutateDirectional applies a named goal vector to the target capabilities
// (all of them when targets is empty).
func (m *MutationManager) MutateDirectional(agent *core.Agent, goal DirectionalGoal, targets []string) (*MutationResult, error) {
	mutant := agent.Derive()
	var points []MutationPoint

	targetSet := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		targetSet[t] = struct{}{}
	}

	for _, c := range mutant.Capabilities {
		if len(targetSet) > 0 {
			if _, ok := targetSet[c.ID]; !ok {
				continue
			}
		}
		switch goal {
		case GoalImprovePerformance:
			before := c.Strength
			c.Strength = core.ClampStrength(c.Strength + 0.1)
			points = append(points, MutationPoint{Location: c.ID, Before: before, After: c.Strength, Confidence: 0.9})
		case GoalIncreaseDiversity:
			tag := m.freshTag(c, specializationPalette)
			if tag != "" {
				c.Specializations = append(c.Specializations, tag)
				points = append(points, MutationPoint{Location: c.ID + "/specializations", Before: float64(len(c.Specializations) - 1), After: float64(len(c.Specializations)), Confidence: 0.9})
			}
		case GoalEnhanceStability:
			before := c.AdaptationRate
			c.AdaptationRate = core.ClampAdaptationRate(c.AdaptationRate * 0.8)
			points = append(points, MutationPoint{Location: c.ID + "/adaptation_rate", Before: before, After: c.AdaptationRate, Confidence: 0.9})
		case GoalBoostCreativity:
			rateBefore := c.AdaptationRate
			c.AdaptationRate = core.ClampAdaptationRate(c.AdaptationRate * 1.2)
			points = append(points, MutationPoint{Location: c.ID + "/adaptation_rate", Before: rateBefore, After: c.AdaptationRate, Confidence: 0.9})

			before := c.Strength
			c.Strength = core.ClampStrength(c.Strength + gaussian(m.rng, m.config.Strength))
			points = append(points, MutationPoint{Location: c.ID, Before: before, After: c.Strength, Confidence: 0.9})
		default:
			return nil, errors.WithFields(
				errors.New(errors.StrategyNotFound, "unknown directional goal"),
				errors.Fields{"goal": string(goal)})
		}
	}

	mutant.RecordAdaptation("mutation", fmt.Sprintf("%s:%s", MutationDirectional, goal))
	return m.finalize(mutant, MutationDirectional, points, true), nil
}

// MutateStructural adds, removes or merges capabilities. Fails with
// StructuralMutationDisabled when structural mutation is switched off, and
// refuses removal that would leave fewer than three capabilities. Structural
// results are not reversible.
func (m *MutationManager) MutateStructural(agent *core.Agent, op StructuralOp) (*MutationResult, error) {
	if !m.config.EnableStructural {
		return nil, errors.New(errors.StructuralMutationDisabled, "structural mutation is disabled")
	}

	mutant := agent.Derive()
	var points []MutationPoint

	switch op {
	case StructuralAdd:
		if len(mutant.Capabilities) >= m.config.MaxCapabilities {
			return nil, errors.WithFields(
				errors.New(errors.InvalidInput, "agent already at capability limit"),
				errors.Fields{"agent_id": agent.ID, "capabilities": len(mutant.Capabilities)})
		}
		added := randomCapability(m.rng)
		mutant.Capabilities = append(mutant.Capabilities, added)
		points = append(points, MutationPoint{Location: added.ID, Before: 0, After: added.Strength, Confidence: 0.6})

	case StructuralRemove:
		if len(mutant.Capabilities) <= 2 {
			return nil, errors.WithFields(
				errors.New(errors.InvalidInput, "removal refused: agent has too few capabilities"),
				errors.Fields{"agent_id": agent.ID, "capabilities": len(mutant.Capabilities)})
		}
		weakest := 0
		for i, c := range mutant.Capabilities {
			if c.Strength < mutant.Capabilities[weakest].Strength {
				weakest = i
			}
		}
		removed := mutant.Capabilities[weakest]
		mutant.Capabilities = append(mutant.Capabilities[:weakest], mutant.Capabilities[weakest+1:]...)
		points = append(points, MutationPoint{Location: removed.ID, Before: removed.Strength, After: 0, Confidence: 0.6})

	case StructuralMerge:
		if len(mutant.Capabilities) < 2 {
			return nil, errors.WithFields(
				errors.New(errors.InvalidInput, "merge requires at least two capabilities"),
				errors.Fields{"agent_id": agent.ID})
		}
		i := m.rng.Intn(len(mutant.Capabilities))
		j := m.rng.Intn(len(mutant.Capabilities))
		for j == i {
			j = m.rng.Intn(len(mutant.Capabilities))
		}
		merged := mergeCapabilities(mutant.Capabilities[i], mutant.Capabilities[j])
		points = append(points,
			MutationPoint{Location: mutant.Capabilities[i].ID, Before: mutant.Capabilities[i].Strength, After: merged.Strength, Confidence: 0.6},
			MutationPoint{Location: mutant.Capabilities[j].ID, Before: mutant.Capabilities[j].Strength, After: merged.Strength, Confidence: 0.6})
		if i > j {
			i, j = j, i
		}
		mutant.Capabilities = append(mutant.Capabilities[:j], mutant.Capabilities[j+1:]...)
		mutant.Capabilities[i] = merged

	default:
		return nil, errors.WithFields(
			errors.New(errors.OperatorNotFound, "unknown structural operation"),
			errors.Fields{"operation": string(op)})
	}

	mutant.RecordAdaptation("mutation", fmt.Sprintf("%s:%s", MutationStructural, op))
	return m.finalize(mutant, MutationStructural, points, false), nil
}

// mutateCreative stochastically adds novelty tags, rescales strengths
// non-linearly and sometimes appends an entirely new low-strength,
// high-adaptation capability from the novelty vocabulary. Not reversible.
func (m *MutationManager) mutateCreative(agent *core.Agent) *MutationResult {
	mutant := agent.Derive()
	var points []MutationPoint

	for _, c := range mutant.Capabilities {
		if m.rng.Float64() < 0.3 {
			tag := m.freshTag(c, noveltyVocabulary)
			if tag != "" {
				c.Specializations = append(c.Specializations, tag)
			}
		}
		before := c.Strength
		// Concave rescale lifts weak capabilities more than strong ones,
		// plus a small stochastic kick.
		c.Strength = core.ClampStrength(math.Pow(c.Strength, 0.8) + gaussian(m.rng, m.config.Strength*0.5))
		points = append(points, MutationPoint{Location: c.ID, Before: before, After: c.Strength, Confidence: 0.5})
	}

	if m.rng.Float64() < 0.3 && len(mutant.Capabilities) < m.config.MaxCapabilities {
		tag := noveltyVocabulary[m.rng.Intn(len(noveltyVocabulary))]
		novel := core.NewCapability(
			"novel_"+tag,
			0.1+m.rng.Float64()*0.2,
			0.35+m.rng.Float64()*0.15,
			[]string{tag},
		)
		mutant.Capabilities = append(mutant.Capabilities, novel)
		points = append(points, MutationPoint{Location: novel.ID, Before: 0, After: novel.Strength, Confidence: 0.5})
	}

	mutant.RecordAdaptation("mutation", string(MutationCreative))
	return m.finalize(mutant, MutationCreative, points, false)
}

// finalize computes the result's impact and risk from its mutation points.
// Expected impact is the mean absolute strength delta; risk additionally
// discounts each delta by the point's confidence.
func (m *MutationManager) finalize(mutant *core.Agent, t MutationType, points []MutationPoint, reversible bool) *MutationResult {
	impact := 0.0
	risk := 0.0
	for _, p := range points {
		delta := abs(p.After - p.Before)
		impact += delta
		risk += delta * (1 - p.Confidence)
	}
	if len(points) > 0 {
		impact /= float64(len(points))
		risk /= float64(len(points))
	}
	return &MutationResult{
		Agent:          mutant,
		Type:           t,
		Points:         points,
		Strength:       m.config.Strength,
		ExpectedImpact: impact,
		RiskLevel:      risk,
		Reversible:     reversible,
	}
}

// pickGoal chooses a directional goal from the agent's state.
func (m *MutationManager) pickGoal(agent *core.Agent) DirectionalGoal {
	switch {
	case agent.Fitness < 0.3:
		return GoalImprovePerformance
	case len(agent.SpecializationSet()) < 3:
		return GoalIncreaseDiversity
	case agent.Fitness > 0.7:
		return GoalBoostCreativity
	default:
		return GoalEnhanceStability
	}
}

// pickStructuralOp chooses a structural operation that the agent's current
// shape permits.
func (m *MutationManager) pickStructuralOp(agent *core.Agent) StructuralOp {
	n := len(agent.Capabilities)
	switch {
	case n < 3:
		return StructuralAdd
	case n >= m.config.MaxCapabilities:
		return StructuralRemove
	default:
		return []StructuralOp{StructuralAdd, StructuralRemove, StructuralMerge}[m.rng.Intn(3)]
	}
}

// freshTag picks a tag from the pool that the capability does not carry yet.
func (m *MutationManager) freshTag(c *core.Capability, pool []string) string {
	offset := m.rng.Intn(len(pool))
	for i := range pool {
		tag := pool[(offset+i)%len(pool)]
		if !c.HasSpecialization(tag) {
			return tag
		}
	}
	return ""
}

// mergeCapabilities combines two capabilities: averaged strength plus a merge
// bonus, unioned specializations and merged morphology.
func mergeCapabilities(a, b *core.Capability) *core.Capability {
	merged := core.NewCapability(
		a.ID+"+"+b.ID,
		(a.Strength+b.Strength)/2+0.1,
		(a.AdaptationRate+b.AdaptationRate)/2,
		a.Specializations,
	)
	for _, t := range b.Specializations {
		if !merged.HasSpecialization(t) {
			merged.Specializations = append(merged.Specializations, t)
		}
	}
	for k, v := range a.Morphology {
		merged.Morphology[k] = v
	}
	for k, v := range b.Morphology {
		merged.Morphology[k] = v
	}
	return merged
}
