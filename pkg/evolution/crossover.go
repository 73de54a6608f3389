package evolution

import (
	"context"
	"math/rand"
	"sort"

	"github.com/XiaoConstantine/evo-go/pkg/core"
	"github.com/XiaoConstantine/evo-go/pkg/errors"
	"github.com/XiaoConstantine/evo-go/pkg/logging"
)

// CrossoverType tags one of the five crossover operators.
type CrossoverType string

const (
	CrossoverSinglePoint   CrossoverType = "single_point"
	CrossoverUniform       CrossoverType = "uniform"
	CrossoverSemantic      CrossoverType = "semantic"
	CrossoverAdaptive      CrossoverType = "adaptive"
	CrossoverMorphological CrossoverType = "morphological"
)

// Inheritance sources recorded per offspring capability.
const (
	inheritParent1 = "parent1"
	inheritParent2 = "parent2"
	inheritBlend   = "blend"
)

// CrossoverResult is the output of one recombination. Offspring are new
// agents; parents are never modified.
type CrossoverResult struct {
	Offspring       []*core.Agent
	Type            CrossoverType
	Compatibility   float64
	InheritanceMap  map[string]string // offspring capability ID -> parent1 | parent2 | blend
	NoveltyScore    float64
	ExpectedFitness float64
}

// CrossoverManager recombines pairs of compatible agents. Not safe for
// concurrent use.
type CrossoverManager struct {
	config CrossoverConfig
	rng    *rand.Rand
}

// NewCrossoverManager creates a crossover engine drawing randomness from rng.
func NewCrossoverManager(config CrossoverConfig, rng *rand.Rand) (*CrossoverManager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New(errors.InvalidInput, "crossover manager requires a random source")
	}
	return &CrossoverManager{config: config, rng: rng}, nil
}

// SelectOperator picks the operator best suited to the parent pair:
// highly complementary pairs get semantic blending, similar pairs get
// uniform or single-point exchange, and everything else defers to the
// adaptive dispatcher.
func (cm *CrossoverManager) SelectOperator(parent1, parent2 *core.Agent) CrossoverType {
	compat := Compatibility(parent1, parent2)
	comp := complementarity(parent1, parent2)

	switch {
	case comp > 0.7:
		return CrossoverSemantic
	case compat > 0.6:
		return CrossoverUniform
	case compat > 0.3:
		return CrossoverSinglePoint
	default:
		return CrossoverAdaptive
	}
}

// Crossover recombines two parents with the named operator. Fails with
// IncompatibleParents when their compatibility is below the configured
// threshold, and with OperatorNotFound for an unknown operator.
func (cm *CrossoverManager) Crossover(parent1, parent2 *core.Agent, operator CrossoverType) (*CrossoverResult, error) {
	compat := Compatibility(parent1, parent2)
	if compat < cm.config.CompatibilityThreshold {
		return nil, errors.WithFields(
			errors.New(errors.IncompatibleParents, "parents are below the compatibility threshold"),
			errors.Fields{
				"parent1":       parent1.ID,
				"parent2":       parent2.ID,
				"compatibility": compat,
				"threshold":     cm.config.CompatibilityThreshold,
			})
	}

	var result *CrossoverResult
	switch operator {
	case CrossoverSinglePoint:
		result = cm.singlePoint(parent1, parent2)
	case CrossoverUniform:
		result = cm.uniform(parent1, parent2)
	case CrossoverSemantic:
		result = cm.semantic(parent1, parent2)
	case CrossoverMorphological:
		result = cm.morphological(parent1, parent2)
	case CrossoverAdaptive:
		return cm.adaptive(parent1, parent2, compat)
	default:
		return nil, errors.WithFields(
			errors.New(errors.OperatorNotFound, "unknown crossover operator"),
			errors.Fields{"operator": string(operator)})
	}

	result.Compatibility = compat
	result.ExpectedFitness = cm.expectedFitness(parent1, parent2, result)
	return result, nil
}

// PerformBatchCrossover recombines pairs with probability equal to the
// crossover rate. When pairs is nil the agents are paired sequentially
// (0-1, 2-3, ...). Per-pair failures are logged and skipped.
func (cm *CrossoverManager) PerformBatchCrossover(ctx context.Context, agents []*core.Agent, pairs [][2]int) []*CrossoverResult {
	logger := logging.GetLogger()
	if pairs == nil {
		for i := 0; i+1 < len(agents); i += 2 {
			pairs = append(pairs, [2]int{i, i + 1})
		}
	}

	results := make([]*CrossoverResult, 0, len(pairs))
	for _, pair := range pairs {
		if pair[0] < 0 || pair[1] < 0 || pair[0] >= len(agents) || pair[1] >= len(agents) || pair[0] == pair[1] {
			logger.Warn(ctx, "skipping invalid crossover pair %v", pair)
			continue
		}
		if cm.rng.Float64() >= cm.config.Rate {
			continue
		}
		p1, p2 := agents[pair[0]], agents[pair[1]]
		result, err := cm.Crossover(p1, p2, cm.SelectOperator(p1, p2))
		if err != nil {
			logger.Debug(ctx, "skipping crossover of %s x %s: %v", p1.ID, p2.ID, err)
			continue
		}
		results = append(results, result)
	}
	return results
}

// adaptive re-dispatches to a concrete operator using the same thresholds as
// SelectOperator, falling through to morphological where SelectOperator would
// pick adaptive itself. It never selects itself, so dispatch always terminates.
func (cm *CrossoverManager) adaptive(parent1, parent2 *core.Agent, compat float64) (*CrossoverResult, error) {
	comp := complementarity(parent1, parent2)

	var chosen CrossoverType
	switch {
	case comp > 0.7:
		chosen = CrossoverSemantic
	case compat > 0.6:
		chosen = CrossoverUniform
	case compat > 0.3:
		chosen = CrossoverSinglePoint
	default:
		chosen = CrossoverMorphological
	}

	result, err := cm.Crossover(parent1, parent2, chosen)
	if err != nil {
		return nil, err
	}
	result.Type = CrossoverAdaptive
	return result, nil
}

// singlePoint cuts both parents' capability lists at one shared index, drawn
// over the longer list, and swaps the tails, producing two offspring.
func (cm *CrossoverManager) singlePoint(parent1, parent2 *core.Agent) *CrossoverResult {
	caps1 := sortedCapabilities(parent1)
	caps2 := sortedCapabilities(parent2)

	cut := cm.cutPoint(maxInt(len(caps1), len(caps2)))
	cut1 := minInt(cut, len(caps1))
	cut2 := minInt(cut, len(caps2))

	inheritance := make(map[string]string)
	child1 := cm.assemble(inheritance, caps1[:cut1], inheritParent1, caps2[cut2:], inheritParent2)
	child2 := cm.assemble(inheritance, caps2[:cut2], inheritParent2, caps1[cut1:], inheritParent1)

	return &CrossoverResult{
		Offspring:      cm.deriveOffspring(parent1, parent2, CrossoverSinglePoint, child1, child2),
		Type:           CrossoverSinglePoint,
		InheritanceMap: inheritance,
		NoveltyScore:   0.3,
	}
}

// uniform gives each offspring every capability id present in either parent,
// coin-flipping per offspring which parent's variant it inherits. A parent
// lacking the id contributes a synthesized weak stand-in so either coin
// outcome is drawable.
func (cm *CrossoverManager) uniform(parent1, parent2 *core.Agent) *CrossoverResult {
	inheritance := make(map[string]string)
	var child1, child2 []*core.Capability

	for _, id := range unionCapabilityIDs(parent1, parent2) {
		side1 := parent1.CapabilityByID(id)
		side2 := parent2.CapabilityByID(id)
		if side1 == nil {
			side1 = weakComplement(side2)
		}
		if side2 == nil {
			side2 = weakComplement(side1)
		}

		pick := func() (*core.Capability, bool) {
			if cm.rng.Float64() < 0.5 {
				return side1.Clone(), true
			}
			return side2.Clone(), false
		}
		cap1, from1 := pick()
		cap2, from2 := pick()
		child1 = append(child1, cap1)
		child2 = append(child2, cap2)

		switch {
		case from1 && from2:
			inheritance[id] = inheritParent1
		case !from1 && !from2:
			inheritance[id] = inheritParent2
		default:
			inheritance[id] = inheritBlend
		}
	}

	return &CrossoverResult{
		Offspring:      cm.deriveOffspring(parent1, parent2, CrossoverUniform, child1, child2),
		Type:           CrossoverUniform,
		InheritanceMap: inheritance,
		NoveltyScore:   0.4,
	}
}

// semantic blends every shared capability at a random ratio r for the first
// offspring and 1-r for the second, unioning specializations. Capabilities
// unique to one parent pass through to that parent's offspring with a
// synthesized weak complement on the other side.
func (cm *CrossoverManager) semantic(parent1, parent2 *core.Agent) *CrossoverResult {
	inheritance := make(map[string]string)
	var child1, child2 []*core.Capability

	for _, id := range unionCapabilityIDs(parent1, parent2) {
		c1 := parent1.CapabilityByID(id)
		c2 := parent2.CapabilityByID(id)
		switch {
		case c1 != nil && c2 != nil:
			r := cm.rng.Float64()
			child1 = append(child1, blendAtRatio(c1, c2, r))
			child2 = append(child2, blendAtRatio(c1, c2, 1-r))
			inheritance[id] = inheritBlend
		case c1 != nil:
			child1 = append(child1, c1.Clone())
			child2 = append(child2, weakComplement(c1))
			inheritance[id] = inheritParent1
		default:
			child1 = append(child1, weakComplement(c2))
			child2 = append(child2, c2.Clone())
			inheritance[id] = inheritParent2
		}
	}

	return &CrossoverResult{
		Offspring:      cm.deriveOffspring(parent1, parent2, CrossoverSemantic, child1, child2),
		Type:           CrossoverSemantic,
		InheritanceMap: inheritance,
		NoveltyScore:   0.7,
	}
}

// morphological merges the parents' morphology descriptors and stamps the
// merged structure onto every capability of both offspring. Capability lists
// are the raw union, never blended numerically: each offspring keeps its own
// parent's variant of a shared capability.
func (cm *CrossoverManager) morphological(parent1, parent2 *core.Agent) *CrossoverResult {
	inheritance := make(map[string]string)
	var child1, child2 []*core.Capability

	morph := mergedMorphology(parent1)
	for k, v := range mergedMorphology(parent2) {
		if _, ok := morph[k]; !ok {
			morph[k] = v
		}
	}
	annotate := func(c *core.Capability) *core.Capability {
		out := c.Clone()
		for k, v := range morph {
			out.Morphology[k] = v
		}
		return out
	}

	for _, id := range unionCapabilityIDs(parent1, parent2) {
		c1 := parent1.CapabilityByID(id)
		c2 := parent2.CapabilityByID(id)
		switch {
		case c1 != nil && c2 != nil:
			child1 = append(child1, annotate(c1))
			child2 = append(child2, annotate(c2))
			inheritance[id] = inheritBlend
		case c1 != nil:
			child1 = append(child1, annotate(c1))
			child2 = append(child2, annotate(c1))
			inheritance[id] = inheritParent1
		default:
			child1 = append(child1, annotate(c2))
			child2 = append(child2, annotate(c2))
			inheritance[id] = inheritParent2
		}
	}

	return &CrossoverResult{
		Offspring:      cm.deriveOffspring(parent1, parent2, CrossoverMorphological, child1, child2),
		Type:           CrossoverMorphological,
		InheritanceMap: inheritance,
		NoveltyScore:   0.6,
	}
}

// assemble concatenates two capability segments into one clone list while
// recording each capability's inheritance source. Duplicate IDs from the
// second segment are dropped.
func (cm *CrossoverManager) assemble(inheritance map[string]string, head []*core.Capability, headSrc string, tail []*core.Capability, tailSrc string) []*core.Capability {
	caps := make([]*core.Capability, 0, len(head)+len(tail))
	seen := make(map[string]struct{}, len(head))
	for _, c := range head {
		caps = append(caps, c.Clone())
		seen[c.ID] = struct{}{}
		inheritance[c.ID] = headSrc
	}
	for _, c := range tail {
		if _, ok := seen[c.ID]; ok {
			inheritance[c.ID] = inheritBlend
			continue
		}
		caps = append(caps, c.Clone())
		inheritance[c.ID] = tailSrc
	}
	return caps
}

// deriveOffspring turns capability lists into offspring agents carrying
// fresh identity, the max parent generation + 1, and a lineage record.
func (cm *CrossoverManager) deriveOffspring(parent1, parent2 *core.Agent, t CrossoverType, capLists ...[]*core.Capability) []*core.Agent {
	generation := maxInt(parent1.Generation, parent2.Generation) + 1
	offspring := make([]*core.Agent, 0, len(capLists))
	for _, caps := range capLists {
		if len(caps) == 0 {
			// An empty cut can strand a child without capabilities; seed it
			// with one synthesized capability so it stays viable.
			caps = []*core.Capability{randomCapability(cm.rng)}
		}
		child := core.NewAgent(caps)
		child.Generation = generation
		child.RecordAdaptation("crossover", string(t))
		offspring = append(offspring, child)
	}
	return offspring
}

// expectedFitness estimates offspring fitness from the parents' mean fitness
// shifted by the operator's novelty.
func (cm *CrossoverManager) expectedFitness(parent1, parent2 *core.Agent, result *CrossoverResult) float64 {
	parentMean := (parent1.Fitness + parent2.Fitness) / 2
	return clamp01(parentMean*(1-0.2*result.NoveltyScore) + 0.1*result.NoveltyScore)
}

// cutPoint picks a crossover index in [1, n-1], degrading gracefully for
// very short capability lists.
func (cm *CrossoverManager) cutPoint(n int) int {
	if n <= 1 {
		return n
	}
	return 1 + cm.rng.Intn(n-1)
}

// sortedCapabilities returns the agent's capabilities ordered by ID so the
// positional operators are deterministic under a fixed seed.
func sortedCapabilities(a *core.Agent) []*core.Capability {
	caps := make([]*core.Capability, len(a.Capabilities))
	copy(caps, a.Capabilities)
	sort.Slice(caps, func(i, j int) bool { return caps[i].ID < caps[j].ID })
	return caps
}

// unionCapabilityIDs returns the sorted union of both parents' capability IDs.
func unionCapabilityIDs(a, b *core.Agent) []string {
	seen := make(map[string]struct{}, len(a.Capabilities)+len(b.Capabilities))
	var ids []string
	for _, c := range a.Capabilities {
		if _, ok := seen[c.ID]; !ok {
			seen[c.ID] = struct{}{}
			ids = append(ids, c.ID)
		}
	}
	for _, c := range b.Capabilities {
		if _, ok := seen[c.ID]; !ok {
			seen[c.ID] = struct{}{}
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// blendAtRatio mixes two variants of a capability at ratio r toward a,
// unioning their specializations and morphology.
func blendAtRatio(a, b *core.Capability, r float64) *core.Capability {
	blended := core.NewCapability(
		a.ID,
		core.ClampStrength(r*a.Strength+(1-r)*b.Strength),
		core.ClampAdaptationRate(r*a.AdaptationRate+(1-r)*b.AdaptationRate),
		a.Specializations,
	)
	for _, t := range b.Specializations {
		if !blended.HasSpecialization(t) {
			blended.Specializations = append(blended.Specializations, t)
		}
	}
	for k, v := range a.Morphology {
		blended.Morphology[k] = v
	}
	for k, v := range b.Morphology {
		if _, ok := blended.Morphology[k]; !ok {
			blended.Morphology[k] = v
		}
	}
	return blended
}

// weakComplement synthesizes a weak copy of a capability present in only one
// parent, standing in for the absent parent's side of the blend.
func weakComplement(c *core.Capability) *core.Capability {
	comp := c.Clone()
	comp.Strength = core.ClampStrength(c.Strength * 0.4)
	comp.AdaptationRate = core.ClampAdaptationRate(c.AdaptationRate * 1.2)
	return comp
}
