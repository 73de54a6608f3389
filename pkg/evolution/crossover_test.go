package evolution

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/evo-go/pkg/core"
	"github.com/XiaoConstantine/evo-go/pkg/errors"
)

func newTestCrossoverManager(t *testing.T, config CrossoverConfig) *CrossoverManager {
	t.Helper()
	cm, err := NewCrossoverManager(config, rand.New(rand.NewSource(13)))
	require.NoError(t, err)
	return cm
}

func TestIncompatibleParentsRejected(t *testing.T) {
	// Disjoint capabilities score zero on the capability term; the empty
	// morphology and specialization sets count as identical, leaving 0.5.
	config := DefaultCrossoverConfig()
	config.CompatibilityThreshold = 0.6
	cm := newTestCrossoverManager(t, config)

	p1 := agentWithCapabilities("pattern_recognition", "logical_reasoning")
	p2 := agentWithCapabilities("coordination", "error_correction")

	_, err := cm.Crossover(p1, p2, CrossoverUniform)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.IncompatibleParents))
}

func TestCrossoverLeavesParentsUntouched(t *testing.T) {
	config := DefaultCrossoverConfig()
	config.CompatibilityThreshold = 0
	cm := newTestCrossoverManager(t, config)
	rng := rand.New(rand.NewSource(17))
	p1 := randomAgent(rng, nil)
	p2 := randomAgent(rng, nil)
	strengths1 := make([]float64, len(p1.Capabilities))
	for i, c := range p1.Capabilities {
		strengths1[i] = c.Strength
	}

	_, err := cm.Crossover(p1, p2, CrossoverUniform)
	require.NoError(t, err)
	for i, c := range p1.Capabilities {
		assert.Equal(t, strengths1[i], c.Strength)
	}
}

func TestInheritanceMapCoversOffspringCapabilities(t *testing.T) {
	config := DefaultCrossoverConfig()
	config.CompatibilityThreshold = 0
	cm := newTestCrossoverManager(t, config)
	rng := rand.New(rand.NewSource(19))

	for _, operator := range []CrossoverType{CrossoverSinglePoint, CrossoverUniform, CrossoverSemantic, CrossoverMorphological} {
		p1 := randomAgent(rng, nil)
		p2 := randomAgent(rng, nil)
		result, err := cm.Crossover(p1, p2, operator)
		require.NoError(t, err, "operator %s", operator)
		require.NotEmpty(t, result.Offspring)

		for _, child := range result.Offspring {
			for _, c := range child.Capabilities {
				src, ok := result.InheritanceMap[c.ID]
				if !ok {
					// A synthesized viability capability is the only exception.
					continue
				}
				assert.Contains(t, []string{inheritParent1, inheritParent2, inheritBlend}, src,
					"operator %s capability %s", operator, c.ID)
			}
		}
	}
}

func TestSinglePointProducesTwoOffspring(t *testing.T) {
	cm := newTestCrossoverManager(t, DefaultCrossoverConfig())
	p1 := agentWithCapabilities("pattern_recognition", "logical_reasoning", "coordination")
	p2 := agentWithCapabilities("pattern_recognition", "memory_recall", "coordination")

	result, err := cm.Crossover(p1, p2, CrossoverSinglePoint)
	require.NoError(t, err)
	assert.Len(t, result.Offspring, 2)
	assert.Equal(t, CrossoverSinglePoint, result.Type)
}

func TestSemanticBlendsSharedCapabilitiesComplementarily(t *testing.T) {
	cm := newTestCrossoverManager(t, DefaultCrossoverConfig())
	p1 := core.NewAgent([]*core.Capability{core.NewCapability("pattern_recognition", 0.9, 0.2, nil)})
	p2 := core.NewAgent([]*core.Capability{core.NewCapability("pattern_recognition", 0.3, 0.2, nil)})

	result, err := cm.Crossover(p1, p2, CrossoverSemantic)
	require.NoError(t, err)
	require.Len(t, result.Offspring, 2)
	assert.Equal(t, inheritBlend, result.InheritanceMap["pattern_recognition"])

	first := result.Offspring[0].CapabilityByID("pattern_recognition")
	second := result.Offspring[1].CapabilityByID("pattern_recognition")
	require.NotNil(t, first)
	require.NotNil(t, second)

	// Blends at r and 1-r sit between the parents' strengths and mirror each
	// other around their midpoint.
	for _, c := range []*core.Capability{first, second} {
		assert.GreaterOrEqual(t, c.Strength, 0.3)
		assert.LessOrEqual(t, c.Strength, 0.9)
	}
	assert.InDelta(t, 1.2, first.Strength+second.Strength, 1e-9)
}

func TestSemanticPassesUniqueCapabilitiesWithComplement(t *testing.T) {
	cm := newTestCrossoverManager(t, DefaultCrossoverConfig())
	p1 := core.NewAgent([]*core.Capability{core.NewCapability("pattern_recognition", 0.8, 0.2, nil)})
	p2 := core.NewAgent([]*core.Capability{core.NewCapability("coordination", 0.6, 0.2, nil)})

	result, err := cm.Crossover(p1, p2, CrossoverSemantic)
	require.NoError(t, err)
	require.Len(t, result.Offspring, 2)
	assert.Equal(t, inheritParent1, result.InheritanceMap["pattern_recognition"])
	assert.Equal(t, inheritParent2, result.InheritanceMap["coordination"])

	first, second := result.Offspring[0], result.Offspring[1]
	assert.InDelta(t, 0.8, first.CapabilityByID("pattern_recognition").Strength, 1e-9)
	assert.InDelta(t, 0.6, second.CapabilityByID("coordination").Strength, 1e-9)
	// The side lacking the capability receives a synthesized weak stand-in.
	assert.InDelta(t, 0.8*0.4, second.CapabilityByID("pattern_recognition").Strength, 1e-9)
	assert.InDelta(t, 0.6*0.4, first.CapabilityByID("coordination").Strength, 1e-9)
}

func TestMorphologicalMergesDescriptors(t *testing.T) {
	cm := newTestCrossoverManager(t, DefaultCrossoverConfig())
	c1 := core.NewCapability("pattern_recognition", 0.5, 0.2, nil)
	c1.Morphology["structure"] = "graph"
	c2 := core.NewCapability("pattern_recognition", 0.5, 0.2, nil)
	c2.Morphology["depth"] = "3"

	p1 := core.NewAgent([]*core.Capability{c1})
	p2 := core.NewAgent([]*core.Capability{c2})

	result, err := cm.Crossover(p1, p2, CrossoverMorphological)
	require.NoError(t, err)
	require.Len(t, result.Offspring, 2)

	for _, offspring := range result.Offspring {
		child := offspring.CapabilityByID("pattern_recognition")
		require.NotNil(t, child)
		assert.Equal(t, "graph", child.Morphology["structure"])
		assert.Equal(t, "3", child.Morphology["depth"])
	}
}

func TestUniformGivesEachOffspringTheFullUnion(t *testing.T) {
	cm := newTestCrossoverManager(t, DefaultCrossoverConfig())
	p1 := core.NewAgent([]*core.Capability{
		core.NewCapability("pattern_recognition", 0.5, 0.2, nil),
		core.NewCapability("logical_reasoning", 0.5, 0.2, nil),
	})
	p2 := core.NewAgent([]*core.Capability{
		core.NewCapability("pattern_recognition", 0.5, 0.2, nil),
		core.NewCapability("memory_recall", 0.5, 0.2, nil),
	})

	result, err := cm.Crossover(p1, p2, CrossoverUniform)
	require.NoError(t, err)
	require.Len(t, result.Offspring, 2)

	for _, offspring := range result.Offspring {
		for _, id := range []string{"pattern_recognition", "logical_reasoning", "memory_recall"} {
			c := offspring.CapabilityByID(id)
			require.NotNil(t, c, "offspring missing %s", id)
			// Either the owning parent's variant or its weak stand-in.
			assert.Contains(t, []float64{0.5, 0.2}, c.Strength, "capability %s", id)
		}
	}
}

func TestSinglePointUsesOneSharedCutIndex(t *testing.T) {
	cm := newTestCrossoverManager(t, DefaultCrossoverConfig())
	p1 := agentWithCapabilities("pattern_recognition", "logical_reasoning", "abstraction", "planning")
	p2 := agentWithCapabilities("coordination", "memory_recall", "error_correction", "communication")

	// With disjoint ids and equal list lengths, a single shared cut keeps
	// every offspring at exactly the parents' length.
	for i := 0; i < 10; i++ {
		result, err := cm.Crossover(p1, p2, CrossoverSinglePoint)
		require.NoError(t, err)
		require.Len(t, result.Offspring, 2)
		assert.Len(t, result.Offspring[0].Capabilities, 4)
		assert.Len(t, result.Offspring[1].Capabilities, 4)
	}
}

func TestAdaptiveDispatchFollowsSelectionThresholds(t *testing.T) {
	cm := newTestCrossoverManager(t, DefaultCrossoverConfig())

	// Identical parents: compatibility 1.0 dispatches to uniform.
	same1 := agentWithCapabilities("pattern_recognition", "coordination")
	same2 := agentWithCapabilities("pattern_recognition", "coordination")
	result, err := cm.Crossover(same1, same2, CrossoverAdaptive)
	require.NoError(t, err)
	assert.Equal(t, CrossoverAdaptive, result.Type)
	assert.InDelta(t, 0.4, result.NoveltyScore, 1e-9)

	// Disjoint capabilities and specializations: complementarity 1.0
	// dispatches to semantic.
	tagged1 := core.NewAgent([]*core.Capability{core.NewCapability("pattern_recognition", 0.5, 0.2, []string{"analysis"})})
	tagged2 := core.NewAgent([]*core.Capability{core.NewCapability("coordination", 0.5, 0.2, []string{"cooperation"})})
	result, err = cm.Crossover(tagged1, tagged2, CrossoverAdaptive)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, result.NoveltyScore, 1e-9)

	// Disjoint capabilities without tags land in the middle compatibility
	// band and dispatch to single point.
	bare1 := agentWithCapabilities("pattern_recognition")
	bare2 := agentWithCapabilities("coordination")
	result, err = cm.Crossover(bare1, bare2, CrossoverAdaptive)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, result.NoveltyScore, 1e-9)
}

func TestAdaptiveNeverDispatchesToItself(t *testing.T) {
	cm := newTestCrossoverManager(t, DefaultCrossoverConfig())
	rng := rand.New(rand.NewSource(23))

	for i := 0; i < 20; i++ {
		p1 := randomAgent(rng, nil)
		p2 := randomAgent(rng, nil)
		result, err := cm.Crossover(p1, p2, CrossoverAdaptive)
		if err != nil {
			assert.True(t, errors.HasCode(err, errors.IncompatibleParents))
			continue
		}
		assert.Equal(t, CrossoverAdaptive, result.Type)
		assert.NotEmpty(t, result.Offspring)
	}
}

func TestUnknownOperatorFails(t *testing.T) {
	cm := newTestCrossoverManager(t, DefaultCrossoverConfig())
	p1 := agentWithCapabilities("pattern_recognition")
	p2 := agentWithCapabilities("pattern_recognition")

	_, err := cm.Crossover(p1, p2, CrossoverType("telepathic"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.OperatorNotFound))
}

func TestOffspringGenerationAdvances(t *testing.T) {
	cm := newTestCrossoverManager(t, DefaultCrossoverConfig())
	p1 := agentWithCapabilities("pattern_recognition", "coordination")
	p1.Generation = 4
	p2 := agentWithCapabilities("pattern_recognition", "coordination")
	p2.Generation = 2

	result, err := cm.Crossover(p1, p2, CrossoverUniform)
	require.NoError(t, err)
	for _, child := range result.Offspring {
		assert.Equal(t, 5, child.Generation)
	}
}

func TestNoveltyScoresByOperator(t *testing.T) {
	cm := newTestCrossoverManager(t, DefaultCrossoverConfig())
	p1 := agentWithCapabilities("pattern_recognition", "coordination")
	p2 := agentWithCapabilities("pattern_recognition", "abstraction")

	positional, err := cm.Crossover(p1, p2, CrossoverSinglePoint)
	require.NoError(t, err)
	blending, err := cm.Crossover(p1, p2, CrossoverSemantic)
	require.NoError(t, err)

	assert.Greater(t, blending.NoveltyScore, positional.NoveltyScore)
}

func TestSelectOperator(t *testing.T) {
	cm := newTestCrossoverManager(t, DefaultCrossoverConfig())

	// Fully disjoint capabilities and specializations are highly complementary.
	disjoint1 := core.NewAgent([]*core.Capability{
		core.NewCapability("pattern_recognition", 0.5, 0.2, []string{"analysis"}),
	})
	disjoint2 := core.NewAgent([]*core.Capability{
		core.NewCapability("coordination", 0.5, 0.2, []string{"cooperation"}),
	})
	assert.Equal(t, CrossoverSemantic, cm.SelectOperator(disjoint1, disjoint2))

	// Identical agents are maximally compatible.
	same1 := agentWithCapabilities("pattern_recognition", "coordination")
	same2 := agentWithCapabilities("pattern_recognition", "coordination")
	assert.Equal(t, CrossoverUniform, cm.SelectOperator(same1, same2))
}

func TestPerformBatchCrossoverSequentialPairing(t *testing.T) {
	config := DefaultCrossoverConfig()
	config.Rate = 1
	cm := newTestCrossoverManager(t, config)

	agents := []*core.Agent{
		agentWithCapabilities("pattern_recognition", "coordination"),
		agentWithCapabilities("pattern_recognition", "coordination"),
		agentWithCapabilities("abstraction", "memory_recall"),
		agentWithCapabilities("abstraction", "memory_recall"),
	}
	results := cm.PerformBatchCrossover(context.Background(), agents, nil)
	assert.Len(t, results, 2)
}

func TestPerformBatchCrossoverSkipsInvalidPairs(t *testing.T) {
	config := DefaultCrossoverConfig()
	config.Rate = 1
	cm := newTestCrossoverManager(t, config)

	agents := []*core.Agent{
		agentWithCapabilities("pattern_recognition"),
		agentWithCapabilities("pattern_recognition"),
	}
	results := cm.PerformBatchCrossover(context.Background(), agents, [][2]int{
		{0, 1},
		{0, 0},  // self-pairing
		{0, 99}, // out of range
	})
	assert.Len(t, results, 1)
}
