package evolution

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/evo-go/pkg/core"
	"github.com/XiaoConstantine/evo-go/pkg/errors"
)

func testContext() core.FitnessContext {
	return core.FitnessContext{
		TaskDomain:                "general",
		ComplexityLevel:           2,
		TimeConstraints:           60,
		CollaborationRequirements: 2,
		AdaptationPressure:        0.5,
		InnovationDemand:          0.5,
		StabilityRequirement:      0.5,
	}
}

func TestEvaluateFitnessDimensionsInRange(t *testing.T) {
	e := NewFitnessEvaluator()
	rng := rand.New(rand.NewSource(1))
	agent := randomAgent(rng, nil)

	profile := e.EvaluateFitness(agent, testContext(), nil)
	for _, d := range core.Dimensions() {
		v := profile.Get(d)
		assert.GreaterOrEqual(t, v, 0.0, "dimension %s", d)
		assert.LessOrEqual(t, v, 1.0, "dimension %s", d)
	}
	assert.GreaterOrEqual(t, profile.Overall, 0.0)
	assert.LessOrEqual(t, profile.Overall, 1.0)
}

func TestPerformanceUsesTaskRecords(t *testing.T) {
	e := NewFitnessEvaluator()
	agent := agentWithCapabilities("pattern_recognition")

	records := []core.PerformanceRecord{
		{Accuracy: 1, Efficiency: 1, Quality: 1, Timestamp: time.Now()},
	}
	profile := e.EvaluateFitness(agent, testContext(), records)
	assert.InDelta(t, 1.0, profile.Performance, 1e-9)
}

func TestPerformanceFallsBackToCachedFitness(t *testing.T) {
	e := NewFitnessEvaluator()
	agent := agentWithCapabilities("pattern_recognition")
	agent.Fitness = 0.42

	profile := e.EvaluateFitness(agent, testContext(), nil)
	assert.InDelta(t, 0.42, profile.Performance, 1e-9)
}

func TestStabilityDefaultsWithShortHistory(t *testing.T) {
	e := NewFitnessEvaluator()
	agent := agentWithCapabilities("pattern_recognition")

	profile := e.EvaluateFitness(agent, testContext(), nil)
	assert.Equal(t, defaultStability, profile.Stability)
}

func TestStabilityReflectsVariance(t *testing.T) {
	e := NewFitnessEvaluator()
	agent := agentWithCapabilities("pattern_recognition")
	fctx := testContext()

	// Constant performance: after three evaluations the variance is zero.
	agent.Fitness = 0.5
	for i := 0; i < 4; i++ {
		e.EvaluateFitness(agent, fctx, nil)
	}
	profile := e.EvaluateFitness(agent, fctx, nil)
	assert.InDelta(t, 1.0, profile.Stability, 1e-9)
}

func TestLearningVelocityDefaultsWithShortHistory(t *testing.T) {
	e := NewFitnessEvaluator()
	agent := agentWithCapabilities("pattern_recognition")

	profile := e.EvaluateFitness(agent, testContext(), nil)
	assert.Equal(t, defaultLearningVelocity, profile.LearningVelocity)
}

func TestLearningVelocityTracksImprovement(t *testing.T) {
	e := NewFitnessEvaluator()
	agent := agentWithCapabilities("pattern_recognition")
	fctx := testContext()

	for i := 0; i < 6; i++ {
		agent.Fitness = 0.1 * float64(i)
		e.EvaluateFitness(agent, fctx, nil)
	}
	agent.Fitness = 0.6
	profile := e.EvaluateFitness(agent, fctx, nil)
	assert.Greater(t, profile.LearningVelocity, defaultLearningVelocity)
}

func TestDominates(t *testing.T) {
	e := NewFitnessEvaluator()
	better := &core.FitnessProfile{Performance: 0.9, Adaptability: 0.8, Efficiency: 0.7, Innovation: 0.6, Stability: 0.5}
	worse := &core.FitnessProfile{Performance: 0.5, Adaptability: 0.5, Efficiency: 0.5, Innovation: 0.5, Stability: 0.5}

	assert.True(t, e.Dominates(better, worse))
	assert.False(t, e.Dominates(worse, better))
}

func TestDominatesIsIrreflexive(t *testing.T) {
	e := NewFitnessEvaluator()
	p := &core.FitnessProfile{Performance: 0.5, Adaptability: 0.5, Efficiency: 0.5, Innovation: 0.5, Stability: 0.5}
	assert.False(t, e.Dominates(p, p))
}

func TestDominatesRequiresAllObjectives(t *testing.T) {
	e := NewFitnessEvaluator()
	a := &core.FitnessProfile{Performance: 0.9, Stability: 0.1}
	b := &core.FitnessProfile{Performance: 0.1, Stability: 0.9}
	assert.False(t, e.Dominates(a, b))
	assert.False(t, e.Dominates(b, a))
}

func TestDominatesNilSafe(t *testing.T) {
	e := NewFitnessEvaluator()
	p := &core.FitnessProfile{}
	assert.False(t, e.Dominates(nil, p))
	assert.False(t, e.Dominates(p, nil))
}

func TestCalculateFitnessDiversity(t *testing.T) {
	e := NewFitnessEvaluator()
	assert.Equal(t, 0.0, e.CalculateFitnessDiversity(nil))
	assert.Equal(t, 0.0, e.CalculateFitnessDiversity([]*core.FitnessProfile{{}}))

	identical := []*core.FitnessProfile{{Performance: 0.5}, {Performance: 0.5}}
	assert.Equal(t, 0.0, e.CalculateFitnessDiversity(identical))

	spread := []*core.FitnessProfile{{Performance: 0}, {Performance: 1}}
	assert.InDelta(t, 1.0, e.CalculateFitnessDiversity(spread), 1e-9)
}

func TestIdentifyBottlenecks(t *testing.T) {
	e := NewFitnessEvaluator()
	profile := &core.FitnessProfile{
		Performance: 0.9, Adaptability: 0.9, Efficiency: 0.9, Specialization: 0.9,
		Generalization: 0.9, Innovation: 0.9, Stability: 0.9, Robustness: 0.9,
		Sustainability: 0.9, Collaboration: 0.9, LearningVelocity: 0.9,
	}
	assert.Empty(t, e.IdentifyBottlenecks(profile))

	profile.Efficiency = 0.2
	profile.Collaboration = 0.1
	bottlenecks := e.IdentifyBottlenecks(profile)
	require.Len(t, bottlenecks, 2)
	assert.Equal(t, core.DimEfficiency, bottlenecks[0])
	assert.Equal(t, core.DimCollaboration, bottlenecks[1])
}

func TestSetFitnessWeightsRenormalizes(t *testing.T) {
	e := NewFitnessEvaluator()
	require.NoError(t, e.SetFitnessWeights(core.Weights{core.DimPerformance: 10}))

	total := 0.0
	for _, v := range e.Weights() {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Greater(t, e.Weights()[core.DimPerformance], 0.5)
}

func TestSetFitnessWeightsRejectsNegatives(t *testing.T) {
	e := NewFitnessEvaluator()
	err := e.SetFitnessWeights(core.Weights{core.DimPerformance: -0.1})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.InvalidInput))
}

func TestForgetDropsDeadAgents(t *testing.T) {
	e := NewFitnessEvaluator()
	agent := agentWithCapabilities("pattern_recognition")
	fctx := testContext()

	for i := 0; i < 4; i++ {
		e.EvaluateFitness(agent, fctx, nil)
	}
	// With history the stability dimension stops defaulting.
	profile := e.EvaluateFitness(agent, fctx, nil)
	assert.InDelta(t, 1.0, profile.Stability, 1e-9)

	e.Forget(map[string]struct{}{})
	profile = e.EvaluateFitness(agent, fctx, nil)
	assert.Equal(t, defaultStability, profile.Stability)
}

func TestEmptyAgentScoresZeroOnStructuralDimensions(t *testing.T) {
	e := NewFitnessEvaluator()
	agent := core.NewAgent(nil)

	profile := e.EvaluateFitness(agent, testContext(), nil)
	assert.Equal(t, 0.0, profile.Specialization)
	assert.Equal(t, 0.0, profile.Generalization)
	assert.Equal(t, 0.0, profile.Innovation)
	assert.Equal(t, 0.0, profile.Robustness)
	assert.Equal(t, 0.0, profile.Sustainability)
	assert.Equal(t, 0.0, profile.Collaboration)
}
