package evolution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/evo-go/pkg/core"
)

func TestIdenticalAgentsFormOneSpecies(t *testing.T) {
	agents := make([]*core.Agent, 20)
	for i := range agents {
		agents[i] = agentWithCapabilities("pattern_recognition", "coordination")
		agents[i].Fitness = 0.5
	}

	species := UpdateSpecies(context.Background(), nil, agents, 0.55)
	require.Len(t, species, 1)
	assert.Len(t, species[0].Members, 20)
	assert.InDelta(t, 0.5, species[0].AverageFitness, 1e-9)
}

func TestDistinctAgentsSplitIntoSpecies(t *testing.T) {
	var agents []*core.Agent
	for i := 0; i < 5; i++ {
		a := core.NewAgent([]*core.Capability{
			core.NewCapability("pattern_recognition", 0.5, 0.2, []string{"analysis"}),
		})
		agents = append(agents, a)
	}
	for i := 0; i < 5; i++ {
		a := core.NewAgent([]*core.Capability{
			core.NewCapability("coordination", 0.5, 0.2, []string{"cooperation"}),
		})
		agents = append(agents, a)
	}

	species := UpdateSpecies(context.Background(), nil, agents, 0.55)
	require.Len(t, species, 2)
	assert.Len(t, species[0].Members, 5)
	assert.Len(t, species[1].Members, 5)
}

func TestSpeciesMembershipIsRecomputed(t *testing.T) {
	a := agentWithCapabilities("pattern_recognition", "coordination")
	species := UpdateSpecies(context.Background(), nil, []*core.Agent{a}, 0.55)
	require.Len(t, species, 1)

	// The original member disappears; a compatible newcomer takes its place.
	b := agentWithCapabilities("pattern_recognition", "coordination")
	species = UpdateSpecies(context.Background(), species, []*core.Agent{b}, 0.55)
	require.Len(t, species, 1)
	require.Len(t, species[0].Members, 1)
	assert.Equal(t, b.ID, species[0].Members[0].ID)
}

func TestEmptySpeciesRemoved(t *testing.T) {
	a := core.NewAgent([]*core.Capability{
		core.NewCapability("pattern_recognition", 0.5, 0.2, []string{"analysis"}),
	})
	species := UpdateSpecies(context.Background(), nil, []*core.Agent{a}, 0.55)
	require.Len(t, species, 1)

	// A fully different population leaves the old species empty.
	b := core.NewAgent([]*core.Capability{
		core.NewCapability("coordination", 0.5, 0.2, []string{"cooperation"}),
	})
	species = UpdateSpecies(context.Background(), species, []*core.Agent{b}, 0.55)
	require.Len(t, species, 1)
	assert.Equal(t, b.ID, species[0].Representative.ID)
}

func TestStagnationCounting(t *testing.T) {
	ctx := context.Background()
	agents := []*core.Agent{agentWithCapabilities("pattern_recognition", "coordination")}
	agents[0].Fitness = 0.5

	species := UpdateSpecies(ctx, nil, agents, 0.55)
	require.Len(t, species, 1)
	assert.Equal(t, 0, species[0].StagnationCount)

	// No improvement: stagnation grows.
	species = UpdateSpecies(ctx, species, agents, 0.55)
	assert.Equal(t, 1, species[0].StagnationCount)

	// A clear improvement resets the counter.
	agents[0].Fitness = 0.6
	species = UpdateSpecies(ctx, species, agents, 0.55)
	assert.Equal(t, 0, species[0].StagnationCount)
}

func TestExtinctionRiskComponents(t *testing.T) {
	ctx := context.Background()

	// Small and weak species: 0.3 (size) + 0.3 (low fitness).
	weak := []*core.Agent{agentWithCapabilities("pattern_recognition", "coordination")}
	weak[0].Fitness = 0.1
	species := UpdateSpecies(ctx, nil, weak, 0.55)
	require.Len(t, species, 1)
	assert.InDelta(t, 0.6, species[0].ExtinctionRisk, 1e-9)
}

func TestFullyAtRiskSpeciesGoesExtinct(t *testing.T) {
	ctx := context.Background()
	agents := []*core.Agent{agentWithCapabilities("pattern_recognition", "coordination")}
	agents[0].Fitness = 0.1

	// Small + weak + stagnant beyond ten generations saturates the risk.
	species := UpdateSpecies(ctx, nil, agents, 0.55)
	for i := 0; i < 11; i++ {
		species = UpdateSpecies(ctx, species, agents, 0.55)
	}
	// Once risk reaches 1.0 the species is removed.
	assert.Empty(t, species)

	// The surviving agents found a fresh species on the next update.
	species = UpdateSpecies(ctx, species, agents, 0.55)
	require.Len(t, species, 1)
	assert.Equal(t, 0, species[0].StagnationCount)
}

func TestSpeciesBest(t *testing.T) {
	a := agentWithCapabilities("pattern_recognition", "coordination")
	a.Fitness = 0.3
	b := agentWithCapabilities("pattern_recognition", "coordination")
	b.Fitness = 0.8

	species := UpdateSpecies(context.Background(), nil, []*core.Agent{a, b}, 0.55)
	require.Len(t, species, 1)
	assert.Equal(t, b.ID, species[0].Best().ID)
}
