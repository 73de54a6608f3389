package evolution

import (
	"math/rand"
	"sort"

	"github.com/XiaoConstantine/evo-go/pkg/core"
	"github.com/XiaoConstantine/evo-go/pkg/errors"
)

// SelectionResult carries the chosen parents plus bookkeeping the population
// manager uses for replacement.
type SelectionResult struct {
	Parents            []*core.Agent
	EliteCount         int
	DiversityPreserved float64
}

// SelectParents runs repeated fitness tournaments until count parents are
// chosen. Tournament size is ten percent of the population, at least two;
// each tournament picks uniformly among its top three finishers, trading a
// little selection pressure for diversity.
func SelectParents(agents []*core.Agent, count int, elitismRate float64, rng *rand.Rand) (*SelectionResult, error) {
	if len(agents) == 0 {
		return nil, errors.New(errors.EmptyPopulation, "cannot select parents from an empty population")
	}
	if count <= 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "parent count must be positive"),
			errors.Fields{"count": count})
	}

	tournamentSize := maxInt(2, len(agents)/10)
	parents := make([]*core.Agent, 0, count)
	for len(parents) < count {
		parents = append(parents, runTournament(agents, tournamentSize, rng))
	}

	preserved := 1.0
	if popIdx := DiversityIndex(agents); popIdx > 0 {
		preserved = clamp01(DiversityIndex(parents) / popIdx)
	}

	return &SelectionResult{
		Parents:            parents,
		EliteCount:         int(float64(len(agents)) * elitismRate),
		DiversityPreserved: preserved,
	}, nil
}

// runTournament samples tournamentSize agents with replacement, ranks them by
// fitness and picks uniformly among the top three.
func runTournament(agents []*core.Agent, tournamentSize int, rng *rand.Rand) *core.Agent {
	if tournamentSize > len(agents) {
		tournamentSize = len(agents)
	}
	contestants := make([]*core.Agent, tournamentSize)
	for i := range contestants {
		contestants[i] = agents[rng.Intn(len(agents))]
	}
	sort.SliceStable(contestants, func(i, j int) bool {
		return contestants[i].Fitness > contestants[j].Fitness
	})
	top := minInt(3, len(contestants))
	return contestants[rng.Intn(top)]
}

// sortByFitnessDesc returns a copy of agents ordered fittest-first.
func sortByFitnessDesc(agents []*core.Agent) []*core.Agent {
	out := make([]*core.Agent, len(agents))
	copy(out, agents)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Fitness > out[j].Fitness })
	return out
}
