package evolution

import (
	"context"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/evo-go/pkg/core"
	"github.com/XiaoConstantine/evo-go/pkg/logging"
)

const (
	// speciesHistorySize bounds per-species fitness history.
	speciesHistorySize = 20
	// stagnationEpsilon is the minimum average-fitness gain that counts as
	// progress for a species.
	stagnationEpsilon = 0.01
)

// Species groups agents around a representative. Membership is recomputed
// from scratch every generation.
type Species struct {
	ID              string
	Representative  *core.Agent
	Members         []*core.Agent
	AverageFitness  float64
	FitnessHistory  *core.Ring[float64]
	StagnationCount int
	Age             int
	ExtinctionRisk  float64
}

func newSpecies(representative *core.Agent) *Species {
	return &Species{
		ID:             uuid.New().String(),
		Representative: representative,
		Members:        []*core.Agent{representative},
		FitnessHistory: core.NewRing[float64](speciesHistorySize),
	}
}

// UpdateSpecies reassigns every agent to the first existing species whose
// representative is at least threshold-compatible, founding a new species
// when none fits, then refreshes per-species statistics and removes species
// that emptied out or whose extinction risk saturated.
func UpdateSpecies(ctx context.Context, species []*Species, agents []*core.Agent, threshold float64) []*Species {
	logger := logging.GetLogger()

	for _, s := range species {
		s.Members = s.Members[:0]
	}

	for _, agent := range agents {
		assigned := false
		for _, s := range species {
			if Compatibility(agent, s.Representative) >= threshold {
				s.Members = append(s.Members, agent)
				assigned = true
				break
			}
		}
		if !assigned {
			species = append(species, newSpecies(agent))
		}
	}

	survivors := species[:0]
	for _, s := range species {
		if len(s.Members) == 0 {
			logger.Debug(ctx, "species %s emptied out", s.ID)
			continue
		}
		s.refresh()
		if s.ExtinctionRisk >= 1.0 {
			logger.Info(ctx, "species %s went extinct (risk %.2f, stagnation %d)", s.ID, s.ExtinctionRisk, s.StagnationCount)
			continue
		}
		survivors = append(survivors, s)
	}
	return survivors
}

// refresh recomputes the species' average fitness, stagnation counter and
// extinction risk after membership changed.
func (s *Species) refresh() {
	sum := 0.0
	for _, a := range s.Members {
		sum += a.Fitness
	}
	avg := sum / float64(len(s.Members))

	previous, hadPrevious := s.FitnessHistory.Latest()
	if hadPrevious && avg-previous < stagnationEpsilon {
		s.StagnationCount++
	} else {
		s.StagnationCount = 0
	}

	s.AverageFitness = avg
	s.FitnessHistory.Push(avg)
	s.Age++

	risk := 0.0
	if len(s.Members) < 3 {
		risk += 0.3
	}
	if s.StagnationCount > 10 {
		risk += 0.4
	}
	if s.AverageFitness < 0.3 {
		risk += 0.3
	}
	s.ExtinctionRisk = clamp01(risk)
}

// Best returns the fittest member, or nil for an empty species.
func (s *Species) Best() *core.Agent {
	var best *core.Agent
	for _, a := range s.Members {
		if best == nil || a.Fitness > best.Fitness {
			best = a
		}
	}
	return best
}
