package evolution

import (
	"context"
	"math/rand"
	"sort"

	"github.com/XiaoConstantine/evo-go/pkg/core"
	"github.com/XiaoConstantine/evo-go/pkg/logging"
)

// DiversityIndex scores how varied a population's capability repertoire is in
// [0, 1]: distinct capability IDs plus distinct specialization tags, relative
// to three slots per agent. An empty population scores zero.
func DiversityIndex(agents []*core.Agent) float64 {
	if len(agents) == 0 {
		return 0
	}
	capIDs := make(map[string]struct{})
	tags := make(map[string]struct{})
	for _, a := range agents {
		for _, c := range a.Capabilities {
			capIDs[c.ID] = struct{}{}
			for _, t := range c.Specializations {
				tags[t] = struct{}{}
			}
		}
	}
	return clamp01(float64(len(capIDs)+len(tags)) / (float64(len(agents)) * 3))
}

// SelectDiverseAgents picks count agents maximizing mutual capability
// distance with a farthest-point greedy sweep, seeded by a random candidate.
func SelectDiverseAgents(agents []*core.Agent, count int, rng *rand.Rand) []*core.Agent {
	if len(agents) == 0 || count <= 0 {
		return nil
	}
	if count >= len(agents) {
		out := make([]*core.Agent, len(agents))
		copy(out, agents)
		return out
	}

	remaining := make([]*core.Agent, len(agents))
	copy(remaining, agents)

	seed := rng.Intn(len(remaining))
	selected := []*core.Agent{remaining[seed]}
	remaining = append(remaining[:seed], remaining[seed+1:]...)

	for len(selected) < count {
		bestIdx := 0
		bestDist := -1.0
		for i, candidate := range remaining {
			minDist := 2.0
			for _, s := range selected {
				if d := capabilityDistance(candidate, s); d < minDist {
					minDist = d
				}
			}
			if minDist > bestDist {
				bestDist = minDist
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// InjectDiversity synthesizes agents biased toward under-represented
// specialization tags to close the gap between the population's diversity
// index and the target. The result never exceeds maxSize: when injection
// would overflow, the agents contributing least marginal diversity are
// trimmed first.
func InjectDiversity(ctx context.Context, agents []*core.Agent, target float64, maxSize int, rng *rand.Rand) []*core.Agent {
	logger := logging.GetLogger()

	current := DiversityIndex(agents)
	deficit := target - current
	if deficit <= 0 || len(agents) == 0 {
		return agents
	}

	injectCount := int(deficit * float64(len(agents)))
	if injectCount < 1 {
		injectCount = 1
	}
	logger.Info(ctx, "injecting %d agents to lift diversity from %.3f toward %.3f", injectCount, current, target)

	rare := underrepresentedTags(agents)
	injected := make([]*core.Agent, 0, len(agents)+injectCount)
	injected = append(injected, agents...)
	for i := 0; i < injectCount; i++ {
		injected = append(injected, randomAgent(rng, rare))
	}

	if len(injected) > maxSize {
		injected = trimLeastDiverse(injected, maxSize)
	}
	return injected
}

// MaintainDiversity measures the population and injects fresh agents when the
// diversity index fell below the target.
func MaintainDiversity(ctx context.Context, agents []*core.Agent, target float64, maxSize int, rng *rand.Rand) []*core.Agent {
	if DiversityIndex(agents) >= target {
		return agents
	}
	return InjectDiversity(ctx, agents, target, maxSize, rng)
}

// underrepresentedTags returns the palette tags carried by the fewest agents,
// rarest first.
func underrepresentedTags(agents []*core.Agent) []string {
	counts := make(map[string]int, len(specializationPalette))
	for _, tag := range specializationPalette {
		counts[tag] = 0
	}
	for _, a := range agents {
		for tag := range a.SpecializationSet() {
			if _, ok := counts[tag]; ok {
				counts[tag]++
			}
		}
	}
	tags := append([]string(nil), specializationPalette...)
	sort.SliceStable(tags, func(i, j int) bool { return counts[tags[i]] < counts[tags[j]] })
	if len(tags) > 4 {
		tags = tags[:4]
	}
	return tags
}

// trimLeastDiverse repeatedly drops the agent whose removal costs the least
// diversity, breaking ties toward lower fitness, until the population fits.
func trimLeastDiverse(agents []*core.Agent, maxSize int) []*core.Agent {
	out := make([]*core.Agent, len(agents))
	copy(out, agents)

	for len(out) > maxSize {
		worstIdx := 0
		worstMargin := 3.0
		for i, a := range out {
			margin := 2.0
			for j, other := range out {
				if i == j {
					continue
				}
				if d := capabilityDistance(a, other); d < margin {
					margin = d
				}
			}
			if margin < worstMargin || (margin == worstMargin && a.Fitness < out[worstIdx].Fitness) {
				worstMargin = margin
				worstIdx = i
			}
		}
		out = append(out[:worstIdx], out[worstIdx+1:]...)
	}
	return out
}
