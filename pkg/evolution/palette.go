package evolution

import (
	"math/rand"

	"github.com/XiaoConstantine/evo-go/pkg/core"
)

// capabilityPalette is the fixed vocabulary agents are synthesized from and
// structural mutation adds from.
var capabilityPalette = []struct {
	id   string
	tags []string
}{
	{"pattern_recognition", []string{"analysis", "perception"}},
	{"logical_reasoning", []string{"analysis", "deduction"}},
	{"memory_recall", []string{"retention", "retrieval"}},
	{"task_planning", []string{"strategy", "sequencing"}},
	{"signal_processing", []string{"perception", "filtering"}},
	{"language_synthesis", []string{"expression", "composition"}},
	{"numeric_estimation", []string{"analysis", "quantification"}},
	{"anomaly_detection", []string{"perception", "vigilance"}},
	{"resource_allocation", []string{"strategy", "optimization"}},
	{"coordination", []string{"cooperation", "negotiation"}},
	{"error_correction", []string{"vigilance", "repair"}},
	{"abstraction", []string{"deduction", "generalizing"}},
}

// noveltyVocabulary is the distinct tag pool the creative strategy draws
// from; kept disjoint from the palette tags so creative additions are
// recognizable as novel.
var noveltyVocabulary = []string{
	"improvisation", "cross_domain_transfer", "counterfactual_play",
	"metaphoric_mapping", "divergent_search", "recombination",
	"serendipity", "constraint_breaking",
}

// specializationPalette is the flat tag pool used for diversity injection.
var specializationPalette = func() []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, entry := range capabilityPalette {
		for _, t := range entry.tags {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				tags = append(tags, t)
			}
		}
	}
	return tags
}()

// randomCapability synthesizes one capability from the palette.
func randomCapability(rng *rand.Rand) *core.Capability {
	entry := capabilityPalette[rng.Intn(len(capabilityPalette))]
	cap := core.NewCapability(
		entry.id,
		0.3+rng.Float64()*0.4,
		core.MinAdaptationRate+rng.Float64()*(core.MaxAdaptationRate-core.MinAdaptationRate),
		entry.tags,
	)
	cap.Morphology["structure"] = entry.tags[0]
	return cap
}

// randomAgent synthesizes an agent with 3-6 distinct palette capabilities,
// optionally biased toward the given specialization tags.
func randomAgent(rng *rand.Rand, preferredTags []string) *core.Agent {
	count := 3 + rng.Intn(4)
	var caps []*core.Capability
	seen := make(map[string]struct{})

	// Bias: first try palette entries carrying a preferred tag. Capabilities
	// are collected in palette order to keep synthesis seed-deterministic.
	if len(preferredTags) > 0 {
		for _, entry := range capabilityPalette {
			if len(caps) >= count {
				break
			}
			for _, t := range entry.tags {
				if containsTag(preferredTags, t) {
					cap := core.NewCapability(entry.id, 0.3+rng.Float64()*0.4,
						core.MinAdaptationRate+rng.Float64()*(core.MaxAdaptationRate-core.MinAdaptationRate),
						entry.tags)
					cap.Morphology["structure"] = entry.tags[0]
					caps = append(caps, cap)
					seen[entry.id] = struct{}{}
					break
				}
			}
		}
	}

	for attempts := 0; len(caps) < count && attempts < 64; attempts++ {
		cap := randomCapability(rng)
		if _, ok := seen[cap.ID]; ok {
			continue
		}
		seen[cap.ID] = struct{}{}
		caps = append(caps, cap)
	}
	agent := core.NewAgent(caps)
	agent.RecordAdaptation("synthesis", "random initialization")
	return agent
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
