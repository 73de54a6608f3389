package evolution

import (
	"github.com/XiaoConstantine/evo-go/pkg/core"
)

// Compatibility weights: capability overlap dominates, morphology and
// specialization overlap refine it. Used identically by the crossover gate
// and species assignment.
const (
	capabilityCompatWeight     = 0.5
	morphologyCompatWeight     = 0.3
	specializationCompatWeight = 0.2
)

// Compatibility scores how similar two agents are in [0, 1] as a weighted
// blend of capability-ID Jaccard overlap, morphology compatibility and
// specialization Jaccard overlap.
func Compatibility(a, b *core.Agent) float64 {
	capOverlap := jaccard(a.CapabilityIDs(), b.CapabilityIDs())
	morphCompat := morphologyCompatibility(a, b)
	specOverlap := jaccard(a.SpecializationSet(), b.SpecializationSet())

	return capabilityCompatWeight*capOverlap +
		morphologyCompatWeight*morphCompat +
		specializationCompatWeight*specOverlap
}

// jaccard computes |a∩b| / |a∪b|. Two empty sets are treated as identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

// morphologyCompatibility compares the merged morphology metadata of two
// agents key by key: matching key and value scores 1, matching key with a
// differing value scores 0.5, a key present on one side only scores 0. Agents
// with no morphology at all are neutrally compatible.
func morphologyCompatibility(a, b *core.Agent) float64 {
	morphA := mergedMorphology(a)
	morphB := mergedMorphology(b)

	if len(morphA) == 0 && len(morphB) == 0 {
		return 1.0
	}

	keys := make(map[string]struct{}, len(morphA)+len(morphB))
	for k := range morphA {
		keys[k] = struct{}{}
	}
	for k := range morphB {
		keys[k] = struct{}{}
	}

	score := 0.0
	for k := range keys {
		va, okA := morphA[k]
		vb, okB := morphB[k]
		switch {
		case okA && okB && va == vb:
			score += 1.0
		case okA && okB:
			score += 0.5
		}
	}
	return score / float64(len(keys))
}

// mergedMorphology flattens an agent's per-capability morphology into one
// descriptor. Later capabilities win on key conflicts; the ordering is the
// agent's stable capability order so the merge is deterministic.
func mergedMorphology(a *core.Agent) map[string]string {
	merged := make(map[string]string)
	for _, c := range a.Capabilities {
		for k, v := range c.Morphology {
			merged[k] = v
		}
	}
	return merged
}

// complementarity measures how much two agents cover each other's gaps: the
// inverse of their capability and specialization overlap. High values favor
// blending operators over positional ones.
func complementarity(a, b *core.Agent) float64 {
	capOverlap := jaccard(a.CapabilityIDs(), b.CapabilityIDs())
	specOverlap := jaccard(a.SpecializationSet(), b.SpecializationSet())
	return 0.6*(1-capOverlap) + 0.4*(1-specOverlap)
}

// capabilityDistance is the diversity metric between two agents used by the
// farthest-point selection heuristic.
func capabilityDistance(a, b *core.Agent) float64 {
	capDist := 1 - jaccard(a.CapabilityIDs(), b.CapabilityIDs())
	specDist := 1 - jaccard(a.SpecializationSet(), b.SpecializationSet())
	return 0.6*capDist + 0.4*specDist
}
