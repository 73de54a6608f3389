package evolution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/XiaoConstantine/evo-go/pkg/core"
)

func agentWithCapabilities(ids ...string) *core.Agent {
	caps := make([]*core.Capability, len(ids))
	for i, id := range ids {
		caps[i] = core.NewCapability(id, 0.5, 0.2, nil)
	}
	return core.NewAgent(caps)
}

func TestCompatibilityIdenticalAgents(t *testing.T) {
	a := agentWithCapabilities("pattern_recognition", "coordination")
	b := agentWithCapabilities("pattern_recognition", "coordination")
	assert.InDelta(t, 1.0, Compatibility(a, b), 1e-9)
}

func TestCompatibilityDisjointAgents(t *testing.T) {
	a := agentWithCapabilities("pattern_recognition", "logical_reasoning")
	b := agentWithCapabilities("coordination", "error_correction")

	// Capability overlap is zero; the empty morphology and specialization
	// sets both count as identical, so their weights survive in full.
	assert.InDelta(t, morphologyCompatWeight+specializationCompatWeight, Compatibility(a, b), 1e-9)
}

func TestCompatibilityIsSymmetric(t *testing.T) {
	a := agentWithCapabilities("pattern_recognition", "coordination")
	b := agentWithCapabilities("coordination", "abstraction", "memory_recall")
	assert.InDelta(t, Compatibility(a, b), Compatibility(b, a), 1e-9)
}

func TestJaccard(t *testing.T) {
	set := func(items ...string) map[string]struct{} {
		out := make(map[string]struct{})
		for _, s := range items {
			out[s] = struct{}{}
		}
		return out
	}

	assert.Equal(t, 1.0, jaccard(set(), set()))
	assert.Equal(t, 0.0, jaccard(set("a"), set("b")))
	assert.InDelta(t, 1.0/3.0, jaccard(set("a", "b"), set("b", "c")), 1e-9)
}

func TestMorphologyCompatibility(t *testing.T) {
	a := agentWithCapabilities("pattern_recognition")
	b := agentWithCapabilities("coordination")
	assert.Equal(t, 1.0, morphologyCompatibility(a, b))

	a.Capabilities[0].Morphology["structure"] = "graph"
	b.Capabilities[0].Morphology["structure"] = "graph"
	assert.Equal(t, 1.0, morphologyCompatibility(a, b))

	b.Capabilities[0].Morphology["structure"] = "tree"
	assert.Equal(t, 0.5, morphologyCompatibility(a, b))

	b.Capabilities[0].Morphology["depth"] = "3"
	// keys: structure (0.5) + depth (0, one side only) over 2 keys
	assert.InDelta(t, 0.25, morphologyCompatibility(a, b), 1e-9)
}

func TestComplementarityInverseOfOverlap(t *testing.T) {
	a := agentWithCapabilities("pattern_recognition")
	b := agentWithCapabilities("coordination")
	c := agentWithCapabilities("pattern_recognition")

	assert.Greater(t, complementarity(a, b), complementarity(a, c))
}

func TestCapabilityDistanceBounds(t *testing.T) {
	a := agentWithCapabilities("pattern_recognition")
	same := agentWithCapabilities("pattern_recognition")
	different := agentWithCapabilities("coordination")

	assert.InDelta(t, 0.0, capabilityDistance(a, same), 1e-9)
	// Specialization sets are both empty and thus identical, so only the
	// capability term contributes.
	assert.InDelta(t, 0.6, capabilityDistance(a, different), 1e-9)
}
