package core

import (
	"time"

	"github.com/google/uuid"
)

const (
	// MinStrength and MaxStrength bound a capability's strength.
	MinStrength = 0.0
	MaxStrength = 1.0

	// MinAdaptationRate and MaxAdaptationRate bound how quickly a capability
	// can change between generations.
	MinAdaptationRate = 0.01
	MaxAdaptationRate = 0.5

	// CapabilityHistorySize bounds each capability's performance record buffer.
	CapabilityHistorySize = 10
)

// ClampStrength clamps a strength value into [MinStrength, MaxStrength].
func ClampStrength(v float64) float64 {
	if v < MinStrength {
		return MinStrength
	}
	if v > MaxStrength {
		return MaxStrength
	}
	return v
}

// ClampAdaptationRate clamps an adaptation rate into [MinAdaptationRate, MaxAdaptationRate].
func ClampAdaptationRate(v float64) float64 {
	if v < MinAdaptationRate {
		return MinAdaptationRate
	}
	if v > MaxAdaptationRate {
		return MaxAdaptationRate
	}
	return v
}

// Capability is one atomic skill unit owned by exactly one agent. The ID is a
// semantic identifier (for example "pattern_recognition"), shared by
// capabilities of the same kind across agents; it is what compatibility and
// inheritance tracking key on.
type Capability struct {
	ID              string
	Strength        float64
	AdaptationRate  float64
	Specializations []string
	Morphology      map[string]string
	LastUsed        time.Time
	Performance     *Ring[float64]
}

// NewCapability creates a capability with clamped parameters and a bounded
// performance buffer.
func NewCapability(id string, strength, adaptationRate float64, specializations []string) *Capability {
	return &Capability{
		ID:              id,
		Strength:        ClampStrength(strength),
		AdaptationRate:  ClampAdaptationRate(adaptationRate),
		Specializations: append([]string(nil), specializations...),
		Morphology:      make(map[string]string),
		LastUsed:        time.Now(),
		Performance:     NewRing[float64](CapabilityHistorySize),
	}
}

// Clone returns a deep copy of the capability.
func (c *Capability) Clone() *Capability {
	morphology := make(map[string]string, len(c.Morphology))
	for k, v := range c.Morphology {
		morphology[k] = v
	}
	clone := &Capability{
		ID:              c.ID,
		Strength:        c.Strength,
		AdaptationRate:  c.AdaptationRate,
		Specializations: append([]string(nil), c.Specializations...),
		Morphology:      morphology,
		LastUsed:        c.LastUsed,
	}
	if c.Performance != nil {
		clone.Performance = c.Performance.Clone()
	} else {
		clone.Performance = NewRing[float64](CapabilityHistorySize)
	}
	return clone
}

// HasSpecialization reports whether the capability carries the given tag.
func (c *Capability) HasSpecialization(tag string) bool {
	for _, s := range c.Specializations {
		if s == tag {
			return true
		}
	}
	return false
}

// MeanPerformance returns the mean of the recorded performance values, or the
// fallback when no values have been recorded.
func (c *Capability) MeanPerformance(fallback float64) float64 {
	if c.Performance == nil || c.Performance.Len() == 0 {
		return fallback
	}
	sum := 0.0
	values := c.Performance.Values()
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// AdaptationEvent records one change applied to an agent's capability set.
type AdaptationEvent struct {
	Type      string
	Detail    string
	Timestamp time.Time
}

// Agent is an evolvable individual. Agent values are immutable once
// constructed: every operator that mutates or crosses an agent returns a new
// value built through Clone, never editing a parent's capability list in
// place. Fitness and Age are bookkeeping fields maintained by the population
// manager between operator invocations.
type Agent struct {
	ID                string
	Capabilities      []*Capability
	Fitness           float64
	Age               int
	Generation        int
	AdaptationHistory []AdaptationEvent
	CreatedAt         time.Time
}

// NewAgent creates an agent owning deep copies of the given capabilities.
func NewAgent(capabilities []*Capability) *Agent {
	caps := make([]*Capability, len(capabilities))
	for i, c := range capabilities {
		caps[i] = c.Clone()
	}
	return &Agent{
		ID:           uuid.New().String(),
		Capabilities: caps,
		CreatedAt:    time.Now(),
	}
}

// Clone returns a deep copy of the agent under the same ID.
func (a *Agent) Clone() *Agent {
	caps := make([]*Capability, len(a.Capabilities))
	for i, c := range a.Capabilities {
		caps[i] = c.Clone()
	}
	return &Agent{
		ID:                a.ID,
		Capabilities:      caps,
		Fitness:           a.Fitness,
		Age:               a.Age,
		Generation:        a.Generation,
		AdaptationHistory: append([]AdaptationEvent(nil), a.AdaptationHistory...),
		CreatedAt:         a.CreatedAt,
	}
}

// Derive returns a deep copy carrying a fresh identity, used by operators
// producing offspring or mutants from this agent.
func (a *Agent) Derive() *Agent {
	clone := a.Clone()
	clone.ID = uuid.New().String()
	clone.Age = 0
	clone.CreatedAt = time.Now()
	return clone
}

// CapabilityByID returns the capability with the given semantic ID, or nil.
func (a *Agent) CapabilityByID(id string) *Capability {
	for _, c := range a.Capabilities {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// CapabilityIDs returns the set of semantic capability IDs the agent owns.
func (a *Agent) CapabilityIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(a.Capabilities))
	for _, c := range a.Capabilities {
		ids[c.ID] = struct{}{}
	}
	return ids
}

// SpecializationSet returns the union of specialization tags across all
// capabilities.
func (a *Agent) SpecializationSet() map[string]struct{} {
	tags := make(map[string]struct{})
	for _, c := range a.Capabilities {
		for _, s := range c.Specializations {
			tags[s] = struct{}{}
		}
	}
	return tags
}

// RecordAdaptation appends an adaptation event to the agent's log.
func (a *Agent) RecordAdaptation(eventType, detail string) {
	a.AdaptationHistory = append(a.AdaptationHistory, AdaptationEvent{
		Type:      eventType,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}
