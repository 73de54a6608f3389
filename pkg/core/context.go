package core

import "time"

// FitnessContext describes the external task situation an agent is evaluated
// against. It is pure input: evaluators never mutate it.
type FitnessContext struct {
	TaskDomain                string
	ComplexityLevel           float64
	TimeConstraints           float64
	CollaborationRequirements float64
	AdaptationPressure        float64
	InnovationDemand          float64
	StabilityRequirement      float64
}

// PerformanceRecord is one observed task outcome for an agent, supplied by the
// caller alongside an evaluation.
type PerformanceRecord struct {
	Accuracy   float64
	Efficiency float64
	Quality    float64
	Timestamp  time.Time
}

// TaskScore collapses a performance record into a single score using the
// fixed accuracy/efficiency/quality weighting.
func (r PerformanceRecord) TaskScore() float64 {
	return r.Accuracy*0.4 + r.Efficiency*0.3 + r.Quality*0.3
}
