package core

import "math"

// Dimension identifies one axis of a fitness profile. Profiles store every
// dimension as an explicit struct field; Dimensions and Get exist for the few
// places that genuinely need to iterate over all of them (bottleneck
// detection, diversity statistics).
type Dimension int

const (
	DimPerformance Dimension = iota
	DimAdaptability
	DimEfficiency
	DimSpecialization
	DimGeneralization
	DimInnovation
	DimStability
	DimRobustness
	DimSustainability
	DimCollaboration
	DimLearningVelocity
)

var dimensionNames = [...]string{
	"performance", "adaptability", "efficiency", "specialization",
	"generalization", "innovation", "stability", "robustness",
	"sustainability", "collaboration", "learning_velocity",
}

// String returns the snake_case dimension name.
func (d Dimension) String() string {
	if d < 0 || int(d) >= len(dimensionNames) {
		return "unknown"
	}
	return dimensionNames[d]
}

// Dimensions returns all fitness dimensions in declaration order.
func Dimensions() []Dimension {
	out := make([]Dimension, len(dimensionNames))
	for i := range out {
		out[i] = Dimension(i)
	}
	return out
}

// FitnessProfile is the multi-dimensional score of one agent in one context.
// Every dimension lies in [0, 1]. Overall is always recomputed as the
// weighted sum of the dimensions and is never set independently.
type FitnessProfile struct {
	Performance      float64
	Adaptability     float64
	Efficiency       float64
	Specialization   float64
	Generalization   float64
	Innovation       float64
	Stability        float64
	Robustness       float64
	Sustainability   float64
	Collaboration    float64
	LearningVelocity float64
	Overall          float64
}

// Get returns the value of the given dimension.
func (p *FitnessProfile) Get(d Dimension) float64 {
	switch d {
	case DimPerformance:
		return p.Performance
	case DimAdaptability:
		return p.Adaptability
	case DimEfficiency:
		return p.Efficiency
	case DimSpecialization:
		return p.Specialization
	case DimGeneralization:
		return p.Generalization
	case DimInnovation:
		return p.Innovation
	case DimStability:
		return p.Stability
	case DimRobustness:
		return p.Robustness
	case DimSustainability:
		return p.Sustainability
	case DimCollaboration:
		return p.Collaboration
	case DimLearningVelocity:
		return p.LearningVelocity
	default:
		return 0
	}
}

// Distance returns the Euclidean distance to another profile over the eleven
// dimensions, ignoring Overall.
func (p *FitnessProfile) Distance(other *FitnessProfile) float64 {
	sum := 0.0
	for _, d := range Dimensions() {
		diff := p.Get(d) - other.Get(d)
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Weights maps fitness dimensions to their contribution to the overall score.
type Weights map[Dimension]float64

// DefaultWeights returns the standard dimension weighting. The values sum to 1.
func DefaultWeights() Weights {
	return Weights{
		DimPerformance:      0.25,
		DimAdaptability:     0.15,
		DimEfficiency:       0.13,
		DimSpecialization:   0.10,
		DimGeneralization:   0.08,
		DimInnovation:       0.08,
		DimStability:        0.07,
		DimRobustness:       0.05,
		DimSustainability:   0.04,
		DimCollaboration:    0.03,
		DimLearningVelocity: 0.02,
	}
}

// Normalize rescales the weights in place so they sum to 1. Weights that sum
// to zero are reset to the defaults.
func (w Weights) Normalize() {
	total := 0.0
	for _, v := range w {
		total += v
	}
	if total <= 0 {
		for d, v := range DefaultWeights() {
			w[d] = v
		}
		return
	}
	for d, v := range w {
		w[d] = v / total
	}
}

// Clone returns an independent copy of the weights.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for d, v := range w {
		out[d] = v
	}
	return out
}

// WeightedSum computes the overall score of a profile under these weights.
func (w Weights) WeightedSum(p *FitnessProfile) float64 {
	sum := 0.0
	for d, v := range w {
		sum += p.Get(d) * v
	}
	return sum
}
