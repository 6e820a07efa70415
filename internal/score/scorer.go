// Package score rates models against task requirements on a [0,1] scale.
package score

import (
	"github.com/helmsman-ai/helmsman/internal/config"
	"github.com/helmsman-ai/helmsman/internal/registry"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// Availability answers whether a provider currently has usable credentials.
// Implemented by the client pool.
type Availability interface {
	Available(p types.Provider) bool
}

// Weights are the normalized sub-score weights.
type Weights struct {
	Context    float64
	Speed      float64
	Cost       float64
	Capability float64
}

// DefaultWeights favor capability fit over raw speed or price.
var DefaultWeights = Weights{
	Context:    0.20,
	Speed:      0.15,
	Cost:       0.15,
	Capability: 0.50,
}

// Scorer computes fitness scores. Stateless apart from its configuration.
type Scorer struct {
	weights      Weights
	availability Availability
}

// NewScorer builds a scorer. cfg may be nil to use the defaults;
// availability may be nil to skip the credential hard filter.
func NewScorer(cfg *config.Weights, availability Availability) *Scorer {
	w := DefaultWeights
	if cfg != nil {
		w = Weights{
			Context:    cfg.Context,
			Speed:      cfg.Speed,
			Cost:       cfg.Cost,
			Capability: cfg.Capability,
		}
	}
	return &Scorer{weights: w, availability: availability}
}

// Score rates a model for the given requirements. Zero means the model is
// hard-filtered out: missing required capability or unavailable provider.
func (s *Scorer) Score(m *registry.Model, reqs types.TaskRequirements) float64 {
	if s.availability != nil && !s.availability.Available(m.Provider) {
		return 0
	}
	if reqs.NeedsVision && !m.HasCapability(registry.CapVision) {
		return 0
	}
	if reqs.NeedsFunctionCalling && !m.HasCapability(registry.CapFunctionCalling) {
		return 0
	}

	w := s.weights.reweight(reqs.Priority)

	contextScore := 1.0
	if reqs.MinContextWindow > 0 && m.ContextWindow < reqs.MinContextWindow {
		contextScore = float64(m.ContextWindow) / float64(reqs.MinContextWindow)
	}

	speedScore := float64(m.Scores.Speed) / 100

	return w.Context*contextScore +
		w.Speed*speedScore +
		w.Cost*costScore(m.CostTier) +
		w.Capability*capabilityScore(m, reqs)
}

// reweight doubles the priority-favored weight and renormalizes.
func (w Weights) reweight(priority types.Priority) Weights {
	switch priority {
	case types.PriorityQuality:
		w.Capability *= 2
	case types.PrioritySpeed:
		w.Speed *= 2
	case types.PriorityCost:
		w.Cost *= 2
	default:
		return w
	}
	sum := w.Context + w.Speed + w.Cost + w.Capability
	return Weights{
		Context:    w.Context / sum,
		Speed:      w.Speed / sum,
		Cost:       w.Cost / sum,
		Capability: w.Capability / sum,
	}
}

// costScore is 1 − normalized price rank.
func costScore(tier registry.CostTier) float64 {
	switch tier {
	case registry.TierFree:
		return 1.0
	case registry.TierBudget:
		return 1.0
	case registry.TierStandard:
		return 0.6
	case registry.TierPremium:
		return 0.2
	}
	return 0.6
}

// requiredCapabilities derives the soft capability set from requirements.
func requiredCapabilities(reqs types.TaskRequirements) []registry.Capability {
	var caps []registry.Capability
	switch reqs.TaskType {
	case types.TaskCodeGeneration, types.TaskDebugging, types.TaskTesting:
		caps = append(caps, registry.CapCoding)
	case types.TaskReasoning, types.TaskArchitecturalDesign, types.TaskDataAnalysis:
		caps = append(caps, registry.CapReasoning)
	}
	if reqs.NeedsFunctionCalling {
		caps = append(caps, registry.CapFunctionCalling)
	}
	if reqs.NeedsVision {
		caps = append(caps, registry.CapVision)
	}
	if reqs.MinContextWindow > 131072 {
		caps = append(caps, registry.CapLongContext)
	}
	return caps
}

// capabilityScore is the overlap ratio with the required set, 0.5 when
// nothing specific is required.
func capabilityScore(m *registry.Model, reqs types.TaskRequirements) float64 {
	required := requiredCapabilities(reqs)
	if len(required) == 0 {
		return 0.5
	}
	matched := 0
	for _, c := range required {
		if m.HasCapability(c) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}
