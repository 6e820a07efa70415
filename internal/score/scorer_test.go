package score

import (
	"testing"

	"github.com/helmsman-ai/helmsman/internal/config"
	"github.com/helmsman-ai/helmsman/internal/registry"
	"github.com/helmsman-ai/helmsman/internal/types"
)

type fixedAvailability map[types.Provider]bool

func (f fixedAvailability) Available(p types.Provider) bool { return f[p] }

func model(id string, provider types.Provider, window int, tier registry.CostTier, speed int, caps ...registry.Capability) *registry.Model {
	return &registry.Model{
		ID:            id,
		APIName:       id,
		Provider:      provider,
		ContextWindow: window,
		Capabilities:  caps,
		Scores:        registry.Scores{Speed: speed},
		CostTier:      tier,
	}
}

func TestScoreHardFilters(t *testing.T) {
	s := NewScorer(nil, fixedAvailability{types.ProviderOpenAI: true})

	withVision := model("a", types.ProviderOpenAI, 128000, registry.TierStandard, 80,
		registry.CapVision, registry.CapFunctionCalling)
	without := model("b", types.ProviderOpenAI, 128000, registry.TierStandard, 80)
	offline := model("c", types.ProviderAnthropic, 128000, registry.TierStandard, 80,
		registry.CapVision, registry.CapFunctionCalling)

	tests := []struct {
		name string
		m    *registry.Model
		reqs types.TaskRequirements
		zero bool
	}{
		{"vision required and present", withVision, types.TaskRequirements{TaskType: types.TaskGeneral, NeedsVision: true}, false},
		{"vision required and missing", without, types.TaskRequirements{TaskType: types.TaskGeneral, NeedsVision: true}, true},
		{"tools required and missing", without, types.TaskRequirements{TaskType: types.TaskGeneral, NeedsFunctionCalling: true}, true},
		{"provider unavailable", offline, types.TaskRequirements{TaskType: types.TaskGeneral}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.m, tt.reqs)
			if tt.zero && got != 0 {
				t.Errorf("Score = %v, want 0 (hard filter)", got)
			}
			if !tt.zero && got <= 0 {
				t.Errorf("Score = %v, want > 0", got)
			}
		})
	}
}

func TestScoreRange(t *testing.T) {
	s := NewScorer(nil, nil)
	m := model("a", types.ProviderOpenAI, 128000, registry.TierBudget, 100,
		registry.CapCoding, registry.CapReasoning, registry.CapFunctionCalling, registry.CapVision)
	got := s.Score(m, types.TaskRequirements{TaskType: types.TaskCodeGeneration, Priority: types.PriorityBalanced})
	if got <= 0 || got > 1 {
		t.Errorf("Score = %v, want (0,1]", got)
	}
}

func TestScoreContextPenalty(t *testing.T) {
	s := NewScorer(nil, nil)
	small := model("small", types.ProviderOpenAI, 8192, registry.TierStandard, 50)
	large := model("large", types.ProviderOpenAI, 200000, registry.TierStandard, 50)

	reqs := types.TaskRequirements{TaskType: types.TaskGeneral, MinContextWindow: 100000}
	if s.Score(small, reqs) >= s.Score(large, reqs) {
		t.Errorf("undersized context window should score lower")
	}
}

func TestScorePriorityReweight(t *testing.T) {
	s := NewScorer(nil, nil)
	fast := model("fast", types.ProviderOpenAI, 128000, registry.TierPremium, 95)
	cheap := model("cheap", types.ProviderOpenAI, 128000, registry.TierBudget, 40)

	speedFirst := types.TaskRequirements{TaskType: types.TaskGeneral, Priority: types.PrioritySpeed}
	costFirst := types.TaskRequirements{TaskType: types.TaskGeneral, Priority: types.PriorityCost}

	if s.Score(fast, speedFirst) <= s.Score(cheap, speedFirst) {
		t.Errorf("speed priority should favor the fast model")
	}
	if s.Score(cheap, costFirst) <= s.Score(fast, costFirst) {
		t.Errorf("cost priority should favor the budget model")
	}
}

func TestReweightNormalizes(t *testing.T) {
	for _, p := range []types.Priority{types.PriorityQuality, types.PrioritySpeed, types.PriorityCost, types.PriorityBalanced} {
		w := DefaultWeights.reweight(p)
		sum := w.Context + w.Speed + w.Cost + w.Capability
		if sum < 0.999 || sum > 1.001 {
			t.Errorf("reweight(%s) sum = %v, want 1", p, sum)
		}
	}
}

func TestScoreCapabilityOverlap(t *testing.T) {
	s := NewScorer(nil, nil)
	coder := model("coder", types.ProviderOpenAI, 128000, registry.TierStandard, 50, registry.CapCoding)
	blank := model("blank", types.ProviderOpenAI, 128000, registry.TierStandard, 50)

	reqs := types.TaskRequirements{TaskType: types.TaskCodeGeneration}
	if s.Score(coder, reqs) <= s.Score(blank, reqs) {
		t.Errorf("coding capability should matter for code generation")
	}
}

func TestScoreConfiguredWeights(t *testing.T) {
	// All weight on cost: tier alone decides.
	s := NewScorer(&config.Weights{Cost: 1}, nil)
	premium := model("p", types.ProviderOpenAI, 128000, registry.TierPremium, 99)
	budget := model("b", types.ProviderOpenAI, 128000, registry.TierBudget, 1)

	reqs := types.TaskRequirements{TaskType: types.TaskGeneral}
	if s.Score(budget, reqs) <= s.Score(premium, reqs) {
		t.Errorf("cost-only weights should rank budget above premium")
	}
}
