package selector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/helmsman-ai/helmsman/internal/llm"
	"github.com/helmsman-ai/helmsman/internal/registry"
	"github.com/helmsman-ai/helmsman/internal/score"
	"github.com/helmsman-ai/helmsman/internal/types"
)

const testModels = `
models:
  - id: alpha
    provider: openai
    context_window: 128000
    capabilities: [coding, reasoning, function_calling, vision]
    scores: {speed: 80}
    cost_tier: standard
    aliases: [a]
  - id: beta
    provider: anthropic
    context_window: 200000
    capabilities: [coding, reasoning, function_calling]
    scores: {speed: 70}
    cost_tier: premium
  - id: gamma
    provider: local
    context_window: 8192
    capabilities: [coding]
    scores: {speed: 95}
    cost_tier: free
`

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	if err := os.WriteFile(path, []byte(testModels), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := registry.Load(path)
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	return reg
}

func newTestSelector(t *testing.T, guide Guide) *Selector {
	t.Helper()
	return New(testRegistry(t), score.NewScorer(nil, nil), guide, 5)
}

func generalReqs() types.TaskRequirements {
	return types.TaskRequirements{TaskType: types.TaskGeneral, Priority: types.PriorityBalanced}
}

func TestSelectReturnsPrimaryAndChain(t *testing.T) {
	s := newTestSelector(t, nil)
	primary, chain, err := s.Select(generalReqs(), nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if primary == "" {
		t.Fatal("empty primary")
	}
	seen := map[string]bool{primary: true}
	for _, id := range chain {
		if seen[id] {
			t.Errorf("candidate %q appears twice", id)
		}
		seen[id] = true
	}
}

func TestSelectDeterministic(t *testing.T) {
	s := newTestSelector(t, nil)
	p1, c1, err := s.Select(generalReqs(), nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		p2, c2, err := s.Select(generalReqs(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if p1 != p2 || len(c1) != len(c2) {
			t.Fatalf("selection changed between identical calls: %v/%v vs %v/%v", p1, c1, p2, c2)
		}
		for j := range c1 {
			if c1[j] != c2[j] {
				t.Fatalf("chain order changed: %v vs %v", c1, c2)
			}
		}
	}
}

func TestSelectExclusions(t *testing.T) {
	s := newTestSelector(t, nil)
	primary, _, err := s.Select(generalReqs(), nil)
	if err != nil {
		t.Fatal(err)
	}

	next, chain, err := s.Select(generalReqs(), map[string]bool{primary: true})
	if err != nil {
		t.Fatalf("Select with exclusion: %v", err)
	}
	if next == primary {
		t.Errorf("excluded model %q selected as primary", primary)
	}
	for _, id := range chain {
		if id == primary {
			t.Errorf("excluded model %q appears in chain", primary)
		}
	}
}

func TestSelectAllExcluded(t *testing.T) {
	s := newTestSelector(t, nil)
	_, _, err := s.Select(generalReqs(), map[string]bool{"alpha": true, "beta": true, "gamma": true})
	if llm.KindOf(err) != llm.KindNoCandidate {
		t.Errorf("kind = %v, want no_candidate", llm.KindOf(err))
	}
}

func TestSelectVisionFiltersCandidates(t *testing.T) {
	s := newTestSelector(t, nil)
	reqs := generalReqs()
	reqs.NeedsVision = true
	primary, chain, err := s.Select(reqs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if primary != "alpha" {
		t.Errorf("primary = %q, want alpha (only vision model)", primary)
	}
	if len(chain) != 0 {
		t.Errorf("chain = %v, want empty", chain)
	}
}

func TestSelectGuideRecommendation(t *testing.T) {
	guide := Guide{
		types.TaskGeneral: {
			Recommended:   []string{"beta"},
			FallbackChain: []string{"gamma", "alpha"},
		},
	}
	s := newTestSelector(t, guide)
	primary, chain, err := s.Select(generalReqs(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if primary != "beta" {
		t.Errorf("primary = %q, want guide-recommended beta", primary)
	}
	if len(chain) != 2 || chain[0] != "gamma" || chain[1] != "alpha" {
		t.Errorf("chain = %v, want [gamma alpha]", chain)
	}
}

func TestSelectGuideBlocked(t *testing.T) {
	guide := Guide{
		types.TaskGeneral: {Blocked: []string{"a"}}, // alias for alpha
	}
	s := newTestSelector(t, guide)
	primary, chain, err := s.Select(generalReqs(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if primary == "alpha" {
		t.Errorf("blocked model selected as primary")
	}
	for _, id := range chain {
		if id == "alpha" {
			t.Errorf("blocked model appears in chain: %v", chain)
		}
	}
}

func TestSelectGuideRecommendationExcludedFallsThrough(t *testing.T) {
	guide := Guide{
		types.TaskGeneral: {Recommended: []string{"beta"}},
	}
	s := newTestSelector(t, guide)
	primary, _, err := s.Select(generalReqs(), map[string]bool{"beta": true})
	if err != nil {
		t.Fatal(err)
	}
	if primary == "beta" {
		t.Errorf("excluded recommendation must not be selected")
	}
}

func TestSelectMaxFallbacksCap(t *testing.T) {
	s := New(testRegistry(t), score.NewScorer(nil, nil), nil, 1)
	_, chain, err := s.Select(generalReqs(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) > 1 {
		t.Errorf("chain = %v, want at most 1 entry", chain)
	}
}

func TestLoadGuideEmptyPath(t *testing.T) {
	g, err := LoadGuide("")
	if err != nil || g != nil {
		t.Errorf("LoadGuide(\"\") = %v, %v; want nil, nil", g, err)
	}
}

func TestLoadGuideRejectsUnknownTaskType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.yaml")
	if err := os.WriteFile(path, []byte("interpretive_dance:\n  recommended: [alpha]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadGuide(path); err == nil {
		t.Errorf("unknown task type should fail guide loading")
	}
}
