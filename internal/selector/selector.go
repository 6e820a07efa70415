// Package selector ranks registered models for a task and produces the
// primary + fallback candidate chain.
package selector

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/llm"
	"github.com/helmsman-ai/helmsman/internal/registry"
	"github.com/helmsman-ai/helmsman/internal/score"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// GuideEntry curates selection for one task type.
type GuideEntry struct {
	Recommended   []string `yaml:"recommended"`
	Blocked       []string `yaml:"blocked"`
	FallbackChain []string `yaml:"fallback_chain"`
}

// Guide is optional per-task-type selection overrides.
type Guide map[types.TaskType]GuideEntry

// LoadGuide reads a guide YAML file. An empty path yields a nil guide.
func LoadGuide(path string) (Guide, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guide: %w", err)
	}
	var g Guide
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse guide %s: %w", path, err)
	}
	for taskType := range g {
		if !taskType.Valid() {
			return nil, fmt.Errorf("guide %s: unknown task type %q", path, taskType)
		}
	}
	return g, nil
}

// Selector produces candidate chains from the registry and scorer.
type Selector struct {
	registry     *registry.Registry
	scorer       *score.Scorer
	guide        Guide
	maxFallbacks int
}

// New builds a selector. guide may be nil.
func New(reg *registry.Registry, scorer *score.Scorer, guide Guide, maxFallbacks int) *Selector {
	if maxFallbacks < 0 {
		maxFallbacks = 5
	}
	return &Selector{
		registry:     reg,
		scorer:       scorer,
		guide:        guide,
		maxFallbacks: maxFallbacks,
	}
}

// Select returns the primary model id and the ordered fallback chain.
// Exclusions and guide-blocked ids never appear in the result. Candidates
// are sorted by score descending, ties broken by id.
func (s *Selector) Select(reqs types.TaskRequirements, exclusions map[string]bool) (string, []string, error) {
	blocked := make(map[string]bool)
	var entry GuideEntry
	var haveGuide bool
	if s.guide != nil {
		entry, haveGuide = s.guide[reqs.TaskType]
		for _, id := range entry.Blocked {
			if canonical, ok := s.registry.Resolve(id); ok {
				blocked[canonical] = true
			}
		}
	}

	usable := func(id string) (*registry.Model, bool) {
		m, ok := s.registry.Get(id)
		if !ok || blocked[m.ID] || (exclusions != nil && exclusions[m.ID]) {
			return nil, false
		}
		if s.scorer.Score(m, reqs) <= 0 {
			return nil, false
		}
		return m, true
	}

	// Guide recommendation wins when it passes hard filters.
	if haveGuide {
		for _, id := range entry.Recommended {
			m, ok := usable(id)
			if !ok {
				continue
			}
			chain := s.guideChain(entry, m.ID, usable)
			if len(chain) == 0 {
				chain = s.rankedChain(reqs, m.ID, blocked, exclusions)
			}
			L_debug("selector: guide recommendation", "task", reqs.TaskType, "primary", m.ID, "chain", chain)
			return m.ID, chain, nil
		}
	}

	ranked := s.rank(reqs, blocked, exclusions)
	if len(ranked) == 0 {
		return "", nil, &llm.Error{
			Kind:        llm.KindNoCandidate,
			Err:         fmt.Errorf("no model satisfies the request"),
			Remediation: "register more models or relax requirements",
		}
	}

	primary := ranked[0]
	chain := ranked[1:]
	if len(chain) > s.maxFallbacks {
		chain = chain[:s.maxFallbacks]
	}
	L_debug("selector: ranked", "task", reqs.TaskType, "primary", primary, "chain", chain)
	return primary, chain, nil
}

// guideChain builds the fallback chain from the guide entry, skipping the
// primary and anything that fails hard filters.
func (s *Selector) guideChain(entry GuideEntry, primary string, usable func(string) (*registry.Model, bool)) []string {
	var chain []string
	for _, id := range entry.FallbackChain {
		m, ok := usable(id)
		if !ok || m.ID == primary {
			continue
		}
		chain = append(chain, m.ID)
		if len(chain) == s.maxFallbacks {
			break
		}
	}
	return chain
}

// rankedChain is the scored chain minus a fixed primary.
func (s *Selector) rankedChain(reqs types.TaskRequirements, primary string, blocked, exclusions map[string]bool) []string {
	var chain []string
	for _, id := range s.rank(reqs, blocked, exclusions) {
		if id == primary {
			continue
		}
		chain = append(chain, id)
		if len(chain) == s.maxFallbacks {
			break
		}
	}
	return chain
}

type scored struct {
	id    string
	score float64
}

// rank scores every registered model and returns passing ids in order.
func (s *Selector) rank(reqs types.TaskRequirements, blocked, exclusions map[string]bool) []string {
	var candidates []scored
	for _, m := range s.registry.All() {
		if blocked[m.ID] || (exclusions != nil && exclusions[m.ID]) {
			continue
		}
		sc := s.scorer.Score(m, reqs)
		if sc <= 0 {
			continue
		}
		candidates = append(candidates, scored{id: m.ID, score: sc})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}
