// Package registry holds the in-memory catalog of model descriptors.
// Descriptors are loaded from YAML, validated once, and immutable until an
// explicit Reload.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// Capability tags a model feature used during scoring and hard filtering.
type Capability string

const (
	CapReasoning       Capability = "reasoning"
	CapCoding          Capability = "coding"
	CapVision          Capability = "vision"
	CapFunctionCalling Capability = "function_calling"
	CapStreaming       Capability = "streaming"
	CapLongContext     Capability = "long_context"
)

// CostTier buckets models by rough pricing.
type CostTier string

const (
	TierPremium  CostTier = "premium"
	TierStandard CostTier = "standard"
	TierBudget   CostTier = "budget"
	TierFree     CostTier = "free"
)

// Scores are normalized model quality ratings in [0,100].
type Scores struct {
	Reasoning int `yaml:"reasoning"`
	Coding    int `yaml:"coding"`
	Speed     int `yaml:"speed"`
	Quality   int `yaml:"quality"`
}

// Model describes one registered model.
type Model struct {
	ID            string         `yaml:"id"`
	APIName       string         `yaml:"api_name"`
	Provider      types.Provider `yaml:"provider"`
	ContextWindow int            `yaml:"context_window"`
	Capabilities  []Capability   `yaml:"capabilities"`
	Scores        Scores         `yaml:"scores"`
	CostTier      CostTier       `yaml:"cost_tier"`
	Aliases       []string       `yaml:"aliases"`
}

// HasCapability reports whether the model carries the given tag.
func (m *Model) HasCapability(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

type catalog struct {
	byID    map[string]*Model
	aliases map[string]string // alias -> id
	ordered []*Model          // id-sorted, for deterministic listing
}

// Registry is the shared read-only model catalog. Reload swaps the whole
// catalog atomically; readers never observe a partial load.
type Registry struct {
	path    string // empty = embedded defaults
	current atomic.Pointer[catalog]
}

//go:embed defaults/models.yaml
var defaultModels []byte

type modelsFile struct {
	Models []*Model `yaml:"models"`
}

// Load builds a registry from the YAML file at path, or from the embedded
// default catalog when path is empty.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the source and swaps the catalog. On error the previous
// catalog stays in place.
func (r *Registry) Reload() error {
	data := defaultModels
	source := "embedded"
	if r.path != "" {
		b, err := os.ReadFile(r.path)
		if err != nil {
			return fmt.Errorf("read model registry: %w", err)
		}
		data = b
		source = r.path
	}

	var file modelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse model registry %s: %w", source, err)
	}

	cat, err := buildCatalog(file.Models)
	if err != nil {
		return fmt.Errorf("model registry %s: %w", source, err)
	}

	r.current.Store(cat)
	L_debug("registry loaded", "source", source, "models", len(cat.byID))
	return nil
}

func buildCatalog(models []*Model) (*catalog, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("no models defined")
	}

	cat := &catalog{
		byID:    make(map[string]*Model, len(models)),
		aliases: make(map[string]string),
	}
	for _, m := range models {
		if m.ID == "" {
			return nil, fmt.Errorf("model with empty id")
		}
		if _, dup := cat.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", m.ID)
		}
		if !m.Provider.Valid() {
			return nil, fmt.Errorf("model %q: unknown provider %q", m.ID, m.Provider)
		}
		if m.ContextWindow <= 0 {
			return nil, fmt.Errorf("model %q: context_window must be > 0", m.ID)
		}
		if m.APIName == "" {
			m.APIName = m.ID
		}
		if m.CostTier == "" {
			m.CostTier = TierStandard
		}
		cat.byID[m.ID] = m
		for _, alias := range m.Aliases {
			if owner, dup := cat.aliases[alias]; dup {
				return nil, fmt.Errorf("alias %q claimed by both %q and %q", alias, owner, m.ID)
			}
			cat.aliases[alias] = m.ID
		}
	}

	cat.ordered = make([]*Model, 0, len(cat.byID))
	for _, m := range cat.byID {
		cat.ordered = append(cat.ordered, m)
	}
	sort.Slice(cat.ordered, func(i, j int) bool { return cat.ordered[i].ID < cat.ordered[j].ID })
	return cat, nil
}

// Get resolves an id or alias to its descriptor.
func (r *Registry) Get(idOrAlias string) (*Model, bool) {
	cat := r.current.Load()
	if m, ok := cat.byID[idOrAlias]; ok {
		return m, true
	}
	if id, ok := cat.aliases[idOrAlias]; ok {
		return cat.byID[id], true
	}
	return nil, false
}

// Resolve maps an id or alias to the canonical id.
func (r *Registry) Resolve(idOrAlias string) (string, bool) {
	m, ok := r.Get(idOrAlias)
	if !ok {
		return "", false
	}
	return m.ID, true
}

// All returns every descriptor sorted by id. The slice is shared; callers
// must not mutate it.
func (r *Registry) All() []*Model {
	return r.current.Load().ordered
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	return len(r.current.Load().byID)
}

// Providers returns the distinct providers present in the catalog.
func (r *Registry) Providers() []types.Provider {
	seen := make(map[types.Provider]bool)
	var out []types.Provider
	for _, m := range r.All() {
		if !seen[m.Provider] {
			seen[m.Provider] = true
			out = append(out, m.Provider)
		}
	}
	return out
}
