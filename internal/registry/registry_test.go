package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRegistry(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEmbeddedDefaults(t *testing.T) {
	reg, err := Load("")
	if err != nil {
		t.Fatalf("Load embedded: %v", err)
	}
	if reg.Len() == 0 {
		t.Fatal("embedded catalog is empty")
	}
	for _, m := range reg.All() {
		if m.APIName == "" {
			t.Errorf("model %s has empty api name after load", m.ID)
		}
		if m.CostTier == "" {
			t.Errorf("model %s has empty cost tier after load", m.ID)
		}
	}
}

func TestGetAndResolve(t *testing.T) {
	path := writeRegistry(t, `
models:
  - id: alpha
    api_name: alpha-2026-01
    provider: openai
    context_window: 128000
    aliases: [a, alef]
`)
	reg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		lookup  string
		wantID  string
		wantHit bool
	}{
		{"by id", "alpha", "alpha", true},
		{"by alias", "a", "alpha", true},
		{"by second alias", "alef", "alpha", true},
		{"unknown", "zeta", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := reg.Resolve(tt.lookup)
			if ok != tt.wantHit || id != tt.wantID {
				t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.lookup, id, ok, tt.wantID, tt.wantHit)
			}
		})
	}

	m, ok := reg.Get("a")
	if !ok || m.APIName != "alpha-2026-01" {
		t.Errorf("Get by alias = %+v, %v", m, ok)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string // substring of the expected error
	}{
		{"empty catalog", "models: []\n", "no models"},
		{"missing id", "models:\n  - provider: openai\n    context_window: 1\n", "empty id"},
		{"duplicate id", `
models:
  - {id: a, provider: openai, context_window: 1}
  - {id: a, provider: openai, context_window: 1}
`, "duplicate"},
		{"bad provider", "models:\n  - {id: a, provider: skynet, context_window: 1}\n", "unknown provider"},
		{"bad window", "models:\n  - {id: a, provider: openai, context_window: 0}\n", "context_window"},
		{"alias collision", `
models:
  - {id: a, provider: openai, context_window: 1, aliases: [x]}
  - {id: b, provider: openai, context_window: 1, aliases: [x]}
`, "alias"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeRegistry(t, tt.yaml))
			if err == nil {
				t.Fatal("Load should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestAllSortedByID(t *testing.T) {
	path := writeRegistry(t, `
models:
  - {id: zeta, provider: openai, context_window: 1}
  - {id: alpha, provider: openai, context_window: 1}
  - {id: mid, provider: openai, context_window: 1}
`)
	reg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	all := reg.All()
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("All() not sorted: %s before %s", all[i-1].ID, all[i].ID)
		}
	}
}

func TestReloadKeepsCatalogOnError(t *testing.T) {
	path := writeRegistry(t, "models:\n  - {id: a, provider: openai, context_window: 1}\n")
	reg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("models: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := reg.Reload(); err == nil {
		t.Fatal("Reload of an empty catalog should fail")
	}
	if _, ok := reg.Get("a"); !ok {
		t.Errorf("failed reload must keep the previous catalog")
	}
}

func TestProviders(t *testing.T) {
	path := writeRegistry(t, `
models:
  - {id: a, provider: openai, context_window: 1}
  - {id: b, provider: openai, context_window: 1}
  - {id: c, provider: anthropic, context_window: 1}
`)
	reg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Providers(); len(got) != 2 {
		t.Errorf("Providers = %v, want two distinct entries", got)
	}
}

func TestHasCapability(t *testing.T) {
	m := &Model{Capabilities: []Capability{CapCoding, CapVision}}
	if !m.HasCapability(CapVision) || m.HasCapability(CapLongContext) {
		t.Errorf("HasCapability misreports")
	}
}
