// Package task classifies prompts into task types with pre-compiled
// patterns and an LRU result cache.
package task

import (
	_ "embed"
	"fmt"
	"hash/fnv"
	"os"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/metrics"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// pattern is one compiled classification rule.
type pattern struct {
	re     *regexp.Regexp
	weight float64
}

//go:embed defaults/patterns.yaml
var defaultPatterns []byte

type patternFile struct {
	// task_patterns: {task_type: [[regex, weight], ...]}
	TaskPatterns map[types.TaskType][][]any `yaml:"task_patterns"`
}

// Analyzer maps prompts to task requirements. Pure and idempotent; safe for
// concurrent use. Patterns are immutable after construction.
type Analyzer struct {
	patterns map[types.TaskType][]pattern
	cache    *lru.Cache[string, types.TaskRequirements]
}

// NewAnalyzer loads patterns from the YAML file at path (embedded defaults
// when empty) and builds the result cache. The analyzer itself never fails
// at classification time; only malformed pattern files fail construction.
func NewAnalyzer(path string, cacheSize int) (*Analyzer, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, types.TaskRequirements](cacheSize)
	if err != nil {
		return nil, err
	}

	a := &Analyzer{cache: cache}
	if err := a.loadPatterns(path); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Analyzer) loadPatterns(path string) error {
	data := defaultPatterns
	source := "embedded"
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			// Absent file falls back to the identity pattern set.
			L_warn("pattern file missing, using identity pattern", "path", path, "error", err)
			a.patterns = map[types.TaskType][]pattern{
				types.TaskGeneral: {{re: regexp.MustCompile(`(?i).*`), weight: 0.1}},
			}
			return nil
		}
		data = b
		source = path
	}

	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse patterns %s: %w", source, err)
	}

	compiled := make(map[types.TaskType][]pattern)
	for taskType, rules := range file.TaskPatterns {
		if !taskType.Valid() {
			return fmt.Errorf("patterns %s: unknown task type %q", source, taskType)
		}
		for _, rule := range rules {
			if len(rule) != 2 {
				return fmt.Errorf("patterns %s: %s: rule must be [regex, weight]", source, taskType)
			}
			expr, ok := rule[0].(string)
			if !ok {
				return fmt.Errorf("patterns %s: %s: regex must be a string", source, taskType)
			}
			weight, err := toFloat(rule[1])
			if err != nil {
				return fmt.Errorf("patterns %s: %s: %w", source, taskType, err)
			}
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return fmt.Errorf("patterns %s: %s: %w", source, taskType, err)
			}
			compiled[taskType] = append(compiled[taskType], pattern{re: re, weight: weight})
		}
	}

	a.patterns = compiled
	a.cache.Purge()
	L_debug("task patterns loaded", "source", source, "types", len(compiled))
	return nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("weight must be a number, got %T", v)
}

// Analyze classifies a prompt. Repeated calls return identical results; the
// cache short-circuits pattern evaluation.
func (a *Analyzer) Analyze(prompt string) types.TaskRequirements {
	key := promptKey(prompt)
	if cached, ok := a.cache.Get(key); ok {
		metrics.AnalyzerCache.WithLabelValues("hit").Inc()
		return cached
	}
	metrics.AnalyzerCache.WithLabelValues("miss").Inc()

	reqs := a.classify(prompt)
	a.cache.Add(key, reqs)
	return reqs
}

// classify scores every task type and picks the argmax. Ties break on the
// fixed order of types.AllTaskTypes, not on the pattern file's declaration
// order: the file is parsed into a map, so its ordering is not preserved.
func (a *Analyzer) classify(prompt string) types.TaskRequirements {
	best := types.TaskGeneral
	bestScore := 0.0

	for _, taskType := range types.AllTaskTypes {
		score := 0.0
		for _, p := range a.patterns[taskType] {
			if p.weight > score && p.re.MatchString(prompt) {
				score = p.weight
			}
		}
		if score > bestScore {
			best = taskType
			bestScore = score
		}
	}

	if bestScore == 0 {
		best = types.TaskGeneral
		bestScore = 0.1
	}

	return types.TaskRequirements{
		TaskType:             best,
		Confidence:           bestScore,
		MinContextWindow:     contextWindowHeuristic(prompt),
		NeedsFunctionCalling: needsFunctionCalling(prompt),
		NeedsVision:          needsVision(prompt),
		Priority:             types.PriorityBalanced,
	}
}

// promptKey is a 128-bit hash of the prompt.
func promptKey(prompt string) string {
	h := fnv.New128a()
	h.Write([]byte(prompt))
	return string(h.Sum(nil))
}

var functionCallingHints = []string{
	"use the tool", "using tools", "call the function", "function call",
	"call the api", "use the api", "invoke", "available tools", "tool call",
}

func needsFunctionCalling(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, hint := range functionCallingHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

var visionHints = []string{
	"image", "photo", "picture", "screenshot", "diagram", "attached figure",
}

func needsVision(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, hint := range visionHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// contextWindowHeuristic estimates the minimum context window from prompt
// length: words × 4 bytes / 3 ≈ tokens, rounded up to the nearest 8k.
// Short prompts return 0, meaning no constraint.
func contextWindowHeuristic(prompt string) int {
	words := len(strings.Fields(prompt))
	tokens := words * 4 / 3
	if tokens == 0 {
		return 0
	}
	const step = 8192
	rounded := (tokens + step - 1) / step * step
	if rounded == step {
		// A single 8k step is below every registered model's window.
		return 0
	}
	return rounded
}
