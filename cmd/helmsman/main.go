package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/helmsman-ai/helmsman/internal/config"
	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/orchestrator"
	"github.com/helmsman-ai/helmsman/internal/types"
)

const version = "0.1.0"

type cli struct {
	Config string `short:"c" help:"Path to config YAML. Empty uses built-in defaults." type:"path"`
	Debug  bool   `short:"d" help:"Enable debug logging."`

	Route   routeCmd   `cmd:"" help:"Route a prompt to the best model."`
	Models  modelsCmd  `cmd:"" help:"List registered models."`
	Health  healthCmd  `cmd:"" help:"Probe provider health."`
	Version versionCmd `cmd:"" help:"Print the version."`
}

type routeCmd struct {
	Prompt   string        `arg:"" help:"Prompt text to route."`
	Model    string        `help:"Model id or alias to try first."`
	Task     string        `help:"Task type override (code_generation, reasoning, ...)."`
	Priority string        `help:"Selection priority: quality, speed, cost, balanced."`
	Deadline time.Duration `help:"Overall deadline, e.g. 60s. Zero means none."`
}

type modelsCmd struct{}
type healthCmd struct{}
type versionCmd struct{}

func main() {
	var args cli
	ctx := kong.Parse(&args,
		kong.Name("helmsman"),
		kong.Description("Intelligent LLM orchestrator: task analysis, model selection, fallback, cost tracking."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&args); err != nil {
		L_error("command failed", "error", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the orchestrator shared by all
// commands except version.
func setup(args *cli) (*orchestrator.Orchestrator, *config.Config, error) {
	cfg, err := config.Load(args.Config)
	if err != nil {
		return nil, nil, err
	}

	level := levelFromString(cfg.LogLevel)
	if args.Debug {
		level = LevelDebug
	}
	Init(&Config{Level: level, ShowCaller: args.Debug})

	orch, err := orchestrator.New(cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	return orch, cfg, nil
}

func levelFromString(s string) int {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (r *routeCmd) Run(args *cli) error {
	orch, _, err := setup(args)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	req := &types.RouteRequest{
		Prompt:    r.Prompt,
		ModelHint: r.Model,
		TaskHint:  types.TaskType(r.Task),
		Priority:  types.Priority(r.Priority),
	}
	if r.Deadline > 0 {
		req.Deadline = time.Now().Add(r.Deadline)
	}

	resp, err := orch.Route(context.Background(), req)
	if err != nil {
		return err
	}

	fmt.Println(resp.Response.Content)
	fmt.Fprintf(os.Stderr, "\nmodel=%s depth=%d tokens=%d cost=$%s trace=%s\n",
		resp.ModelID,
		resp.FallbackDepth,
		resp.Response.Usage.TotalTokens,
		resp.Cost.CostUSDTotal.StringFixed(6),
		resp.TraceID)
	return nil
}

func (m *modelsCmd) Run(args *cli) error {
	orch, _, err := setup(args)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	for _, model := range orch.ListModels() {
		fmt.Printf("%-24s %-10s %-38s ctx=%-8d tier=%s\n",
			model.ID, model.Provider, model.APIName, model.ContextWindow, model.CostTier)
	}
	return nil
}

func (h *healthCmd) Run(args *cli) error {
	orch, cfg, err := setup(args)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HealthCacheTTL)
	defer cancel()

	status := orch.Health(ctx)
	for provider, healthy := range status {
		state := "down"
		if healthy {
			state = "ok"
		}
		fmt.Printf("%-12s %s\n", provider, state)
	}
	return nil
}

func (v *versionCmd) Run(args *cli) error {
	fmt.Printf("helmsman %s\n", version)
	return nil
}
