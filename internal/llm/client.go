// Package llm provides uniform clients over the supported LLM providers.
// Each provider adapter maps its native protocol onto APIRequest/APIResponse;
// the rest of the pipeline never sees provider internals.
package llm

import (
	"context"

	"github.com/helmsman-ai/helmsman/internal/types"
)

// Client is the capability set every provider adapter implements.
type Client interface {
	// Provider returns the provider tag this client serves.
	Provider() types.Provider

	// ValidateConfig checks credentials and endpoint structure. Called once
	// at construction; failure means the provider is unavailable.
	ValidateConfig() error

	// HealthCheck probes the provider with a bounded, quota-cheap call
	// (typically list-models). Honours ctx cancellation.
	HealthCheck(ctx context.Context) error

	// ChatCompletion performs one completion call. Usage is populated from
	// the provider response when available, never fabricated. Errors are
	// classified into the llm error taxonomy. Safe for concurrent use.
	ChatCompletion(ctx context.Context, req *types.APIRequest) (*types.APIResponse, error)

	// Close releases connections. Idempotent.
	Close() error
}

// Options carries per-call defaults shared by all clients.
type Options struct {
	Temperature float64
	MaxTokens   int
	HTTPTimeout int // seconds; 0 = library default
}
