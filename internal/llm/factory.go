package llm

import (
	"github.com/helmsman-ai/helmsman/internal/types"
)

// constructors is the compile-time provider registration table.
var constructors = map[types.Provider]func(Options) (Client, error){
	types.ProviderOpenAI: func(o Options) (Client, error) {
		return NewOpenAIClient(types.ProviderOpenAI, o)
	},
	types.ProviderAzure: func(o Options) (Client, error) {
		return NewOpenAIClient(types.ProviderAzure, o)
	},
	types.ProviderGoogle: func(o Options) (Client, error) {
		return NewOpenAIClient(types.ProviderGoogle, o)
	},
	types.ProviderDIAL: func(o Options) (Client, error) {
		return NewOpenAIClient(types.ProviderDIAL, o)
	},
	types.ProviderAnthropic: func(o Options) (Client, error) {
		return NewAnthropicClient(o)
	},
	types.ProviderXAI: func(o Options) (Client, error) {
		return NewXAIClient(o)
	},
	types.ProviderBedrock: func(o Options) (Client, error) {
		return NewBedrockClient(o)
	},
	types.ProviderLocal: func(o Options) (Client, error) {
		return NewOllamaClient(o)
	},
}

// New constructs a client for the given provider. ValidateConfig runs inside
// each constructor; a missing credential surfaces as ProviderUnavailable.
func New(provider types.Provider, opts Options) (Client, error) {
	ctor, ok := constructors[provider]
	if !ok {
		return nil, Ef(KindProviderUnavailable, "unknown provider %q", provider)
	}
	return ctor(opts)
}
