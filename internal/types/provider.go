package types

// Provider identifies an upstream LLM platform.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderXAI       Provider = "xai"
	ProviderAzure     Provider = "azure"
	ProviderBedrock   Provider = "bedrock"
	ProviderDIAL      Provider = "dial"
	ProviderLocal     Provider = "local"
)

// AllProviders lists every supported provider.
var AllProviders = []Provider{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGoogle,
	ProviderXAI,
	ProviderAzure,
	ProviderBedrock,
	ProviderDIAL,
	ProviderLocal,
}

// Valid returns true if p is a known provider.
func (p Provider) Valid() bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}
	return false
}
