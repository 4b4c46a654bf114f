package llms

import (
	"context"
	"strings"
)

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAnthropic is the type of provider.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderBedrock is the type of provider.
	ProviderBedrock ProviderType = "BEDROCK"
	// ProviderGoogleAI is the type of provider.
	ProviderGoogleAI ProviderType = "GOOGLEAI"
	// ProviderOllama is a local Ollama server, reached through its
	// OpenAI compatible endpoint.
	ProviderOllama ProviderType = "OLLAMA"
	// ProviderOpenAI is the type of provider.
	ProviderOpenAI ProviderType = "OPENAI"
	// ProviderPerplexity is the type of provider.
	ProviderPerplexity ProviderType = "PERPLEXITY"
)

// ParseProviderType returns the ProviderType for the given name,
// the name is case insensitive and "OPEN_AI" is accepted as an alias.
func ParseProviderType(name string) ProviderType {
	pt := ProviderType(strings.ToUpper(strings.TrimSpace(name)))
	if pt == "OPEN_AI" {
		return ProviderOpenAI
	}
	return pt
}

//go:generate mockgen -destination=../../mocks/mockllms/llm_mock.gen.go -package mockllms github.com/effective-security/llmswitch/pkg/llms Model

// Model is an interface text generation backends implement.
type Model interface {
	// GetName returns the name of the model the backend is bound to.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// PromptValue is the interface that all prompt values must implement.
type PromptValue interface {
	String() string
	Messages() []Message
}

// Capability is a bitmask indicating supported features of an LLM provider.
type Capability uint64

const (
	// Basic text or chat generation
	CapabilityText Capability = 1 << iota

	// System prompt support
	CapabilitySystemPrompt

	// Sampling temperature can be set per call
	CapabilityTemperature

	// Open weight models / self-hosted
	CapabilitySelfHosted
)

var providerCapabilities = map[ProviderType]Capability{
	ProviderOllama: CapabilityText |
		CapabilitySystemPrompt |
		CapabilityTemperature |
		CapabilitySelfHosted,

	ProviderOpenAI: CapabilityText |
		CapabilitySystemPrompt |
		CapabilityTemperature,

	ProviderAnthropic: CapabilityText |
		CapabilitySystemPrompt |
		CapabilityTemperature,

	ProviderGoogleAI: CapabilityText |
		CapabilitySystemPrompt |
		CapabilityTemperature,

	// Use Bedrock with Anthropic models
	ProviderBedrock: CapabilityText |
		CapabilitySystemPrompt |
		CapabilityTemperature,

	ProviderPerplexity: CapabilityText |
		CapabilitySystemPrompt |
		CapabilityTemperature,
}

func ProviderCapabilities(pt ProviderType) Capability {
	return providerCapabilities[pt]
}

func (p ProviderType) Supports(cap Capability) bool {
	return ProviderCapabilities(p)&cap != 0
}

// IsKnown returns true if the provider is supported.
func (p ProviderType) IsKnown() bool {
	_, ok := providerCapabilities[p]
	return ok
}
