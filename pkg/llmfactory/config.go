package llmfactory

import (
	"slices"
	"strings"

	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/x/configloader"
)

type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers"`
	// DefaultProvider specifies the default provider to use
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
}

// ProviderConfig describes one backend
type ProviderConfig struct {
	Name string `json:"name" yaml:"name"`
	// Type specifies the type of API to use:
	// OLLAMA|OPENAI|PERPLEXITY|ANTHROPIC|GOOGLEAI|BEDROCK
	Type            string   `json:"type" yaml:"type"`
	Token           string   `json:"token,omitempty" yaml:"token,omitempty"`
	BaseURL         string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`
	// OrgID specifies which organization's quota and billing should be used when making API requests.
	OrgID string `json:"org_id,omitempty" yaml:"org_id,omitempty"`
	// Region is the AWS region for BEDROCK
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Project and Location are used by GOOGLEAI
	Project  string `json:"project,omitempty" yaml:"project,omitempty"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
}

// ProviderType returns the parsed provider type
func (c *ProviderConfig) ProviderType() llms.ProviderType {
	return llms.ParseProviderType(c.Type)
}

// Matches returns true if the provider is named, or typed, as p
func (c *ProviderConfig) Matches(p string) bool {
	return strings.EqualFold(c.Name, p) || c.ProviderType() == llms.ParseProviderType(p)
}

func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a configuration with a single local Ollama provider
func DefaultConfig() *Config {
	return &Config{
		DefaultProvider: "ollama",
		Providers: []*ProviderConfig{
			{
				Name:            "ollama",
				Type:            string(llms.ProviderOllama),
				DefaultModel:    "llama3.2",
				AvailableModels: []string{"llama3.2", "gemma3:4b", "qwen3:4b"},
			},
		},
	}
}
