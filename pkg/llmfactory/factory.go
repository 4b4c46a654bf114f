package llmfactory

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/llmswitch/pkg/llms/anthropic"
	"github.com/effective-security/llmswitch/pkg/llms/bedrock"
	"github.com/effective-security/llmswitch/pkg/llms/googleai"
	"github.com/effective-security/llmswitch/pkg/llms/openai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/llmswitch", "llmfactory")

// NewLLM is a wrapper for CreateLLM to allow for overriding the default implementation.
var NewLLM = CreateLLM

//go:generate mockgen -source=factory.go -destination=../../mocks/mockllmfactory/factory_mock.gen.go -package mockllmfactory

// Factory is the interface for creating and managing LLM models.
type Factory interface {
	// ModelByName returns the model from the first provider that lists
	// one of the preferred models in available_models,
	// the default provider serves the first model when none is listed.
	ModelByName(preferredModels ...string) (llms.Model, error)
	// Model returns the model served by the provider,
	// the provider is matched by name or by type.
	// Empty model selects the provider's default model.
	Model(provider, model string) (llms.Model, error)
}

// Load returns the factory from the configuration file
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg *Config

	defaultProvider *ProviderConfig
	byName          map[string]llms.Model
	byProvider      map[string]llms.Model
	lock            sync.Mutex
}

// New creates a new LLM factory
func New(cfg *Config) Factory {
	f := &factory{
		cfg:        cfg,
		byName:     make(map[string]llms.Model),
		byProvider: make(map[string]llms.Model),
	}

	if cfg.DefaultProvider != "" {
		for _, provider := range cfg.Providers {
			if provider.Name == cfg.DefaultProvider {
				f.defaultProvider = provider
				break
			}
		}
	}

	if f.defaultProvider == nil && len(f.cfg.Providers) > 0 {
		f.defaultProvider = f.cfg.Providers[0]
	}

	return f
}

func CreateLLM(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	provType := cfg.ProviderType()
	switch provType {
	case llms.ProviderOpenAI, llms.ProviderOllama, llms.ProviderPerplexity:
		return newOpenAI(cfg, preferredModels...)
	case llms.ProviderAnthropic:
		return newAnthropic(cfg, preferredModels...)
	case llms.ProviderGoogleAI:
		return newGoogleAI(cfg, preferredModels...)
	case llms.ProviderBedrock:
		return newBedrock(cfg, preferredModels...)
	}
	return nil, errors.Errorf("unsupported provider type: %s", provType)
}

func newOpenAI(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	model := cfg.FindModel(preferredModels...)
	opts := []openai.Option{
		openai.WithProvider(cfg.ProviderType()),
		openai.WithModel(model),
	}
	if cfg.Token != "" {
		opts = append(opts, openai.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.OrgID != "" {
		opts = append(opts, openai.WithOrganization(cfg.OrgID))
	}
	return openai.New(opts...)
}

func newAnthropic(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	model := cfg.FindModel(preferredModels...)
	opts := []anthropic.Option{anthropic.WithModel(model)}
	if cfg.Token != "" {
		opts = append(opts, anthropic.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return anthropic.New(opts...)
}

func newGoogleAI(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	model := cfg.FindModel(preferredModels...)
	opts := []googleai.Option{
		googleai.WithDefaultModel(model),
		googleai.WithCloudProject(cfg.Project),
		googleai.WithCloudLocation(cfg.Location),
	}
	if cfg.Token != "" {
		opts = append(opts, googleai.WithAPIKey(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, googleai.WithBaseURL(cfg.BaseURL))
	}
	return googleai.New(context.Background(), opts...)
}

func newBedrock(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	model := cfg.FindModel(preferredModels...)
	opts := []bedrock.Option{bedrock.WithModel(model)}
	if cfg.Region != "" {
		opts = append(opts, bedrock.WithRegion(cfg.Region))
	}
	return bedrock.New(context.Background(), opts...)
}

func (f *factory) ModelByName(modelNames ...string) (llms.Model, error) {
	f.lock.Lock()

	for _, modelName := range modelNames {
		if client, ok := f.byName[modelName]; ok {
			f.lock.Unlock()
			return client, nil
		}

		for _, cfg := range f.cfg.Providers {
			if slices.Contains(cfg.AvailableModels, modelName) {
				model, err := NewLLM(cfg, modelName)
				if err != nil {
					logger.KV(xlog.ERROR,
						"reason", "NewLLM",
						"type", cfg.Type,
						"models", modelNames,
						"err", err.Error(),
					)
					continue
				}

				logger.KV(xlog.DEBUG,
					"status", "created_llm",
					"type", cfg.Type,
					"name", cfg.Name,
					"model", modelName)

				f.byName[modelName] = model
				f.lock.Unlock()
				return model, nil
			}
		}
	}
	f.lock.Unlock()

	if len(modelNames) == 0 {
		return f.Model("", "")
	}
	return f.Model("", modelNames[0])
}

func (f *factory) Model(provider, model string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	var cfg *ProviderConfig
	if provider == "" {
		cfg = f.defaultProvider
	} else {
		for _, c := range f.cfg.Providers {
			if c.Matches(provider) {
				cfg = c
				break
			}
		}
	}
	if cfg == nil {
		if provider == "" {
			return nil, errors.New("no providers configured")
		}
		return nil, errors.Errorf("provider not found: %q", provider)
	}

	if model == "" {
		model = cfg.DefaultModel
	}
	key := cfg.Name + "/" + model
	if client, ok := f.byProvider[key]; ok {
		return client, nil
	}

	// the model may be served without being listed in available_models,
	// e.g. a freshly pulled Ollama model
	m := *cfg
	m.DefaultModel = model
	client, err := NewLLM(&m, model)
	if err != nil {
		return nil, err
	}

	logger.KV(xlog.DEBUG,
		"status", "created_llm",
		"type", cfg.Type,
		"name", cfg.Name,
		"model", model)

	f.byProvider[key] = client
	return client, nil
}
