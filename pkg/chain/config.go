package chain

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/pkg/configurable"
	"github.com/effective-security/llmswitch/pkg/llmfactory"
	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/llmswitch/pkg/prompts"
	"github.com/effective-security/llmswitch/store"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
)

// Field ids of the demo apps
const (
	FieldModelProvider = "model_provider"
	FieldPromptType    = "prompt_type"
	FieldSampling      = "llm_sampling"
)

// Prompt templates of the demo apps
const (
	PassThroughTemplate = "{input}"
	AssistantTemplate   = "You are a helpful assistant. Answer the following request: {input}"
	ConciseTemplate     = "Answer the following question in 10 words or less: {question}"
	VerboseTemplate     = "You are a verbose, detailed professor. \n" +
		"    Please answer the following question with extensive background context, examples, and a long explanation. \n" +
		"    \n" +
		"    Question: {question}"
)

// Config describes the providers and the apps
type Config struct {
	LLM     *llmfactory.Config `json:"llm,omitempty" yaml:"llm,omitempty"`
	History *store.Config      `json:"history,omitempty" yaml:"history,omitempty"`
	Apps    []*AppConfig       `json:"apps" yaml:"apps"`
}

// AppConfig describes one app
type AppConfig struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// InputKey is the template variable receiving the request input,
	// `input` by default
	InputKey string     `json:"input_key,omitempty" yaml:"input_key,omitempty"`
	Examples []*Example `json:"examples,omitempty" yaml:"examples,omitempty"`

	Prompt   AxisConfig[PromptVariant]   `json:"prompt" yaml:"prompt"`
	Backend  AxisConfig[BackendVariant]  `json:"backend" yaml:"backend"`
	Sampling AxisConfig[SamplingVariant] `json:"sampling" yaml:"sampling"`
}

// AxisConfig describes the variants of one axis
type AxisConfig[V any] struct {
	// Field is the configurable field id
	Field    string `json:"field,omitempty" yaml:"field,omitempty"`
	Default  string `json:"default" yaml:"default"`
	Variants []*V   `json:"variants" yaml:"variants"`
}

// PromptVariant describes a prompt template
type PromptVariant struct {
	Key         string `json:"key" yaml:"key"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// System is an optional system message template
	System   string `json:"system,omitempty" yaml:"system,omitempty"`
	Template string `json:"template" yaml:"template"`
	// Format is f-string, go-template or jinja2
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// BackendVariant describes a backend
type BackendVariant struct {
	Key         string `json:"key" yaml:"key"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Provider    string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model       string `json:"model" yaml:"model"`
}

// SamplingVariant describes a set of sampling parameters
type SamplingVariant struct {
	Key         string   `json:"key" yaml:"key"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// LoadConfig from file, environment variables are expanded
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load %s", file)
	}
	return cfg, nil
}

// BuildPrompts returns the prompt router of the app
func (a *AppConfig) BuildPrompts() (*PromptRouter, error) {
	r := configurable.New[*prompts.ChatPromptTemplate](values.StringsCoalesce(a.Prompt.Field, FieldPromptType))
	for _, v := range a.Prompt.Variants {
		tpl, err := v.build()
		if err != nil {
			return nil, errors.WithMessagef(err, "app %s: prompt %q", a.Name, v.Key)
		}
		err = r.RegisterVariant(&configurable.Variant[*prompts.ChatPromptTemplate]{
			Key:         v.Key,
			Description: v.Description,
			Payload:     tpl,
		}, v.Key == a.Prompt.Default)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (v *PromptVariant) build() (*prompts.ChatPromptTemplate, error) {
	format, err := prompts.ParseTemplateFormat(v.Format)
	if err != nil {
		return nil, err
	}

	newTemplate := func(role llms.Role, text string) (prompts.MessagePromptTemplate, error) {
		p := prompts.PromptTemplate{
			Template:       text,
			TemplateFormat: format,
		}
		if format == prompts.TemplateFormatFString {
			vars, err := prompts.FStringVariables(text)
			if err != nil {
				return prompts.MessagePromptTemplate{}, err
			}
			p.InputVariables = vars
		}
		return prompts.MessagePromptTemplate{Role: role, Prompt: p}, nil
	}

	var messages []prompts.MessageFormatter
	if v.System != "" {
		m, err := newTemplate(llms.RoleSystem, v.System)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	m, err := newTemplate(llms.RoleHuman, v.Template)
	if err != nil {
		return nil, err
	}
	messages = append(messages, m)
	return prompts.NewChatPromptTemplate(messages), nil
}

// BuildBackends returns the backend router of the app
func (a *AppConfig) BuildBackends() (*BackendRouter, error) {
	r := configurable.New[BackendSpec](values.StringsCoalesce(a.Backend.Field, FieldModelProvider))
	for _, v := range a.Backend.Variants {
		if v.Model == "" {
			return nil, errors.Errorf("app %s: backend %q: model is required", a.Name, v.Key)
		}
		err := r.RegisterVariant(&configurable.Variant[BackendSpec]{
			Key:         v.Key,
			Description: v.Description,
			Payload: BackendSpec{
				Provider: v.Provider,
				Model:    v.Model,
			},
		}, v.Key == a.Backend.Default)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// BuildSamplings returns the sampling router of the app
func (a *AppConfig) BuildSamplings() (*SamplingRouter, error) {
	r := configurable.New[Sampling](values.StringsCoalesce(a.Sampling.Field, FieldSampling))
	for _, v := range a.Sampling.Variants {
		s := Sampling{
			Temperature: DefaultTemperature,
			MaxTokens:   values.NumbersCoalesce(v.MaxTokens, DefaultMaxTokens),
		}
		if v.Temperature != nil {
			s.Temperature = *v.Temperature
		}
		err := r.RegisterVariant(&configurable.Variant[Sampling]{
			Key:         v.Key,
			Description: v.Description,
			Payload:     s,
		}, v.Key == a.Sampling.Default)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Build returns the chain of the app
func (a *AppConfig) Build(factory llmfactory.Factory, opts ...Option) (*Chain, error) {
	if a.Name == "" {
		return nil, errors.New("app name is required")
	}
	p, err := a.BuildPrompts()
	if err != nil {
		return nil, err
	}
	b, err := a.BuildBackends()
	if err != nil {
		return nil, err
	}
	s, err := a.BuildSamplings()
	if err != nil {
		return nil, err
	}

	opts = append([]Option{
		WithDescription(a.Description),
		WithInputKey(values.StringsCoalesce(a.InputKey, DefaultInputKey)),
		WithExamples(a.Examples...),
	}, opts...)
	return New(a.Name, factory, p, b, s, opts...)
}

// ollamaBackends returns the backend axis over the local models
func ollamaBackends() AxisConfig[BackendVariant] {
	return AxisConfig[BackendVariant]{
		Field:   FieldModelProvider,
		Default: "llama",
		Variants: []*BackendVariant{
			{Key: "llama", Provider: "ollama", Model: "llama3.2"},
			{Key: "gemma", Provider: "ollama", Model: "gemma3:4b"},
			{Key: "qwen", Provider: "ollama", Model: "qwen3:4b"},
		},
	}
}

func llamaOnly() AxisConfig[BackendVariant] {
	return AxisConfig[BackendVariant]{
		Field:   FieldModelProvider,
		Default: "llama",
		Variants: []*BackendVariant{
			{Key: "llama", Provider: "ollama", Model: "llama3.2"},
		},
	}
}

func balancedOnly() AxisConfig[SamplingVariant] {
	return AxisConfig[SamplingVariant]{
		Field:   FieldSampling,
		Default: "balanced",
		Variants: []*SamplingVariant{
			{Key: "balanced", Temperature: Float64(DefaultTemperature), MaxTokens: DefaultMaxTokens},
		},
	}
}

// DefaultConfig returns the three demo apps over a local Ollama server
func DefaultConfig() *Config {
	return &Config{
		LLM: llmfactory.DefaultConfig(),
		Apps: []*AppConfig{
			{
				Name:        "model_selector",
				Description: "Switch between local models at runtime",
				InputKey:    "input",
				Examples: []*Example{
					{Name: "creative_writing", Input: "Write a short poem about a robot discovering nature for the first time."},
					{Name: "coding", Input: "Write a Python function to check if a string is a palindrome, with type hints and docstrings."},
					{Name: "reasoning", Input: "If a train leaves Station A at 60 mph and another leaves Station B at 80 mph, and they are 300 miles apart, when will they meet?"},
					{Name: "fun_fact", Input: "Tell me a fun fact about capybaras."},
				},
				Prompt: AxisConfig[PromptVariant]{
					Field:   FieldPromptType,
					Default: "passthrough",
					Variants: []*PromptVariant{
						{Key: "passthrough", Template: PassThroughTemplate},
					},
				},
				Backend:  ollamaBackends(),
				Sampling: balancedOnly(),
			},
			{
				Name:        "temperature_tuner",
				Description: "Adjust temperature and max tokens without re-initializing the model",
				InputKey:    "input",
				Examples: []*Example{
					{Name: "haiku", Input: "Write a short haiku about coding."},
				},
				Prompt: AxisConfig[PromptVariant]{
					Field:   FieldPromptType,
					Default: "assistant",
					Variants: []*PromptVariant{
						{Key: "assistant", Template: AssistantTemplate},
					},
				},
				Backend: llamaOnly(),
				Sampling: AxisConfig[SamplingVariant]{
					Field:   FieldSampling,
					Default: "balanced",
					Variants: []*SamplingVariant{
						{Key: "balanced", Temperature: Float64(0.5), MaxTokens: 200},
						{Key: "deterministic", Description: "Factual, good for data extraction", Temperature: Float64(0.1), MaxTokens: 200},
						{Key: "creative", Description: "Random, good for storytelling", Temperature: Float64(0.9), MaxTokens: 200},
					},
				},
			},
			{
				Name:        "prompt_switcher",
				Description: "Swap the prompt persona at runtime",
				InputKey:    "question",
				Examples: []*Example{
					{Name: "sky", Input: "Why is the sky blue?"},
				},
				Prompt: AxisConfig[PromptVariant]{
					Field:   FieldPromptType,
					Default: "concise",
					Variants: []*PromptVariant{
						{Key: "concise", Description: "Concise (Brief)", Template: ConciseTemplate},
						{Key: "verbose", Description: "Verbose (Detailed)", Template: VerboseTemplate},
					},
				},
				Backend:  llamaOnly(),
				Sampling: balancedOnly(),
			},
		},
	}
}
