package openai

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/llmswitch", "openai")

// LLM is a chat completions client for OpenAI and OpenAI compatible servers,
// such as Ollama and Perplexity.
type LLM struct {
	client   openai.Client
	model    string
	provider llms.ProviderType
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		provider: llms.ProviderOpenAI,
	}
	for _, opt := range opts {
		opt(o)
	}

	switch o.provider {
	case llms.ProviderOpenAI:
		o.token = values.StringsCoalesce(o.token, os.Getenv(tokenEnvVarName))
		o.baseURL = values.StringsCoalesce(o.baseURL, os.Getenv(baseURLEnvVarName))
		o.model = values.StringsCoalesce(o.model, os.Getenv(modelEnvVarName), DefaultChatModel)
	case llms.ProviderOllama:
		// Ollama ignores the token, but the header must be present
		o.token = values.StringsCoalesce(o.token, "ollama")
		o.baseURL = values.StringsCoalesce(o.baseURL, DefaultOllamaBaseURL)
	case llms.ProviderPerplexity:
		o.baseURL = values.StringsCoalesce(o.baseURL, DefaultPerplexityBaseURL)
	default:
		return nil, errors.Errorf("openai: unsupported provider type: %s", o.provider)
	}

	if o.model == "" {
		return nil, errors.Errorf("openai: model is required for %s", o.provider)
	}
	if o.token == "" {
		return nil, errors.Errorf("openai: missing API key for %s", o.provider)
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(o.token),
		option.WithMaxRetries(o.maxRetries),
	}
	if o.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(o.baseURL))
	}
	if o.organization != "" {
		sdkOpts = append(sdkOpts, option.WithOrganization(o.organization))
	}
	if o.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(o.httpClient))
	}

	return &LLM{
		client:   openai.NewClient(sdkOpts...),
		model:    o.model,
		provider: o.provider,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return o.provider
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: o.model,
	}
	for _, opt := range options {
		opt(&opts)
	}

	params, err := o.chatParams(messages, &opts)
	if err != nil {
		return nil, err
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"provider", o.provider,
		"model", opts.Model,
		"messages", len(messages),
		"temperature", opts.Temperature,
		"max_tokens", opts.MaxTokens,
	)

	result, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, llms.ClassifyError(o.provider, opts.Model, status, err)
	}
	if len(result.Choices) == 0 {
		return nil, llms.ClassifyError(o.provider, opts.Model, 0, llms.ErrEmptyResponse)
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"InputTokens":  result.Usage.PromptTokens,
				"OutputTokens": result.Usage.CompletionTokens,
				"TotalTokens":  result.Usage.TotalTokens,
				"Model":        result.Model,
			},
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

func (o *LLM) chatParams(messages []llms.Message, opts *llms.CallOptions) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(opts.Model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}

	for _, m := range messages {
		content := m.GetContent()
		switch m.Role {
		case llms.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(content))
		case llms.RoleHuman:
			params.Messages = append(params.Messages, openai.UserMessage(content))
		case llms.RoleAI:
			params.Messages = append(params.Messages, openai.AssistantMessage(content))
		default:
			return params, errors.WithMessagef(llms.ErrUnexpectedRole, "openai: role %q", m.Role)
		}
	}

	if opts.TemperatureSet {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		if o.provider == llms.ProviderOpenAI {
			params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
		} else {
			// OpenAI compatible servers understand the legacy field,
			// Ollama maps it to num_predict
			params.MaxTokens = openai.Int(int64(opts.MaxTokens))
		}
	}
	if opts.TopP > 0 {
		params.TopP = openai.Float(opts.TopP)
	}
	if opts.Seed != 0 {
		params.Seed = openai.Int(int64(opts.Seed))
	}
	if len(opts.StopWords) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopWords}
	}
	return params, nil
}
