// Package googleai implements a provider for Google AI Gemini models.
// See https://ai.google.dev/ for more details.
package googleai

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/xlog"
	"google.golang.org/genai"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/llmswitch", "googleai")

const (
	RoleModel = "model"
	RoleUser  = "user"
)

// GoogleAI is a type that represents a Google AI API client.
type GoogleAI struct {
	client *genai.Client
	opts   Options
}

var _ llms.Model = (*GoogleAI)(nil)

// New creates a new GoogleAI client.
func New(ctx context.Context, opts ...Option) (*GoogleAI, error) {
	clientOptions := DefaultOptions()
	for _, opt := range opts {
		opt(&clientOptions)
	}
	clientOptions.EnsureAuthPresent()

	if clientOptions.APIKey == "" && clientOptions.Credentials == nil {
		return nil, errors.New("googleai: missing API key, set it in the GOOGLE_API_KEY environment variable")
	}

	cfg := &genai.ClientConfig{
		Project:     clientOptions.CloudProject,
		Location:    clientOptions.CloudLocation,
		APIKey:      clientOptions.APIKey,
		Credentials: clientOptions.Credentials,
		HTTPClient:  clientOptions.HTTPClient,
		Backend:     genai.BackendGeminiAPI,
	}
	if clientOptions.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = clientOptions.BaseURL
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "googleai: failed to create client")
	}
	return &GoogleAI{
		client: client,
		opts:   clientOptions,
	}, nil
}

// GetName implements the Model interface.
func (g *GoogleAI) GetName() string {
	return g.opts.DefaultModel
}

// GetProviderType implements the Model interface.
func (g *GoogleAI) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// GenerateContent implements the [llms.Model] interface.
func (g *GoogleAI) GenerateContent(
	ctx context.Context,
	messages []llms.Message,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: g.opts.DefaultModel,
	}
	for _, opt := range options {
		opt(&opts)
	}

	config, history, err := GenerateConfig(messages, &opts)
	if err != nil {
		return nil, err
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", opts.Model,
		"messages", len(history),
		"max_tokens", config.MaxOutputTokens,
	)

	resp, err := g.client.Models.GenerateContent(ctx, opts.Model, history, config)
	if err != nil {
		status := 0
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		return nil, llms.ClassifyError(llms.ProviderGoogleAI, opts.Model, status, err)
	}
	if len(resp.Candidates) == 0 {
		return nil, llms.ClassifyError(llms.ProviderGoogleAI, opts.Model, 0, llms.ErrEmptyResponse)
	}
	return convertCandidates(resp.Candidates, resp.UsageMetadata), nil
}

// GenerateConfig converts call options to the generation config,
// and messages to the content history.
// A system message becomes the system instruction.
func GenerateConfig(messages []llms.Message, opts *llms.CallOptions) (*genai.GenerateContentConfig, []*genai.Content, error) {
	config := &genai.GenerateContentConfig{
		StopSequences:  opts.StopWords,
		CandidateCount: 1,
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens) // #nosec G115
	}
	if opts.TemperatureSet {
		config.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.TopP > 0 {
		config.TopP = genai.Ptr(float32(opts.TopP))
	}
	if opts.TopK > 0 {
		config.TopK = genai.Ptr(float32(opts.TopK))
	}
	if opts.Seed != 0 {
		config.Seed = genai.Ptr(int32(opts.Seed)) // #nosec G115
	}

	system, rest := llms.SplitSystem(messages)
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, RoleUser)
	}

	history := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		switch m.Role {
		case llms.RoleHuman:
			history = append(history, genai.NewContentFromText(m.GetContent(), RoleUser))
		case llms.RoleAI:
			history = append(history, genai.NewContentFromText(m.GetContent(), RoleModel))
		default:
			return nil, nil, errors.WithMessagef(llms.ErrUnexpectedRole, "googleai: role %q", m.Role)
		}
	}
	return config, history, nil
}

// convertCandidates converts a sequence of genai.Candidate to a response.
func convertCandidates(candidates []*genai.Candidate, usage *genai.GenerateContentResponseUsageMetadata) *llms.ContentResponse {
	var contentResponse llms.ContentResponse

	for _, candidate := range candidates {
		buf := strings.Builder{}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" && !part.Thought {
					buf.WriteString(part.Text)
				}
			}
		}

		metadata := make(map[string]any)
		if usage != nil {
			metadata["InputTokens"] = int64(usage.PromptTokenCount)
			metadata["OutputTokens"] = int64(usage.CandidatesTokenCount + usage.ThoughtsTokenCount)
			metadata["TotalTokens"] = int64(usage.TotalTokenCount)
		}

		contentResponse.Choices = append(contentResponse.Choices,
			&llms.ContentChoice{
				Content:        buf.String(),
				StopReason:     string(candidate.FinishReason),
				GenerationInfo: metadata,
			})
	}
	return &contentResponse
}
