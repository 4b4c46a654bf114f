package bedrock

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/llmswitch", "bedrock")

const defaultModel = "amazon.nova-lite-v1:0"

// LLM is a Bedrock LLM implementation on the Converse API.
type LLM struct {
	modelID string
	client  ConverseAPI
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Bedrock LLM implementation.
func New(ctx context.Context, opts ...Option) (*LLM, error) {
	o := &options{
		modelID: defaultModel,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.client == nil {
		var loadOpts []func(*config.LoadOptions) error
		if o.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(o.region))
		}
		if o.accessKey != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(o.accessKey, o.secretKey, "")))
		}
		// single attempt, the caller decides on fallbacks
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(1))

		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, errors.Wrap(err, "bedrock: failed to load AWS config")
		}
		o.client = bedrockruntime.NewFromConfig(cfg)
	}

	return &LLM{
		client:  o.client,
		modelID: o.modelID,
	}, nil
}

// GetName implements the Model interface.
func (l *LLM) GetName() string {
	return l.modelID
}

// GetProviderType implements the Model interface.
func (l *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderBedrock
}

// GenerateContent implements llms.Model.
func (l *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: l.modelID,
	}
	for _, opt := range options {
		opt(&opts)
	}

	input, err := ConverseInput(messages, &opts)
	if err != nil {
		return nil, err
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", opts.Model,
		"messages", len(input.Messages),
	)

	out, err := l.client.Converse(ctx, input)
	if err != nil {
		return nil, llms.ClassifyError(llms.ProviderBedrock, opts.Model, statusOf(err), err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || len(msg.Value.Content) == 0 {
		return nil, llms.ClassifyError(llms.ProviderBedrock, opts.Model, 0, llms.ErrEmptyResponse)
	}

	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}

	info := map[string]any{}
	if out.Usage != nil {
		info["InputTokens"] = int64(aws.ToInt32(out.Usage.InputTokens))
		info["OutputTokens"] = int64(aws.ToInt32(out.Usage.OutputTokens))
		info["TotalTokens"] = int64(aws.ToInt32(out.Usage.TotalTokens))
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:        text.String(),
				StopReason:     string(out.StopReason),
				GenerationInfo: info,
			},
		},
	}, nil
}

// ConverseInput converts messages and call options to the Converse request.
func ConverseInput(messages []llms.Message, opts *llms.CallOptions) (*bedrockruntime.ConverseInput, error) {
	system, rest := llms.SplitSystem(messages)

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(opts.Model),
		Messages: make([]types.Message, 0, len(rest)),
	}
	if system != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}

	for _, m := range rest {
		var role types.ConversationRole
		switch m.Role {
		case llms.RoleHuman:
			role = types.ConversationRoleUser
		case llms.RoleAI:
			role = types.ConversationRoleAssistant
		default:
			return nil, errors.WithMessagef(llms.ErrUnexpectedRole, "bedrock: role %q", m.Role)
		}
		input.Messages = append(input.Messages, types.Message{
			Role: role,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: m.GetContent()},
			},
		})
	}

	inference := &types.InferenceConfiguration{}
	if opts.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(opts.MaxTokens)) // #nosec G115
	}
	if opts.TemperatureSet {
		inference.Temperature = aws.Float32(float32(opts.Temperature))
	}
	if opts.TopP > 0 {
		inference.TopP = aws.Float32(float32(opts.TopP))
	}
	if len(opts.StopWords) > 0 {
		inference.StopSequences = opts.StopWords
	}
	input.InferenceConfig = inference
	return input, nil
}

// statusOf returns the HTTP status of the AWS error,
// or an equivalent status for the modeled Bedrock errors.
func statusOf(err error) int {
	var notFound *types.ResourceNotFoundException
	var notReady *types.ModelNotReadyException
	var unavailable *types.ServiceUnavailableException
	var throttled *types.ThrottlingException
	var validation *types.ValidationException
	var re *awshttp.ResponseError

	switch {
	case errors.As(err, &notFound):
		return 404
	case errors.As(err, &notReady), errors.As(err, &unavailable):
		return 503
	case errors.As(err, &throttled):
		return 429
	case errors.As(err, &validation):
		return 400
	case errors.As(err, &re):
		return re.HTTPStatusCode()
	}
	return 0
}
