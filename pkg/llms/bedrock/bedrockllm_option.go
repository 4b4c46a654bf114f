package bedrock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// ConverseAPI is the subset of the Bedrock runtime client used by the LLM.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type options struct {
	modelID   string
	region    string
	accessKey string
	secretKey string
	client    ConverseAPI
}

// Option is an option for the Bedrock LLM.
type Option func(*options)

// WithModel sets the model ID, or inference profile, to use.
func WithModel(modelID string) Option {
	return func(o *options) {
		o.modelID = modelID
	}
}

// WithRegion sets the AWS region. If not set, the default AWS config is used.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithStaticCredentials uses the access key pair instead of the default credential chain.
func WithStaticCredentials(accessKey, secretKey string) Option {
	return func(o *options) {
		o.accessKey = accessKey
		o.secretKey = secretKey
	}
}

// WithClient sets the client to use, the AWS config is not loaded in this case.
func WithClient(client ConverseAPI) Option {
	return func(o *options) {
		o.client = client
	}
}
