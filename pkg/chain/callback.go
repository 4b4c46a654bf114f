package chain

import (
	"context"

	"github.com/effective-security/llmswitch/pkg/llms"
)

// Callback receives the events of Invoke, the implementations must be safe
// for concurrent use.
type Callback interface {
	OnInvokeStart(ctx context.Context, app string, req *Request)
	OnInvokeEnd(ctx context.Context, res *Result)
	OnInvokeError(ctx context.Context, app string, req *Request, err error)
	OnLLMCallStart(ctx context.Context, app string, model llms.Model, messages []llms.Message)
	OnLLMCallEnd(ctx context.Context, app string, model llms.Model, resp *llms.ContentResponse)
}

// WithCallback sets the handler of the invocation events
func WithCallback(cb Callback) Option {
	return func(c *Chain) {
		c.callback = cb
	}
}
