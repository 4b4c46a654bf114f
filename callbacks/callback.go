package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/llmswitch/pkg/chain"
	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/llmswitch/pkg/llmutils"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var (
	_ chain.Callback = (*Noop)(nil)
	_ chain.Callback = (*Printer)(nil)
	_ chain.Callback = (*PackageLogger)(nil)
	_ chain.Callback = (*Fanout)(nil)
	_ chain.Callback = (*Stats)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault prints the events
	ModeDefault Mode = iota
	// ModeVerbose prints the events with the prompt and the generated text
	ModeVerbose
)

// Fanout forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []chain.Callback
}

func NewFanout(callbacks ...chain.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback chain.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnInvokeStart(ctx context.Context, app string, req *chain.Request) {
	for _, callback := range l.callbacks {
		callback.OnInvokeStart(ctx, app, req)
	}
}

func (l *Fanout) OnInvokeEnd(ctx context.Context, res *chain.Result) {
	for _, callback := range l.callbacks {
		callback.OnInvokeEnd(ctx, res)
	}
}

func (l *Fanout) OnInvokeError(ctx context.Context, app string, req *chain.Request, err error) {
	for _, callback := range l.callbacks {
		callback.OnInvokeError(ctx, app, req, err)
	}
}

func (l *Fanout) OnLLMCallStart(ctx context.Context, app string, model llms.Model, messages []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallStart(ctx, app, model, messages)
	}
}

func (l *Fanout) OnLLMCallEnd(ctx context.Context, app string, model llms.Model, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallEnd(ctx, app, model, resp)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnInvokeStart(ctx context.Context, app string, req *chain.Request) {}
func (l *Noop) OnInvokeEnd(ctx context.Context, res *chain.Result) {}
func (l *Noop) OnInvokeError(ctx context.Context, app string, req *chain.Request, err error) {}
func (l *Noop) OnLLMCallStart(ctx context.Context, app string, model llms.Model, messages []llms.Message) {
}
func (l *Noop) OnLLMCallEnd(ctx context.Context, app string, model llms.Model, resp *llms.ContentResponse) {
}

// Printer prints the events to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnInvokeStart(ctx context.Context, app string, req *chain.Request) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Invoke Start: %s\n", app)
	if req != nil {
		sel := req.Selection
		fmt.Fprintf(l.Out, "Selection: prompt=%q backend=%q sampling=%q\n", sel.Prompt, sel.Backend, sel.Sampling)
		if l.Mode == ModeVerbose {
			fmt.Fprintf(l.Out, "Input: %s\n", req.Input)
			if len(req.Variables) > 0 {
				fmt.Fprintf(l.Out, "Variables: %s\n", llmutils.ToJSON(req.Variables))
			}
		}
	}
}

func (l *Printer) OnInvokeEnd(ctx context.Context, res *chain.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Invoke End: %s: prompt=%s backend=%s sampling=%s, %d tokens in %s\n",
		res.App, res.Keys.Prompt, res.Keys.Backend, res.Keys.Sampling, res.Usage.TotalTokens, res.Duration)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s", values.StringsCoalesce(llmutils.EnsureEndsWithNewline(res.Text), "\n"))
	}
}

func (l *Printer) OnInvokeError(ctx context.Context, app string, req *chain.Request, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Invoke Error: %s: %s\n", app, err.Error())
}

func (l *Printer) OnLLMCallStart(ctx context.Context, app string, model llms.Model, messages []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call: %s: %s model, %d messages\n", app, model.GetName(), len(messages))
	if l.Mode == ModeVerbose {
		for _, m := range messages {
			fmt.Fprintf(l.Out, "  %s: %s\n", m.Role, m.GetContent())
		}
	}
}

func (l *Printer) OnLLMCallEnd(ctx context.Context, app string, model llms.Model, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call End: %s: %s model, %d choices\n", app, model.GetName(), len(resp.Choices))
	if l.Mode == ModeVerbose {
		for _, c := range resp.Choices {
			if len(c.GenerationInfo) > 0 {
				fmt.Fprintf(l.Out, "  Generation Info: %s\n", llmutils.ToJSON(c.GenerationInfo))
			}
		}
	}
}

// PackageLogger writes the events to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnInvokeStart(ctx context.Context, app string, req *chain.Request) {
	var sel chain.Selection
	if req != nil {
		sel = req.Selection
	}
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "invoke_start",
		"app", app,
		"prompt", sel.Prompt,
		"backend", sel.Backend,
		"sampling", sel.Sampling,
	)
}

func (l *PackageLogger) OnInvokeEnd(ctx context.Context, res *chain.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "invoke_end",
		"app", res.App,
		"id", res.ID,
		"model", res.Model,
		"tokens", res.Usage.TotalTokens,
		"fingerprint", res.Fingerprint,
	)
}

func (l *PackageLogger) OnInvokeError(ctx context.Context, app string, req *chain.Request, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "invoke_error",
		"app", app,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnLLMCallStart(ctx context.Context, app string, model llms.Model, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"app", app,
		"model", model.GetName(),
		"messages", len(messages),
	)
}

func (l *PackageLogger) OnLLMCallEnd(ctx context.Context, app string, model llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"app", app,
		"model", model.GetName(),
		"choices", len(resp.Choices),
	)
}
