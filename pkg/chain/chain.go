package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/pkg/configurable"
	"github.com/effective-security/llmswitch/pkg/llmfactory"
	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/llmswitch/pkg/llmutils"
	"github.com/effective-security/llmswitch/pkg/metricskey"
	"github.com/effective-security/llmswitch/pkg/prompts"
	"github.com/effective-security/llmswitch/session"
	"github.com/effective-security/llmswitch/store"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/llmswitch", "chain")

const (
	// FieldTemperature is the configurable field id of the temperature override
	FieldTemperature = "llm_temperature"
	// FieldMaxTokens is the configurable field id of the max tokens override
	FieldMaxTokens = "llm_max_tokens"
	// DefaultInputKey is the template variable for the request input
	DefaultInputKey = "input"
)

type (
	// PromptRouter selects the prompt template
	PromptRouter = configurable.Alternatives[*prompts.ChatPromptTemplate]
	// BackendRouter selects the backend
	BackendRouter = configurable.Alternatives[BackendSpec]
	// SamplingRouter selects the sampling parameters
	SamplingRouter = configurable.Alternatives[Sampling]
)

// Chain renders a prompt and sends it to a backend,
// each of prompt, backend and sampling is selected at runtime.
type Chain struct {
	name        string
	description string
	inputKey    string
	examples    []*Example

	prompts  *PromptRouter
	backends *BackendRouter
	sampling *SamplingRouter

	factory  llmfactory.Factory
	history  store.HistoryStore
	callback Callback
}

// Option configures the Chain
type Option func(*Chain)

// WithDescription sets the description of the app
func WithDescription(description string) Option {
	return func(c *Chain) {
		c.description = description
	}
}

// WithInputKey sets the template variable that receives the request input
func WithInputKey(key string) Option {
	return func(c *Chain) {
		c.inputKey = key
	}
}

// WithExamples sets the quick inputs of the app
func WithExamples(examples ...*Example) Option {
	return func(c *Chain) {
		c.examples = examples
	}
}

// WithHistory sets the store for the invocation history
func WithHistory(history store.HistoryStore) Option {
	return func(c *Chain) {
		c.history = history
	}
}

// New returns the chain over the three routers
func New(name string, factory llmfactory.Factory, p *PromptRouter, b *BackendRouter, s *SamplingRouter, opts ...Option) (*Chain, error) {
	if factory == nil {
		return nil, errors.New("factory is required")
	}
	if p == nil || b == nil || s == nil {
		return nil, errors.Errorf("%s: prompt, backend and sampling routers are required", name)
	}
	for _, r := range []interface{ Validate() error }{p, b, s} {
		if err := r.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "app %s", name)
		}
	}
	for _, v := range s.Variants() {
		if err := v.Payload.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "app %s: sampling %q", name, v.Key)
		}
	}

	c := &Chain{
		name:     name,
		inputKey: DefaultInputKey,
		prompts:  p,
		backends: b,
		sampling: s,
		factory:  factory,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the app name
func (c *Chain) Name() string {
	return c.name
}

// Prompts returns the prompt router
func (c *Chain) Prompts() *PromptRouter {
	return c.prompts
}

// Backends returns the backend router
func (c *Chain) Backends() *BackendRouter {
	return c.backends
}

// Samplings returns the sampling router
func (c *Chain) Samplings() *SamplingRouter {
	return c.sampling
}

// Invoke resolves every axis, renders the prompt and calls the backend once.
func (c *Chain) Invoke(ctx context.Context, req *Request) (*Result, error) {
	started := time.Now()
	defer metricskey.PerfChainCall.MeasureSince(started, c.name)

	if c.callback != nil {
		c.callback.OnInvokeStart(ctx, c.name, req)
	}
	res, err := c.invoke(ctx, req)
	if err != nil {
		metricskey.StatsChainCallsFailed.IncrCounter(1, c.name)
		if c.callback != nil {
			c.callback.OnInvokeError(ctx, c.name, req, err)
		}
		logger.ContextKV(ctx, xlog.ERROR,
			"app", c.name,
			"err", err.Error())
		c.record(ctx, req, nil, err)
		return nil, err
	}
	metricskey.StatsChainCallsSucceeded.IncrCounter(1, c.name)
	if c.callback != nil {
		c.callback.OnInvokeEnd(ctx, res)
	}
	c.record(ctx, req, res, nil)
	return res, nil
}

func (c *Chain) invoke(ctx context.Context, req *Request) (*Result, error) {
	started := time.Now()
	if req == nil || strings.TrimSpace(req.Input) == "" {
		return nil, errors.WithHint(errors.WithStack(ErrEmptyInput), "please enter a prompt")
	}
	sel := req.Selection
	if err := sel.Override.Validate(); err != nil {
		return nil, err
	}

	pv, err := c.prompts.Resolve(sel.Prompt)
	if err != nil {
		return nil, err
	}
	sv, err := c.sampling.Resolve(sel.Sampling)
	if err != nil {
		return nil, err
	}
	// unknown backend must fail before the prompt is rendered
	if _, err = c.backends.Resolve(sel.Backend); err != nil {
		return nil, err
	}

	sampling := sv.Payload.Apply(sel.Override)
	if err = sampling.Validate(); err != nil {
		return nil, err
	}

	inputs := llmutils.MergeInputs(req.Variables, map[string]any{c.inputKey: req.Input})
	messages, err := pv.Payload.FormatMessages(inputs)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to render prompt %q", pv.Key)
	}
	rendered := renderPrompt(messages)

	var (
		resp  *llms.ContentResponse
		model llms.Model
	)
	exec := configurable.ExecutorFunc[BackendSpec](func(ctx context.Context, v *configurable.Variant[BackendSpec], _ string) (string, error) {
		m, err := c.model(v.Payload)
		if err != nil {
			return "", errors.WithMessagef(err, "backend %q", v.Key)
		}
		model = m

		metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messages)), c.name, m.GetName())
		metricskey.StatsLLMBytesSent.IncrCounter(float64(llmutils.CountMessagesContentSize(messages)), c.name, m.GetName())

		if c.callback != nil {
			c.callback.OnLLMCallStart(ctx, c.name, m, messages)
		}
		r, err := m.GenerateContent(ctx, messages, sampling.CallOptions()...)
		if err != nil {
			return "", err
		}
		if c.callback != nil && r != nil {
			c.callback.OnLLMCallEnd(ctx, c.name, m, r)
		}
		if r == nil || len(r.Choices) == 0 {
			return "", llms.ClassifyError(m.GetProviderType(), m.GetName(), 200, errors.WithStack(llms.ErrEmptyResponse))
		}
		resp = r
		metricskey.StatsLLMBytesReceived.IncrCounter(float64(llmutils.CountResponseContentSize(r)), c.name, m.GetName())
		return r.Text(), nil
	})

	ir, err := c.backends.Invoke(ctx, rendered, sel.Backend, exec)
	if err != nil {
		return nil, err
	}

	in, out, total := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(in), c.name, model.GetName())
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(out), c.name, model.GetName())
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(total), c.name, model.GetName())

	keys := Keys{
		Backend:  ir.Key,
		Sampling: sv.Key,
		Prompt:   pv.Key,
	}
	res := &Result{
		ID:           strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10),
		App:          c.name,
		SessionID:    session.GetSessionID(ctx),
		Text:         ir.Text,
		Keys:         keys,
		Default:      c.isDefault(keys) && sel.Override.IsEmpty(),
		Configurable: c.configurable(keys, sel.Override),
		Provider:     string(model.GetProviderType()),
		Model:        model.GetName(),
		Sampling:     sampling,
		Prompt:       rendered,
		Usage: Usage{
			InputTokens:  in,
			OutputTokens: out,
			TotalTokens:  total,
		},
		Duration: time.Since(started),
	}
	res.Fingerprint = fingerprint(res)

	logger.ContextKV(ctx, xlog.DEBUG,
		"app", c.name,
		"prompt", keys.Prompt,
		"backend", keys.Backend,
		"sampling", keys.Sampling,
		"model", res.Model,
		"temperature", sampling.Temperature,
		"max_tokens", sampling.MaxTokens,
		"tokens", total,
		"elapsed", res.Duration.String())

	return res, nil
}

// Compare issues one call per key on the axis, the other axes use their defaults.
// Every key is resolved before the first call, the first failed call aborts.
// Empty keys compare all variants of the axis.
func (c *Chain) Compare(ctx context.Context, input string, axis Axis, keys ...string) ([]*Result, error) {
	started := time.Now()
	defer metricskey.PerfCompare.MeasureSince(started, c.name, string(axis))

	if len(keys) == 0 {
		var err error
		keys, err = c.keys(axis)
		if err != nil {
			return nil, err
		}
	}
	for _, key := range keys {
		if key == "" {
			return nil, errors.WithMessagef(configurable.ErrUnknownVariant, "%s: empty key", axis)
		}
		if err := c.resolve(axis, key); err != nil {
			return nil, err
		}
	}

	results := make([]*Result, 0, len(keys))
	for _, key := range keys {
		res, err := c.Invoke(ctx, &Request{
			Input:     input,
			Selection: Selection{}.With(axis, key),
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "compare %s=%s", axis, key)
		}
		results = append(results, res)
	}
	return results, nil
}

// model returns the model of the backend, a backend without a provider
// is served by the provider that lists the model
func (c *Chain) model(b BackendSpec) (llms.Model, error) {
	if b.Provider == "" {
		return c.factory.ModelByName(b.Model)
	}
	return c.factory.Model(b.Provider, b.Model)
}

// BackendKeyForModel returns the key of the backend variant serving the model,
// the key itself is accepted as well.
func (c *Chain) BackendKeyForModel(model string) (string, error) {
	for _, v := range c.backends.Variants() {
		if v.Key == model || v.Payload.Model == model {
			return v.Key, nil
		}
	}
	return "", errors.WithHintf(
		errors.WithMessagef(configurable.ErrUnknownVariant, "%s: model %q", c.backends.ID(), model),
		"valid models: %s", strings.Join(c.models(), ", "))
}

// Describe returns the axes, the variants and the defaults of the app
func (c *Chain) Describe() *Description {
	d := &Description{
		App:         c.name,
		Description: c.description,
		InputKey:    c.inputKey,
		Examples:    c.examples,
	}

	pa := &AxisInfo{Axis: AxisPrompt, Field: c.prompts.ID(), DefaultKey: c.prompts.DefaultKey()}
	for _, v := range c.prompts.Variants() {
		pa.Variants = append(pa.Variants, &VariantInfo{
			Key:         v.Key,
			Description: v.Description,
			Summary:     v.Payload.Template(),
			Default:     v.Key == pa.DefaultKey,
		})
	}

	ba := &AxisInfo{Axis: AxisBackend, Field: c.backends.ID(), DefaultKey: c.backends.DefaultKey()}
	for _, v := range c.backends.Variants() {
		ba.Variants = append(ba.Variants, &VariantInfo{
			Key:         v.Key,
			Description: v.Description,
			Summary:     v.Payload.String(),
			Default:     v.Key == ba.DefaultKey,
		})
	}

	sa := &AxisInfo{Axis: AxisSampling, Field: c.sampling.ID(), DefaultKey: c.sampling.DefaultKey()}
	for _, v := range c.sampling.Variants() {
		sa.Variants = append(sa.Variants, &VariantInfo{
			Key:         v.Key,
			Description: v.Description,
			Summary:     v.Payload.String(),
			Default:     v.Key == sa.DefaultKey,
		})
	}

	d.Axes = []*AxisInfo{pa, ba, sa}
	return d
}

func (c *Chain) keys(axis Axis) ([]string, error) {
	switch axis {
	case AxisBackend:
		return c.backends.Keys(), nil
	case AxisSampling:
		return c.sampling.Keys(), nil
	case AxisPrompt:
		return c.prompts.Keys(), nil
	}
	return nil, errors.WithMessagef(ErrUnknownAxis, "%q", axis)
}

func (c *Chain) resolve(axis Axis, key string) error {
	var err error
	switch axis {
	case AxisBackend:
		_, err = c.backends.Resolve(key)
	case AxisSampling:
		_, err = c.sampling.Resolve(key)
	case AxisPrompt:
		_, err = c.prompts.Resolve(key)
	default:
		err = errors.WithMessagef(ErrUnknownAxis, "%q", axis)
	}
	return err
}

func (c *Chain) models() []string {
	var list []string
	for _, v := range c.backends.Variants() {
		list = append(list, v.Payload.Model)
	}
	return list
}

func (c *Chain) isDefault(keys Keys) bool {
	return keys.Backend == c.backends.DefaultKey() &&
		keys.Sampling == c.sampling.DefaultKey() &&
		keys.Prompt == c.prompts.DefaultKey()
}

func (c *Chain) configurable(keys Keys, o *SamplingOverride) map[string]any {
	m := map[string]any{
		c.prompts.ID():  keys.Prompt,
		c.backends.ID(): keys.Backend,
		c.sampling.ID(): keys.Sampling,
	}
	if o != nil {
		if o.Temperature != nil {
			m[FieldTemperature] = *o.Temperature
		}
		if o.MaxTokens != nil {
			m[FieldMaxTokens] = *o.MaxTokens
		}
	}
	return m
}

func (c *Chain) record(ctx context.Context, req *Request, res *Result, callErr error) {
	if c.history == nil {
		return
	}
	sessionID, err := session.MustSessionID(ctx)
	if err != nil {
		// invocations without a session are not kept
		return
	}

	rec := &store.Record{
		SessionID: sessionID,
		App:       c.name,
	}
	if sess := session.FromContext(ctx); sess != nil {
		if reqID, ok := sess.GetMetadata(session.MetadataRequestID); ok {
			rec.RequestID, _ = reqID.(string)
		}
	}
	if req != nil {
		rec.Input = req.Input
	}
	if res != nil {
		rec.ID = res.ID
		rec.Text = res.Text
		rec.Keys = map[string]string{
			c.prompts.ID():  res.Keys.Prompt,
			c.backends.ID(): res.Keys.Backend,
			c.sampling.ID(): res.Keys.Sampling,
		}
		rec.Provider = res.Provider
		rec.Model = res.Model
		rec.Temperature = res.Sampling.Temperature
		rec.MaxTokens = res.Sampling.MaxTokens
		rec.TotalTokens = res.Usage.TotalTokens
		rec.Fingerprint = res.Fingerprint
		rec.Duration = res.Duration
	}
	if callErr != nil {
		rec.ID = strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
		rec.Error = values.StringsCoalesce(callErr.Error(), "failed")
	}

	if err = c.history.Add(ctx, rec); err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"reason", "history",
			"app", c.name,
			"err", err.Error())
	}
}

// renderPrompt returns the content of a single message,
// or the role prefixed messages
func renderPrompt(messages []llms.Message) string {
	if len(messages) == 1 {
		return messages[0].GetContent()
	}
	return prompts.ChatPromptValue(messages).String()
}

func fingerprint(res *Result) string {
	h := xxhash.New()
	_, _ = fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s/%s\x00%g\x00%d\x00",
		res.App, res.Keys.Prompt, res.Keys.Backend, res.Keys.Sampling,
		res.Provider, res.Model, res.Sampling.Temperature, res.Sampling.MaxTokens)
	_, _ = h.WriteString(res.Prompt)
	return fmt.Sprintf("%016x", h.Sum64())
}
