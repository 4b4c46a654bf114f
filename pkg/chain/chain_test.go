package chain_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/mocks/mockllmfactory"
	"github.com/effective-security/llmswitch/mocks/mockllms"
	"github.com/effective-security/llmswitch/pkg/chain"
	"github.com/effective-security/llmswitch/pkg/configurable"
	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/llmswitch/session"
	"github.com/effective-security/llmswitch/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const skyQuestion = "Why is the sky blue?"

func newModel(ctrl *gomock.Controller, name string) *mockllms.MockModel {
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return(name).AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderOllama).AnyTimes()
	return m
}

func response(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: text,
				GenerationInfo: map[string]any{
					"InputTokens":  int64(10),
					"OutputTokens": int64(5),
					"TotalTokens":  int64(15),
				},
			},
		},
	}
}

type call struct {
	messages []llms.Message
	options  llms.CallOptions
}

// expectGenerate records every call to the model
func expectGenerate(m *mockllms.MockModel, calls *[]call, text string) *gomock.Call {
	return m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			*calls = append(*calls, call{messages: messages, options: llms.NewCallOptions(options...)})
			return response(text + " from " + m.GetName()), nil
		})
}

func newRegistry(t *testing.T, factory *mockllmfactory.MockFactory, opts ...chain.Option) *chain.Registry {
	reg, err := chain.NewRegistry(chain.DefaultConfig(), factory, opts...)
	require.NoError(t, err)
	return reg
}

func TestRegistry(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := newRegistry(t, mockllmfactory.NewMockFactory(ctrl))

	assert.Equal(t, []string{"model_selector", "temperature_tuner", "prompt_switcher"}, reg.Names())

	_, err := reg.Get("chatbot")
	require.Error(t, err)
	assert.True(t, errors.Is(err, chain.ErrAppNotFound))
	assert.Equal(t, "available apps: model_selector, temperature_tuner, prompt_switcher", configurable.HintOf(err))

	app, err := reg.Get("model_selector")
	require.NoError(t, err)
	assert.Equal(t, "model_selector", app.Name())
	assert.Error(t, reg.Add(app))

	descs := reg.Describe()
	require.Len(t, descs, 3)

	d := descs[0]
	assert.Equal(t, "model_selector", d.App)
	assert.Equal(t, "input", d.InputKey)
	assert.Len(t, d.Examples, 4)
	require.Len(t, d.Axes, 3)
	ba := d.Axes[1]
	assert.Equal(t, chain.AxisBackend, ba.Axis)
	assert.Equal(t, "model_provider", ba.Field)
	assert.Equal(t, "llama", ba.DefaultKey)
	require.Len(t, ba.Variants, 3)
	assert.Equal(t, "ollama/gemma3:4b", ba.Variants[1].Summary)
	assert.True(t, ba.Variants[0].Default)
	assert.False(t, ba.Variants[1].Default)

	d = descs[2]
	pa := d.Axes[0]
	assert.Equal(t, "prompt_type", pa.Field)
	assert.Equal(t, "concise", pa.DefaultKey)
	assert.Equal(t, chain.ConciseTemplate, pa.Variants[0].Summary)
	assert.Equal(t, chain.VerboseTemplate, pa.Variants[1].Summary)

	sa := descs[1].Axes[2]
	assert.Equal(t, "llm_sampling", sa.Field)
	assert.Equal(t, []string{"temperature=0.5 max_tokens=200", "temperature=0.1 max_tokens=200", "temperature=0.9 max_tokens=200"},
		[]string{sa.Variants[0].Summary, sa.Variants[1].Summary, sa.Variants[2].Summary})
}

func TestPromptSwitcher(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	factory := mockllmfactory.NewMockFactory(ctrl)
	model := newModel(ctrl, "llama3.2")
	factory.EXPECT().Model("ollama", "llama3.2").Return(model, nil).AnyTimes()

	var calls []call
	expectGenerate(model, &calls, "answer").Times(3)

	app, err := newRegistry(t, factory).Get("prompt_switcher")
	require.NoError(t, err)

	res, err := app.Invoke(ctx, &chain.Request{Input: skyQuestion})
	require.NoError(t, err)
	assert.Equal(t, "answer from llama3.2", res.Text)
	assert.Equal(t, chain.Keys{Backend: "llama", Sampling: "balanced", Prompt: "concise"}, res.Keys)
	assert.True(t, res.Default)
	assert.Equal(t, "Answer the following question in 10 words or less: Why is the sky blue?", res.Prompt)
	assert.Equal(t, map[string]any{
		"prompt_type":    "concise",
		"model_provider": "llama",
		"llm_sampling":   "balanced",
	}, res.Configurable)
	assert.Equal(t, "OLLAMA", res.Provider)
	assert.Equal(t, "llama3.2", res.Model)
	assert.Equal(t, chain.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, res.Usage)
	assert.NotEmpty(t, res.ID)
	assert.Len(t, res.Fingerprint, 16)
	require.Len(t, calls, 1)
	assert.Equal(t, []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "Answer the following question in 10 words or less: Why is the sky blue?"),
	}, calls[0].messages)

	res2, err := app.Invoke(ctx, &chain.Request{
		Input:     skyQuestion,
		Selection: chain.Selection{Prompt: "verbose"},
	})
	require.NoError(t, err)
	assert.Equal(t, "verbose", res2.Keys.Prompt)
	assert.False(t, res2.Default)
	assert.Equal(t, "You are a verbose, detailed professor. \n"+
		"    Please answer the following question with extensive background context, examples, and a long explanation. \n"+
		"    \n"+
		"    Question: Why is the sky blue?", res2.Prompt)
	assert.NotEqual(t, res.Fingerprint, res2.Fingerprint)

	// same request gives the same fingerprint
	res3, err := app.Invoke(ctx, &chain.Request{Input: skyQuestion})
	require.NoError(t, err)
	assert.Equal(t, res.Fingerprint, res3.Fingerprint)
	assert.NotEqual(t, res.ID, res3.ID)

	// unknown prompt fails without calling the backend
	_, err = app.Invoke(ctx, &chain.Request{
		Input:     "...",
		Selection: chain.Selection{Prompt: "formal"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, configurable.ErrUnknownVariant))
	assert.Equal(t, "valid values for prompt_type: concise, verbose", configurable.HintOf(err))
	assert.Len(t, calls, 3)
}

func TestTemperatureTuner(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	factory := mockllmfactory.NewMockFactory(ctrl)
	model := newModel(ctrl, "llama3.2")
	factory.EXPECT().Model("ollama", "llama3.2").Return(model, nil).AnyTimes()

	var calls []call
	expectGenerate(model, &calls, "haiku").AnyTimes()

	app, err := newRegistry(t, factory).Get("temperature_tuner")
	require.NoError(t, err)

	res, err := app.Invoke(ctx, &chain.Request{
		Input: "Write a short haiku about coding.",
		Selection: chain.Selection{
			Override: &chain.SamplingOverride{
				Temperature: chain.Float64(0.3),
				MaxTokens:   chain.Int(120),
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "balanced", res.Keys.Sampling)
	assert.False(t, res.Default)
	assert.Equal(t, chain.Sampling{Temperature: 0.3, MaxTokens: 120}, res.Sampling)
	assert.Equal(t, 0.3, res.Configurable["llm_temperature"])
	assert.Equal(t, 120, res.Configurable["llm_max_tokens"])
	assert.Equal(t, "You are a helpful assistant. Answer the following request: Write a short haiku about coding.", res.Prompt)
	require.Len(t, calls, 1)
	assert.Equal(t, 0.3, calls[0].options.Temperature)
	assert.True(t, calls[0].options.TemperatureSet)
	assert.Equal(t, 120, calls[0].options.MaxTokens)

	// zero temperature is sent
	_, err = app.Invoke(ctx, &chain.Request{
		Input:     "x",
		Selection: chain.Selection{Override: &chain.SamplingOverride{Temperature: chain.Float64(0)}},
	})
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, 0.0, calls[1].options.Temperature)
	assert.True(t, calls[1].options.TemperatureSet)
	assert.Equal(t, 200, calls[1].options.MaxTokens)

	results, err := app.Compare(ctx, "Write a short haiku about coding.", chain.AxisSampling, "deterministic", "creative")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "deterministic", results[0].Keys.Sampling)
	assert.Equal(t, "creative", results[1].Keys.Sampling)
	require.Len(t, calls, 4)
	assert.Equal(t, 0.1, calls[2].options.Temperature)
	assert.Equal(t, 0.9, calls[3].options.Temperature)
	assert.Equal(t, 200, calls[3].options.MaxTokens)

	for _, o := range []*chain.SamplingOverride{
		{Temperature: chain.Float64(1.5)},
		{Temperature: chain.Float64(-0.1)},
		{MaxTokens: chain.Int(0)},
		{MaxTokens: chain.Int(-5)},
		{MaxTokens: chain.Int(chain.MaxTokensLimit + 1)},
	} {
		_, err = app.Invoke(ctx, &chain.Request{
			Input:     "x",
			Selection: chain.Selection{Override: o},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, chain.ErrInvalidSampling), err.Error())
	}
	assert.Len(t, calls, 4, "invalid overrides must not call the backend")
}

func TestModelSelector(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	factory := mockllmfactory.NewMockFactory(ctrl)

	var calls []call
	for _, name := range []string{"llama3.2", "gemma3:4b", "qwen3:4b"} {
		m := newModel(ctrl, name)
		factory.EXPECT().Model("ollama", name).Return(m, nil).AnyTimes()
		expectGenerate(m, &calls, "fact").AnyTimes()
	}

	app, err := newRegistry(t, factory).Get("model_selector")
	require.NoError(t, err)

	for _, key := range []string{"", "llama", "gemma", "qwen"} {
		res, err := app.Invoke(ctx, &chain.Request{
			Input:     "Tell me a fun fact about capybaras.",
			Selection: chain.Selection{Backend: key},
		})
		require.NoError(t, err)
		v, err := app.Backends().Resolve(key)
		require.NoError(t, err)
		assert.Equal(t, v.Key, res.Keys.Backend)
		assert.Equal(t, v.Payload.Model, res.Model)
		assert.Equal(t, "fact from "+v.Payload.Model, res.Text)
		assert.Equal(t, "Tell me a fun fact about capybaras.", res.Prompt)
		assert.Equal(t, key == "" || key == "llama", res.Default)
	}

	results, err := app.Compare(ctx, "hi", chain.AxisBackend)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "llama", results[0].Keys.Backend)
	assert.Equal(t, "gemma", results[1].Keys.Backend)
	assert.Equal(t, "qwen", results[2].Keys.Backend)

	count := len(calls)
	_, err = app.Compare(ctx, "hi", chain.AxisBackend, "llama", "mistral")
	assert.True(t, errors.Is(err, configurable.ErrUnknownVariant))
	_, err = app.Compare(ctx, "hi", chain.AxisBackend, "")
	assert.True(t, errors.Is(err, configurable.ErrUnknownVariant))
	_, err = app.Compare(ctx, "hi", chain.Axis("style"), "x")
	assert.True(t, errors.Is(err, chain.ErrUnknownAxis))
	assert.Len(t, calls, count, "unknown keys must fail before any backend call")

	key, err := app.BackendKeyForModel("gemma3:4b")
	require.NoError(t, err)
	assert.Equal(t, "gemma", key)
	key, err = app.BackendKeyForModel("qwen")
	require.NoError(t, err)
	assert.Equal(t, "qwen", key)
	_, err = app.BackendKeyForModel("mistral")
	assert.True(t, errors.Is(err, configurable.ErrUnknownVariant))
	assert.Equal(t, "valid models: llama3.2, gemma3:4b, qwen3:4b", configurable.HintOf(err))

	_, err = app.Invoke(ctx, &chain.Request{Input: "  "})
	assert.True(t, errors.Is(err, chain.ErrEmptyInput))
	assert.Equal(t, "please enter a prompt", configurable.HintOf(err))
	_, err = app.Invoke(ctx, nil)
	assert.True(t, errors.Is(err, chain.ErrEmptyInput))
}

func TestBackendErrors(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	factory := mockllmfactory.NewMockFactory(ctrl)

	gemma := newModel(ctrl, "gemma3:4b")
	factory.EXPECT().Model("ollama", "gemma3:4b").Return(gemma, nil).AnyTimes()
	gemma.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, llms.ClassifyError(llms.ProviderOllama, "gemma3:4b", 404, errors.New(`model "gemma3:4b" not found`))).
		Times(2)

	factory.EXPECT().Model("ollama", "qwen3:4b").Return(nil, errors.New("provider not found: \"ollama\"")).Times(1)

	llama := newModel(ctrl, "llama3.2")
	factory.EXPECT().Model("ollama", "llama3.2").Return(llama, nil).AnyTimes()
	llama.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&llms.ContentResponse{}, nil).
		Times(1)

	app, err := newRegistry(t, factory).Get("model_selector")
	require.NoError(t, err)

	_, err = app.Invoke(ctx, &chain.Request{Input: "hi", Selection: chain.Selection{Backend: "gemma"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrBackendUnavailable))
	assert.Contains(t, err.Error(), `model "gemma3:4b" not found`)
	assert.Contains(t, configurable.HintOf(err), "ollama pull gemma3:4b")

	_, err = app.Invoke(ctx, &chain.Request{Input: "hi", Selection: chain.Selection{Backend: "qwen"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `backend "qwen"`)

	_, err = app.Invoke(ctx, &chain.Request{Input: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrGenerationFailed))
	assert.True(t, errors.Is(err, llms.ErrEmptyResponse))

	// the failed call aborts the comparison
	_, err = app.Compare(ctx, "hi", chain.AxisBackend, "gemma", "llama")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compare backend=gemma")
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	factory := mockllmfactory.NewMockFactory(ctrl)
	model := newModel(ctrl, "llama3.2")
	factory.EXPECT().Model("ollama", "llama3.2").Return(model, nil).AnyTimes()
	var calls []call
	expectGenerate(model, &calls, "answer").AnyTimes()

	history := store.NewMemoryStore(10)
	app, err := newRegistry(t, factory, chain.WithHistory(history)).Get("prompt_switcher")
	require.NoError(t, err)

	// no session, no history
	_, err = app.Invoke(ctx, &chain.Request{Input: skyQuestion})
	require.NoError(t, err)
	sessions, err := history.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	sess := session.New("s1")
	sess.SetMetadata(session.MetadataRequestID, "req-1")
	ctx = session.WithContext(ctx, sess)
	res, err := app.Invoke(ctx, &chain.Request{Input: skyQuestion, Selection: chain.Selection{Prompt: "verbose"}})
	require.NoError(t, err)
	assert.Equal(t, "s1", res.SessionID)
	_, err = app.Invoke(ctx, &chain.Request{Input: skyQuestion, Selection: chain.Selection{Prompt: "formal"}})
	require.Error(t, err)

	list, err := history.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, res.ID, list[0].ID)
	assert.Equal(t, "prompt_switcher", list[0].App)
	assert.Equal(t, "req-1", list[0].RequestID)
	assert.Equal(t, skyQuestion, list[0].Input)
	assert.Equal(t, "verbose", list[0].Keys["prompt_type"])
	assert.Equal(t, "llama", list[0].Keys["model_provider"])
	assert.Equal(t, res.Fingerprint, list[0].Fingerprint)
	assert.Equal(t, int64(15), list[0].TotalTokens)
	assert.Empty(t, list[0].Error)
	assert.Contains(t, list[1].Error, "unknown variant")
	assert.NotEmpty(t, list[1].ID)
}

func TestNew(t *testing.T) {
	ctrl := gomock.NewController(t)
	factory := mockllmfactory.NewMockFactory(ctrl)

	b := configurable.New[chain.BackendSpec]("model_provider")
	require.NoError(t, b.Register("llama", chain.BackendSpec{Model: "llama3.2"}, false))
	s, err := configurable.NewWithDefault("llm_sampling", "balanced", chain.Sampling{Temperature: 0.5, MaxTokens: 200}, nil)
	require.NoError(t, err)

	cfg := chain.DefaultConfig().Apps[0]
	prompts, err := cfg.BuildPrompts()
	require.NoError(t, err)

	_, err = chain.New("x", nil, prompts, b, s)
	assert.EqualError(t, err, "factory is required")
	_, err = chain.New("x", factory, nil, b, s)
	assert.Error(t, err)
	_, err = chain.New("x", factory, prompts, b, s)
	assert.True(t, errors.Is(err, configurable.ErrNoDefault))

	b2, err := configurable.NewWithDefault("model_provider", "llama", chain.BackendSpec{Model: "llama3.2"}, nil)
	require.NoError(t, err)
	bad, err := configurable.NewWithDefault("llm_sampling", "hot", chain.Sampling{Temperature: 2, MaxTokens: 200}, nil)
	require.NoError(t, err)
	_, err = chain.New("x", factory, prompts, b2, bad)
	assert.True(t, errors.Is(err, chain.ErrInvalidSampling))

	app, err := chain.New("x", factory, prompts, b2, s)
	require.NoError(t, err)
	assert.Same(t, prompts, app.Prompts())
	assert.Same(t, s, app.Samplings())

	// the backend without a provider is resolved by the model name
	model := newModel(ctrl, "llama3.2")
	factory.EXPECT().ModelByName("llama3.2").Return(model, nil).Times(1)
	var calls []call
	expectGenerate(model, &calls, "answer").Times(1)
	res, err := app.Invoke(context.Background(), &chain.Request{Input: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "answer from llama3.2", res.Text)
	assert.Equal(t, "llama3.2", res.Model)
	assert.Len(t, calls, 1)
}

func TestParseAxis(t *testing.T) {
	for in, exp := range map[string]chain.Axis{
		"backend":        chain.AxisBackend,
		"model_provider": chain.AxisBackend,
		"Sampling":       chain.AxisSampling,
		"temperature":    chain.AxisSampling,
		"prompt":         chain.AxisPrompt,
		"prompt_type":    chain.AxisPrompt,
	} {
		a, err := chain.ParseAxis(in)
		require.NoError(t, err, in)
		assert.Equal(t, exp, a)
	}
	_, err := chain.ParseAxis("style")
	assert.True(t, errors.Is(err, chain.ErrUnknownAxis))
	assert.Equal(t, "valid axes: prompt, backend, sampling", configurable.HintOf(err))

	sel := chain.Selection{}.With(chain.AxisBackend, "gemma").With(chain.AxisPrompt, "verbose")
	assert.Equal(t, "gemma", sel.Key(chain.AxisBackend))
	assert.Equal(t, "verbose", sel.Key(chain.AxisPrompt))
	assert.Empty(t, sel.Key(chain.AxisSampling))
	assert.Equal(t, "creative", chain.Keys{Sampling: "creative"}.Key(chain.AxisSampling))
}
