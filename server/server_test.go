package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/callbacks"
	"github.com/effective-security/llmswitch/encoding"
	"github.com/effective-security/llmswitch/mocks/mockllmfactory"
	"github.com/effective-security/llmswitch/mocks/mockllms"
	"github.com/effective-security/llmswitch/pkg/chain"
	"github.com/effective-security/llmswitch/pkg/configurable"
	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/llmswitch/pkg/prompts"
	"github.com/effective-security/llmswitch/server"
	"github.com/effective-security/llmswitch/session"
	"github.com/effective-security/llmswitch/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gopkg.in/yaml.v3"
)

type fixture struct {
	srv     *server.Server
	history store.HistoryStore
	stats   *callbacks.Stats
	prompts []string
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	factory := mockllmfactory.NewMockFactory(ctrl)
	f := &fixture{
		history: store.NewMemoryStore(10),
		stats:   callbacks.NewStats(),
	}

	for _, name := range []string{"llama3.2", "gemma3:4b", "qwen3:4b"} {
		m := mockllms.NewMockModel(ctrl)
		m.EXPECT().GetName().Return(name).AnyTimes()
		m.EXPECT().GetProviderType().Return(llms.ProviderOllama).AnyTimes()
		factory.EXPECT().Model("ollama", name).Return(m, nil).AnyTimes()

		if name == "qwen3:4b" {
			m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(nil, llms.ClassifyError(llms.ProviderOllama, name, 0, errors.New("connection refused"))).
				AnyTimes()
			continue
		}
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				f.prompts = append(f.prompts, messages[len(messages)-1].GetContent())
				return &llms.ContentResponse{
					Choices: []*llms.ContentChoice{{
						Content: "answer from " + name,
						GenerationInfo: map[string]any{
							"InputTokens":  int64(7),
							"OutputTokens": int64(3),
							"TotalTokens":  int64(10),
						},
					}},
				}, nil
			}).AnyTimes()
	}

	reg, err := chain.NewRegistry(chain.DefaultConfig(), factory,
		chain.WithHistory(f.history),
		chain.WithCallback(f.stats),
	)
	require.NoError(t, err)
	f.srv = server.New(reg, server.WithHistory(f.history), server.WithStats(f.stats))
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) *T {
	v := new(T)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
	return v
}

func TestApps(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/apps", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get(server.HeaderRequestID))
	apps := decode[server.AppsResponse](t, w)
	require.Len(t, apps.Apps, 3)
	assert.Equal(t, "model_selector", apps.Apps[0].App)

	w = f.do(t, http.MethodGet, "/v1/apps/prompt_switcher", "", server.HeaderRequestID, "req-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(server.HeaderRequestID))
	d := decode[chain.Description](t, w)
	assert.Equal(t, "question", d.InputKey)
	assert.Equal(t, "concise", d.Axes[0].DefaultKey)

	w = f.do(t, http.MethodGet, "/v1/apps/chatbot", "", server.HeaderRequestID, "req-2")
	require.Equal(t, http.StatusNotFound, w.Code)
	e := decode[server.ErrorResponse](t, w)
	assert.Equal(t, "app_not_found", e.Code)
	assert.Equal(t, `"chatbot": app not found`, e.Error)
	assert.Equal(t, "available apps: model_selector, temperature_tuner, prompt_switcher", e.Hint)
	assert.Equal(t, "req-2", e.RequestID)

	w = f.do(t, http.MethodGet, "/v1/apps/prompt_switcher?format=yaml", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	var yd chain.Description
	require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &yd))
	assert.Equal(t, "prompt_switcher", yd.App)

	w = f.do(t, http.MethodGet, "/v1/apps", "", "Accept", "application/toml")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/toml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "[[apps]]")

	w = f.do(t, http.MethodGet, "/v1/apps?format=xml", "")
	require.Equal(t, http.StatusNotAcceptable, w.Code)
	e = decode[server.ErrorResponse](t, w)
	assert.Equal(t, "unsupported_format", e.Code)
}

func TestInvoke(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/apps/prompt_switcher/invoke",
		`{"input": "Why is the sky blue?", "prompt": "verbose"}`,
		server.HeaderSessionID, "s1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "s1", w.Header().Get(server.HeaderSessionID))
	res := decode[chain.Result](t, w)
	assert.Equal(t, "answer from llama3.2", res.Text)
	assert.Equal(t, chain.Keys{Backend: "llama", Sampling: "balanced", Prompt: "verbose"}, res.Keys)
	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, chain.VerboseTemplate[:len(chain.VerboseTemplate)-len("{question}")]+"Why is the sky blue?", f.prompts[0])

	// by model name, with override, in YAML
	w = f.do(t, http.MethodPost, "/v1/apps/model_selector/invoke?format=text",
		"input: Tell me a fun fact about capybaras.\nmodel: gemma3:4b\ntemperature: 0.2\n",
		"Content-Type", "application/yaml")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "answer from gemma3:4b", w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))

	tcases := []struct {
		path   string
		body   string
		status int
		code   string
		hint   string
	}{
		{
			path: "/v1/apps/prompt_switcher/invoke", body: `{"input": "hi", "prompt": "formal"}`,
			status: http.StatusNotFound, code: "unknown_variant", hint: "valid values for prompt_type: concise, verbose",
		},
		{
			path: "/v1/apps/temperature_tuner/invoke", body: `{"input": "hi", "temperature": 1.5}`,
			status: http.StatusBadRequest, code: "invalid_sampling", hint: "temperature must be in [0, 1], max_tokens in [1, 8192]",
		},
		{
			path: "/v1/apps/temperature_tuner/invoke", body: `{"input": "hi", "max_tokens": 0}`,
			status: http.StatusBadRequest, code: "invalid_sampling",
		},
		{
			path: "/v1/apps/temperature_tuner/invoke", body: `{"input": ""}`,
			status: http.StatusBadRequest, code: "empty_input", hint: "please enter a prompt",
		},
		{
			path: "/v1/apps/model_selector/invoke", body: `{"input": "hi", "model": "mistral"}`,
			status: http.StatusNotFound, code: "unknown_variant", hint: "valid models: llama3.2, gemma3:4b, qwen3:4b",
		},
		{
			path: "/v1/apps/model_selector/invoke", body: `{"input": "hi", "backend": "qwen"}`,
			status: http.StatusServiceUnavailable, code: "backend_unavailable", hint: "make sure Ollama is running and you have run `ollama pull qwen3:4b`",
		},
		{
			path: "/v1/apps/chatbot/invoke", body: `{"input": "hi"}`,
			status: http.StatusNotFound, code: "app_not_found",
		},
	}
	for _, tc := range tcases {
		t.Run(tc.code, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tc.path, tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			e := decode[server.ErrorResponse](t, w)
			assert.Equal(t, tc.code, e.Code)
			assert.NotEmpty(t, e.Error)
			if tc.hint != "" {
				assert.Equal(t, tc.hint, e.Hint)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/apps/model_selector/compare",
		`{"input": "Tell me a fun fact about capybaras.", "axis": "model_provider", "keys": ["gemma", "llama"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[server.CompareResponse](t, w)
	assert.Equal(t, chain.AxisBackend, res.Axis)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "gemma", res.Results[0].Keys.Backend)
	assert.Equal(t, "llama", res.Results[1].Keys.Backend)

	w = f.do(t, http.MethodPost, "/v1/apps/prompt_switcher/compare?format=text",
		`{"input": "Why is the sky blue?", "axis": "prompt"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "[concise]\nanswer from llama3.2\n\n[verbose]\nanswer from llama3.2\n\n", w.Body.String())

	count := len(f.prompts)
	w = f.do(t, http.MethodPost, "/v1/apps/model_selector/compare", `{"input": "hi", "axis": "backend", "keys": ["llama", "mistral"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, f.prompts, count)

	w = f.do(t, http.MethodPost, "/v1/apps/model_selector/compare", `{"input": "hi", "axis": "style"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown_axis", decode[server.ErrorResponse](t, w).Code)

	w = f.do(t, http.MethodPost, "/v1/apps/model_selector/compare", `{"input": "hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decode[server.ErrorResponse](t, w).Code)

	w = f.do(t, http.MethodPost, "/v1/apps/model_selector/compare", `{"input": "hi", "axis": "backend", "keys": ["llama", "qwen"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/sessions/s1/history", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	for i, body := range []string{
		`{"input": "Why is the sky blue?"}`,
		`{"input": "Why is the sky blue?", "prompt": "verbose"}`,
		`{"input": "Why is the sky blue?", "prompt": "formal"}`,
	} {
		f.do(t, http.MethodPost, "/v1/apps/prompt_switcher/invoke", body,
			server.HeaderSessionID, "s1",
			server.HeaderRequestID, fmt.Sprintf("req-%d", i))
	}

	w = f.do(t, http.MethodGet, "/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"s1"}, decode[server.SessionsResponse](t, w).Sessions)

	w = f.do(t, http.MethodGet, "/v1/sessions/s1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[server.HistoryResponse](t, w)
	require.NotNil(t, h.Session)
	assert.Equal(t, 3, h.Session.Count)
	require.Len(t, h.Records, 3)
	assert.Equal(t, "concise", h.Records[0].Keys["prompt_type"])
	assert.Equal(t, "req-0", h.Records[0].RequestID)
	assert.Equal(t, "req-2", h.Records[2].RequestID)
	assert.Equal(t, "verbose", h.Records[1].Keys["prompt_type"])
	assert.NotEmpty(t, h.Records[2].Error)

	w = f.do(t, http.MethodGet, "/v1/sessions/s1/history?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	h = decode[server.HistoryResponse](t, w)
	require.Len(t, h.Records, 1)
	assert.NotEmpty(t, h.Records[0].Error)

	w = f.do(t, http.MethodGet, "/v1/sessions/s1/history?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, "/v1/sessions/s1/history", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodGet, "/v1/sessions/s1/history", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidSessionID(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{"../x", "../info/s1", "a/b", strings.Repeat("s", 129)} {
		w := f.do(t, http.MethodPost, "/v1/apps/prompt_switcher/invoke", `{"input": "Why is the sky blue?"}`,
			server.HeaderSessionID, id)
		require.Equal(t, http.StatusBadRequest, w.Code, id)
		res := decode[server.ErrorResponse](t, w)
		assert.Equal(t, "invalid_session", res.Code)
		assert.NotEmpty(t, res.Hint)
		assert.NotEmpty(t, res.RequestID)
	}
	assert.Empty(t, f.prompts)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w := f.do(t, method, "/v1/sessions/..%2Finfo%2Fs1/history", "")
		require.Equal(t, http.StatusBadRequest, w.Code, method)
		assert.Equal(t, "invalid_session", decode[server.ErrorResponse](t, w).Code)
	}

	w := f.do(t, http.MethodGet, "/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[server.SessionsResponse](t, w).Sessions)
}

func TestCleanupHistory(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	reg, err := chain.NewRegistry(chain.DefaultConfig(), mockllmfactory.NewMockFactory(ctrl))
	require.NoError(t, err)

	history := store.NewMemoryStore(10)
	require.NoError(t, history.Add(ctx, &store.Record{ID: "r1", SessionID: "s1", App: "model_selector"}))

	deleted, err := server.New(reg, server.WithHistory(history)).CleanupHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), deleted)

	srv := server.New(reg, server.WithHistory(history), server.WithHistoryTTL(time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	deleted, err = srv.CleanupHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), deleted)

	sessions, err := history.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, srv.ListenAndServe(ctx, "127.0.0.1:0"))
}

func TestHistoryDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg, err := chain.NewRegistry(chain.DefaultConfig(), mockllmfactory.NewMockFactory(ctrl))
	require.NoError(t, err)
	srv := server.New(reg)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "history is not enabled")

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "stats are not enabled")
}

func TestStats(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[server.StatsResponse](t, w).Apps)

	w = f.do(t, http.MethodPost, "/v1/apps/model_selector/invoke", `{"input": "hi", "backend": "gemma"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, http.MethodPost, "/v1/apps/model_selector/invoke", `{"input": "hi", "backend": "qwen"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[server.StatsResponse](t, w)
	require.Len(t, stats.Apps, 1)
	s := stats.Apps[0]
	assert.Equal(t, "model_selector", s.App)
	assert.Equal(t, uint32(2), s.Calls)
	assert.Equal(t, uint32(1), s.CallsSucceeded)
	assert.Equal(t, uint32(1), s.CallsFailed)
	assert.Equal(t, uint32(2), s.LLMCalls)
	assert.Equal(t, uint64(10), s.LLMTotalTokens)
	assert.Equal(t, map[string]uint32{"gemma": 1}, s.Backends)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status": "ok"`)

	f.do(t, http.MethodPost, "/v1/apps/prompt_switcher/invoke", `{"input": "Why is the sky blue?"}`)

	w = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `llmswitch_http_request_total{route="GET /healthz",status="200"} 1`)
	assert.Contains(t, body, `llmswitch_http_request_total{route="POST /v1/apps/{app}/invoke",status="200"} 1`)
	assert.Contains(t, body, `llmswitch_invocation_total{app="prompt_switcher",backend="llama",prompt="concise",sampling="balanced"} 1`)
	assert.Contains(t, body, `llmswitch_tokens_total{app="prompt_switcher",direction="input",model="llama3.2"} 7`)
}

func TestStatusOf(t *testing.T) {
	tcases := []struct {
		err    error
		status int
	}{
		{errors.WithMessage(chain.ErrEmptyInput, "x"), http.StatusBadRequest},
		{errors.WithMessage(chain.ErrInvalidSampling, "x"), http.StatusBadRequest},
		{errors.WithMessage(chain.ErrUnknownAxis, "x"), http.StatusBadRequest},
		{errors.WithMessage(encoding.ErrInvalidRequest, "x"), http.StatusBadRequest},
		{errors.WithMessage(prompts.ErrMissingVariable, "x"), http.StatusBadRequest},
		{errors.WithMessage(session.ErrInvalidSessionID, "x"), http.StatusBadRequest},
		{errors.WithMessage(configurable.ErrUnknownVariant, "x"), http.StatusNotFound},
		{errors.WithMessage(chain.ErrAppNotFound, "x"), http.StatusNotFound},
		{errors.WithMessage(configurable.ErrNoDefault, "x"), http.StatusConflict},
		{errors.WithMessage(configurable.ErrDuplicateKey, "x"), http.StatusConflict},
		{errors.WithMessage(configurable.ErrMultipleDefaults, "x"), http.StatusConflict},
		{llms.ClassifyError(llms.ProviderOllama, "m", 500, errors.New("x")), http.StatusServiceUnavailable},
		{llms.ClassifyError(llms.ProviderOpenAI, "m", 400, errors.New("x")), http.StatusBadGateway},
		{errors.Wrap(context.DeadlineExceeded, "x"), http.StatusGatewayTimeout},
		{errors.New("x"), http.StatusInternalServerError},
	}
	for _, tc := range tcases {
		status, code := server.StatusOf(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.NotEmpty(t, code)
	}
}
