package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/callbacks"
	"github.com/effective-security/llmswitch/encoding"
	"github.com/effective-security/llmswitch/pkg/chain"
	"github.com/effective-security/llmswitch/store"
	"github.com/effective-security/xlog"
	"github.com/go-chi/chi/v5"
)

// InvokeRequest is the body of POST /v1/apps/{app}/invoke
type InvokeRequest struct {
	Input string `json:"input" yaml:"input" toml:"input" validate:"max=65536"`
	// Prompt, Backend and Sampling are the variant keys,
	// empty selects the default
	Prompt   string `json:"prompt,omitempty" yaml:"prompt,omitempty" toml:"prompt,omitempty"`
	Backend  string `json:"backend,omitempty" yaml:"backend,omitempty" toml:"backend,omitempty"`
	Sampling string `json:"sampling,omitempty" yaml:"sampling,omitempty" toml:"sampling,omitempty"`
	// Model selects the backend by the model name
	Model       string         `json:"model,omitempty" yaml:"model,omitempty" toml:"model,omitempty"`
	Temperature *float64       `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty"`
	Variables   map[string]any `json:"variables,omitempty" yaml:"variables,omitempty" toml:"variables,omitempty"`
}

// CompareRequest is the body of POST /v1/apps/{app}/compare
type CompareRequest struct {
	Input string `json:"input" yaml:"input" toml:"input" validate:"max=65536"`
	Axis  string `json:"axis" yaml:"axis" toml:"axis" validate:"required"`
	// Keys to compare, all variants of the axis when empty
	Keys []string `json:"keys,omitempty" yaml:"keys,omitempty" toml:"keys,omitempty"`
}

// CompareResponse is the result of POST /v1/apps/{app}/compare
type CompareResponse struct {
	App     string          `json:"app" yaml:"app" toml:"app"`
	Axis    chain.Axis      `json:"axis" yaml:"axis" toml:"axis"`
	Results []*chain.Result `json:"results" yaml:"results" toml:"results"`
}

func (r *CompareResponse) String() string {
	var s string
	for _, res := range r.Results {
		s += "[" + res.Keys.Key(r.Axis) + "]\n" + res.Text + "\n\n"
	}
	return s
}

// HistoryResponse is the result of GET /v1/sessions/{session}/history
type HistoryResponse struct {
	Session *store.SessionInfo `json:"session" yaml:"session" toml:"session"`
	Records []*store.Record    `json:"records" yaml:"records" toml:"records"`
}

// SessionsResponse is the result of GET /v1/sessions
type SessionsResponse struct {
	Sessions []string `json:"sessions" yaml:"sessions" toml:"sessions"`
}

// AppsResponse is the result of GET /v1/apps
type AppsResponse struct {
	Apps []*chain.Description `json:"apps" yaml:"apps" toml:"apps"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, http.StatusOK, map[string]any{
		"status": "ok",
		"apps":   len(s.registry.Names()),
	})
}

func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, http.StatusOK, &AppsResponse{Apps: s.registry.Describe()})
}

func (s *Server) describeApp(w http.ResponseWriter, r *http.Request) {
	app, err := s.registry.Get(chi.URLParam(r, "app"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, app.Describe())
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	app, err := s.registry.Get(chi.URLParam(r, "app"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req InvokeRequest
	if err = decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	backend := req.Backend
	if backend == "" && req.Model != "" {
		backend, err = app.BackendKeyForModel(req.Model)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	creq := &chain.Request{
		Input: req.Input,
		Selection: chain.Selection{
			Prompt:   req.Prompt,
			Backend:  backend,
			Sampling: req.Sampling,
		},
		Variables: req.Variables,
	}
	if req.Temperature != nil || req.MaxTokens != nil {
		creq.Selection.Override = &chain.SamplingOverride{
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		}
	}

	res, err := app.Invoke(r.Context(), creq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.record(res)
	s.write(w, r, http.StatusOK, res)
}

func (s *Server) compare(w http.ResponseWriter, r *http.Request) {
	app, err := s.registry.Get(chi.URLParam(r, "app"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req CompareRequest
	if err = decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	axis, err := chain.ParseAxis(req.Axis)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results, err := app.Compare(r.Context(), req.Input, axis, req.Keys...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, res := range results {
		s.record(res)
	}
	s.write(w, r, http.StatusOK, &CompareResponse{
		App:     app.Name(),
		Axis:    axis,
		Results: results,
	})
}

// StatsResponse is the result of GET /v1/stats
type StatsResponse struct {
	Apps []*callbacks.AppStats `json:"apps" yaml:"apps" toml:"apps"`
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		s.writeError(w, r, errors.WithHint(errors.WithMessage(ErrNotFound, "stats"), "stats are not enabled"))
		return
	}
	s.write(w, r, http.StatusOK, &StatsResponse{Apps: s.stats.List()})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, r, errors.WithHint(errors.WithMessage(ErrNotFound, "history"), "history is not enabled"))
		return
	}
	list, err := s.history.ListSessions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []string{}
	}
	s.write(w, r, http.StatusOK, &SessionsResponse{Sessions: list})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, r, errors.WithHint(errors.WithMessage(ErrNotFound, "history"), "history is not enabled"))
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "session")

	info, err := s.history.GetSessionInfo(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if info == nil {
		s.writeError(w, r, errors.WithMessagef(ErrNotFound, "session %q", id))
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 0 {
			s.writeError(w, r, errors.WithMessagef(encoding.ErrInvalidRequest, "limit must be a positive number: %q", l))
			return
		}
	}

	records, err := s.history.History(ctx, id, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, &HistoryResponse{
		Session: info,
		Records: records,
	})
}

func (s *Server) resetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, r, errors.WithHint(errors.WithMessage(ErrNotFound, "history"), "history is not enabled"))
		return
	}
	id := chi.URLParam(r, "session")
	if err := s.history.Reset(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	logger.ContextKV(r.Context(), xlog.DEBUG, "status", "history_reset", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) record(res *chain.Result) {
	s.metrics.RecordInvocation(res.App, res.Keys.Prompt, res.Keys.Backend, res.Keys.Sampling,
		res.Model, res.Usage.InputTokens, res.Usage.OutputTokens)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to read request body"), encoding.ErrInvalidRequest)
	}
	return encoding.Decode(decoderFor(r), body, v)
}
