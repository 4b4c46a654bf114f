// Package server exposes the configured apps over HTTP.
package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/callbacks"
	"github.com/effective-security/llmswitch/encoding"
	"github.com/effective-security/llmswitch/pkg/chain"
	"github.com/effective-security/llmswitch/pkg/configurable"
	"github.com/effective-security/llmswitch/session"
	"github.com/effective-security/llmswitch/store"
	"github.com/effective-security/xlog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/llmswitch", "server")

const (
	// HeaderRequestID is the request id header, generated when missing
	HeaderRequestID = "X-Request-ID"
	// HeaderSessionID selects the session for the invocation history
	HeaderSessionID = "X-Session-ID"

	// DefaultTimeout of a request, including all backend calls
	DefaultTimeout = 5 * time.Minute
	// MaxBodySize of a request
	MaxBodySize = 1 << 20
)

// ErrNotFound is returned for missing resources
var ErrNotFound = errors.New("not found")

// Server serves the apps of the registry
type Server struct {
	registry *chain.Registry
	history  store.HistoryStore
	metrics  *Metrics
	stats    *callbacks.Stats
	timeout  time.Duration
	ttl      time.Duration
	handler  http.Handler
}

// Option configures the Server
type Option func(*Server)

// WithHistory exposes the invocation history of the sessions
func WithHistory(history store.HistoryStore) Option {
	return func(s *Server) {
		s.history = history
	}
}

// WithHistoryTTL removes the history of sessions not updated within ttl,
// the sessions are kept forever when ttl is zero
func WithHistoryTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.ttl = ttl
	}
}

// WithMetrics sets the Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithStats exposes the invocation counters of the apps,
// the stats must be registered as the chain callback
func WithStats(stats *callbacks.Stats) Option {
	return func(s *Server) {
		s.stats = stats
	}
}

// WithTimeout sets the request timeout
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// New returns the Server
func New(registry *chain.Registry, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.instrument)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		r.Use(s.session)

		r.Get("/apps", s.listApps)
		r.Get("/apps/{app}", s.describeApp)
		r.Post("/apps/{app}/invoke", s.invoke)
		r.Post("/apps/{app}/compare", s.compare)

		r.Get("/stats", s.getStats)

		r.Get("/sessions", s.listSessions)
		r.Get("/sessions/{session}/history", s.getHistory)
		r.Delete("/sessions/{session}/history", s.resetHistory)
	})
	return r
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	if s.history != nil && s.ttl > 0 {
		go s.cleanupLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.KV(xlog.INFO, "status", "starting", "addr", addr, "apps", s.registry.Names())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "failed to listen on %s", addr)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "graceful shutdown failed")
	}
	logger.KV(xlog.INFO, "status", "stopped", "addr", addr)
	return nil
}

// CleanupHistory removes the history of sessions not updated within the TTL
func (s *Server) CleanupHistory(ctx context.Context) (uint32, error) {
	if s.history == nil || s.ttl <= 0 {
		return 0, nil
	}
	deleted, err := s.history.Cleanup(ctx, s.ttl)
	if err != nil {
		return deleted, errors.WithMessage(err, "failed to cleanup history")
	}
	if deleted > 0 {
		logger.ContextKV(ctx, xlog.INFO, "status", "history_cleanup", "deleted", deleted, "ttl", s.ttl.String())
	}
	return deleted, nil
}

func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval(s.ttl))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupHistory(ctx); err != nil {
				logger.ContextKV(ctx, xlog.ERROR, "reason", "history_cleanup", "err", err.Error())
			}
		}
	}
}

// cleanupInterval is half of the TTL, within a minute and an hour
func cleanupInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/2, time.Minute), time.Hour)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderSessionID))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := session.Parse(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		sess.SetMetadata(session.MetadataRequestID, w.Header().Get(HeaderRequestID))
		w.Header().Set(HeaderSessionID, sess.GetSessionID())
		ctx := session.WithContext(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = r.Method + " " + rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RequestTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(started).Milliseconds()))
	})
}

// encoderFor returns the response encoder selected by the format query,
// or by the Accept header, JSON by default
func encoderFor(r *http.Request) (encoding.Encoder, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		return encoding.NewEncoder(f)
	}
	return encoding.NewEncoder(modeOf(r.Header.Get("Accept")))
}

// decoderFor returns the request decoder selected by the Content-Type
func decoderFor(r *http.Request) encoding.Encoder {
	enc, _ := encoding.NewEncoder(modeOf(r.Header.Get("Content-Type")))
	return enc
}

func modeOf(mediaType string) encoding.Mode {
	switch {
	case strings.Contains(mediaType, "yaml"):
		return encoding.ModeYAML
	case strings.Contains(mediaType, "toml"):
		return encoding.ModeTOML
	case strings.HasPrefix(mediaType, "text/plain"):
		return encoding.ModeText
	}
	return encoding.ModeJSON
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, status int, v any) {
	enc, err := encoderFor(r)
	if err != nil {
		// unsupported format is reported in JSON
		enc, _ = encoding.NewEncoder(encoding.ModeJSON)
		if _, ok := v.(*ErrorResponse); !ok {
			status, code := StatusOf(err)
			v = &ErrorResponse{
				Error:     err.Error(),
				Hint:      configurable.HintOf(err),
				Code:      code,
				RequestID: w.Header().Get(HeaderRequestID),
			}
			s.writeBody(w, r, enc, status, v)
			return
		}
	}
	s.writeBody(w, r, enc, status, v)
}

func (s *Server) writeBody(w http.ResponseWriter, r *http.Request, enc encoding.Encoder, status int, v any) {
	bs, err := enc.Marshal(v)
	if err != nil {
		logger.ContextKV(r.Context(), xlog.ERROR,
			"reason", "marshal",
			"err", err.Error())
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", enc.ContentType())
	w.WriteHeader(status)
	_, _ = w.Write(bs)
}
