package server

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/encoding"
	"github.com/effective-security/llmswitch/pkg/chain"
	"github.com/effective-security/llmswitch/pkg/configurable"
	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/effective-security/llmswitch/pkg/prompts"
	"github.com/effective-security/llmswitch/session"
	"github.com/effective-security/xlog"
)

// ErrorResponse is the body of a failed request
type ErrorResponse struct {
	Error     string `json:"error" yaml:"error" toml:"error"`
	Hint      string `json:"hint,omitempty" yaml:"hint,omitempty" toml:"hint,omitempty"`
	Code      string `json:"code" yaml:"code" toml:"code"`
	RequestID string `json:"request_id,omitempty" yaml:"request_id,omitempty" toml:"request_id,omitempty"`
}

// StatusOf returns the HTTP status and the error code for err
func StatusOf(err error) (int, string) {
	switch {
	case errors.Is(err, chain.ErrEmptyInput):
		return http.StatusBadRequest, "empty_input"
	case errors.Is(err, chain.ErrInvalidSampling):
		return http.StatusBadRequest, "invalid_sampling"
	case errors.Is(err, chain.ErrUnknownAxis):
		return http.StatusBadRequest, "unknown_axis"
	case errors.Is(err, session.ErrInvalidSessionID):
		return http.StatusBadRequest, "invalid_session"
	case errors.Is(err, prompts.ErrMissingVariable):
		return http.StatusBadRequest, "missing_variable"
	case errors.Is(err, encoding.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, encoding.ErrUnsupportedMode):
		return http.StatusNotAcceptable, "unsupported_format"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, chain.ErrAppNotFound):
		return http.StatusNotFound, "app_not_found"
	case errors.Is(err, configurable.ErrUnknownVariant):
		return http.StatusNotFound, "unknown_variant"
	case configurable.IsConfigError(err):
		return http.StatusConflict, "config_error"
	case errors.Is(err, llms.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "backend_unavailable"
	case errors.Is(err, llms.ErrGenerationFailed):
		return http.StatusBadGateway, "generation_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusOf(err)
	if status >= http.StatusInternalServerError {
		logger.ContextKV(r.Context(), xlog.ERROR,
			"path", r.URL.Path,
			"status", status,
			"err", errors.UnwrapAll(err).Error(),
			"reason", err.Error())
	} else {
		logger.ContextKV(r.Context(), xlog.DEBUG,
			"path", r.URL.Path,
			"status", status,
			"reason", err.Error())
	}

	s.write(w, r, status, &ErrorResponse{
		Error:     err.Error(),
		Hint:      configurable.HintOf(err),
		Code:      code,
		RequestID: w.Header().Get(HeaderRequestID),
	})
}
