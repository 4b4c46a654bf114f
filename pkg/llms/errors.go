package llms

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	// ErrBackendUnavailable is returned when the backend can not be reached,
	// or reports that the model is not available.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrGenerationFailed is returned when the backend was reached,
	// but failed to generate content.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrEmptyResponse is returned when the backend returned no choices.
	ErrEmptyResponse = errors.New("empty response")
)

// ClassifyError marks err with ErrBackendUnavailable or ErrGenerationFailed.
// status is the HTTP status returned by the backend, or 0 when
// the request did not get a response.
// The original error message is preserved.
func ClassifyError(provider ProviderType, model string, status int, err error) error {
	if err == nil {
		return nil
	}

	err = errors.Wrapf(err, "%s model %q", provider, model)
	if IsUnavailableStatus(status) ||
		(status == 0 && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrEmptyResponse)) {
		err = errors.Mark(err, ErrBackendUnavailable)
		if provider == ProviderOllama {
			return errors.WithHintf(err, "make sure Ollama is running and you have run `ollama pull %s`", model)
		}
		return errors.WithHintf(err, "make sure the %s backend is reachable and serves model %q", provider, model)
	}
	return errors.Mark(err, ErrGenerationFailed)
}

// IsUnavailableStatus returns true for HTTP statuses that indicate
// the backend or model is not available.
func IsUnavailableStatus(status int) bool {
	switch status {
	case http.StatusNotFound,
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return status >= http.StatusInternalServerError
}
