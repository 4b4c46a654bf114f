package chain

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/pkg/llms"
	"github.com/go-playground/validator/v10"
)

const (
	// MaxTokensLimit is the largest max tokens value accepted
	MaxTokensLimit = 8192
	// DefaultTemperature of the sampling axis
	DefaultTemperature = 0.5
	// DefaultMaxTokens of the sampling axis
	DefaultMaxTokens = 200
)

// ErrInvalidSampling is returned when sampling values are out of range
var ErrInvalidSampling = errors.New("invalid sampling parameters")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Sampling is the set of sampling parameters sent to the backend
type Sampling struct {
	Temperature float64 `json:"temperature" yaml:"temperature" toml:"temperature" validate:"gte=0,lte=1"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens" validate:"gte=1,lte=8192"`
}

// SamplingOverride overrides the fields of the resolved Sampling
type SamplingOverride struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"omitempty,gte=1,lte=8192"`
}

// IsEmpty returns true if no field is overridden
func (o *SamplingOverride) IsEmpty() bool {
	return o == nil || (o.Temperature == nil && o.MaxTokens == nil)
}

// Validate returns ErrInvalidSampling if the values are out of range
func (s Sampling) Validate() error {
	return validateStruct(s)
}

// Validate returns ErrInvalidSampling if the values are out of range
func (o *SamplingOverride) Validate() error {
	if o == nil {
		return nil
	}
	return validateStruct(o)
}

// Apply returns the sampling with the override applied
func (s Sampling) Apply(o *SamplingOverride) Sampling {
	if o == nil {
		return s
	}
	if o.Temperature != nil {
		s.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		s.MaxTokens = *o.MaxTokens
	}
	return s
}

// CallOptions returns the backend call options
func (s Sampling) CallOptions() []llms.CallOption {
	return []llms.CallOption{
		llms.WithTemperature(s.Temperature),
		llms.WithMaxTokens(s.MaxTokens),
	}
}

func (s Sampling) String() string {
	return fmt.Sprintf("temperature=%.2g max_tokens=%d", s.Temperature, s.MaxTokens)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return errors.WithHintf(
			errors.WithMessagef(ErrInvalidSampling, "%s must be %s %s", fieldName(fe.Field()), fe.Tag(), fe.Param()),
			"temperature must be in [0, 1], max_tokens in [1, %d]", MaxTokensLimit)
	}
	return errors.Mark(errors.Wrap(err, "failed to validate"), ErrInvalidSampling)
}

func fieldName(f string) string {
	switch f {
	case "Temperature":
		return "temperature"
	case "MaxTokens":
		return "max_tokens"
	}
	return f
}

// Float64 returns a pointer to v
func Float64(v float64) *float64 {
	return &v
}

// Int returns a pointer to v
func Int(v int) *int {
	return &v
}
