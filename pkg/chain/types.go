package chain

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Axis is one dimension of variation
type Axis string

const (
	// AxisBackend selects the model backend
	AxisBackend Axis = "backend"
	// AxisSampling selects the sampling parameters
	AxisSampling Axis = "sampling"
	// AxisPrompt selects the prompt template
	AxisPrompt Axis = "prompt"
)

// Axes lists the axes in the order they are applied
var Axes = []Axis{AxisPrompt, AxisBackend, AxisSampling}

// ErrUnknownAxis is returned for an unsupported axis name
var ErrUnknownAxis = errors.New("unknown axis")

// ErrEmptyInput is returned when the request has no input text
var ErrEmptyInput = errors.New("input is required")

// ParseAxis returns the axis by name, configurable field ids are accepted
func ParseAxis(s string) (Axis, error) {
	switch a := Axis(strings.ToLower(strings.TrimSpace(s))); a {
	case AxisBackend, "model", "model_provider":
		return AxisBackend, nil
	case AxisSampling, "temperature", "llm_sampling":
		return AxisSampling, nil
	case AxisPrompt, "prompt_type":
		return AxisPrompt, nil
	}
	return "", errors.WithHint(
		errors.WithMessagef(ErrUnknownAxis, "%q", s),
		"valid axes: prompt, backend, sampling")
}

// BackendSpec is the payload of the backend axis
type BackendSpec struct {
	// Provider is the name, or the type, of the configured provider
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// Model is the model served by the provider
	Model string `json:"model" yaml:"model"`
}

func (b BackendSpec) String() string {
	if b.Provider == "" {
		return b.Model
	}
	return b.Provider + "/" + b.Model
}

// Selection is the runtime choice of the variant per axis,
// an empty key selects the default variant.
type Selection struct {
	Backend  string            `json:"backend,omitempty" yaml:"backend,omitempty"`
	Sampling string            `json:"sampling,omitempty" yaml:"sampling,omitempty"`
	Prompt   string            `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Override *SamplingOverride `json:"override,omitempty" yaml:"override,omitempty"`
}

// Key returns the selected key for the axis
func (s *Selection) Key(axis Axis) string {
	if s == nil {
		return ""
	}
	switch axis {
	case AxisBackend:
		return s.Backend
	case AxisSampling:
		return s.Sampling
	case AxisPrompt:
		return s.Prompt
	}
	return ""
}

// With returns a copy of the selection with the key set for the axis
func (s Selection) With(axis Axis, key string) Selection {
	switch axis {
	case AxisBackend:
		s.Backend = key
	case AxisSampling:
		s.Sampling = key
	case AxisPrompt:
		s.Prompt = key
	}
	return s
}

// Request is the input of Invoke
type Request struct {
	Input     string         `json:"input" yaml:"input"`
	Selection Selection      `json:"selection" yaml:"selection"`
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Keys are the variant keys actually used
type Keys struct {
	Backend  string `json:"backend" yaml:"backend" toml:"backend"`
	Sampling string `json:"sampling" yaml:"sampling" toml:"sampling"`
	Prompt   string `json:"prompt" yaml:"prompt" toml:"prompt"`
}

// Key returns the key for the axis
func (k Keys) Key(axis Axis) string {
	return (&Selection{Backend: k.Backend, Sampling: k.Sampling, Prompt: k.Prompt}).Key(axis)
}

// Usage is the token usage reported by the backend
type Usage struct {
	InputTokens  int64 `json:"input_tokens" yaml:"input_tokens" toml:"input_tokens"`
	OutputTokens int64 `json:"output_tokens" yaml:"output_tokens" toml:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens" yaml:"total_tokens" toml:"total_tokens"`
}

// Result is the output of Invoke
type Result struct {
	ID        string `json:"id" yaml:"id" toml:"id"`
	App       string `json:"app" yaml:"app" toml:"app"`
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty" toml:"session_id,omitempty"`
	Text      string `json:"text" yaml:"text" toml:"text"`

	Keys Keys `json:"keys" yaml:"keys" toml:"keys"`
	// Default is true when every axis used its default variant
	Default bool `json:"default" yaml:"default" toml:"default"`
	// Configurable is the runtime configuration applied,
	// configurable field id to the value
	Configurable map[string]any `json:"configurable" yaml:"configurable" toml:"configurable"`

	Provider string   `json:"provider" yaml:"provider" toml:"provider"`
	Model    string   `json:"model" yaml:"model" toml:"model"`
	Sampling Sampling `json:"sampling" yaml:"sampling" toml:"sampling"`
	Prompt   string   `json:"prompt" yaml:"prompt" toml:"prompt"`
	Usage    Usage    `json:"usage" yaml:"usage" toml:"usage"`

	Fingerprint string        `json:"fingerprint" yaml:"fingerprint" toml:"fingerprint"`
	Duration    time.Duration `json:"duration" yaml:"duration" toml:"duration"`
}

// String returns the generated text
func (r *Result) String() string {
	return r.Text
}

// VariantInfo describes a variant
type VariantInfo struct {
	Key         string `json:"key" yaml:"key" toml:"key"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	// Summary is the template text, the model name, or the sampling values
	Summary string `json:"summary" yaml:"summary" toml:"summary"`
	Default bool   `json:"default" yaml:"default" toml:"default"`
}

// AxisInfo describes an axis of the app
type AxisInfo struct {
	Axis       Axis           `json:"axis" yaml:"axis" toml:"axis"`
	Field      string         `json:"field" yaml:"field" toml:"field"`
	DefaultKey string         `json:"default_key" yaml:"default_key" toml:"default_key"`
	Variants   []*VariantInfo `json:"variants" yaml:"variants" toml:"variants"`
}

// Example is a quick input offered by the app
type Example struct {
	Name  string `json:"name" yaml:"name" toml:"name"`
	Input string `json:"input" yaml:"input" toml:"input"`
}

// Description describes the app
type Description struct {
	App         string      `json:"app" yaml:"app" toml:"app"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	InputKey    string      `json:"input_key" yaml:"input_key" toml:"input_key"`
	Axes        []*AxisInfo `json:"axes" yaml:"axes" toml:"axes"`
	Examples    []*Example  `json:"examples,omitempty" yaml:"examples,omitempty" toml:"examples,omitempty"`
}

// String returns the app with its axes, the default variant is marked with *
func (d *Description) String() string {
	var b strings.Builder
	b.WriteString(d.App)
	if d.Description != "" {
		b.WriteString(": ")
		b.WriteString(d.Description)
	}
	b.WriteByte('\n')
	for _, a := range d.Axes {
		keys := make([]string, 0, len(a.Variants))
		for _, v := range a.Variants {
			if v.Default {
				keys = append(keys, v.Key+"*")
			} else {
				keys = append(keys, v.Key)
			}
		}
		fmt.Fprintf(&b, "  %s (%s): %s\n", a.Axis, a.Field, strings.Join(keys, ", "))
	}
	return b.String()
}
