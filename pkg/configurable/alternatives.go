package configurable

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/pkg/metricskey"
	"github.com/effective-security/xlog"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/llmswitch", "configurable")

// Variant is a named, pre-configured alternative.
type Variant[P any] struct {
	Key         string `json:"key" yaml:"key"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Payload     P      `json:"payload" yaml:"payload"`
}

// Executor executes the resolved variant with the request text.
type Executor[P any] interface {
	Execute(ctx context.Context, variant *Variant[P], input string) (string, error)
}

// ExecutorFunc is an adapter to allow the use of ordinary functions as Executor.
type ExecutorFunc[P any] func(ctx context.Context, variant *Variant[P], input string) (string, error)

// Execute calls f(ctx, variant, input).
func (f ExecutorFunc[P]) Execute(ctx context.Context, variant *Variant[P], input string) (string, error) {
	return f(ctx, variant, input)
}

// InvocationResult is the result of Invoke.
type InvocationResult struct {
	// Key is the key of the variant actually used.
	Key string `json:"key" yaml:"key"`
	// Text is the generated text.
	Text string `json:"text" yaml:"text"`
	// Default is true when the default variant was used.
	Default  bool          `json:"default" yaml:"default"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Alternatives routes a runtime key to one of the registered variants.
type Alternatives[P any] struct {
	id string

	lock       sync.RWMutex
	defaultKey string
	variants   *orderedmap.OrderedMap[string, *Variant[P]]
}

// New returns an empty router for the configurable field id.
func New[P any](id string) *Alternatives[P] {
	return &Alternatives[P]{
		id:       id,
		variants: orderedmap.New[string, *Variant[P]](),
	}
}

// NewWithDefault returns a router with the default variant and the alternatives.
// The alternatives are registered in the sorted order of their keys.
func NewWithDefault[P any](id, defaultKey string, payload P, alternatives map[string]P) (*Alternatives[P], error) {
	r := New[P](id)
	if err := r.Register(defaultKey, payload, true); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(alternatives))
	for k := range alternatives {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := r.Register(k, alternatives[k], false); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ID returns the configurable field id.
func (r *Alternatives[P]) ID() string {
	return r.id
}

// Register adds a variant with the key and payload.
func (r *Alternatives[P]) Register(key string, payload P, isDefault bool) error {
	return r.RegisterVariant(&Variant[P]{Key: key, Payload: payload}, isDefault)
}

// RegisterVariant adds the variant.
func (r *Alternatives[P]) RegisterVariant(v *Variant[P], isDefault bool) error {
	if v == nil || strings.TrimSpace(v.Key) == "" {
		return errors.WithStack(ErrEmptyKey)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.variants.Get(v.Key); ok {
		return errors.WithMessagef(ErrDuplicateKey, "%s: %q", r.id, v.Key)
	}
	if isDefault {
		if r.defaultKey != "" {
			return errors.WithMessagef(ErrMultipleDefaults, "%s: %q is already the default, can't mark %q",
				r.id, r.defaultKey, v.Key)
		}
		r.defaultKey = v.Key
	}
	r.variants.Set(v.Key, v)
	return nil
}

// Resolve returns the variant for key, or the default variant when key is empty.
func (r *Alternatives[P]) Resolve(key string) (*Variant[P], error) {
	v, _, err := r.resolve(key)
	return v, err
}

// resolve returns the variant for key, and true if it is the default variant
func (r *Alternatives[P]) resolve(key string) (*Variant[P], bool, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if key == "" {
		if r.defaultKey == "" {
			return nil, false, errors.WithHintf(
				errors.WithMessagef(ErrNoDefault, "%s", r.id),
				"mark one of the variants as default: %s", strings.Join(r.keys(), ", "))
		}
		v, _ := r.variants.Get(r.defaultKey)
		return v, true, nil
	}

	// the router must be resolvable before any key is resolved
	if r.defaultKey == "" {
		return nil, false, errors.WithMessagef(ErrNoDefault, "%s", r.id)
	}

	v, ok := r.variants.Get(key)
	if !ok {
		metricskey.StatsUnknownVariant.IncrCounter(1, r.id)
		return nil, false, errors.WithHintf(
			errors.WithMessagef(ErrUnknownVariant, "%s: %q", r.id, key),
			"valid values for %s: %s", r.id, strings.Join(r.keys(), ", "))
	}
	return v, v.Key == r.defaultKey, nil
}

// Invoke resolves the variant for key and executes it with the input.
// The call is a single attempt, errors are returned as is.
func (r *Alternatives[P]) Invoke(ctx context.Context, input, key string, exec Executor[P]) (*InvocationResult, error) {
	started := time.Now()
	defer metricskey.PerfInvocation.MeasureSince(started, r.id)

	v, isDefault, err := r.resolve(key)
	if err != nil {
		return nil, err
	}
	if key == "" {
		metricskey.StatsInvocationsDefaulted.IncrCounter(1, r.id)
	}

	text, err := exec.Execute(ctx, v, input)
	if err != nil {
		metricskey.StatsInvocationsFailed.IncrCounter(1, r.id, v.Key)
		logger.ContextKV(ctx, xlog.ERROR,
			"router", r.id,
			"variant", v.Key,
			"err", err.Error())
		return nil, err
	}
	metricskey.StatsInvocationsSucceeded.IncrCounter(1, r.id, v.Key)

	res := &InvocationResult{
		Key:      v.Key,
		Text:     text,
		Default:  isDefault,
		Duration: time.Since(started),
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"router", r.id,
		"variant", v.Key,
		"default", res.Default,
		"elapsed", res.Duration.String())
	return res, nil
}

// DefaultKey returns the key of the default variant.
func (r *Alternatives[P]) DefaultKey() string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.defaultKey
}

// Keys returns the keys in registration order.
func (r *Alternatives[P]) Keys() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.keys()
}

func (r *Alternatives[P]) keys() []string {
	keys := make([]string, 0, r.variants.Len())
	for pair := r.variants.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of variants.
func (r *Alternatives[P]) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.variants.Len()
}

// Variants returns the variants in registration order.
func (r *Alternatives[P]) Variants() []*Variant[P] {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*Variant[P], 0, r.variants.Len())
	for pair := r.variants.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, pair.Value)
	}
	return list
}

// Validate returns an error if the router can not be resolved.
func (r *Alternatives[P]) Validate() error {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if r.variants.Len() == 0 {
		return errors.WithMessagef(ErrNoDefault, "%s: no variants registered", r.id)
	}
	if r.defaultKey == "" {
		return errors.WithMessagef(ErrNoDefault, "%s", r.id)
	}
	return nil
}
