package chain

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/pkg/llmfactory"
	"github.com/effective-security/xlog"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrAppNotFound is returned when the app is not registered
var ErrAppNotFound = errors.New("app not found")

// Registry holds the configured apps
type Registry struct {
	apps *orderedmap.OrderedMap[string, *Chain]
}

// NewRegistry builds the apps of the configuration
func NewRegistry(cfg *Config, factory llmfactory.Factory, opts ...Option) (*Registry, error) {
	r := &Registry{
		apps: orderedmap.New[string, *Chain](),
	}
	for _, app := range cfg.Apps {
		c, err := app.Build(factory, opts...)
		if err != nil {
			return nil, err
		}
		if err = r.Add(c); err != nil {
			return nil, err
		}
		logger.KV(xlog.DEBUG,
			"status", "app_loaded",
			"app", c.Name(),
			"backends", c.backends.Keys(),
			"samplings", c.sampling.Keys(),
			"prompts", c.prompts.Keys())
	}
	return r, nil
}

// Add registers the app
func (r *Registry) Add(c *Chain) error {
	if _, ok := r.apps.Get(c.Name()); ok {
		return errors.Errorf("duplicate app: %q", c.Name())
	}
	r.apps.Set(c.Name(), c)
	return nil
}

// Get returns the app by name
func (r *Registry) Get(name string) (*Chain, error) {
	c, ok := r.apps.Get(name)
	if !ok {
		return nil, errors.WithHintf(
			errors.WithMessagef(ErrAppNotFound, "%q", name),
			"available apps: %s", strings.Join(r.Names(), ", "))
	}
	return c, nil
}

// Names returns the app names in configuration order
func (r *Registry) Names() []string {
	names := make([]string, 0, r.apps.Len())
	for pair := r.apps.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Describe returns the descriptions of all apps
func (r *Registry) Describe() []*Description {
	list := make([]*Description, 0, r.apps.Len())
	for pair := r.apps.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, pair.Value.Describe())
	}
	return list
}
