// Package chain composes a prompt template and a backend into a runnable app.
//
// Each app has three axes, every axis is a configurable router:
//
//   - prompt: the template rendered with the request input
//   - backend: the provider and the model that generate the text
//   - sampling: temperature and max tokens, with optional per call overrides
//
// The three demo apps are model_selector, temperature_tuner and prompt_switcher,
// see DefaultConfig.
package chain
