// Package llms provides unified support for interacting with text generation
// backends from various providers.
//
// Each subpackage includes a provider-specific implementation of the Model
// interface. The `llms.go` file contains the types and interfaces shared by
// the providers, and `options.go` the per call options: model, sampling
// temperature, max tokens and friends.
package llms
