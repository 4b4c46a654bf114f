// Package configurable provides a router over named alternatives.
//
// An Alternatives router holds a set of variants, each identified by a key,
// and one default variant. At invocation time a key selects the variant:
// an empty key selects the default, a key that is not registered fails
// with ErrUnknownVariant.
//
//	r, err := configurable.NewWithDefault("prompt_type", "concise", concise,
//		map[string]*prompts.ChatPromptTemplate{"verbose": verbose})
//	v, err := r.Resolve("verbose")
//
// Variants are registered at construction and never mutated.
package configurable
