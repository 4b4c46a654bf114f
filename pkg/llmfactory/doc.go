// Package llmfactory provides factories and configuration for LLM model instantiation,
// supporting multiple providers (Ollama, OpenAI, Anthropic, etc.) and model selection by name.
package llmfactory
