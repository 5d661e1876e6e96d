package adapter

import (
	"context"

	"github.com/insurelens/insurelens-ai/internal/llm/types"
)

// Package adapter provides a unified completion interface over LLM
// providers.
//
// Responsibilities:
//   - Abstract provider differences behind a single Adapter interface
//   - Support non-streaming and streaming completion modes
//   - Record request metrics (count, duration, tokens) per provider/model
//   - Degrade gracefully when no provider is configured: the adapter is
//     still constructed, and calls return ErrProviderNotConfigured so the
//     transport layer can answer 503
//
// Supported providers:
//   1. OpenAI: any chat-completions model (gpt-4o, gpt-4o-mini, ...)
//   2. Ollama: any locally hosted model (llama3, mistral, ...)
//
// Tool selection is not part of this surface. The intent router decides
// which tool runs before the model is consulted, so providers only ever
// see plain message completions.

// Adapter is the unified interface over LLM providers.
type Adapter interface {
	// Complete sends the conversation and returns the full completion with
	// token usage from the provider.
	Complete(ctx context.Context, messages []types.Message) (types.CompletionResponse, error)

	// CompleteStream sends the conversation and streams the completion.
	// The channel closes after a Done chunk (carrying usage) or an Err
	// chunk.
	CompleteStream(ctx context.Context, messages []types.Message) (<-chan types.StreamChunk, error)

	// CountTokens estimates token usage for a pre-flight budget check.
	CountTokens(ctx context.Context, messages []types.Message) (int, error)

	// Capabilities reports the configured provider's model and limits.
	Capabilities() types.Capabilities

	// Provider returns the configured provider type.
	Provider() ProviderType

	// Configured reports whether a provider is ready to serve completions.
	Configured() bool
}
