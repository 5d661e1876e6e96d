package adapter

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/insurelens/insurelens-ai/internal/llm/provider/ollama"
	"github.com/insurelens/insurelens-ai/internal/llm/provider/openai"
	"github.com/insurelens/insurelens-ai/internal/llm/types"
	"github.com/insurelens/insurelens-ai/internal/metrics"
)

// ProviderType identifies which LLM provider is configured.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
	ProviderNone   ProviderType = "none"
)

// ErrProviderNotConfigured is returned when a completion is attempted
// without a configured provider. The server maps it to HTTP 503.
var ErrProviderNotConfigured = fmt.Errorf("llm provider not configured")

// Config selects and credentials a provider.
type Config struct {
	Provider ProviderType `json:"provider"`
	APIKey   string       `json:"api_key"`  // OpenAI
	BaseURL  string       `json:"base_url"` // Ollama
	Model    string       `json:"model"`
}

// completionClient is the method set both providers implement.
type completionClient interface {
	Complete(ctx context.Context, messages []types.Message) (types.CompletionResponse, error)
	CompleteStream(ctx context.Context, messages []types.Message) (<-chan types.StreamChunk, error)
	CountTokens(ctx context.Context, messages []types.Message) (int, error)
	Capabilities() types.Capabilities
}

type providerAdapter struct {
	provider ProviderType
	model    string
	client   completionClient
}

// NewAdapter creates an adapter from configuration. A nil config falls back
// to INSURELENS_LLM_* environment variables. Missing provider or
// credentials yield an unconfigured adapter, not an error: the service
// starts in degraded mode and answers LLM-dependent requests with 503
// until credentials are supplied.
func NewAdapter(cfg *Config) (Adapter, error) {
	if cfg == nil {
		cfg = &Config{
			Provider: ProviderType(os.Getenv("INSURELENS_LLM_PROVIDER")),
			APIKey:   os.Getenv("INSURELENS_LLM_API_KEY"),
			BaseURL:  os.Getenv("INSURELENS_LLM_BASE_URL"),
			Model:    os.Getenv("INSURELENS_LLM_MODEL"),
		}
	}

	switch cfg.Provider {
	case "", ProviderNone:
		return &providerAdapter{provider: ProviderNone}, nil

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return &providerAdapter{provider: ProviderNone}, nil
		}
		client, err := openai.NewClient(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		return &providerAdapter{provider: ProviderOpenAI, model: client.Capabilities().Model, client: client}, nil

	case ProviderOllama:
		client, err := ollama.NewClient(cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("creating ollama client: %w", err)
		}
		return &providerAdapter{provider: ProviderOllama, model: client.Capabilities().Model, client: client}, nil

	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// NewAdapterWithClient wraps a pre-built client. Used in tests.
func NewAdapterWithClient(provider ProviderType, client completionClient) Adapter {
	return &providerAdapter{provider: provider, model: client.Capabilities().Model, client: client}
}

func (a *providerAdapter) Complete(ctx context.Context, messages []types.Message) (types.CompletionResponse, error) {
	if a.provider == ProviderNone {
		return types.CompletionResponse{}, ErrProviderNotConfigured
	}

	start := time.Now()
	resp, err := a.client.Complete(ctx, messages)
	metrics.LLMRequestDuration.WithLabelValues(string(a.provider), a.model).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(string(a.provider), a.model, status).Inc()
	if err == nil {
		metrics.LLMTokensUsed.WithLabelValues(string(a.provider), a.model, "input").Add(float64(resp.Usage.InputTokens))
		metrics.LLMTokensUsed.WithLabelValues(string(a.provider), a.model, "output").Add(float64(resp.Usage.OutputTokens))
	}
	return resp, err
}

func (a *providerAdapter) CompleteStream(ctx context.Context, messages []types.Message) (<-chan types.StreamChunk, error) {
	if a.provider == ProviderNone {
		return nil, ErrProviderNotConfigured
	}

	start := time.Now()
	inner, err := a.client.CompleteStream(ctx, messages)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(string(a.provider), a.model, status).Inc()
	if err != nil {
		return nil, err
	}

	// Wrap the stream so duration covers the full response and token
	// metrics pick up the usage on the final chunk.
	out := make(chan types.StreamChunk, 16)
	go func() {
		defer close(out)
		for chunk := range inner {
			if chunk.Done {
				metrics.LLMRequestDuration.WithLabelValues(string(a.provider), a.model).Observe(time.Since(start).Seconds())
				metrics.LLMTokensUsed.WithLabelValues(string(a.provider), a.model, "input").Add(float64(chunk.Usage.InputTokens))
				metrics.LLMTokensUsed.WithLabelValues(string(a.provider), a.model, "output").Add(float64(chunk.Usage.OutputTokens))
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (a *providerAdapter) CountTokens(ctx context.Context, messages []types.Message) (int, error) {
	if a.provider == ProviderNone {
		return 0, ErrProviderNotConfigured
	}
	return a.client.CountTokens(ctx, messages)
}

func (a *providerAdapter) Capabilities() types.Capabilities {
	if a.provider == ProviderNone {
		return types.Capabilities{Provider: "none", Model: "none"}
	}
	return a.client.Capabilities()
}

func (a *providerAdapter) Provider() ProviderType { return a.provider }

func (a *providerAdapter) Configured() bool { return a.provider != ProviderNone }
