package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
// Missing LLM credentials are not an error; they leave LLM.Configured false
// and the server degrades LLM-dependent endpoints to 503.
func (c *Config) Validate() []error {
	var errs []error

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}
	if c.Server.GRPCPort != 0 && (c.Server.GRPCPort < 1 || c.Server.GRPCPort > 65535) {
		errs = append(errs, &ValidationError{
			Field:   "server.grpc_port",
			Message: fmt.Sprintf("grpc_port must be between 1 and 65535, got %d", c.Server.GRPCPort),
		})
	}
	if c.Server.RateLimitPerMin < 0 {
		errs = append(errs, &ValidationError{
			Field:   "server.rate_limit_per_min",
			Message: fmt.Sprintf("rate_limit_per_min must not be negative, got %d", c.Server.RateLimitPerMin),
		})
	}

	if c.Server.TLSEnabled {
		if c.Server.TLSCertPath == "" {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_cert_path",
				Message: "tls_cert_path is required when tls_enabled is true",
			})
		} else if _, err := os.Stat(c.Server.TLSCertPath); os.IsNotExist(err) {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_cert_path",
				Message: fmt.Sprintf("certificate file does not exist: %s", c.Server.TLSCertPath),
			})
		}

		if c.Server.TLSKeyPath == "" {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_key_path",
				Message: "tls_key_path is required when tls_enabled is true",
			})
		} else if _, err := os.Stat(c.Server.TLSKeyPath); os.IsNotExist(err) {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_key_path",
				Message: fmt.Sprintf("key file does not exist: %s", c.Server.TLSKeyPath),
			})
		}
	}

	// LLM
	validProviders := map[string]bool{
		"openai": true,
		"ollama": true,
	}
	if !validProviders[c.LLM.Provider] {
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: openai, ollama", c.LLM.Provider),
		})
	}

	switch c.LLM.Provider {
	case "openai":
		hasKey := false
		if apiKey, ok := c.LLM.OpenAI["api_key"].(string); ok && apiKey != "" {
			hasKey = true
		} else if os.Getenv("OPENAI_API_KEY") != "" {
			hasKey = true
		}
		c.LLM.Configured = hasKey

		if hasKey {
			if model, ok := c.LLM.OpenAI["model"].(string); !ok || model == "" {
				errs = append(errs, &ValidationError{
					Field:   "llm.openai.model",
					Message: "OpenAI model is required",
				})
			}
		}

	case "ollama":
		// Ollama needs no credentials; a reachable base URL is enough.
		c.LLM.Configured = true

		if baseURL, ok := c.LLM.Ollama["base_url"].(string); !ok || baseURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.ollama.base_url",
				Message: "Ollama base URL is required",
			})
		}
		if model, ok := c.LLM.Ollama["model"].(string); !ok || model == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.ollama.model",
				Message: "Ollama model is required",
			})
		}
	}

	if c.LLM.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.timeout_seconds",
			Message: fmt.Sprintf("timeout must be at least 1 second, got %d", c.LLM.TimeoutSeconds),
		})
	}

	// Search collaborator
	if c.Search.BaseURL != "" {
		if u, err := url.Parse(c.Search.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, &ValidationError{
				Field:   "search.base_url",
				Message: fmt.Sprintf("invalid URL: %s", c.Search.BaseURL),
			})
		}
	}
	if c.Search.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "search.timeout_seconds",
			Message: fmt.Sprintf("timeout must be at least 1 second, got %d", c.Search.TimeoutSeconds),
		})
	}
	if c.Search.TopK < 1 || c.Search.TopK > 50 {
		errs = append(errs, &ValidationError{
			Field:   "search.top_k",
			Message: fmt.Sprintf("top_k must be between 1 and 50, got %d", c.Search.TopK),
		})
	}

	// Rate tables
	if c.RateTables.Dir == "" {
		errs = append(errs, &ValidationError{
			Field:   "ratetables.dir",
			Message: "rate table directory is required",
		})
	}
	if c.RateTables.ReloadDebounceMs < 0 {
		errs = append(errs, &ValidationError{
			Field:   "ratetables.reload_debounce_ms",
			Message: fmt.Sprintf("debounce cannot be negative, got %d", c.RateTables.ReloadDebounceMs),
		})
	}

	// Router
	if c.Router.MaxQueryLen < 1 {
		errs = append(errs, &ValidationError{
			Field:   "router.max_query_len",
			Message: fmt.Sprintf("max_query_len must be at least 1, got %d", c.Router.MaxQueryLen),
		})
	}

	// Reasoning
	if c.Reasoning.MaxIterations < 1 || c.Reasoning.MaxIterations > 10 {
		errs = append(errs, &ValidationError{
			Field:   "reasoning.max_iterations",
			Message: fmt.Sprintf("max_iterations must be between 1 and 10, got %d", c.Reasoning.MaxIterations),
		})
	}
	if c.Reasoning.ObservationMaxChars < 100 {
		errs = append(errs, &ValidationError{
			Field:   "reasoning.observation_max_chars",
			Message: fmt.Sprintf("observation_max_chars must be at least 100, got %d", c.Reasoning.ObservationMaxChars),
		})
	}
	if c.Reasoning.MaxExecutions < 1 {
		errs = append(errs, &ValidationError{
			Field:   "reasoning.max_executions",
			Message: fmt.Sprintf("max_executions must be at least 1, got %d", c.Reasoning.MaxExecutions),
		})
	}

	// Session
	if c.Session.MaxTurns < 1 {
		errs = append(errs, &ValidationError{
			Field:   "session.max_turns",
			Message: fmt.Sprintf("max_turns must be at least 1, got %d", c.Session.MaxTurns),
		})
	}
	if c.Session.ContextTurns < 0 || c.Session.ContextTurns > c.Session.MaxTurns {
		errs = append(errs, &ValidationError{
			Field:   "session.context_turns",
			Message: fmt.Sprintf("context_turns must be between 0 and max_turns, got %d", c.Session.ContextTurns),
		})
	}

	// Database
	if c.Database.Type != "sqlite" {
		errs = append(errs, &ValidationError{
			Field:   "database.type",
			Message: fmt.Sprintf("invalid database type '%s', must be: sqlite", c.Database.Type),
		})
	}
	if c.Database.Type == "sqlite" && c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required when database type is sqlite",
		})
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, console", c.Logging.Format),
		})
	}

	// Budget
	if c.Budget.PerConversationTokenLimit < 0 {
		errs = append(errs, &ValidationError{
			Field:   "budget.per_conversation_token_limit",
			Message: fmt.Sprintf("per_conversation_token_limit cannot be negative, got %d", c.Budget.PerConversationTokenLimit),
		})
	}
	if c.Budget.GlobalMonthlyBudget < 0 {
		errs = append(errs, &ValidationError{
			Field:   "budget.global_monthly_budget",
			Message: fmt.Sprintf("global_monthly_budget cannot be negative, got %.2f", c.Budget.GlobalMonthlyBudget),
		})
	}

	return errs
}
