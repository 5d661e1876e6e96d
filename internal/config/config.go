package config

import "context"

// Package config provides configuration management for insurelens-ai.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading for settings that allow it
//   - Manage sensitive data (API keys)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (INSURELENS_* prefix)
//   2. YAML config file (default: /etc/insurelens/config.yaml)
//   3. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server
//      - port: HTTP listen port (default 8081)
//      - grpc_port: gRPC health listen port (default 9091)
//      - tls_enabled / tls_cert_path / tls_key_path
//      - allowed_origins: origins permitted to open WebSocket connections
//      - rate_limit_per_min: per-client request ceiling, 0 disables
//
//   2. LLM Provider
//      - provider: "openai" | "ollama"
//      - openai: api_key, model, base_url, max_tokens
//      - ollama: base_url, model
//      - timeout_seconds: per-completion deadline
//
//   3. Search (document index collaborator)
//      - base_url: REST endpoint of the index service
//      - api_key: optional bearer key
//      - timeout_seconds, top_k, cache_ttl_seconds
//
//   4. RateTables
//      - dir: directory holding product rate workbooks (*.xlsx)
//      - watch: reload tables when workbooks change on disk
//      - reload_debounce_ms: settle time before a triggered reload
//
//   5. Router
//      - max_query_len: queries longer than this are rejected
//
//   6. Reasoning
//      - max_iterations: hard cap on Thought/Action/Observation cycles
//      - observation_max_chars: truncation bound for tool observations
//      - max_executions: recent executions retained for the trace surface
//
//   7. Session
//      - max_turns: conversation history bound (turn pairs)
//      - context_turns: turns injected into prompts for follow-ups
//
//   8. Database
//      - type: "sqlite"
//      - sqlite_path: path to SQLite file
//
//   9. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "console"
//      - audit_dir: directory for app.log / audit.log
//
//  10. Budget
//      - per_conversation_token_limit: 0 means no limit
//      - global_monthly_budget: spend ceiling in USD, 0 means no limit
//
// Config struct contains all configuration fields
type Config struct {
	// Server configuration
	Server struct {
		Port        int
		GRPCPort    int
		TLSEnabled  bool
		TLSCertPath string
		TLSKeyPath  string
		// AllowedOrigins is a list of origins permitted to open WebSocket
		// connections. Use ["*"] to allow any origin (development only).
		// If empty, defaults to ["http://localhost:3000", "http://localhost:5173"].
		AllowedOrigins []string
		// RateLimitPerMin caps requests per client IP per minute. 0 disables.
		RateLimitPerMin int
	}

	// LLM provider configuration
	LLM struct {
		Provider       string
		OpenAI         map[string]interface{}
		Ollama         map[string]interface{}
		TimeoutSeconds int
		// Configured is derived during validation: true when the active
		// provider has the credentials it needs. The server starts without
		// them and answers LLM-dependent requests with 503.
		Configured bool
	}

	// Search collaborator configuration
	Search struct {
		BaseURL         string
		APIKey          string
		TimeoutSeconds  int
		TopK            int
		CacheTTLSeconds int
	}

	// Rate table configuration
	RateTables struct {
		Dir              string
		Watch            bool
		ReloadDebounceMs int
	}

	// Router configuration
	Router struct {
		MaxQueryLen int
	}

	// Reasoning engine configuration
	Reasoning struct {
		MaxIterations       int
		ObservationMaxChars int
		MaxExecutions       int
	}

	// Session memory configuration
	Session struct {
		MaxTurns     int
		ContextTurns int
	}

	// Database configuration
	Database struct {
		Type       string
		SQLitePath string
	}

	// Logging configuration
	Logging struct {
		Level    string
		Format   string
		AuditDir string
	}

	// Budget configuration
	Budget struct {
		PerConversationTokenLimit int
		GlobalMonthlyBudget       float64
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with the default
// config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/insurelens/config.yaml")
}
