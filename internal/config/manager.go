package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("INSURELENS")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// The config file is optional; defaults plus env vars form a complete
	// configuration on their own.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// no file, use defaults
		} else if os.IsNotExist(err) {
			// no file, use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.grpc_port", defaults.Server.GRPCPort)
	m.viper.SetDefault("server.tls_enabled", defaults.Server.TLSEnabled)
	m.viper.SetDefault("server.tls_cert_path", defaults.Server.TLSCertPath)
	m.viper.SetDefault("server.tls_key_path", defaults.Server.TLSKeyPath)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.rate_limit_per_min", defaults.Server.RateLimitPerMin)

	// LLM defaults
	m.viper.SetDefault("llm.provider", defaults.LLM.Provider)
	m.viper.SetDefault("llm.openai", defaults.LLM.OpenAI)
	m.viper.SetDefault("llm.ollama", defaults.LLM.Ollama)
	m.viper.SetDefault("llm.timeout_seconds", defaults.LLM.TimeoutSeconds)

	// Search defaults
	m.viper.SetDefault("search.base_url", defaults.Search.BaseURL)
	m.viper.SetDefault("search.api_key", defaults.Search.APIKey)
	m.viper.SetDefault("search.timeout_seconds", defaults.Search.TimeoutSeconds)
	m.viper.SetDefault("search.top_k", defaults.Search.TopK)
	m.viper.SetDefault("search.cache_ttl_seconds", defaults.Search.CacheTTLSeconds)

	// Rate table defaults
	m.viper.SetDefault("ratetables.dir", defaults.RateTables.Dir)
	m.viper.SetDefault("ratetables.watch", defaults.RateTables.Watch)
	m.viper.SetDefault("ratetables.reload_debounce_ms", defaults.RateTables.ReloadDebounceMs)

	// Router defaults
	m.viper.SetDefault("router.max_query_len", defaults.Router.MaxQueryLen)

	// Reasoning defaults
	m.viper.SetDefault("reasoning.max_iterations", defaults.Reasoning.MaxIterations)
	m.viper.SetDefault("reasoning.observation_max_chars", defaults.Reasoning.ObservationMaxChars)
	m.viper.SetDefault("reasoning.max_executions", defaults.Reasoning.MaxExecutions)

	// Session defaults
	m.viper.SetDefault("session.max_turns", defaults.Session.MaxTurns)
	m.viper.SetDefault("session.context_turns", defaults.Session.ContextTurns)

	// Database defaults
	m.viper.SetDefault("database.type", defaults.Database.Type)
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.audit_dir", defaults.Logging.AuditDir)

	// Budget defaults
	m.viper.SetDefault("budget.per_conversation_token_limit", defaults.Budget.PerConversationTokenLimit)
	m.viper.SetDefault("budget.global_monthly_budget", defaults.Budget.GlobalMonthlyBudget)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.GRPCPort = m.viper.GetInt("server.grpc_port")
	cfg.Server.TLSEnabled = m.viper.GetBool("server.tls_enabled")
	cfg.Server.TLSCertPath = m.viper.GetString("server.tls_cert_path")
	cfg.Server.TLSKeyPath = m.viper.GetString("server.tls_key_path")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.RateLimitPerMin = m.viper.GetInt("server.rate_limit_per_min")

	// LLM
	cfg.LLM.Provider = m.viper.GetString("llm.provider")
	cfg.LLM.OpenAI = m.viper.GetStringMap("llm.openai")
	cfg.LLM.Ollama = m.viper.GetStringMap("llm.ollama")
	cfg.LLM.TimeoutSeconds = m.viper.GetInt("llm.timeout_seconds")

	// Search
	cfg.Search.BaseURL = m.viper.GetString("search.base_url")
	cfg.Search.APIKey = m.viper.GetString("search.api_key")
	cfg.Search.TimeoutSeconds = m.viper.GetInt("search.timeout_seconds")
	cfg.Search.TopK = m.viper.GetInt("search.top_k")
	cfg.Search.CacheTTLSeconds = m.viper.GetInt("search.cache_ttl_seconds")

	// Rate tables
	cfg.RateTables.Dir = m.viper.GetString("ratetables.dir")
	cfg.RateTables.Watch = m.viper.GetBool("ratetables.watch")
	cfg.RateTables.ReloadDebounceMs = m.viper.GetInt("ratetables.reload_debounce_ms")

	// Router
	cfg.Router.MaxQueryLen = m.viper.GetInt("router.max_query_len")

	// Reasoning
	cfg.Reasoning.MaxIterations = m.viper.GetInt("reasoning.max_iterations")
	cfg.Reasoning.ObservationMaxChars = m.viper.GetInt("reasoning.observation_max_chars")
	cfg.Reasoning.MaxExecutions = m.viper.GetInt("reasoning.max_executions")

	// Session
	cfg.Session.MaxTurns = m.viper.GetInt("session.max_turns")
	cfg.Session.ContextTurns = m.viper.GetInt("session.context_turns")

	// Database
	cfg.Database.Type = m.viper.GetString("database.type")
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AuditDir = m.viper.GetString("logging.audit_dir")

	// Budget
	cfg.Budget.PerConversationTokenLimit = m.viper.GetInt("budget.per_conversation_token_limit")
	cfg.Budget.GlobalMonthlyBudget = m.viper.GetFloat64("budget.global_monthly_budget")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
func (m *viperConfigManager) applyEnvOverrides() {
	// OpenAI API key from environment
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if m.config.LLM.OpenAI == nil {
			m.config.LLM.OpenAI = make(map[string]interface{})
		}
		m.config.LLM.OpenAI["api_key"] = apiKey
	}

	// Ollama base URL from environment
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if m.config.LLM.Ollama == nil {
			m.config.LLM.Ollama = make(map[string]interface{})
		}
		m.config.LLM.Ollama["base_url"] = baseURL
	}

	// Search service key from environment
	if apiKey := os.Getenv("INSURELENS_SEARCH_API_KEY"); apiKey != "" {
		m.config.Search.APIKey = apiKey
	}

	// Rate table directory from environment
	if dir := os.Getenv("INSURELENS_RATETABLES_DIR"); dir != "" {
		m.config.RateTables.Dir = dir
	}

	// Port from environment, only override if explicitly set
	if portEnv := os.Getenv("INSURELENS_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("port")
	}
}
