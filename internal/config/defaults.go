package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8081
	cfg.Server.GRPCPort = 9091
	cfg.Server.TLSEnabled = false
	cfg.Server.TLSCertPath = ""
	cfg.Server.TLSKeyPath = ""
	cfg.Server.AllowedOrigins = nil
	cfg.Server.RateLimitPerMin = 120

	// LLM defaults
	cfg.LLM.Provider = "openai"
	cfg.LLM.OpenAI = map[string]interface{}{
		"model":      "gpt-4o",
		"max_tokens": 2048,
	}
	cfg.LLM.Ollama = map[string]interface{}{
		"base_url": "http://localhost:11434",
		"model":    "llama3",
	}
	cfg.LLM.TimeoutSeconds = 60

	// Search defaults
	cfg.Search.BaseURL = "http://localhost:8090"
	cfg.Search.APIKey = ""
	cfg.Search.TimeoutSeconds = 15
	cfg.Search.TopK = 5
	cfg.Search.CacheTTLSeconds = 120

	// Rate table defaults
	cfg.RateTables.Dir = "/var/lib/insurelens/ratetables"
	cfg.RateTables.Watch = true
	cfg.RateTables.ReloadDebounceMs = 500

	// Router defaults
	cfg.Router.MaxQueryLen = 2000

	// Reasoning defaults. The iteration cap is a hard ceiling, not a target;
	// most queries conclude in two or three cycles.
	cfg.Reasoning.MaxIterations = 10
	cfg.Reasoning.ObservationMaxChars = 500
	cfg.Reasoning.MaxExecutions = 100

	// Session defaults
	cfg.Session.MaxTurns = 50
	cfg.Session.ContextTurns = 3

	// Database defaults
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLitePath = "/var/lib/insurelens/insurelens-ai.db"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AuditDir = "/var/log/insurelens"

	// Budget defaults, 0 means no limit
	cfg.Budget.PerConversationTokenLimit = 0
	cfg.Budget.GlobalMonthlyBudget = 0.0

	return cfg
}
