package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/audit"
	"github.com/insurelens/insurelens-ai/internal/cache"
	"github.com/insurelens/insurelens-ai/internal/catalog"
	"github.com/insurelens/insurelens-ai/internal/config"
	"github.com/insurelens/insurelens-ai/internal/db"
	"github.com/insurelens/insurelens-ai/internal/llm/adapter"
	"github.com/insurelens/insurelens-ai/internal/llm/budget"
	"github.com/insurelens/insurelens-ai/internal/memory/session"
	"github.com/insurelens/insurelens-ai/internal/middleware"
	"github.com/insurelens/insurelens-ai/internal/premium"
	"github.com/insurelens/insurelens-ai/internal/ratetable"
	"github.com/insurelens/insurelens-ai/internal/reasoning"
	reasoningContext "github.com/insurelens/insurelens-ai/internal/reasoning/context"
	"github.com/insurelens/insurelens-ai/internal/router"
	"github.com/insurelens/insurelens-ai/internal/search"
	"github.com/insurelens/insurelens-ai/internal/tools"
)

// Package server assembles every component and serves the REST, WebSocket
// and gRPC health surfaces.
//
// Responsibilities:
//   - Build the component graph from configuration: store, audit trail,
//     rate tables, tool registry, session memory, budget tracker, LLM
//     adapter, router and reasoning engine
//   - Serve the query endpoints in both modes, the premium and catalog
//     endpoints, session and execution surfaces, stats and metrics
//   - Stream reasoning executions over WebSocket
//   - Answer gRPC health checks for the platform's probes
//   - Degrade rather than refuse: the server starts without LLM
//     credentials and without rate tables; affected endpoints answer
//     503 or errors while the rest keep serving

// Version is reported by the info endpoint.
const Version = "0.1.0"

// Server is the insurelens-ai process: the component graph plus the HTTP
// and gRPC listeners.
type Server struct {
	config *config.Config
	log    *zap.Logger

	// Core components
	store      db.Store
	auditLog   audit.Logger
	tables     *ratetable.Cache
	catalog    *catalog.Catalog
	calculator *premium.Calculator
	searcher   search.Searcher
	registry   *tools.Registry
	sessions   session.Store
	classifier *reasoning.Classifier
	tracker    budget.Tracker
	llmAdapter adapter.Adapter
	router     *router.Router
	engine     reasoning.Engine

	// HTTP plumbing
	httpServer *http.Server
	limiter    *middleware.RateLimiter
	upgrader   websocket.Upgrader

	// gRPC health surface
	grpc *grpcHealth

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
}

// NewServer builds a fully wired server from configuration. The log may be
// nil. Construction fails only on broken local state (database, audit sinks,
// tool registration); missing LLM credentials and an empty rate table
// directory leave the server degraded, not dead.
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		config:  cfg,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		running: false,
	}

	if err := srv.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return srv, nil
}

// initializeComponents initializes all server components.
func (s *Server) initializeComponents() error {
	cfg := s.config

	// 1. Persistent store
	store, err := db.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	s.store = store

	// 2. Audit trail
	auditCfg := audit.DefaultConfig()
	if dir := cfg.Logging.AuditDir; dir != "" {
		auditCfg.AuditLogPath = filepath.Join(dir, "audit.log")
		auditCfg.AppLogPath = filepath.Join(dir, "app.log")
	}
	auditCfg.LogLevel = cfg.Logging.Level
	auditLog, err := audit.NewLogger(auditCfg, store)
	if err != nil {
		return fmt.Errorf("initializing audit trail: %w", err)
	}
	s.auditLog = auditLog

	// 3. Rate tables. A missing or empty directory is not fatal: pricing
	// fails per request until workbooks arrive and a reload succeeds.
	debounce := time.Duration(cfg.RateTables.ReloadDebounceMs) * time.Millisecond
	s.tables = ratetable.NewCache(cfg.RateTables.Dir, debounce, s.log.Named("ratetable"))
	if err := s.tables.LoadDir(s.ctx); err != nil {
		s.log.Warn("rate tables not loaded",
			zap.String("dir", cfg.RateTables.Dir),
			zap.Error(err))
	}
	s.catalog = catalog.NewCatalog(s.tables)
	s.calculator = premium.NewCalculator(s.tables)

	// 4. Document index. Without a configured endpoint retrieval runs
	// against the in-memory store, which serves nothing until loaded.
	if cfg.Search.BaseURL != "" {
		searchCache := cache.NewCache("search", 512, 5*time.Minute)
		s.searcher = search.NewClient(search.Config{
			BaseURL:         cfg.Search.BaseURL,
			APIKey:          cfg.Search.APIKey,
			Timeout:         time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
			TopK:            cfg.Search.TopK,
			CacheTTLSeconds: cfg.Search.CacheTTLSeconds,
		}, searchCache, s.log.Named("search"))
	} else {
		s.searcher = search.NewMemStore()
	}

	// 5. Tool registry
	s.registry = tools.NewRegistry(s.auditLog, s.log.Named("tools"))
	if err := tools.RegisterPremiumCalculator(s.registry, s.calculator, s.store, s.auditLog, s.log.Named("tools")); err != nil {
		return fmt.Errorf("registering premium calculator: %w", err)
	}
	if err := tools.RegisterPolicyComparator(s.registry, s.calculator); err != nil {
		return fmt.Errorf("registering policy comparator: %w", err)
	}
	if err := tools.RegisterListProducts(s.registry, s.catalog); err != nil {
		return fmt.Errorf("registering list products: %w", err)
	}
	if err := tools.RegisterDocumentRetriever(s.registry, s.searcher); err != nil {
		return fmt.Errorf("registering document retriever: %w", err)
	}

	// 6. Session memory
	s.sessions = session.NewStore(store, s.auditLog, cfg.Session.MaxTurns, s.log.Named("session"))

	// 7. Classifier, warmed from learned patterns
	s.classifier = reasoning.NewClassifier(store, s.log.Named("classifier"))
	if err := s.classifier.LoadPatterns(s.ctx); err != nil {
		s.log.Warn("learned patterns not loaded", zap.Error(err))
	}

	// 8. Token budget
	s.tracker = budget.NewTracker(store, budget.Limits{
		PerConversationTokens: cfg.Budget.PerConversationTokenLimit,
		GlobalMonthlyUSD:      cfg.Budget.GlobalMonthlyBudget,
	})

	// 9. LLM adapter. Missing credentials produce an unconfigured adapter;
	// reasoning and completion endpoints answer 503 until it is configured.
	llmAdapter, err := adapter.NewAdapter(s.llmAdapterConfig())
	if err != nil {
		return fmt.Errorf("initializing llm adapter: %w", err)
	}
	s.llmAdapter = llmAdapter
	if !llmAdapter.Configured() {
		s.log.Warn("llm provider not configured; reasoning and completion endpoints degraded")
	}

	// 10. Router and reasoning engine
	s.router = router.New(s.registry, s.catalog, s.sessions, s.auditLog, router.Config{
		MaxQueryLen:  cfg.Router.MaxQueryLen,
		ContextTurns: cfg.Session.ContextTurns,
	}, s.log.Named("router"))

	contexts := reasoningContext.NewBuilder(s.sessions, cfg.Session.ContextTurns)
	s.engine = reasoning.New(s.llmAdapter, s.registry, s.classifier, contexts, s.auditLog, s.tracker, reasoning.Config{
		MaxIterations:       cfg.Reasoning.MaxIterations,
		MaxExecutions:       cfg.Reasoning.MaxExecutions,
		ObservationMaxChars: cfg.Reasoning.ObservationMaxChars,
		ThinkTimeout:        time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}, s.log.Named("reasoning"))

	// 11. HTTP plumbing
	s.limiter = middleware.NewRateLimiter(cfg.Server.RateLimitPerMin, s.log.Named("ratelimit"))
	s.upgrader = newUpgrader(cfg.Server.AllowedOrigins)

	return nil
}

// llmAdapterConfig maps the provider section of the configuration onto the
// adapter's settings.
func (s *Server) llmAdapterConfig() *adapter.Config {
	llmCfg := &adapter.Config{Provider: adapter.ProviderType(s.config.LLM.Provider)}

	section := s.config.LLM.OpenAI
	if llmCfg.Provider == adapter.ProviderOllama {
		section = s.config.LLM.Ollama
	}
	if v, ok := section["api_key"].(string); ok {
		llmCfg.APIKey = v
	}
	if v, ok := section["base_url"].(string); ok {
		llmCfg.BaseURL = v
	}
	if v, ok := section["model"].(string); ok {
		llmCfg.Model = v
	}
	return llmCfg
}

// Start starts the HTTP listener, the gRPC health listener and the rate
// table watcher.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      middleware.AccessLog(s.log, s.limiter.Wrap(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		if s.config.Server.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.config.Server.TLSCertPath, s.config.Server.TLSKeyPath)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", zap.Error(err))
		}
	}()

	if s.config.RateTables.Watch {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tables.Watch(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn("rate table watcher stopped", zap.Error(err))
			}
		}()
	}

	if s.config.Server.GRPCPort > 0 {
		g, err := newGRPCHealth(s.config.Server.GRPCPort, s.log.Named("grpc"))
		if err != nil {
			return fmt.Errorf("starting grpc health listener: %w", err)
		}
		g.SetComponent("ratetables", len(s.catalog.List()) > 0)
		g.SetComponent("llm", s.llmAdapter.Configured())
		s.grpc = g
	}

	s.log.Info("server started",
		zap.Int("http_port", s.config.Server.Port),
		zap.Int("grpc_port", s.config.Server.GRPCPort),
		zap.Bool("tls", s.config.Server.TLSEnabled),
		zap.Bool("llm_configured", s.llmAdapter.Configured()),
		zap.Int("products", len(s.catalog.List())))

	return nil
}

// Stop gracefully stops the server and releases every component.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("stopping server")

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http shutdown", zap.Error(err))
		}
	}
	if s.grpc != nil {
		s.grpc.Stop()
	}

	s.cancel()
	s.wg.Wait()

	s.limiter.Stop()
	if err := s.auditLog.Close(); err != nil {
		s.log.Warn("closing audit trail", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn("closing store", zap.Error(err))
	}

	s.log.Info("server stopped")
	return nil
}

// Wait blocks until the server is stopped.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// registerHandlers registers HTTP handlers.
func (s *Server) registerHandlers(mux *http.ServeMux) {
	// Probes and metadata
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/info", s.handleInfo)
	mux.Handle("/metrics", promhttp.Handler())

	// Query surface
	mux.HandleFunc("/api/v1/query", s.handleQuery)
	mux.HandleFunc("/ws/query", s.handleWSQuery)

	// Premium surface
	mux.HandleFunc("/api/v1/premium/calculate", s.handlePremiumCalculate)
	mux.HandleFunc("/api/v1/premium/compare", s.handlePremiumCompare)

	// Catalog surface
	mux.HandleFunc("/api/v1/products", s.handleProducts)
	mux.HandleFunc("/api/v1/products/", s.handleProductItem)

	// Session surface
	mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", s.handleSessionItem)

	// Trace surface
	mux.HandleFunc("/api/v1/reasoning/executions", s.handleExecutions)
	mux.HandleFunc("/api/v1/reasoning/executions/", s.handleExecutionItem)

	// Operational surface
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/stats/reset", s.handleStatsReset)
	mux.HandleFunc("/api/v1/llm/complete", s.handleLLMComplete)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `"}`))
}

// handleReady handles readiness check requests. The server is ready as soon
// as its local components are up; a degraded LLM does not block readiness
// because the deterministic route path still serves.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	ready := s.running && s.store != nil && s.registry != nil
	s.mu.RUnlock()

	if ready {
		if err := s.store.Ping(r.Context()); err != nil {
			s.log.Warn("readiness ping failed", zap.Error(err))
			ready = false
		}
	}

	if !ready {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not_ready"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready","timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `"}`))
}

// handleInfo handles info requests.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.catalog.Stats()
	info := fmt.Sprintf(`{"name":"insurelens-ai","version":%q,"llm_provider":%q,"llm_configured":%v,"products":%d,"rate_tables":%d,"timestamp":%q}`,
		Version,
		string(s.llmAdapter.Provider()),
		s.llmAdapter.Configured(),
		stats.Products,
		stats.Tables,
		time.Now().UTC().Format(time.RFC3339),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(info))
}
