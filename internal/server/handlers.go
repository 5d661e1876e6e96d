package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/catalog"
	"github.com/insurelens/insurelens-ai/internal/llm/adapter"
	"github.com/insurelens/insurelens-ai/internal/llm/budget"
	llmtypes "github.com/insurelens/insurelens-ai/internal/llm/types"
	"github.com/insurelens/insurelens-ai/internal/memory/session"
	"github.com/insurelens/insurelens-ai/internal/models"
	"github.com/insurelens/insurelens-ai/internal/premium"
	"github.com/insurelens/insurelens-ai/internal/ratetable"
	"github.com/insurelens/insurelens-ai/internal/reasoning"
	"github.com/insurelens/insurelens-ai/internal/router"
	"github.com/insurelens/insurelens-ai/internal/tools"
	api "github.com/insurelens/insurelens-ai/pkg/types"
)

// Query execution modes.
const (
	modeRoute = "route"
	modeReact = "react"
)

// ─── Response plumbing ──────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, api.ErrorResponse{Code: code, Message: message})
}

// errorStatus maps a domain error to its transport status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, premium.ErrInvalidInput),
		errors.Is(err, ratetable.ErrAgeOutOfRange),
		errors.Is(err, ratetable.ErrUnsupportedComposition),
		errors.Is(err, ratetable.ErrUnsupportedSumInsured):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, ratetable.ErrUnknownProduct):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, budget.ErrBudgetExceeded):
		return http.StatusTooManyRequests, "budget_exceeded"
	case errors.Is(err, adapter.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable, "llm_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// toolErrorStatus maps a tool result's error kind onto transport codes.
func toolErrorStatus(kind models.ErrorKind) (int, string) {
	switch kind {
	case models.ErrorKindValidation:
		return http.StatusBadRequest, "validation_error"
	case models.ErrorKindNotFound:
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// ─── Query surface ──────────────────────────────────────────────────────────

// handleQuery answers a natural-language question. Route mode classifies and
// dispatches exactly one tool; a tool failure still renders as an answer.
// React mode runs the reasoning loop and returns its trace.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body: "+err.Error())
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = modeRoute
	}
	if mode != modeRoute && mode != modeReact {
		writeError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "query is required")
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	if mode == modeRoute {
		s.serveRouteQuery(w, r, conversationID, req.Query)
		return
	}
	s.serveReactQuery(w, r, conversationID, req.Query)
}

func (s *Server) serveRouteQuery(w http.ResponseWriter, r *http.Request, conversationID, query string) {
	res, err := s.router.Route(r.Context(), conversationID, query)
	if err != nil {
		var noRoute *router.NoRouteMatchedError
		if errors.As(err, &noRoute) {
			writeError(w, http.StatusBadRequest, "validation_error", noRoute.Error())
			return
		}
		s.log.Error("route failed", zap.String("conversation_id", conversationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "query could not be served")
		return
	}

	s.appendTurns(r.Context(), conversationID, query, string(res.Decision.Intent), res.Answer)

	writeJSON(w, http.StatusOK, api.QueryResponse{
		ConversationID:    conversationID,
		Mode:              modeRoute,
		Answer:            res.Answer,
		Intent:            string(res.Decision.Intent),
		Tool:              res.Decision.Tool,
		Confidence:        res.Decision.Confidence,
		FilledFromHistory: res.Decision.FilledFromHistory,
		Data:              toolPayloadDTO(res.ToolResult.Payload),
		ElapsedMs:         res.Elapsed.Milliseconds(),
	})
}

func (s *Server) serveReactQuery(w http.ResponseWriter, r *http.Request, conversationID, query string) {
	if !s.llmAdapter.Configured() {
		writeError(w, http.StatusServiceUnavailable, "llm_unavailable", "llm provider not configured")
		return
	}
	if err := s.checkBudget(r.Context(), conversationID); err != nil {
		if errors.Is(err, budget.ErrBudgetExceeded) {
			writeError(w, http.StatusTooManyRequests, "budget_exceeded", err.Error())
			return
		}
		// The engine enforces the budget per model call regardless.
		s.log.Warn("budget pre-check unavailable", zap.Error(err))
	}

	exec, err := s.engine.Ask(r.Context(), reasoning.Request{ConversationID: conversationID, Query: query})
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if exec.State == reasoning.StateFailed {
		if strings.Contains(exec.Error, budget.ErrBudgetExceeded.Error()) {
			writeError(w, http.StatusTooManyRequests, "budget_exceeded", exec.Error)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", exec.Error)
		return
	}

	s.appendTurns(r.Context(), conversationID, query, string(exec.PredictedIntent), exec.FinalAnswer)

	trace := traceDTO(exec.Trace())
	writeJSON(w, http.StatusOK, api.QueryResponse{
		ConversationID: conversationID,
		Mode:           modeReact,
		Answer:         exec.FinalAnswer,
		ExecutionID:    exec.ID,
		Trace:          &trace,
		Incomplete:     exec.Incomplete,
		ElapsedMs:      exec.ElapsedMs,
	})
}

// checkBudget pre-checks both ceilings so an over-budget caller gets a clean
// 429 instead of a failed execution.
func (s *Server) checkBudget(ctx context.Context, conversationID string) error {
	if err := s.tracker.CheckGlobal(ctx); err != nil {
		return err
	}
	return s.tracker.CheckConversation(ctx, conversationID, 0)
}

// appendTurns records the user and assistant turns of one answered query.
// History failures degrade to a warning; the answer has already been formed.
func (s *Server) appendTurns(ctx context.Context, conversationID, query, intent, answer string) {
	if err := s.sessions.Append(ctx, conversationID, session.Turn{
		Role:    models.RoleUser,
		Content: query,
		Intent:  intent,
	}); err != nil {
		s.log.Warn("append user turn", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	if err := s.sessions.Append(ctx, conversationID, session.Turn{
		Role:    models.RoleAssistant,
		Content: answer,
	}); err != nil {
		s.log.Warn("append assistant turn", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

// ─── Premium surface ────────────────────────────────────────────────────────

// handlePremiumCalculate prices one policy. The call goes through the tool
// registry so REST quotes share the audit trail, quote persistence and retry
// behavior of routed ones.
func (s *Server) handlePremiumCalculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.PremiumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body: "+err.Error())
		return
	}

	result := s.registry.Invoke(r.Context(), models.ToolCall{
		ID:       uuid.NewString(),
		ToolName: tools.NamePremiumCalculator,
		Arguments: map[string]interface{}{
			"product":     req.Product,
			"policy_type": req.PolicyType,
			"ages":        agesArg(req.Members),
			"sum_insured": float64(req.SumInsured),
		},
		Timestamp: time.Now().UTC(),
	})
	if !result.Success {
		status, code := toolErrorStatus(result.ErrorKind)
		writeError(w, status, code, result.Error)
		return
	}

	quote, ok := result.Payload.(*premium.Quote)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected calculator payload")
		return
	}
	writeJSON(w, http.StatusOK, quoteDTO(quote))
}

// handlePremiumCompare prices the same members and cover across products.
func (s *Server) handlePremiumCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body: "+err.Error())
		return
	}

	products := make([]interface{}, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, p)
	}

	result := s.registry.Invoke(r.Context(), models.ToolCall{
		ID:       uuid.NewString(),
		ToolName: tools.NamePolicyComparator,
		Arguments: map[string]interface{}{
			"products":    products,
			"policy_type": req.PolicyType,
			"ages":        agesArg(req.Members),
			"sum_insured": float64(req.SumInsured),
		},
		Timestamp: time.Now().UTC(),
	})
	if !result.Success {
		status, code := toolErrorStatus(result.ErrorKind)
		writeError(w, status, code, result.Error)
		return
	}

	comparison, ok := result.Payload.(*premium.Comparison)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected comparator payload")
		return
	}
	writeJSON(w, http.StatusOK, comparisonDTO(comparison))
}

func agesArg(members []api.Member) []interface{} {
	ages := make([]interface{}, 0, len(members))
	for _, m := range members {
		ages = append(ages, float64(m.Age))
	}
	return ages
}

// ─── Catalog surface ────────────────────────────────────────────────────────

// handleProducts lists the loaded products.
func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := s.catalog.List()
	list := api.ProductList{Products: make([]api.ProductInfo, 0, len(infos)), Count: len(infos)}
	for _, info := range infos {
		list.Products = append(list.Products, productInfoDTO(info))
	}
	writeJSON(w, http.StatusOK, list)
}

// handleProductItem serves one product's detail and its reload action.
func (s *Server) handleProductItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}

	if name, ok := strings.CutSuffix(rest, "/reload"); ok && name != "" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.reloadProduct(w, r, name)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	info, err := s.catalog.Get(rest)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, productInfoDTO(info))
}

// reloadProduct re-reads one product's workbook. A rejected workbook leaves
// the previously served tables in place.
func (s *Server) reloadProduct(w http.ResponseWriter, r *http.Request, name string) {
	if err := s.tables.ReloadProduct(r.Context(), name); err != nil {
		status, code := errorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	info, err := s.catalog.Get(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.ReloadResponse{
		Product:    info.Name,
		Tables:     len(info.Tables),
		ReloadedAt: time.Now().UTC(),
	})
}

// ─── Session surface ────────────────────────────────────────────────────────

// handleSessions lists conversations by most recent activity.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	records, err := s.sessions.Sessions(r.Context(), limit, offset)
	if err != nil {
		s.log.Error("list sessions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "sessions could not be listed")
		return
	}
	list := api.SessionList{Sessions: make([]api.Session, 0, len(records)), Count: len(records)}
	for _, rec := range records {
		list.Sessions = append(list.Sessions, api.Session{
			ID:        rec.ID,
			Title:     rec.Title,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, list)
}

// handleSessionItem serves one conversation's history and its removal.
func (s *Server) handleSessionItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.serveSessionHistory(w, r, id)
	case http.MethodDelete:
		if err := s.sessions.Clear(r.Context(), id); err != nil {
			s.log.Error("clear session", zap.String("conversation_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "session could not be cleared")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) serveSessionHistory(w http.ResponseWriter, r *http.Request, id string) {
	turns, err := s.sessions.History(r.Context(), id)
	if err != nil {
		s.log.Error("load history", zap.String("conversation_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "history could not be loaded")
		return
	}

	total, err := s.tracker.ConversationTotal(r.Context(), id)
	if err != nil {
		s.log.Warn("token total unavailable", zap.String("conversation_id", id), zap.Error(err))
	}

	hist := api.SessionHistory{
		ConversationID: id,
		Turns:          make([]api.SessionTurn, 0, len(turns)),
		TokensUsed:     total,
	}
	for _, t := range turns {
		hist.Turns = append(hist.Turns, api.SessionTurn{Role: t.Role, Content: t.Content, CreatedAt: t.CreatedAt})
	}
	writeJSON(w, http.StatusOK, hist)
}

// ─── Trace surface ──────────────────────────────────────────────────────────

// handleExecutions lists recent reasoning runs, newest first.
func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	execs := s.engine.List(queryInt(r, "limit", 20))
	list := api.ExecutionList{Executions: make([]api.ExecutionSummary, 0, len(execs)), Count: len(execs)}
	for _, e := range execs {
		list.Executions = append(list.Executions, executionSummaryDTO(e))
	}
	writeJSON(w, http.StatusOK, list)
}

// handleExecutionItem serves one run's full record including its trace.
func (s *Server) handleExecutionItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/reasoning/executions/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	exec, ok := s.engine.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("execution %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, executionDTO(exec))
}

// ─── Operational surface ────────────────────────────────────────────────────

// handleStats aggregates catalog, conversation, classifier and spend
// counters. Unavailable sources zero their section rather than failing the
// whole response.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	conversations, err := s.store.CountConversations(ctx)
	if err != nil {
		s.log.Warn("conversation count unavailable", zap.Error(err))
	}
	intents, err := s.store.IntentSummary(ctx, now.AddDate(0, 0, -30), now)
	if err != nil {
		s.log.Warn("intent summary unavailable", zap.Error(err))
		intents = map[string]int{}
	}
	spend, err := s.tracker.MonthlySpend(ctx)
	if err != nil {
		s.log.Warn("monthly spend unavailable", zap.Error(err))
	}

	cat := s.catalog.Stats()
	cls := s.classifier.Stats()

	writeJSON(w, http.StatusOK, api.StatsResponse{
		Catalog: api.CatalogStats{
			Products:   cat.Products,
			Tables:     cat.Tables,
			LastLoaded: cat.LastLoaded,
		},
		Conversations:   conversations,
		QueriesByIntent: intents,
		ToolUsage:       s.registry.Usage(),
		Classifier: api.ClassifierStats{
			Predictions:     cls.Predictions,
			Correct:         cls.Correct,
			Accuracy:        cls.Accuracy,
			EarlyAccuracy:   cls.EarlyAccuracy,
			RecentAccuracy:  cls.RecentAccuracy,
			Improvement:     cls.Improvement,
			Corrections:     cls.Corrections,
			LearnedPatterns: cls.LearnedPatterns,
		},
		MonthlySpendUSD: spend,
		GeneratedAt:     now,
	})
}

// handleStatsReset zeroes the tool usage counts and classifier accuracy
// windows. Learned patterns and persisted rows are untouched.
func (s *Server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.registry.ResetUsage()
	s.classifier.ResetStats()
	s.log.Info("stats counters reset")
	w.WriteHeader(http.StatusNoContent)
}

// handleLLMComplete runs a raw completion against the configured provider.
func (s *Server) handleLLMComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "prompt is required")
		return
	}
	if !s.llmAdapter.Configured() {
		writeError(w, http.StatusServiceUnavailable, "llm_unavailable", "llm provider not configured")
		return
	}

	llm := s.llmAdapter
	if req.ConversationID != "" {
		llm = adapter.NewBudgetedAdapter(s.llmAdapter, s.tracker, req.ConversationID)
	} else if err := s.tracker.CheckGlobal(r.Context()); errors.Is(err, budget.ErrBudgetExceeded) {
		writeError(w, http.StatusTooManyRequests, "budget_exceeded", err.Error())
		return
	}

	resp, err := llm.Complete(r.Context(), []llmtypes.Message{{Role: "user", Content: req.Prompt}})
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	// Usage outside a conversation still counts toward monthly spend.
	if req.ConversationID == "" {
		caps := s.llmAdapter.Capabilities()
		if err := s.tracker.Record(r.Context(), "", caps.Provider, caps.Model, resp.Usage); err != nil {
			s.log.Warn("record usage", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, api.CompleteResponse{
		Content:      resp.Content,
		Provider:     string(s.llmAdapter.Provider()),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostUSD:      resp.Usage.CostUSD,
	})
}

// ─── Wire mapping ───────────────────────────────────────────────────────────

func quoteDTO(q *premium.Quote) api.Quote {
	return api.Quote{
		Product:      q.Product,
		PolicyType:   q.PolicyType,
		Composition:  q.Composition,
		SumInsured:   q.SumInsured,
		EldestAge:    q.EldestAge,
		GrossPremium: q.GrossPremium.StringFixed(2),
		GSTAmount:    q.GSTAmount.StringFixed(2),
		TotalPremium: q.TotalPremium.StringFixed(2),
		CalculatedAt: q.CalculatedAt,
	}
}

func comparisonDTO(c *premium.Comparison) api.Comparison {
	out := api.Comparison{
		PolicyType: c.PolicyType,
		SumInsured: c.SumInsured,
		Results:    make([]api.ComparisonEntry, 0, len(c.Results)),
		Cheapest:   c.Cheapest,
		Saving:     c.Saving.StringFixed(2),
	}
	for _, res := range c.Results {
		entry := api.ComparisonEntry{Product: res.Product, Error: res.Error}
		if res.Quote != nil {
			q := quoteDTO(res.Quote)
			entry.Quote = &q
		}
		out.Results = append(out.Results, entry)
	}
	return out
}

// toolPayloadDTO converts known tool payloads to their wire shapes so
// decimal amounts render with two places. Unknown payloads pass through.
func toolPayloadDTO(payload interface{}) interface{} {
	switch p := payload.(type) {
	case *premium.Quote:
		return quoteDTO(p)
	case *premium.Comparison:
		return comparisonDTO(p)
	default:
		return payload
	}
}

func stepDTO(step models.ReasoningStep) api.TraceStep {
	return api.TraceStep{
		Index:       step.Index,
		Thought:     step.Thought,
		Action:      step.Action,
		ActionInput: step.ActionInput,
		Observation: step.Observation,
	}
}

func traceDTO(tr models.Trace) api.Trace {
	out := api.Trace{
		Steps:      make([]api.TraceStep, 0, len(tr.Steps)),
		Iterations: tr.Iterations,
		ToolsUsed:  tr.ToolsUsed,
		StartedAt:  tr.StartedAt,
		ElapsedMs:  tr.ElapsedMs,
	}
	for _, step := range tr.Steps {
		out.Steps = append(out.Steps, stepDTO(step))
	}
	return out
}

func executionSummaryDTO(e *reasoning.Execution) api.ExecutionSummary {
	return api.ExecutionSummary{
		ID:              e.ID,
		State:           string(e.State),
		Query:           e.Query,
		PredictedIntent: string(e.PredictedIntent),
		RealizedIntent:  string(e.RealizedIntent),
		Steps:           len(e.Steps),
		ToolsUsed:       e.ToolsUsed,
		Incomplete:      e.Incomplete,
		StartedAt:       e.StartedAt,
		ElapsedMs:       e.ElapsedMs,
	}
}

func executionDTO(e *reasoning.Execution) api.Execution {
	out := api.Execution{
		ExecutionSummary: executionSummaryDTO(e),
		Confidence:       e.Confidence,
		Trace:            traceDTO(e.Trace()),
		FinalAnswer:      e.FinalAnswer,
		Error:            e.Error,
	}
	if !e.FinishedAt.IsZero() {
		t := e.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

func productInfoDTO(info catalog.Info) api.ProductInfo {
	out := api.ProductInfo{
		Name:     info.Name,
		Workbook: info.Workbook,
		LoadedAt: info.LoadedAt,
		Tables:   make([]api.ProductTable, 0, len(info.Tables)),
	}
	for _, t := range info.Tables {
		out.Tables = append(out.Tables, api.ProductTable{
			Composition: t.Composition,
			Encoding:    t.Encoding,
			MinAge:      t.MinAge,
			MaxAge:      t.MaxAge,
			SumInsured:  t.SumInsured,
		})
	}
	return out
}
