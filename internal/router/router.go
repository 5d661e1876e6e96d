// Package router is the traditional query path: a two-state machine that
// classifies a query and dispatches exactly one tool.
//
// Responsibilities:
//   - CLASSIFY: select one of premium_calculation, policy_comparison,
//     document_retrieval or general_inquiry from lexical signals, the same
//     route for the same text every time
//   - DISPATCH: invoke exactly one registered tool, never a chain
//   - Extract tool arguments from the query by regex, filling elided premium
//     parameters from recent session history on follow-ups
//   - Render the ToolResult into a user-facing answer
//
// The router never says "I don't know how to handle this": every non-empty
// query under the length bound gets a route, defaulting to retrieval.
// NoRouteMatchedError covers only empty and over-length input.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/audit"
	"github.com/insurelens/insurelens-ai/internal/catalog"
	"github.com/insurelens/insurelens-ai/internal/memory/session"
	"github.com/insurelens/insurelens-ai/internal/metrics"
	"github.com/insurelens/insurelens-ai/internal/models"
	"github.com/insurelens/insurelens-ai/internal/tools"
)

// DefaultMaxQueryLen bounds query length when no limit is configured.
const DefaultMaxQueryLen = 2000

// NoRouteMatchedError is returned only for empty or over-length queries.
type NoRouteMatchedError struct {
	Reason string
}

func (e *NoRouteMatchedError) Error() string {
	return "no route matched: " + e.Reason
}

// Decision is the outcome of CLASSIFY: the intent, the single tool that will
// run, and the arguments extracted for it.
type Decision struct {
	Intent     models.Intent          `json:"intent"`
	Tool       string                 `json:"tool"`
	Confidence float64                `json:"confidence"`
	Arguments  map[string]interface{} `json:"arguments"`
	// FilledFromHistory names arguments resolved from earlier turns rather
	// than the query text.
	FilledFromHistory []string `json:"filled_from_history,omitempty"`
}

// Result is one routed query: the decision, the tool outcome and the
// rendered answer.
type Result struct {
	ConversationID string            `json:"conversation_id"`
	Query          string            `json:"query"`
	Decision       Decision          `json:"decision"`
	ToolResult     models.ToolResult `json:"tool_result"`
	Answer         string            `json:"answer"`
	Elapsed        time.Duration     `json:"elapsed"`
}

// Config carries the router's tunables.
type Config struct {
	// MaxQueryLen rejects longer queries with NoRouteMatchedError.
	MaxQueryLen int
	// ContextTurns bounds how much history is consulted on follow-ups.
	ContextTurns int
}

// Router classifies and dispatches. Shared across requests; all state is in
// its collaborators.
type Router struct {
	registry     *tools.Registry
	catalog      *catalog.Catalog
	sessions     session.Store
	audit        audit.Logger
	log          *zap.Logger
	maxQueryLen  int
	contextTurns int
}

// New builds a router. sessions and auditLog may be nil; follow-up filling
// and audit events are skipped respectively.
func New(registry *tools.Registry, cat *catalog.Catalog, sessions session.Store, auditLog audit.Logger, cfg Config, log *zap.Logger) *Router {
	if cfg.MaxQueryLen <= 0 {
		cfg.MaxQueryLen = DefaultMaxQueryLen
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = 6
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		registry:     registry,
		catalog:      cat,
		sessions:     sessions,
		audit:        auditLog,
		log:          log,
		maxQueryLen:  cfg.MaxQueryLen,
		contextTurns: cfg.ContextTurns,
	}
}

// ─── Classification ─────────────────────────────────────────────────────────

var (
	premiumKeywords    = regexp.MustCompile(`(?i)\bpremium\b|\bquote\b|\bhow much\b|\bprice\b|\bcost\b|\bcalculate\b`)
	comparisonKeywords = regexp.MustCompile(`(?i)\bcompare\b|\bcomparison\b|\bversus\b|\bvs\.?\b|\bcheaper\b|\bcheapest\b|\bbetter deal\b|\bdifference between\b|\bwhich is better\b`)
	catalogKeywords    = regexp.MustCompile(`(?i)\blist\b.{0,20}\b(products|plans|policies)\b|\bwhat\b.{0,20}\b(products|plans|policies)\b.{0,20}\b(offer|have|available)\b|\bwhich (products|plans|policies)\b|\bavailable (products|plans|policies)\b`)
)

// Classify selects exactly one route for the query. It is deterministic:
// identical query text and history always produce the same decision.
func (r *Router) Classify(query string, history []models.ConversationTurn) (Decision, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Decision{}, &NoRouteMatchedError{Reason: "empty query"}
	}
	if len(query) > r.maxQueryLen {
		return Decision{}, &NoRouteMatchedError{Reason: fmt.Sprintf("query length %d exceeds limit %d", len(query), r.maxQueryLen)}
	}

	ex := extraction{
		Ages:       extractAges(trimmed),
		SumInsured: extractSumInsured(trimmed),
	}
	ex.PolicyType = extractPolicyType(trimmed, ex.Ages)
	if r.catalog != nil {
		ex.Products = r.catalog.Detect(trimmed)
	}

	switch {
	case len(ex.Products) >= 2:
		confidence := 0.8
		if comparisonKeywords.MatchString(trimmed) || ex.hasPremiumShape() {
			confidence = 0.9
		}
		return r.comparisonDecision(trimmed, ex, confidence), nil
	case comparisonKeywords.MatchString(trimmed):
		return r.comparisonDecision(trimmed, ex, 0.75), nil
	case catalogKeywords.MatchString(trimmed):
		return r.catalogDecision(ex), nil
	case ex.hasPremiumShape():
		return r.premiumDecision(trimmed, ex, history, 0.9), nil
	case premiumKeywords.MatchString(trimmed) && (len(ex.Ages) > 0 || ex.SumInsured > 0 || len(ex.Products) > 0):
		return r.premiumDecision(trimmed, ex, history, 0.7), nil
	default:
		return r.retrievalDecision(trimmed, ex), nil
	}
}

func (r *Router) premiumDecision(query string, ex extraction, history []models.ConversationTurn, confidence float64) Decision {
	d := Decision{
		Intent:     models.IntentPremiumCalculation,
		Tool:       tools.NamePremiumCalculator,
		Confidence: confidence,
		Arguments:  map[string]interface{}{},
	}

	product := ""
	if len(ex.Products) > 0 {
		product = ex.Products[0]
	}

	// Follow-ups elide parameters stated earlier in the conversation.
	if product == "" || len(ex.Ages) == 0 || ex.SumInsured == 0 || ex.PolicyType == "" {
		fill := r.fillFromHistory(history)
		if product == "" && fill.product != "" {
			product = fill.product
			d.FilledFromHistory = append(d.FilledFromHistory, "product")
		}
		if len(ex.Ages) == 0 && len(fill.ages) > 0 {
			ex.Ages = fill.ages
			d.FilledFromHistory = append(d.FilledFromHistory, "ages")
		}
		if ex.SumInsured == 0 && fill.sumInsured > 0 {
			ex.SumInsured = fill.sumInsured
			d.FilledFromHistory = append(d.FilledFromHistory, "sum_insured")
		}
		if ex.PolicyType == "" && fill.policyType != "" {
			ex.PolicyType = fill.policyType
			d.FilledFromHistory = append(d.FilledFromHistory, "policy_type")
		}
	}
	if ex.PolicyType == "" {
		ex.PolicyType = extractPolicyType(query, ex.Ages)
	}

	if product != "" {
		d.Arguments["product"] = product
	}
	if ex.PolicyType != "" {
		d.Arguments["policy_type"] = ex.PolicyType
	}
	if len(ex.Ages) > 0 {
		ages := make([]interface{}, len(ex.Ages))
		for i, a := range ex.Ages {
			ages[i] = a
		}
		d.Arguments["ages"] = ages
	}
	if ex.SumInsured > 0 {
		d.Arguments["sum_insured"] = ex.SumInsured
	}
	return d
}

func (r *Router) comparisonDecision(query string, ex extraction, confidence float64) Decision {
	d := Decision{
		Intent:     models.IntentPolicyComparison,
		Tool:       tools.NamePolicyComparator,
		Confidence: confidence,
		Arguments:  map[string]interface{}{},
	}
	if len(ex.Products) > 0 {
		products := make([]interface{}, len(ex.Products))
		for i, p := range ex.Products {
			products[i] = p
		}
		d.Arguments["products"] = products
	}
	if ex.PolicyType != "" {
		d.Arguments["policy_type"] = ex.PolicyType
	}
	if len(ex.Ages) > 0 {
		ages := make([]interface{}, len(ex.Ages))
		for i, a := range ex.Ages {
			ages[i] = a
		}
		d.Arguments["ages"] = ages
	}
	if ex.SumInsured > 0 {
		d.Arguments["sum_insured"] = ex.SumInsured
	}
	return d
}

func (r *Router) catalogDecision(ex extraction) Decision {
	d := Decision{
		Intent:     models.IntentGeneralInquiry,
		Tool:       tools.NameListProducts,
		Confidence: 0.8,
		Arguments:  map[string]interface{}{},
	}
	if len(ex.Products) == 1 {
		d.Arguments["product"] = ex.Products[0]
	}
	return d
}

func (r *Router) retrievalDecision(query string, ex extraction) Decision {
	d := Decision{
		Intent:     models.IntentDocumentRetrieval,
		Tool:       tools.NameDocumentRetriever,
		Confidence: 0.5,
		Arguments:  map[string]interface{}{"query": query},
	}
	if len(ex.Products) == 1 {
		d.Arguments["product"] = ex.Products[0]
	}
	return d
}

// historyFill is premium parameters recovered from earlier turns.
type historyFill struct {
	product    string
	ages       []int
	sumInsured int64
	policyType string
}

// fillFromHistory walks recent turns newest first and takes the most recent
// statement of each missing parameter.
func (r *Router) fillFromHistory(history []models.ConversationTurn) historyFill {
	var fill historyFill
	for i := len(history) - 1; i >= 0; i-- {
		text := history[i].Content
		if fill.product == "" && r.catalog != nil {
			if products := r.catalog.Detect(text); len(products) > 0 {
				fill.product = products[0]
			}
		}
		if len(fill.ages) == 0 {
			fill.ages = extractAges(text)
		}
		if fill.sumInsured == 0 {
			fill.sumInsured = extractSumInsured(text)
		}
		if fill.policyType == "" {
			fill.policyType = extractPolicyType(text, fill.ages)
		}
	}
	return fill
}

// ─── Dispatch ───────────────────────────────────────────────────────────────

// Route runs the full path for one query: classify, dispatch one tool,
// render the answer.
func (r *Router) Route(ctx context.Context, conversationID, query string) (*Result, error) {
	start := time.Now()

	var history []models.ConversationTurn
	if conversationID != "" && r.sessions != nil {
		h, err := r.sessions.Recent(ctx, conversationID, r.contextTurns)
		if err != nil {
			r.log.Warn("session history unavailable",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
		} else {
			history = h
		}
	}

	decision, err := r.Classify(query, history)
	if err != nil {
		return nil, err
	}

	metrics.QueriesTotal.WithLabelValues("route", string(decision.Intent)).Inc()
	if r.audit != nil {
		r.audit.LogQueryRouted(ctx, conversationID, string(decision.Intent), decision.Tool)
	}
	r.log.Info("query routed",
		zap.String("conversation_id", conversationID),
		zap.String("intent", string(decision.Intent)),
		zap.String("tool", decision.Tool),
		zap.Float64("confidence", decision.Confidence))

	toolResult := r.registry.Invoke(tools.WithConversationID(ctx, conversationID), models.ToolCall{
		ID:        uuid.NewString(),
		ToolName:  decision.Tool,
		Arguments: decision.Arguments,
		Timestamp: time.Now().UTC(),
	})

	elapsed := time.Since(start)
	metrics.QueryDuration.WithLabelValues("route").Observe(elapsed.Seconds())
	if r.audit != nil {
		if toolResult.Success {
			r.audit.LogQueryAnswered(ctx, conversationID, elapsed)
		} else {
			r.audit.LogQueryFailed(ctx, conversationID, fmt.Errorf("%s: %s", toolResult.ErrorKind, toolResult.Error))
		}
	}

	return &Result{
		ConversationID: conversationID,
		Query:          query,
		Decision:       decision,
		ToolResult:     toolResult,
		Answer:         renderAnswer(decision, toolResult),
		Elapsed:        elapsed,
	}, nil
}
