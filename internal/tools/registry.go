// Package tools defines the executable tool surface of the service.
//
// Responsibilities:
//   - Hold the taxonomy of tools the router and reasoning engine dispatch to
//   - Validate every invocation's arguments against the tool's JSON schema
//   - Contain failures: panics, timeouts and domain errors all come back as
//     a uniform ToolResult, never as a raw error or a crash
//   - Retry transient collaborator failures exactly once with a short backoff
//   - Emit per-tool metrics and audit events for every invocation
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/audit"
	"github.com/insurelens/insurelens-ai/internal/collaborator"
	"github.com/insurelens/insurelens-ai/internal/metrics"
	"github.com/insurelens/insurelens-ai/internal/models"
	"github.com/insurelens/insurelens-ai/internal/premium"
	"github.com/insurelens/insurelens-ai/internal/ratetable"
)

// retryBackoff is the pause before the single retry of a transient failure.
const retryBackoff = 200 * time.Millisecond

// Handler executes one tool call. Arguments have already passed schema
// validation; handlers still own domain validation of values.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

type registeredTool struct {
	def     Definition
	schema  *gojsonschema.Schema
	handler Handler
}

// Registry maps tool names to handlers and runs every invocation through the
// same validate/execute/classify pipeline.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*registeredTool
	audit   audit.Logger
	log     *zap.Logger
	backoff time.Duration

	usageMu sync.Mutex
	usage   map[string]int
}

// NewRegistry returns an empty registry. The audit logger may be nil.
func NewRegistry(auditLog audit.Logger, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		tools:   make(map[string]*registeredTool),
		audit:   auditLog,
		log:     log,
		backoff: retryBackoff,
		usage:   make(map[string]int),
	}
}

// ─── Registration ───────────────────────────────────────────────────────────

// Register adds a tool. The definition's input schema is compiled here so a
// malformed schema fails at startup, not on the first query.
func (r *Registry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return errors.New("tool definition has no name")
	}
	if handler == nil {
		return fmt.Errorf("tool %s: nil handler", def.Name)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema))
	if err != nil {
		return fmt.Errorf("tool %s: compile input schema: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s: already registered", def.Name)
	}
	r.tools[def.Name] = &registeredTool{def: def, schema: schema, handler: handler}

	r.log.Info("tool registered",
		zap.String("tool", def.Name),
		zap.String("category", string(def.Category)))
	return nil
}

// Definitions returns the registered tool definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Usage returns per-tool invocation counts since startup or the last reset.
// Unknown tool names are rejected before counting, so only registered tools
// appear.
func (r *Registry) Usage() map[string]int {
	r.usageMu.Lock()
	defer r.usageMu.Unlock()

	out := make(map[string]int, len(r.usage))
	for name, n := range r.usage {
		out[name] = n
	}
	return out
}

// ResetUsage clears the invocation counts. Prometheus counters are unaffected.
func (r *Registry) ResetUsage() {
	r.usageMu.Lock()
	defer r.usageMu.Unlock()
	r.usage = make(map[string]int)
}

// ─── Invocation ─────────────────────────────────────────────────────────────

// Invoke runs one tool call and always returns a ToolResult. The result's
// ErrorKind separates caller mistakes (ValidationError, NotFoundError) from
// runtime failures (ExecutionError) so callers can phrase answers accordingly.
func (r *Registry) Invoke(ctx context.Context, call models.ToolCall) models.ToolResult {
	start := time.Now()

	r.mu.RLock()
	tool, ok := r.tools[call.ToolName]
	r.mu.RUnlock()
	if !ok {
		return r.finish(ctx, call.ToolName, start, models.ToolResult{
			ErrorKind: models.ErrorKindNotFound,
			Error:     fmt.Sprintf("unknown tool %q", call.ToolName),
		})
	}

	r.usageMu.Lock()
	r.usage[call.ToolName]++
	r.usageMu.Unlock()

	if msg := r.validate(tool, call.Arguments); msg != "" {
		return r.finish(ctx, call.ToolName, start, models.ToolResult{
			ErrorKind: models.ErrorKindValidation,
			Error:     msg,
		})
	}

	payload, err := r.runProtected(ctx, tool, call.Arguments)
	if err != nil && collaborator.IsTransient(err) {
		if waitErr := r.wait(ctx); waitErr != nil {
			err = waitErr
		} else {
			metrics.ToolRetries.WithLabelValues(call.ToolName).Inc()
			if r.audit != nil {
				r.audit.LogToolRetried(ctx, call.ToolName, err.Error())
			}
			r.log.Warn("retrying tool after transient failure",
				zap.String("tool", call.ToolName),
				zap.Error(err))
			payload, err = r.runProtected(ctx, tool, call.Arguments)
		}
	}

	if err != nil {
		return r.finish(ctx, call.ToolName, start, models.ToolResult{
			ErrorKind: classify(err),
			Error:     err.Error(),
		})
	}
	return r.finish(ctx, call.ToolName, start, models.ToolResult{
		Success: true,
		Payload: payload,
	})
}

// validate checks the arguments against the tool's compiled schema and
// returns a joined message of every violation, or "" when valid.
func (r *Registry) validate(tool *registeredTool, args map[string]interface{}) string {
	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := tool.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Sprintf("arguments are not a valid document: %v", err)
	}
	if result.Valid() {
		return ""
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}

// runProtected executes the handler, converting panics into errors so a
// misbehaving tool cannot take the server down.
func (r *Registry) runProtected(ctx context.Context, tool *registeredTool, args map[string]interface{}) (payload interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("tool panicked",
				zap.String("tool", tool.def.Name),
				zap.Any("panic", rec),
				zap.Stack("stack"))
			payload = nil
			err = fmt.Errorf("tool %s panicked: %v", tool.def.Name, rec)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tool.handler(ctx, args)
}

// wait sleeps for the retry backoff unless the context ends first.
func (r *Registry) wait(ctx context.Context) error {
	timer := time.NewTimer(r.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// finish stamps the duration, records metrics and audit events, and returns
// the completed result.
func (r *Registry) finish(ctx context.Context, toolName string, start time.Time, result models.ToolResult) models.ToolResult {
	elapsed := time.Since(start)
	result.Duration = elapsed.Milliseconds()

	metrics.ToolInvocations.WithLabelValues(toolName, statusLabel(result)).Inc()
	metrics.ToolDuration.WithLabelValues(toolName).Observe(elapsed.Seconds())

	if r.audit != nil {
		if result.Success {
			r.audit.LogToolInvoked(ctx, toolName, elapsed)
		} else {
			r.audit.LogToolFailed(ctx, toolName, errors.New(result.Error))
		}
	}
	if !result.Success {
		r.log.Warn("tool invocation failed",
			zap.String("tool", toolName),
			zap.String("error_kind", string(result.ErrorKind)),
			zap.String("error", result.Error))
	}
	return result
}

func statusLabel(result models.ToolResult) string {
	switch {
	case result.Success:
		return "success"
	case result.ErrorKind == models.ErrorKindValidation:
		return "validation_error"
	case result.ErrorKind == models.ErrorKindNotFound:
		return "not_found"
	default:
		return "execution_error"
	}
}

// classify maps a handler error onto the result taxonomy. Unknown references
// are NotFound, rejected values are Validation, everything else including
// timeouts and recovered panics is Execution.
func classify(err error) models.ErrorKind {
	switch {
	case errors.Is(err, ratetable.ErrUnknownProduct):
		return models.ErrorKindNotFound
	case errors.Is(err, premium.ErrInvalidInput),
		errors.Is(err, ratetable.ErrAgeOutOfRange),
		errors.Is(err, ratetable.ErrUnsupportedComposition),
		errors.Is(err, ratetable.ErrUnsupportedSumInsured):
		return models.ErrorKindValidation
	default:
		return models.ErrorKindExecution
	}
}

type ctxKey string

const conversationIDKey ctxKey = "conversation_id"

// WithConversationID stamps the dispatching conversation onto the context so
// tools that persist records can attribute them.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey, id)
}

// ConversationIDFrom extracts the dispatching conversation, or "".
func ConversationIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(conversationIDKey).(string); ok {
		return id
	}
	return ""
}
