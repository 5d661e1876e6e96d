package db

import (
	"context"
	"time"
)

// Store is the main persistence interface for the assistant.
type Store interface {
	ConversationStore
	AuditStore
	PatternStore
	QuoteStore
	TokenUsageStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Conversation store ───────────────────────────────────────────────────────

// ConversationRecord is the DB representation of a conversation session.
type ConversationRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageRecord is a single turn within a conversation. Intent is set on user
// turns once the router has classified them, and left empty on assistant turns.
type MessageRecord struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // user | assistant
	Content        string    `json:"content"`
	Intent         string    `json:"intent"`
	TokenCount     int       `json:"token_count"`
	Metadata       string    `json:"metadata"` // JSON blob
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationStore persists conversations and their turns.
type ConversationStore interface {
	// SaveConversation creates or updates a conversation.
	SaveConversation(ctx context.Context, rec *ConversationRecord) error

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*ConversationRecord, error)

	// ListConversations returns conversations ordered by most recent activity.
	ListConversations(ctx context.Context, limit, offset int) ([]*ConversationRecord, error)

	// CountConversations returns the total number of stored conversations.
	CountConversations(ctx context.Context) (int64, error)

	// AppendMessage adds a turn to a conversation.
	AppendMessage(ctx context.Context, msg *MessageRecord) error

	// GetMessages retrieves turns for a conversation in insertion order.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]*MessageRecord, error)

	// TrimMessages deletes the oldest turns of a conversation beyond keep.
	// Returns the number of turns removed.
	TrimMessages(ctx context.Context, conversationID string, keep int) (int64, error)

	// DeleteConversation removes a conversation and all of its turns.
	DeleteConversation(ctx context.Context, id string) error

	// IntentSummary returns per-intent counts of classified user turns
	// within the window.
	IntentSummary(ctx context.Context, from, to time.Time) (map[string]int, error)
}

// ─── Audit store ──────────────────────────────────────────────────────────────

// AuditRecord is a single entry in the audit trail.
type AuditRecord struct {
	ID            int64     `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	EventType     string    `json:"event_type"`
	Description   string    `json:"description"`
	Resource      string    `json:"resource"` // e.g. "ratetable/ActivAssure", "tool/premium_calculator"
	Action        string    `json:"action"`   // e.g. "reload", "invoke", "calculate"
	Result        string    `json:"result"`   // e.g. "success", "error"
	UserID        string    `json:"user_id"`
	Metadata      string    `json:"metadata"` // JSON blob
	Timestamp     time.Time `json:"timestamp"`
}

// AuditQuery filters audit trail queries. Zero values are ignored.
type AuditQuery struct {
	Resource string
	Action   string
	UserID   string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// AuditStore persists the audit trail.
type AuditStore interface {
	// AppendAuditEvent writes a single audit entry.
	AppendAuditEvent(ctx context.Context, rec *AuditRecord) error

	// QueryAuditEvents retrieves audit entries matching the query,
	// newest first.
	QueryAuditEvents(ctx context.Context, q AuditQuery) ([]*AuditRecord, error)
}

// ─── Intent pattern store ─────────────────────────────────────────────────────

// IntentPatternRecord is a learned routing pattern: a keyword set that has
// been observed to co-occur with an intent, plus the confidence weight the
// classifier has accumulated for it.
type IntentPatternRecord struct {
	ID        int64     `json:"id"`
	Intent    string    `json:"intent"`
	Keywords  []string  `json:"keywords"` // stored sorted so the same set always maps to one row
	Weight    float64   `json:"weight"`
	TimesSeen int       `json:"times_seen"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PatternStore persists learned intent patterns so classification quality
// survives process restarts.
type PatternStore interface {
	// UpsertIntentPattern inserts a new pattern or, if the same keyword set
	// already exists for the intent, overwrites its weight and bumps
	// times_seen.
	UpsertIntentPattern(ctx context.Context, rec *IntentPatternRecord) error

	// ListIntentPatterns returns all stored patterns.
	ListIntentPatterns(ctx context.Context) ([]*IntentPatternRecord, error)

	// PruneIntentPatterns keeps only the max highest-weight patterns and
	// deletes the rest. Returns the number of patterns removed.
	PruneIntentPatterns(ctx context.Context, max int) (int64, error)
}

// ─── Premium quote store ──────────────────────────────────────────────────────

// QuoteRecord is a persisted premium calculation. The three premium amounts
// are stored as fixed-point decimal strings so the figures read back exactly
// as calculated.
type QuoteRecord struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Product        string    `json:"product"`
	PolicyType     string    `json:"policy_type"`
	Composition    string    `json:"composition"`
	SumInsured     int64     `json:"sum_insured"`
	EldestAge      int       `json:"eldest_age"`
	GrossPremium   string    `json:"gross_premium"`
	GSTAmount      string    `json:"gst_amount"`
	TotalPremium   string    `json:"total_premium"`
	WorkbookPath   string    `json:"workbook_path"`
	CreatedAt      time.Time `json:"created_at"`
}

// QuoteStore persists every premium calculation for the audit trail.
type QuoteStore interface {
	// SaveQuote appends a quote record and sets rec.ID.
	SaveQuote(ctx context.Context, rec *QuoteRecord) error

	// ListQuotes retrieves quotes, newest first. An empty conversationID
	// matches all conversations.
	ListQuotes(ctx context.Context, conversationID string, limit, offset int) ([]*QuoteRecord, error)

	// QuoteSummary returns per-product quote counts within the window.
	QuoteSummary(ctx context.Context, from, to time.Time) (map[string]int, error)
}

// ─── Token usage store ────────────────────────────────────────────────────────

// TokenUsageRecord is a persisted LLM token usage entry for budget tracking.
type TokenUsageRecord struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// ProviderUsage aggregates tokens for one provider/model pair.
type ProviderUsage struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// TokenUsageStore persists LLM token usage so budget limits survive restarts.
type TokenUsageStore interface {
	// AppendTokenUsage writes a single token usage record.
	AppendTokenUsage(ctx context.Context, rec *TokenUsageRecord) error

	// ConversationTokenTotal returns input+output tokens consumed by a
	// conversation across its lifetime.
	ConversationTokenTotal(ctx context.Context, conversationID string) (int64, error)

	// GlobalTokenTotal returns input+output tokens consumed by all
	// conversations within the window.
	GlobalTokenTotal(ctx context.Context, from, to time.Time) (int64, error)

	// TokenUsageByProvider breaks the window's usage down per provider and
	// model, for spend calculation.
	TokenUsageByProvider(ctx context.Context, from, to time.Time) ([]*ProviderUsage, error)
}
