package types

import "time"

// Package types defines the public REST contracts served by insurelens-ai.
//
// These shapes mirror the internal domain types without importing them, so
// clients can vendor this package alone. Amount fields are decimal strings
// with exactly two places ("16579.00"); timestamps are RFC 3339 UTC.

// Request types

// QueryRequest submits a natural-language question.
type QueryRequest struct {
	// ConversationID groups follow-up questions. A new id is minted when
	// the field is blank.
	ConversationID string `json:"conversation_id,omitempty"`
	Query          string `json:"query"`
	// Mode selects the execution path: "route" (default) classifies and
	// dispatches exactly one tool; "react" runs the iterative reasoning
	// loop and returns its trace.
	Mode string `json:"mode,omitempty"`
}

// Member is one covered life in a premium or comparison request.
type Member struct {
	Age int `json:"age"`
}

// PremiumRequest prices a single policy.
type PremiumRequest struct {
	Product    string   `json:"product"`
	PolicyType string   `json:"policy_type"` // "individual" | "family_floater"
	Members    []Member `json:"members"`
	SumInsured int64    `json:"sum_insured"`
}

// CompareRequest prices the same members and cover across several products.
type CompareRequest struct {
	Products   []string `json:"products"`
	PolicyType string   `json:"policy_type"`
	Members    []Member `json:"members"`
	SumInsured int64    `json:"sum_insured"`
}

// CompleteRequest runs a raw completion against the configured provider.
type CompleteRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Prompt         string `json:"prompt"`
}

// Response types

// Quote is one priced policy. GrossPremium, GSTAmount and TotalPremium are
// two-decimal strings.
type Quote struct {
	Product      string    `json:"product"`
	PolicyType   string    `json:"policy_type"`
	Composition  string    `json:"composition"`
	SumInsured   int64     `json:"sum_insured"`
	EldestAge    int       `json:"eldest_age"`
	GrossPremium string    `json:"gross_premium"`
	GSTAmount    string    `json:"gst_amount"`
	TotalPremium string    `json:"total_premium"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// ComparisonEntry is one product's outcome inside a comparison. A product
// that could not be priced carries its error text instead of a quote.
type ComparisonEntry struct {
	Product string `json:"product"`
	Quote   *Quote `json:"quote,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Comparison is a side-by-side pricing of two or more products.
type Comparison struct {
	PolicyType string            `json:"policy_type"`
	SumInsured int64             `json:"sum_insured"`
	Results    []ComparisonEntry `json:"results"`
	Cheapest   string            `json:"cheapest,omitempty"`
	Saving     string            `json:"saving"`
}

// TraceStep is one Thought/Action/Observation cycle of a reasoning run.
// ActionInput carries the tool arguments as the JSON the model produced.
type TraceStep struct {
	Index       int    `json:"index"`
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	ActionInput string `json:"action_input,omitempty"`
	Observation string `json:"observation"`
}

// Trace is the transparency record attached to reasoning-mode answers.
type Trace struct {
	Steps      []TraceStep `json:"steps"`
	Iterations int         `json:"iterations"`
	ToolsUsed  []string    `json:"tools_used"`
	StartedAt  time.Time   `json:"started_at"`
	ElapsedMs  int64       `json:"elapsed_ms"`
}

// QueryResponse is the answer to a query in either mode. Route mode fills
// Intent, Tool, Confidence and Data; react mode fills ExecutionID, Trace and
// Incomplete.
type QueryResponse struct {
	ConversationID    string      `json:"conversation_id"`
	Mode              string      `json:"mode"`
	Answer            string      `json:"answer"`
	Intent            string      `json:"intent,omitempty"`
	Tool              string      `json:"tool,omitempty"`
	Confidence        float64     `json:"confidence,omitempty"`
	FilledFromHistory []string    `json:"filled_from_history,omitempty"`
	Data              interface{} `json:"data,omitempty"`
	ExecutionID       string      `json:"execution_id,omitempty"`
	Trace             *Trace      `json:"trace,omitempty"`
	Incomplete        bool        `json:"incomplete,omitempty"`
	ElapsedMs         int64       `json:"elapsed_ms"`
}

// ProductTable describes one rate sheet of a product.
type ProductTable struct {
	Composition string  `json:"composition"`
	Encoding    string  `json:"encoding"` // EXACT or BAND
	MinAge      int     `json:"min_age"`
	MaxAge      int     `json:"max_age"` // -1 when the last band is open-ended
	SumInsured  []int64 `json:"sum_insured"`
}

// ProductInfo is one loaded product and its rate sheets.
type ProductInfo struct {
	Name     string         `json:"name"`
	Workbook string         `json:"workbook"`
	LoadedAt time.Time      `json:"loaded_at"`
	Tables   []ProductTable `json:"tables"`
}

// ProductList enumerates the loaded products.
type ProductList struct {
	Products []ProductInfo `json:"products"`
	Count    int           `json:"count"`
}

// ReloadResponse reports a completed rate table reload.
type ReloadResponse struct {
	Product    string    `json:"product"`
	Tables     int       `json:"tables"`
	ReloadedAt time.Time `json:"reloaded_at"`
}

// Session is one conversation's summary row.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionList enumerates conversations by most recent activity.
type SessionList struct {
	Sessions []Session `json:"sessions"`
	Count    int       `json:"count"`
}

// SessionTurn is one retained dialogue message.
type SessionTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionHistory is a conversation's retained turns plus its token total.
type SessionHistory struct {
	ConversationID string        `json:"conversation_id"`
	Turns          []SessionTurn `json:"turns"`
	TokensUsed     int64         `json:"tokens_used"`
}

// ExecutionSummary is one reasoning run in the executions listing.
type ExecutionSummary struct {
	ID              string    `json:"id"`
	State           string    `json:"state"`
	Query           string    `json:"query"`
	PredictedIntent string    `json:"predicted_intent"`
	RealizedIntent  string    `json:"realized_intent,omitempty"`
	Steps           int       `json:"steps"`
	ToolsUsed       []string  `json:"tools_used"`
	Incomplete      bool      `json:"incomplete,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	ElapsedMs       int64     `json:"elapsed_ms"`
}

// Execution is the full record of one reasoning run.
type Execution struct {
	ExecutionSummary
	Confidence  float64    `json:"confidence"`
	Trace       Trace      `json:"trace"`
	FinalAnswer string     `json:"final_answer"`
	Error       string     `json:"error,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// ExecutionList enumerates recent reasoning runs, newest first.
type ExecutionList struct {
	Executions []ExecutionSummary `json:"executions"`
	Count      int                `json:"count"`
}

// ClassifierStats reports intent prediction quality and learning progress.
type ClassifierStats struct {
	Predictions     int     `json:"predictions"`
	Correct         int     `json:"correct"`
	Accuracy        float64 `json:"accuracy"`
	EarlyAccuracy   float64 `json:"early_accuracy"`
	RecentAccuracy  float64 `json:"recent_accuracy"`
	Improvement     float64 `json:"improvement"`
	Corrections     int     `json:"corrections"`
	LearnedPatterns int     `json:"learned_patterns"`
}

// CatalogStats summarises the loaded rate tables.
type CatalogStats struct {
	Products   int       `json:"products"`
	Tables     int       `json:"tables"`
	LastLoaded time.Time `json:"last_loaded"`
}

// StatsResponse aggregates operational counters for the dashboard.
type StatsResponse struct {
	Catalog         CatalogStats    `json:"catalog"`
	Conversations   int64           `json:"conversations"`
	QueriesByIntent map[string]int  `json:"queries_by_intent"`
	ToolUsage       map[string]int  `json:"tool_usage"`
	Classifier      ClassifierStats `json:"classifier"`
	MonthlySpendUSD float64         `json:"monthly_spend_usd"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// CompleteResponse is the result of a raw completion call.
type CompleteResponse struct {
	Content      string  `json:"content"`
	Provider     string  `json:"provider"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ErrorResponse is the uniform error envelope. Code is one of
// "validation_error", "not_found", "budget_exceeded", "llm_unavailable" or
// "internal_error".
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
