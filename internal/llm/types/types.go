// Package types holds the shared message and usage shapes passed between
// the LLM adapter, providers, and the reasoning engine.
package types

// Message is one turn in a conversation sent to the model.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// TokenUsage reports tokens consumed by one completion.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// CompletionResponse is the result of a non-streaming completion.
type CompletionResponse struct {
	Content string     `json:"content"`
	Usage   TokenUsage `json:"usage"`
}

// StreamChunk is one piece of a streaming completion. Content carries an
// incremental token; Done marks the final chunk, which also carries the
// accumulated usage. Err is set instead of Content when the stream fails
// mid-flight.
type StreamChunk struct {
	Content string     `json:"content,omitempty"`
	Done    bool       `json:"done,omitempty"`
	Usage   TokenUsage `json:"usage,omitempty"`
	Err     error      `json:"-"`
}

// Capabilities describes what a configured provider supports.
type Capabilities struct {
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	SupportsStreaming bool   `json:"supports_streaming"`
	MaxTokens         int    `json:"max_tokens"`
	ContextWindow     int    `json:"context_window"`
}
