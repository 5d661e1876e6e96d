// Package openai implements the completion client for the OpenAI chat API.
//
// Responsibilities:
//   - Non-streaming completions via /chat/completions
//   - Streaming completions via SSE (data: chunks, [DONE] terminator)
//   - Token usage taken from the API response, not estimated
//   - Connection failures, 429 and 5xx marked transient so callers retry
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/insurelens/insurelens-ai/internal/collaborator"
	"github.com/insurelens/insurelens-ai/internal/llm/types"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 1024
	DefaultTimeout   = 60 * time.Second
)

// Client talks to the OpenAI chat completions API.
type Client struct {
	apiKey     string
	model      string
	maxTokens  int
	baseURL    string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
	// StreamOptions asks the API to attach usage to the final stream chunk.
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

// NewClient builds a client. The API key is required; model defaults to
// gpt-4o-mini.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		maxTokens:  DefaultMaxTokens,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}, nil
}

// Complete sends a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, messages []types.Message) (types.CompletionResponse, error) {
	body, err := c.post(ctx, c.request(messages, false))
	if err != nil {
		return types.CompletionResponse{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return types.CompletionResponse{}, fmt.Errorf("parsing openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return types.CompletionResponse{}, fmt.Errorf("openai response contained no choices")
	}

	return types.CompletionResponse{
		Content: parsed.Choices[0].Message.Content,
		Usage: types.TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}, nil
}

// CompleteStream sends a streaming chat completion. The returned channel is
// closed after the final chunk (Done=true, carrying usage) or an error chunk.
func (c *Client) CompleteStream(ctx context.Context, messages []types.Message) (<-chan types.StreamChunk, error) {
	req, err := c.newRequest(ctx, c.request(messages, true))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, collaborator.MarkTransient(fmt.Errorf("openai request: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.statusError(resp)
	}

	out := make(chan types.StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		var usage types.TokenUsage
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				break
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if chunk.Usage != nil {
				usage = types.TokenUsage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
					TotalTokens:  chunk.Usage.TotalTokens,
				}
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				select {
				case out <- types.StreamChunk{Content: chunk.Choices[0].Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			out <- types.StreamChunk{Err: collaborator.MarkTransient(fmt.Errorf("reading openai stream: %w", err))}
			return
		}
		out <- types.StreamChunk{Done: true, Usage: usage}
	}()

	return out, nil
}

// CountTokens estimates usage at roughly four characters per token. The API
// does not expose its tokenizer, so this is only good enough for budget
// pre-checks.
func (c *Client) CountTokens(_ context.Context, messages []types.Message) (int, error) {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4, nil
}

// Capabilities reports model limits.
func (c *Client) Capabilities() types.Capabilities {
	return types.Capabilities{
		Provider:          "openai",
		Model:             c.model,
		SupportsStreaming: true,
		MaxTokens:         c.maxTokens,
		ContextWindow:     contextWindow(c.model),
	}
}

func (c *Client) request(messages []types.Message, stream bool) chatRequest {
	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	req := chatRequest{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: c.maxTokens,
		Stream:    stream,
	}
	if stream {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return req
}

func (c *Client) newRequest(ctx context.Context, payload chatRequest) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling openai request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

func (c *Client) post(ctx context.Context, payload chatRequest) ([]byte, error) {
	req, err := c.newRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, collaborator.MarkTransient(fmt.Errorf("openai request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, collaborator.MarkTransient(fmt.Errorf("reading openai response: %w", err))
	}
	return body, nil
}

func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("openai api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return collaborator.MarkTransient(err)
	}
	return err
}

func contextWindow(model string) int {
	switch {
	case strings.HasPrefix(model, "gpt-4o"):
		return 128000
	case strings.HasPrefix(model, "gpt-4-turbo"):
		return 128000
	case model == "gpt-4":
		return 8192
	case strings.HasPrefix(model, "gpt-3.5-turbo"):
		return 16385
	default:
		return 8192
	}
}

// SetBaseURL overrides the API base URL. Used in tests.
func (c *Client) SetBaseURL(url string) { c.baseURL = strings.TrimRight(url, "/") }
