// Package ollama implements the completion client for a local Ollama
// instance.
//
// Responsibilities:
//   - Non-streaming completions via /api/chat (stream=false)
//   - Streaming completions via NDJSON (one JSON object per line)
//   - Token usage from prompt_eval_count / eval_count, zero cost
//   - Connection failures and 5xx marked transient so callers retry
package ollama

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
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3"
	DefaultTimeout = 120 * time.Second
)

// Client talks to the Ollama chat API.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// chatResponse is one NDJSON line; the final line has done=true and carries
// the eval counts.
type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// NewClient builds a client for the given instance. Base URL defaults to
// the standard local port; model defaults to llama3.
func NewClient(baseURL, model string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}, nil
}

// Complete sends a non-streaming chat request.
func (c *Client) Complete(ctx context.Context, messages []types.Message) (types.CompletionResponse, error) {
	resp, err := c.do(ctx, c.request(messages, false))
	if err != nil {
		return types.CompletionResponse{}, err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.CompletionResponse{}, fmt.Errorf("parsing ollama response: %w", err)
	}

	return types.CompletionResponse{
		Content: parsed.Message.Content,
		Usage: types.TokenUsage{
			InputTokens:  parsed.PromptEvalCount,
			OutputTokens: parsed.EvalCount,
			TotalTokens:  parsed.PromptEvalCount + parsed.EvalCount,
		},
	}, nil
}

// CompleteStream sends a streaming chat request. Each NDJSON line becomes a
// chunk; the done line closes the stream with usage attached.
func (c *Client) CompleteStream(ctx context.Context, messages []types.Message) (<-chan types.StreamChunk, error) {
	resp, err := c.do(ctx, c.request(messages, true))
	if err != nil {
		return nil, err
	}

	out := make(chan types.StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var line chatResponse
			if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
				continue
			}
			if line.Message.Content != "" {
				select {
				case out <- types.StreamChunk{Content: line.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
			if line.Done {
				out <- types.StreamChunk{
					Done: true,
					Usage: types.TokenUsage{
						InputTokens:  line.PromptEvalCount,
						OutputTokens: line.EvalCount,
						TotalTokens:  line.PromptEvalCount + line.EvalCount,
					},
				}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- types.StreamChunk{Err: collaborator.MarkTransient(fmt.Errorf("reading ollama stream: %w", err))}
		}
	}()

	return out, nil
}

// CountTokens approximates at four characters per token. Ollama has no
// tokenizer endpoint.
func (c *Client) CountTokens(_ context.Context, messages []types.Message) (int, error) {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4, nil
}

// Capabilities reports model limits. Context window is model-dependent and
// not discoverable, so a conservative default is reported.
func (c *Client) Capabilities() types.Capabilities {
	return types.Capabilities{
		Provider:          "ollama",
		Model:             c.model,
		SupportsStreaming: true,
		MaxTokens:         4096,
		ContextWindow:     8192,
	}
}

func (c *Client) request(messages []types.Message, stream bool) chatRequest {
	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	return chatRequest{Model: c.model, Messages: msgs, Stream: stream}
}

func (c *Client) do(ctx context.Context, payload chatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, collaborator.MarkTransient(fmt.Errorf("ollama request: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("ollama api status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 {
			return nil, collaborator.MarkTransient(err)
		}
		return nil, err
	}
	return resp, nil
}

// SetBaseURL overrides the instance URL. Used in tests.
func (c *Client) SetBaseURL(url string) { c.baseURL = strings.TrimRight(url, "/") }
