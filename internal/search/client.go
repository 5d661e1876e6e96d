// Package search provides retrieval of policy document passages.
//
// Responsibilities:
//   - Query the document-index collaborator over REST (text in, scored
//     passages out)
//   - Cache results with a TTL so repeated questions skip the round trip
//   - Mark timeouts and 5xx responses as transient for the registry's retry
//   - Offer an in-memory keyword store as a fallback for dev and tests
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/cache"
	"github.com/insurelens/insurelens-ai/internal/collaborator"
	"github.com/insurelens/insurelens-ai/internal/metrics"
)

// Passage is a scored excerpt from an indexed policy document.
type Passage struct {
	DocumentID string  `json:"document_id"`
	Product    string  `json:"product,omitempty"`
	Section    string  `json:"section,omitempty"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Options narrows a search.
type Options struct {
	// TopK caps the number of passages returned. 0 uses the client default.
	TopK int
	// Product filters passages to one product's documents when set.
	Product string
}

// Searcher retrieves passages relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) ([]Passage, error)
}

// Config holds document index client settings.
type Config struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	TopK            int
	CacheTTLSeconds int
}

// Client is a minimal REST client to the document index.
type Client struct {
	baseURL  string
	apiKey   string
	topK     int
	client   *http.Client
	cache    cache.Cache
	cacheTTL int
	log      *zap.Logger
}

// NewClient builds a document index client. cache may be nil to disable
// result caching.
func NewClient(cfg Config, c cache.Cache, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		topK:     topK,
		client:   &http.Client{Timeout: timeout},
		cache:    c,
		cacheTTL: cfg.CacheTTLSeconds,
		log:      log,
	}
}

func (c *Client) cacheKey(query string, opts Options) string {
	return fmt.Sprintf("search:%s:%s:k=%d", strings.ToLower(opts.Product), strings.ToLower(strings.TrimSpace(query)), opts.TopK)
}

// Search queries the index. Connection failures, timeouts and 5xx responses
// come back marked transient; 4xx responses do not.
func (c *Client) Search(ctx context.Context, query string, opts Options) ([]Passage, error) {
	if opts.TopK <= 0 {
		opts.TopK = c.topK
	}

	key := c.cacheKey(query, opts)
	if c.cache != nil {
		if v, found, err := c.cache.Get(ctx, key); err == nil && found {
			if passages, ok := v.([]Passage); ok {
				metrics.SearchRequests.WithLabelValues("cache_hit").Inc()
				return passages, nil
			}
		}
	}

	req := map[string]any{
		"query": query,
		"top_k": opts.TopK,
	}
	if opts.Product != "" {
		req["product"] = opts.Product
	}

	var resp struct {
		Results []Passage `json:"results"`
	}
	if err := c.postJSON(ctx, c.baseURL+"/api/v1/search", req, &resp); err != nil {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.SearchRequests.WithLabelValues("success").Inc()
	if c.cache != nil && c.cacheTTL > 0 {
		_ = c.cache.Set(ctx, key, resp.Results, c.cacheTTL)
	}
	return resp.Results, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Timeouts and connection errors are worth one retry.
		return collaborator.MarkTransient(fmt.Errorf("document index POST %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return collaborator.MarkTransient(fmt.Errorf("document index POST %s failed: %s", url, resp.Status))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("document index POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
