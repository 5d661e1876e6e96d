package server

// Degraded-mode behavior: the server starts and serves the deterministic
// surfaces without LLM credentials and without rate tables.

import (
	"net/http"
	"strings"
	"testing"

	api "github.com/insurelens/insurelens-ai/pkg/types"
)

func TestDegradedWithoutLLMCredentials(t *testing.T) {
	// The test config carries no API key, so the default provider stays
	// unconfigured.
	srv := newTestServer(t)

	if srv.llmAdapter.Configured() {
		t.Fatal("adapter should not be configured without credentials")
	}

	// React mode needs the model.
	rec := doJSON(t, srv.handleQuery, http.MethodPost, "/api/v1/query",
		`{"query": "Why is my premium so high?", "mode": "react"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for react mode, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "llm_unavailable" {
		t.Errorf("Expected llm_unavailable, got %q", code)
	}

	// So does raw completion.
	rec = doJSON(t, srv.handleLLMComplete, http.MethodPost, "/api/v1/llm/complete",
		`{"prompt": "Summarize my policy"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for completion, got %d", rec.Code)
	}

	// The routed path serves without a model.
	rec = doJSON(t, srv.handleQuery, http.MethodPost, "/api/v1/query",
		`{"query": "Premium for a 35 year old on ActivAssure with 10 lakh cover", "mode": "route"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for route mode, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeAs[api.QueryResponse](t, rec); !strings.Contains(resp.Answer, "8260.59") {
		t.Errorf("Expected a priced answer, got %q", resp.Answer)
	}
}

func TestDegradedWithoutRateTables(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateTables.Dir = t.TempDir()

	srv, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	t.Cleanup(func() {
		srv.cancel()
		srv.auditLog.Close()
		srv.store.Close()
	})

	list := decodeAs[api.ProductList](t, doJSON(t, srv.handleProducts, http.MethodGet, "/api/v1/products", ""))
	if list.Count != 0 {
		t.Errorf("Expected empty catalog, got %d products", list.Count)
	}

	// Pricing against the empty catalog reports a not-found error.
	rec := doJSON(t, srv.handlePremiumCalculate, http.MethodPost, "/api/v1/premium/calculate",
		`{"product": "ActivAssure", "policy_type": "individual", "members": [{"age": 35}], "sum_insured": 1000000}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without rate tables, got %d: %s", rec.Code, rec.Body.String())
	}

	// Routed premium questions still answer; the answer reports the failure.
	rec = doJSON(t, srv.handleQuery, http.MethodPost, "/api/v1/query",
		`{"query": "Premium for a 35 year old on ActivAssure with 10 lakh cover"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from the routed path, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeAs[api.QueryResponse](t, rec); !strings.Contains(resp.Answer, "could not") {
		t.Errorf("Expected a failure answer, got %q", resp.Answer)
	}

	stats := decodeAs[api.StatsResponse](t, doJSON(t, srv.handleStats, http.MethodGet, "/api/v1/stats", ""))
	if stats.Catalog.Products != 0 {
		t.Errorf("Expected 0 products in stats, got %d", stats.Catalog.Products)
	}
}
