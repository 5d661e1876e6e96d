package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insurelens/insurelens-ai/internal/cache"
	"github.com/insurelens/insurelens-ai/internal/collaborator"
)

func TestClientSearch(t *testing.T) {
	var gotAPIKey string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/search", r.URL.Path)
		gotAPIKey = r.Header.Get("api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []Passage{
				{DocumentID: "activ-assure-brochure", Product: "ActivAssure", Section: "Waiting Periods", Text: "Pre-existing diseases are covered after 36 months.", Score: 0.91},
				{DocumentID: "activ-assure-brochure", Product: "ActivAssure", Section: "Exclusions", Text: "Cosmetic treatment is excluded.", Score: 0.55},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "secret", TopK: 5}, nil, nil)

	passages, err := c.Search(context.Background(), "waiting period for pre-existing diseases", Options{Product: "ActivAssure"})
	require.NoError(t, err)
	require.Len(t, passages, 2)

	assert.Equal(t, "secret", gotAPIKey)
	assert.Equal(t, "waiting period for pre-existing diseases", gotBody["query"])
	assert.Equal(t, float64(5), gotBody["top_k"])
	assert.Equal(t, "ActivAssure", gotBody["product"])

	assert.Equal(t, "Waiting Periods", passages[0].Section)
	assert.InDelta(t, 0.91, passages[0].Score, 1e-9)
}

func TestClientMarksServerErrorsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil, nil)

	_, err := c.Search(context.Background(), "waiting period", Options{})
	require.Error(t, err)
	assert.True(t, collaborator.IsTransient(err), "5xx should carry the transient marker")
}

func TestClientClientErrorsAreNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil, nil)

	_, err := c.Search(context.Background(), "waiting period", Options{})
	require.Error(t, err)
	assert.False(t, collaborator.IsTransient(err), "4xx must not be retried")
}

func TestClientConnectionErrorIsTransient(t *testing.T) {
	// Nothing listens here.
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond}, nil, nil)

	_, err := c.Search(context.Background(), "waiting period", Options{})
	require.Error(t, err)
	assert.True(t, collaborator.IsTransient(err))
}

func TestClientUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []Passage{{DocumentID: "doc", Text: "room rent capped at 1% of sum insured", Score: 0.8}},
		})
	}))
	defer srv.Close()

	resultCache := cache.NewCache("search-test", 0, time.Minute)
	defer resultCache.Close()

	c := NewClient(Config{BaseURL: srv.URL, CacheTTLSeconds: 60}, resultCache, nil)

	ctx := context.Background()
	first, err := c.Search(ctx, "room rent limit", Options{TopK: 3})
	require.NoError(t, err)
	second, err := c.Search(ctx, "room rent limit", Options{TopK: 3})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load(), "second search should come from cache")

	// A different query misses the cache.
	_, err = c.Search(ctx, "maternity waiting period", Options{TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

// ─── MemStore ─────────────────────────────────────────────────────────────────

func seedStore() *MemStore {
	s := NewMemStore()
	s.Load([]Passage{
		{DocumentID: "activ-1", Product: "ActivAssure", Section: "Waiting Periods", Text: "Pre-existing diseases have a waiting period of 36 months."},
		{DocumentID: "activ-2", Product: "ActivAssure", Section: "Room Rent", Text: "Room rent is covered up to the actual cost for single private rooms."},
		{DocumentID: "shield-1", Product: "SecureShield", Section: "Waiting Periods", Text: "Specific illnesses carry a 24 month waiting period."},
	})
	return s
}

func TestMemStoreRanksByTermOverlap(t *testing.T) {
	s := seedStore()

	results, err := s.Search(context.Background(), "waiting period for diseases", Options{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "activ-1", results[0].DocumentID, "passage matching the most query terms ranks first")
	assert.Greater(t, results[0].Score, 0.0)

	for _, r := range results {
		assert.NotEqual(t, "activ-2", r.DocumentID, "passage sharing no query terms is excluded")
	}
}

func TestMemStoreProductFilter(t *testing.T) {
	s := seedStore()

	results, err := s.Search(context.Background(), "waiting period", Options{Product: "secureshield"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "shield-1", results[0].DocumentID)
}

func TestMemStoreTopK(t *testing.T) {
	s := seedStore()

	results, err := s.Search(context.Background(), "waiting period room rent", Options{TopK: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMemStoreEmptyQuery(t *testing.T) {
	s := seedStore()

	results, err := s.Search(context.Background(), "   ", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}
