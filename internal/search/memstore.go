package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// MemStore is a brute-force in-memory keyword index. It stands in for the
// document index in development and tests; scoring is the fraction of query
// terms present in a passage.
type MemStore struct {
	mu       sync.RWMutex
	passages []Passage
	tokens   []map[string]int
}

// NewMemStore builds an empty store.
func NewMemStore() *MemStore { return &MemStore{} }

// Load replaces the store contents.
func (s *MemStore) Load(passages []Passage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passages = nil
	s.tokens = nil
	for _, p := range passages {
		s.passages = append(s.passages, p)
		s.tokens = append(s.tokens, tokenize(p.Text))
	}
}

// Add appends one passage.
func (s *MemStore) Add(p Passage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passages = append(s.passages, p)
	s.tokens = append(s.tokens, tokenize(p.Text))
}

// Search scores every passage against the query terms and returns the topK
// matches with a non-zero score, best first.
func (s *MemStore) Search(ctx context.Context, query string, opts Options) ([]Passage, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		index int
		score float64
	}
	var matches []scored
	for i, p := range s.passages {
		if opts.Product != "" && !strings.EqualFold(p.Product, opts.Product) {
			continue
		}
		hits := 0
		for term := range terms {
			if _, ok := s.tokens[i][term]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		matches = append(matches, scored{index: i, score: float64(hits) / float64(len(terms))})
	}

	// Stable sort keeps insertion order among equal scores.
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].score > matches[b].score
	})
	if topK > len(matches) {
		topK = len(matches)
	}

	results := make([]Passage, 0, topK)
	for _, m := range matches[:topK] {
		p := s.passages[m.index]
		p.Score = m.score
		results = append(results, p)
	}
	return results, nil
}

// tokenize lowercases and splits on non-alphanumeric runes, counting term
// frequency.
func tokenize(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		counts[tok]++
	}
	return counts
}
