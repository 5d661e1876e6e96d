package reasoning

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/db"
	"github.com/insurelens/insurelens-ai/internal/metrics"
	"github.com/insurelens/insurelens-ai/internal/models"
)

// Classifier predicts the intent the reasoning loop should lean towards and
// improves its predictions from corrections. Decide is a pure function of the
// query text and the loaded pattern set; all adaptation happens in Learn, so
// two identical queries between learning steps always classify the same.
const (
	// patternBoost is added to an intent's score when a learned pattern fires.
	patternBoost = 0.15
	// patternMatchThreshold is the fraction of a pattern's keywords that must
	// appear in the query for the pattern to fire.
	patternMatchThreshold = 0.6
	// maxPatternKeywords bounds the keyword set stored per learned pattern.
	maxPatternKeywords = 5
	// statsWindow is the sample size of the early and recent accuracy windows.
	statsWindow = 10
	// maxStoredPatterns bounds the persisted pattern set.
	maxStoredPatterns = 200
)

var (
	premiumSignals    = regexp.MustCompile(`(?i)\bpremium\b|\bquote\b|\bhow much\b|\bprice\b|\bcost\b|\bcalculate\b`)
	comparisonSignals = regexp.MustCompile(`(?i)\bcompare\b|\bcomparison\b|\bversus\b|\bvs\.?\b|\bcheaper\b|\bcheapest\b|\bbetter deal\b|\bdifference between\b|\bwhich is better\b`)
)

// decisionOrder fixes the tie-break: when two intents score equally the
// earlier one wins, so identical text always classifies the same.
var decisionOrder = []models.Intent{
	models.IntentPremiumCalculation,
	models.IntentPolicyComparison,
	models.IntentGeneralInquiry,
	models.IntentDocumentRetrieval,
}

// Prediction is the classifier's view of a query before the loop starts.
type Prediction struct {
	Intent     models.Intent `json:"intent"`
	Confidence float64       `json:"confidence"`
	// MatchedPatterns lists the learned keyword sets that boosted the score.
	MatchedPatterns []string `json:"matched_patterns,omitempty"`
}

// ClassifierStats summarises prediction quality for the stats endpoint.
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

// Classifier holds the learned pattern set and prediction history. Safe for
// concurrent use.
type Classifier struct {
	store db.PatternStore
	log   *zap.Logger

	mu          sync.RWMutex
	patterns    []*db.IntentPatternRecord
	predictions int
	correct     int
	early       []bool
	recent      []bool
	corrections int
}

// NewClassifier builds a classifier over the pattern store. The store may be
// nil; learned patterns then live only in memory.
func NewClassifier(store db.PatternStore, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{store: store, log: log}
}

// LoadPatterns replaces the in-memory pattern set from the store.
func (c *Classifier) LoadPatterns(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	patterns, err := c.store.ListIntentPatterns(ctx)
	if err != nil {
		return fmt.Errorf("load intent patterns: %w", err)
	}
	c.mu.Lock()
	c.patterns = patterns
	c.mu.Unlock()
	c.log.Info("intent patterns loaded", zap.Int("count", len(patterns)))
	return nil
}

// Decide scores the query against the lexical heuristics and the learned
// patterns and returns the best intent. Pure: no state changes.
func (c *Classifier) Decide(query string) Prediction {
	lower := strings.ToLower(query)
	tokens := tokenSet(lower)

	scores := map[models.Intent]float64{
		models.IntentDocumentRetrieval: 0.5,
	}
	if premiumSignals.MatchString(lower) {
		scores[models.IntentPremiumCalculation] = 0.6
	}
	if comparisonSignals.MatchString(lower) {
		scores[models.IntentPolicyComparison] = 0.6
	}

	// A firing pattern makes its intent a live candidate (at least the
	// retrieval floor) and boosts it once, regardless of how many of its
	// patterns fired.
	boosted := map[models.Intent][]string{}
	c.mu.RLock()
	for _, p := range c.patterns {
		intent := models.Intent(p.Intent)
		if !intent.Valid() || len(p.Keywords) == 0 {
			continue
		}
		if keywordOverlap(tokens, p.Keywords) >= patternMatchThreshold {
			boosted[intent] = append(boosted[intent], strings.Join(p.Keywords, " "))
		}
	}
	c.mu.RUnlock()

	var matched []string
	for intent, sets := range boosted {
		base, ok := scores[intent]
		if !ok {
			base = 0.5
		}
		score := base + patternBoost
		if score > 1.0 {
			score = 1.0
		}
		scores[intent] = score
		matched = append(matched, sets...)
	}
	sort.Strings(matched)

	best := models.IntentDocumentRetrieval
	bestScore := scores[best]
	for _, intent := range decisionOrder {
		if s, ok := scores[intent]; ok && s > bestScore {
			best = intent
			bestScore = s
		}
	}
	return Prediction{Intent: best, Confidence: bestScore, MatchedPatterns: matched}
}

// Record notes one prediction outcome for the accuracy windows. Realised
// intents outside the predictable set (composites) are not counted.
func (c *Classifier) Record(predicted, actual models.Intent) {
	if !actual.Valid() {
		return
	}
	hit := predicted == actual

	c.mu.Lock()
	defer c.mu.Unlock()
	c.predictions++
	if hit {
		c.correct++
	}
	if len(c.early) < statsWindow {
		c.early = append(c.early, hit)
	}
	c.recent = append(c.recent, hit)
	if len(c.recent) > statsWindow {
		c.recent = c.recent[1:]
	}
}

// Learn stores a correction: the query's strongest keywords become a pattern
// for the intent that actually served it. No-op when the prediction was
// right or the realised intent is not a predictable one.
func (c *Classifier) Learn(ctx context.Context, query string, predicted, actual models.Intent) error {
	if predicted == actual || !actual.Valid() {
		return nil
	}
	keywords := learnKeywords(query)
	if len(keywords) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rec := &db.IntentPatternRecord{
		Intent:    string(actual),
		Keywords:  keywords,
		Weight:    patternBoost,
		TimesSeen: 1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if c.store != nil {
		if err := c.store.UpsertIntentPattern(ctx, rec); err != nil {
			return fmt.Errorf("persist intent pattern: %w", err)
		}
		if _, err := c.store.PruneIntentPatterns(ctx, maxStoredPatterns); err != nil {
			c.log.Warn("intent pattern prune failed", zap.Error(err))
		}
	}

	c.mu.Lock()
	c.corrections++
	c.absorb(rec)
	c.mu.Unlock()

	metrics.PatternsLearned.WithLabelValues(string(actual)).Inc()
	c.log.Debug("intent pattern learned",
		zap.String("predicted", string(predicted)),
		zap.String("actual", string(actual)),
		zap.Strings("keywords", keywords))
	return nil
}

// absorb merges the record into the in-memory set. Caller holds the lock.
func (c *Classifier) absorb(rec *db.IntentPatternRecord) {
	for _, p := range c.patterns {
		if p.Intent == rec.Intent && equalKeywords(p.Keywords, rec.Keywords) {
			p.TimesSeen++
			p.UpdatedAt = rec.UpdatedAt
			return
		}
	}
	c.patterns = append(c.patterns, rec)
}

// Stats reports prediction quality, comparing the first and the most recent
// sample windows to show whether learning is helping.
func (c *Classifier) Stats() ClassifierStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := ClassifierStats{
		Predictions:     c.predictions,
		Correct:         c.correct,
		Corrections:     c.corrections,
		LearnedPatterns: len(c.patterns),
	}
	if c.predictions > 0 {
		s.Accuracy = float64(c.correct) / float64(c.predictions)
	}
	s.EarlyAccuracy = windowAccuracy(c.early)
	s.RecentAccuracy = windowAccuracy(c.recent)
	if len(c.early) > 0 && len(c.recent) > 0 {
		s.Improvement = s.RecentAccuracy - s.EarlyAccuracy
	}
	return s
}

// ResetStats clears the prediction counters and accuracy windows. Learned
// patterns are knowledge, not statistics, and survive the reset.
func (c *Classifier) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.predictions = 0
	c.correct = 0
	c.early = nil
	c.recent = nil
	c.corrections = 0
}

func windowAccuracy(window []bool) float64 {
	if len(window) == 0 {
		return 0
	}
	hits := 0
	for _, ok := range window {
		if ok {
			hits++
		}
	}
	return float64(hits) / float64(len(window))
}

// ─── Keyword extraction ─────────────────────────────────────────────────────

var stopWords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "also": {}, "been": {},
	"before": {}, "being": {}, "between": {}, "both": {}, "could": {},
	"does": {}, "down": {}, "each": {}, "from": {}, "have": {},
	"into": {}, "just": {}, "like": {}, "mine": {}, "much": {},
	"only": {}, "other": {}, "over": {}, "please": {}, "should": {},
	"some": {}, "tell": {}, "than": {}, "that": {}, "their": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {},
	"this": {}, "those": {}, "under": {}, "very": {}, "want": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "will": {},
	"with": {}, "would": {}, "your": {},
}

// learnKeywords extracts the up-to-five most frequent meaningful tokens,
// sorted for storage so the same keyword set always maps to one pattern row.
func learnKeywords(query string) []string {
	counts := map[string]int{}
	for tok := range tokenSet(strings.ToLower(query)) {
		if len(tok) <= 3 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		counts[tok] = 0
	}
	for _, tok := range splitTokens(strings.ToLower(query)) {
		if _, ok := counts[tok]; ok {
			counts[tok]++
		}
	}

	candidates := make([]string, 0, len(counts))
	for tok := range counts {
		candidates = append(candidates, tok)
	}
	// Frequency first, alphabetical on ties, so extraction is deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		if counts[candidates[i]] != counts[candidates[j]] {
			return counts[candidates[i]] > counts[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	if len(candidates) > maxPatternKeywords {
		candidates = candidates[:maxPatternKeywords]
	}
	sort.Strings(candidates)
	return candidates
}

func splitTokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range splitTokens(text) {
		set[tok] = struct{}{}
	}
	return set
}

func keywordOverlap(tokens map[string]struct{}, keywords []string) float64 {
	hits := 0
	for _, kw := range keywords {
		if _, ok := tokens[kw]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

func equalKeywords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
