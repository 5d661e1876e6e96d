package context

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/insurelens/insurelens-ai/internal/models"
)

const (
	// DefaultTurns is how many recent turns a follow-up pulls in.
	DefaultTurns = 6
	// turnMaxChars bounds each rendered turn so one verbose answer cannot
	// crowd out the question.
	turnMaxChars = 300
	// shortQueryWords: queries below this word count lean on history.
	shortQueryWords = 5
)

// followUpIndicators marks queries that refer back to earlier turns.
var followUpIndicators = regexp.MustCompile(
	`(?i)\b(what about|how about|and for|same|also|again|instead|it|that|this|those|these|they|previous)\b`)

type builderImpl struct {
	source HistorySource
	turns  int
}

// NewBuilder creates a Builder over the history source. turns <= 0 selects
// DefaultTurns.
func NewBuilder(source HistorySource, turns int) Builder {
	if turns <= 0 {
		turns = DefaultTurns
	}
	return &builderImpl{source: source, turns: turns}
}

// Build renders the recent-conversation block when the query looks like a
// follow-up. Standalone questions get no context so the prompt stays small.
func (b *builderImpl) Build(ctx context.Context, conversationID, query string) (string, error) {
	if conversationID == "" || b.source == nil {
		return "", nil
	}
	if !needsHistory(query) {
		return "", nil
	}

	turns, err := b.source.Recent(ctx, conversationID, b.turns)
	if err != nil {
		return "", fmt.Errorf("read history for %s: %w", conversationID, err)
	}
	if len(turns) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("Recent conversation:\n")
	for _, turn := range turns {
		label := "User"
		if turn.Role == models.RoleAssistant {
			label = "Assistant"
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", label, clip(turn.Content, turnMaxChars)))
	}
	return sb.String(), nil
}

// EstimateTokens uses a chars/4 heuristic, close enough for logging and
// budget pre-checks.
func (b *builderImpl) EstimateTokens(block string) int {
	return utf8.RuneCountInString(block) / 4
}

// needsHistory reports whether the query leans on earlier turns: follow-up
// wording, or too short to stand on its own.
func needsHistory(query string) bool {
	if len(strings.Fields(query)) < shortQueryWords {
		return true
	}
	return followUpIndicators.MatchString(query)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	// Do not split a multibyte rune.
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}
