package ratetable

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// cellKind is the parsed form of one age cell.
type cellKind int

const (
	kindExact cellKind = iota
	kindBand
)

var (
	exactAgeRe = regexp.MustCompile(`^\d{1,3}$`)
	bandAgeRe  = regexp.MustCompile(`^(\d{1,3})\s*-\s*(\d{1,3})$`)
	openPlusRe = regexp.MustCompile(`^(\d{1,3})\s*\+$`)
	openGtRe   = regexp.MustCompile(`^>\s*(\d{1,3})$`)
	daysAgeRe  = regexp.MustCompile(`^(\d{1,4})\s*days?$`)

	lakhSumRe  = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(?:l|lac|lacs|lakh|lakhs)$`)
	croreSumRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(?:cr|crore|crores)$`)
)

// parseAgeCell parses one age-column cell into a selector and its kind.
// Accepted forms: "35", "18-25", "76+", "> 75", "91 days". Day-denominated
// infant ages convert to completed years and count as exact.
func parseAgeCell(raw string) (AgeSelector, cellKind, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return AgeSelector{}, 0, fmt.Errorf("empty age cell")
	}

	if exactAgeRe.MatchString(s) {
		age, _ := strconv.Atoi(s)
		return AgeSelector{Low: age, High: age}, kindExact, nil
	}

	if m := bandAgeRe.FindStringSubmatch(s); m != nil {
		low, _ := strconv.Atoi(m[1])
		high, _ := strconv.Atoi(m[2])
		if high < low {
			return AgeSelector{}, 0, fmt.Errorf("band %q runs backwards", raw)
		}
		return AgeSelector{Low: low, High: high}, kindBand, nil
	}

	if m := openPlusRe.FindStringSubmatch(s); m != nil {
		low, _ := strconv.Atoi(m[1])
		return AgeSelector{Low: low, High: low, Open: true}, kindBand, nil
	}

	if m := openGtRe.FindStringSubmatch(s); m != nil {
		// "> 75" covers ages strictly above 75.
		low, _ := strconv.Atoi(m[1])
		return AgeSelector{Low: low + 1, High: low + 1, Open: true}, kindBand, nil
	}

	if m := daysAgeRe.FindStringSubmatch(s); m != nil {
		days, _ := strconv.Atoi(m[1])
		age := days / 365
		return AgeSelector{Low: age, High: age}, kindExact, nil
	}

	return AgeSelector{}, 0, fmt.Errorf("unrecognised age cell %q", raw)
}

// parseSumInsured parses a sum insured header cell to rupees. Accepted
// forms: "500000", "5,00,000", "2L", "5 Lakh", "1 Cr", with an optional
// currency symbol.
func parseSumInsured(raw string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "₹")
	s = strings.TrimPrefix(s, "rs.")
	s = strings.TrimPrefix(s, "rs")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty sum insured cell")
	}

	if m := lakhSumRe.FindStringSubmatch(s); m != nil {
		val, err := decimal.NewFromString(m[1])
		if err != nil {
			return 0, fmt.Errorf("bad lakh amount %q: %w", raw, err)
		}
		return val.Mul(decimal.NewFromInt(100000)).IntPart(), nil
	}

	if m := croreSumRe.FindStringSubmatch(s); m != nil {
		val, err := decimal.NewFromString(m[1])
		if err != nil {
			return 0, fmt.Errorf("bad crore amount %q: %w", raw, err)
		}
		return val.Mul(decimal.NewFromInt(10000000)).IntPart(), nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognised sum insured cell %q", raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("sum insured must be positive, got %q", raw)
	}
	return n, nil
}

// parseRate parses a rate cell to decimal. Currency symbols and thousands
// separators are stripped; the digits are preserved exactly.
func parseRate(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "₹")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty rate cell")
	}
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unrecognised rate cell %q", raw)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative rate %q", raw)
	}
	return rate, nil
}

// NormalizeComposition canonicalises a composition key for lookups: case
// folded with whitespace collapsed, so "2 Adults + 1 Child" and
// "2 adults+1 child" address the same sheet.
func NormalizeComposition(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "+", " + ")
	return strings.Join(strings.Fields(s), " ")
}
