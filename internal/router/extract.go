package router

import (
	"regexp"
	"strconv"
	"strings"
)

// Argument extraction is regex-only so the route decision stays a pure
// function of the query text. Anything the patterns miss is left for the
// tool's validation to report, or for the reasoning path to work out with
// the model.

var (
	// "35-year-old", "ages 35, 40 and 7", "I am 42 years old"
	agePattern = regexp.MustCompile(`\b(\d{1,3})[\s-]*(?:years?[\s-]*old|yrs?\b|yo\b)|\bage[sd]?\s*(?:are|is|of|:)?\s*((?:\d{1,3}\s*(?:,|and|&)?\s*)+)`)
	numberRun  = regexp.MustCompile(`\d{1,3}`)

	// "5L", "10 lakh", "7.5 lakhs", "₹500000", "Rs. 500000", "500000"
	lakhPattern   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:l\b|lacs?\b|lakhs?\b)`)
	rupeesPattern = regexp.MustCompile(`(?i)(?:₹|rs\.?|inr)\s*([\d,]{4,})|\b(\d{5,})\b`)

	// "crore" cover amounts, e.g. "1 crore", "1.5 cr"
	crorePattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:cr\b|crores?\b)`)

	floaterPattern    = regexp.MustCompile(`(?i)\bfamily(?:\s*floater)?\b|\bfloater\b|\bwife\b|\bhusband\b|\bspouse\b|\bkids?\b|\bchild(?:ren)?\b|\bson\b|\bdaughter\b|\bparents?\b`)
	individualPattern = regexp.MustCompile(`(?i)\bindividual\b|\bself\s*only\b|\bjust\s+(?:for\s+)?me\b|\bmyself\b`)
)

// extraction holds everything the patterns recognized in one query.
type extraction struct {
	Ages       []int
	SumInsured int64
	PolicyType string
	Products   []string
}

func (e extraction) hasPremiumShape() bool {
	return len(e.Ages) > 0 && e.SumInsured > 0
}

// extractAges finds candidate member ages. Values over 130 are discarded as
// something else numeric (sums, years).
func extractAges(query string) []int {
	var ages []int
	seen := map[int]bool{}
	for _, m := range agePattern.FindAllStringSubmatch(strings.ToLower(query), -1) {
		run := m[1]
		if run == "" {
			run = m[2]
		}
		for _, num := range numberRun.FindAllString(run, -1) {
			age, err := strconv.Atoi(num)
			if err != nil || age > 130 {
				continue
			}
			if !seen[age] {
				seen[age] = true
				ages = append(ages, age)
			}
		}
	}
	return ages
}

// extractSumInsured resolves a cover amount in rupees, or 0. Lakh and crore
// spellings win over bare digit runs.
func extractSumInsured(query string) int64 {
	if m := crorePattern.FindStringSubmatch(query); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return int64(v * 1e7)
		}
	}
	if m := lakhPattern.FindStringSubmatch(query); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return int64(v * 1e5)
		}
	}
	if m := rupeesPattern.FindStringSubmatch(query); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		raw = strings.ReplaceAll(raw, ",", "")
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
	}
	return 0
}

// extractPolicyType reads an explicit policy type, or derives family_floater
// from multiple ages. An explicit "individual" outranks family-member words.
// "" means undecided.
func extractPolicyType(query string, ages []int) string {
	switch {
	case individualPattern.MatchString(query):
		return "individual"
	case floaterPattern.MatchString(query):
		return "family_floater"
	case len(ages) > 1:
		return "family_floater"
	case len(ages) == 1:
		return "individual"
	default:
		return ""
	}
}
