// Package premium turns rate table lookups into reproducible premium quotes.
//
// The calculator is a pure function over the loaded rate tables: identical
// inputs against an unchanged table cache always produce bit-identical
// quotes. All money math is decimal end to end; rounding to two places
// happens once, when the quote is assembled, never at intermediate steps.
package premium

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/insurelens/insurelens-ai/internal/metrics"
	"github.com/insurelens/insurelens-ai/internal/ratetable"
)

// Policy types.
const (
	PolicyIndividual    = "individual"
	PolicyFamilyFloater = "family_floater"
)

// GST on health insurance premiums.
var gstRate = decimal.RequireFromString("0.18")

// ErrInvalidInput marks requests rejected before any table lookup: empty
// member lists, negative ages, unknown policy types.
var ErrInvalidInput = errors.New("invalid premium input")

// Member is one covered life. Only the age matters for rating.
type Member struct {
	Age int `json:"age"`
}

// Quote is the immutable result of one calculation. Amounts are carried as
// decimals; the wire layer renders them with two places.
type Quote struct {
	Product      string          `json:"product"`
	PolicyType   string          `json:"policy_type"`
	Composition  string          `json:"composition"`
	SumInsured   int64           `json:"sum_insured"`
	EldestAge    int             `json:"eldest_age"`
	GrossPremium decimal.Decimal `json:"gross_premium"`
	GSTAmount    decimal.Decimal `json:"gst_amount"`
	TotalPremium decimal.Decimal `json:"total_premium"`
	CalculatedAt time.Time       `json:"calculated_at"`
	// WorkbookPath records which file priced this quote, for audit replay.
	WorkbookPath string `json:"workbook_path,omitempty"`
}

// Calculator prices policies against the rate table cache.
type Calculator struct {
	tables *ratetable.Cache
}

// NewCalculator creates a calculator over loaded rate tables.
func NewCalculator(tables *ratetable.Cache) *Calculator {
	return &Calculator{tables: tables}
}

// Calculate prices one policy.
//
// The composition key derives from the member ages: members under 18 count
// as children, 18 and over as adults. Individual policies cover exactly one
// member and rate against the "Individual" sheet. Family floaters rate the
// whole family off the eldest member's age, one lookup against the
// composition's sheet.
func (c *Calculator) Calculate(ctx context.Context, product, policyType string, members []Member, sumInsured int64) (*Quote, error) {
	if err := validateInput(product, policyType, members, sumInsured); err != nil {
		metrics.PremiumCalculations.WithLabelValues(orUnknown(product), orUnknown(policyType), "invalid").Inc()
		return nil, err
	}

	composition := CompositionFor(policyType, members)
	eldest := eldestAge(members)

	table, err := c.tables.Table(product, composition)
	if err != nil {
		metrics.PremiumCalculations.WithLabelValues(product, policyType, "error").Inc()
		return nil, err
	}

	gross, err := table.Rate(eldest, sumInsured)
	if err != nil {
		metrics.PremiumCalculations.WithLabelValues(product, policyType, "error").Inc()
		return nil, err
	}

	gst := gross.Mul(gstRate)
	total := gross.Add(gst)

	prod, _ := c.tables.Get(product)
	quote := &Quote{
		Product:      prod.Name,
		PolicyType:   policyType,
		Composition:  table.Composition,
		SumInsured:   sumInsured,
		EldestAge:    eldest,
		GrossPremium: gross.Round(2),
		GSTAmount:    gst.Round(2),
		TotalPremium: total.Round(2),
		CalculatedAt: time.Now().UTC(),
		WorkbookPath: prod.Path,
	}

	metrics.PremiumCalculations.WithLabelValues(prod.Name, policyType, "success").Inc()
	return quote, nil
}

// CompositionFor derives the rate sheet key from policy type and members.
func CompositionFor(policyType string, members []Member) string {
	if policyType == PolicyIndividual {
		return "Individual"
	}

	adults, children := 0, 0
	for _, m := range members {
		if m.Age >= 18 {
			adults++
		} else {
			children++
		}
	}

	switch {
	case adults > 0 && children > 0:
		return fmt.Sprintf("%d %s + %d %s", adults, pluralAdult(adults), children, pluralChild(children))
	case adults > 0:
		return fmt.Sprintf("%d %s", adults, pluralAdult(adults))
	default:
		return fmt.Sprintf("%d %s", children, pluralChild(children))
	}
}

func validateInput(product, policyType string, members []Member, sumInsured int64) error {
	if product == "" {
		return fmt.Errorf("%w: product is required", ErrInvalidInput)
	}
	if policyType != PolicyIndividual && policyType != PolicyFamilyFloater {
		return fmt.Errorf("%w: policy_type must be %q or %q, got %q",
			ErrInvalidInput, PolicyIndividual, PolicyFamilyFloater, policyType)
	}
	if len(members) == 0 {
		return fmt.Errorf("%w: at least one member is required", ErrInvalidInput)
	}
	if policyType == PolicyIndividual && len(members) != 1 {
		return fmt.Errorf("%w: individual policies cover exactly one member, got %d",
			ErrInvalidInput, len(members))
	}
	for i, m := range members {
		if m.Age < 0 || m.Age > 130 {
			return fmt.Errorf("%w: member %d has implausible age %d", ErrInvalidInput, i+1, m.Age)
		}
	}
	if sumInsured <= 0 {
		return fmt.Errorf("%w: sum_insured must be positive, got %d", ErrInvalidInput, sumInsured)
	}
	return nil
}

func eldestAge(members []Member) int {
	eldest := members[0].Age
	for _, m := range members[1:] {
		if m.Age > eldest {
			eldest = m.Age
		}
	}
	return eldest
}

func pluralAdult(n int) string {
	if n == 1 {
		return "Adult"
	}
	return "Adults"
}

func pluralChild(n int) string {
	if n == 1 {
		return "Child"
	}
	return "Children"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
