package premium

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ProductResult is one product's outcome inside a comparison. A product that
// cannot be priced carries its error text instead of a quote.
type ProductResult struct {
	Product string `json:"product"`
	Quote   *Quote `json:"quote,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Comparison prices the same family against several products side by side.
type Comparison struct {
	PolicyType string          `json:"policy_type"`
	SumInsured int64           `json:"sum_insured"`
	Results    []ProductResult `json:"results"`
	// Cheapest names the lowest-total product among those that priced.
	Cheapest string `json:"cheapest,omitempty"`
	// Saving is the total difference between the most and least expensive
	// successfully priced products.
	Saving decimal.Decimal `json:"saving"`
}

// Compare calculates the same policy across two or more products. Products
// that fail to price are reported in place rather than failing the whole
// comparison; at least one product must price for a comparison to be useful,
// otherwise the first error is returned.
func (c *Calculator) Compare(ctx context.Context, products []string, policyType string, members []Member, sumInsured int64) (*Comparison, error) {
	if len(products) < 2 {
		return nil, fmt.Errorf("%w: comparison needs at least two products, got %d", ErrInvalidInput, len(products))
	}

	cmp := &Comparison{
		PolicyType: policyType,
		SumInsured: sumInsured,
		Saving:     decimal.Zero,
	}

	var (
		firstErr error
		priced   int
		cheapest *Quote
		dearest  *Quote
	)
	for _, product := range products {
		quote, err := c.Calculate(ctx, product, policyType, members, sumInsured)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			cmp.Results = append(cmp.Results, ProductResult{Product: product, Error: err.Error()})
			continue
		}
		priced++
		cmp.Results = append(cmp.Results, ProductResult{Product: quote.Product, Quote: quote})
		if cheapest == nil || quote.TotalPremium.LessThan(cheapest.TotalPremium) {
			cheapest = quote
		}
		if dearest == nil || quote.TotalPremium.GreaterThan(dearest.TotalPremium) {
			dearest = quote
		}
	}

	if priced == 0 {
		return nil, firstErr
	}

	cmp.Cheapest = cheapest.Product
	cmp.Saving = dearest.TotalPremium.Sub(cheapest.TotalPremium)
	return cmp, nil
}
