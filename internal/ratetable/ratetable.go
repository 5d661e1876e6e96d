// Package ratetable loads insurer rate workbooks into immutable in-memory
// tables and answers rate lookups against them.
//
// Responsibilities:
//   - Parse product workbooks (one sheet per member composition) via excelize
//   - Detect the age encoding of each sheet: exact ages or age bands
//   - Validate band contiguity, tier consistency and duplicate ages at load
//   - Answer (age, sum insured) -> rate lookups with inclusive band bounds
//   - Hold loaded products behind an atomically swapped cache so a reload
//     never exposes partial state to readers
//
// A sheet either lists one exact age per row ("18", "19", ...) or one
// inclusive band per row ("18-25", "26-30", "76+"). The two forms never mix
// within a sheet; a workbook may freely mix forms across sheets. Rates are
// decimal from the moment a cell is parsed; no float64 is involved anywhere
// on the pricing path.
package ratetable

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Encoding is the age representation of one sheet.
type Encoding string

const (
	EncodingExact Encoding = "EXACT"
	EncodingBand  Encoding = "BAND"
)

// AgeSelector is the age coverage of one row. Exact rows have Low == High.
// Open selectors ("76+") cover every age from Low upward.
type AgeSelector struct {
	Low  int
	High int
	Open bool
}

// Matches reports whether the selector covers the given age. Both bounds are
// inclusive.
func (s AgeSelector) Matches(age int) bool {
	if age < s.Low {
		return false
	}
	return s.Open || age <= s.High
}

// String renders the selector the way the source cell would.
func (s AgeSelector) String() string {
	if s.Open {
		return fmt.Sprintf("%d+", s.Low)
	}
	if s.Low == s.High {
		return fmt.Sprintf("%d", s.Low)
	}
	return fmt.Sprintf("%d-%d", s.Low, s.High)
}

// Row is one rate row: an age selector and the rate per sum insured tier.
type Row struct {
	Selector AgeSelector
	Rates    map[int64]decimal.Decimal
}

// RateTable is the parsed form of one workbook sheet. Immutable after
// construction; reloads build new tables and swap them in at the cache.
type RateTable struct {
	Product     string
	Composition string
	Encoding    Encoding
	AgeLabel    string
	Tiers       []int64 // sorted ascending
	Rows        []Row   // sorted by Selector.Low
}

// RowFor resolves an age to its row index.
//
// EXACT tables require an exact integer match. BAND tables scan for the
// single band containing the age; both band ends are inclusive, so 25
// matches "18-25" and 26 matches "26-30".
func (t *RateTable) RowFor(age int) (int, error) {
	for i, row := range t.Rows {
		if row.Selector.Matches(age) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: age %d not covered by %s / %s", ErrAgeOutOfRange, age, t.Product, t.Composition)
}

// Rate returns the premium rate for an age and sum insured tier. The tier
// must exist exactly; headers are normalised at load so "10L" and 1000000
// name the same tier.
func (t *RateTable) Rate(age int, sumInsured int64) (decimal.Decimal, error) {
	idx, err := t.RowFor(age)
	if err != nil {
		return decimal.Zero, err
	}
	rate, ok := t.Rows[idx].Rates[sumInsured]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: tier %d not offered by %s / %s", ErrUnsupportedSumInsured, sumInsured, t.Product, t.Composition)
	}
	return rate, nil
}

// HasTier reports whether the table carries the sum insured tier.
func (t *RateTable) HasTier(sumInsured int64) bool {
	for _, tier := range t.Tiers {
		if tier == sumInsured {
			return true
		}
	}
	return false
}

// AgeRange returns the lowest and highest covered ages. The second value is
// -1 when the table ends in an open band.
func (t *RateTable) AgeRange() (int, int) {
	if len(t.Rows) == 0 {
		return 0, -1
	}
	low := t.Rows[0].Selector.Low
	last := t.Rows[len(t.Rows)-1].Selector
	if last.Open {
		return low, -1
	}
	return low, last.High
}

// validate enforces the table invariants after parsing. Rows must already be
// sorted by Selector.Low.
func (t *RateTable) validate() error {
	if len(t.Rows) == 0 {
		return fmt.Errorf("%w: sheet %q has no data rows", ErrMalformedWorkbook, t.Composition)
	}

	for i, row := range t.Rows {
		if len(row.Rates) != len(t.Tiers) {
			return fmt.Errorf("%w: sheet %q row %d carries %d rates for %d tiers",
				ErrMalformedWorkbook, t.Composition, i+1, len(row.Rates), len(t.Tiers))
		}
	}

	switch t.Encoding {
	case EncodingExact:
		seen := make(map[int]bool, len(t.Rows))
		for _, row := range t.Rows {
			age := row.Selector.Low
			if seen[age] {
				return fmt.Errorf("%w: sheet %q lists age %d twice", ErrMalformedWorkbook, t.Composition, age)
			}
			seen[age] = true
		}

	case EncodingBand:
		for i, row := range t.Rows {
			if row.Selector.Open && i != len(t.Rows)-1 {
				return fmt.Errorf("%w: sheet %q has open-ended band %q before the last row",
					ErrMalformedWorkbook, t.Composition, row.Selector)
			}
		}
		for i := 1; i < len(t.Rows); i++ {
			prev, cur := t.Rows[i-1].Selector, t.Rows[i].Selector
			if cur.Low <= prev.High {
				return fmt.Errorf("%w: sheet %q bands %q and %q overlap",
					ErrMalformedWorkbook, t.Composition, prev, cur)
			}
			if cur.Low != prev.High+1 {
				return fmt.Errorf("%w: sheet %q has a gap between bands %q and %q",
					ErrMalformedWorkbook, t.Composition, prev, cur)
			}
		}

	default:
		return fmt.Errorf("%w: sheet %q has no recognised age encoding", ErrMalformedWorkbook, t.Composition)
	}

	return nil
}

// sortRows orders rows by age and tiers ascending. Called once at build time.
func (t *RateTable) sortRows() {
	sort.Slice(t.Rows, func(i, j int) bool {
		return t.Rows[i].Selector.Low < t.Rows[j].Selector.Low
	})
	sort.Slice(t.Tiers, func(i, j int) bool { return t.Tiers[i] < t.Tiers[j] })
}
