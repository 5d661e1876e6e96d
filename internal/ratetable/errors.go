package ratetable

import "errors"

// Domain errors for rate table loading and lookup. These are deterministic
// data errors: callers surface them verbatim and never retry them.
var (
	// ErrMalformedWorkbook marks structural problems: no parseable age
	// column, inconsistent tier sets, empty sheets, band gaps or overlaps.
	ErrMalformedWorkbook = errors.New("malformed workbook")

	// ErrAmbiguousFormat marks a sheet mixing exact ages and age bands in
	// one column. Loading fails rather than guessing.
	ErrAmbiguousFormat = errors.New("ambiguous age format")

	// ErrAgeOutOfRange marks an age no row of the table covers.
	ErrAgeOutOfRange = errors.New("age out of range")

	// ErrUnsupportedSumInsured marks a sum insured tier the table does not
	// carry. There is no rounding to a neighbouring tier.
	ErrUnsupportedSumInsured = errors.New("unsupported sum insured")

	// ErrUnsupportedComposition marks a member composition with no sheet in
	// the product's workbook.
	ErrUnsupportedComposition = errors.New("unsupported composition")

	// ErrUnknownProduct marks a product with no loaded workbook.
	ErrUnknownProduct = errors.New("unknown product")
)
