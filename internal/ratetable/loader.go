package ratetable

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// LoadWorkbook parses a product workbook into one RateTable per sheet,
// keyed by normalised composition. Each sheet's age encoding is detected
// independently, so one workbook may carry exact-age and banded sheets side
// by side. Sheets with no content at all are skipped; sheets with content
// that does not parse fail the whole load.
func LoadWorkbook(path, product string) (map[string]*RateTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrMalformedWorkbook, filepath.Base(path), err)
	}
	defer f.Close()

	tables := make(map[string]*RateTable)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: reading sheet %q: %v", ErrMalformedWorkbook, sheet, err)
		}
		if isEmptySheet(rows) {
			continue
		}

		table, err := buildTable(product, sheet, rows)
		if err != nil {
			return nil, err
		}

		key := NormalizeComposition(sheet)
		if _, dup := tables[key]; dup {
			return nil, fmt.Errorf("%w: composition %q appears on two sheets", ErrMalformedWorkbook, sheet)
		}
		tables[key] = table
	}

	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: %s contains no rate sheets", ErrMalformedWorkbook, filepath.Base(path))
	}
	return tables, nil
}

// ProductNameFromPath derives the product name from a workbook file name:
// "ActivAssure.xlsx" names the product ActivAssure.
func ProductNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// buildTable parses one sheet. The first non-empty row is the header: an age
// column label followed by sum insured tier headers. Every following
// non-empty row is one rate row.
func buildTable(product, sheet string, rows [][]string) (*RateTable, error) {
	headerIdx := -1
	for i, row := range rows {
		if countNonEmpty(row) >= 2 {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return nil, fmt.Errorf("%w: sheet %q has no header row", ErrMalformedWorkbook, sheet)
	}

	header := rows[headerIdx]
	ageLabel := strings.TrimSpace(header[0])

	var tiers []int64
	for col := 1; col < len(header); col++ {
		cell := strings.TrimSpace(header[col])
		if cell == "" {
			break
		}
		tier, err := parseSumInsured(cell)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q header: %v", ErrMalformedWorkbook, sheet, err)
		}
		tiers = append(tiers, tier)
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: sheet %q header has no sum insured tiers", ErrMalformedWorkbook, sheet)
	}

	var (
		parsed   []Row
		sawExact bool
		sawBand  bool
	)
	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		if countNonEmpty(row) == 0 {
			continue
		}

		sel, kind, err := parseAgeCell(cellAt(row, 0))
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q row %d: %v", ErrMalformedWorkbook, sheet, i+1, err)
		}
		switch kind {
		case kindExact:
			sawExact = true
		case kindBand:
			sawBand = true
		}
		if sawExact && sawBand {
			return nil, fmt.Errorf("%w: sheet %q mixes exact ages and age bands in one column", ErrAmbiguousFormat, sheet)
		}

		r := Row{Selector: sel, Rates: make(map[int64]decimal.Decimal, len(tiers))}
		for col, tier := range tiers {
			cell := cellAt(row, col+1)
			if strings.TrimSpace(cell) == "" {
				return nil, fmt.Errorf("%w: sheet %q row %d is missing a rate for tier %d",
					ErrMalformedWorkbook, sheet, i+1, tier)
			}
			rate, err := parseRate(cell)
			if err != nil {
				return nil, fmt.Errorf("%w: sheet %q row %d: %v", ErrMalformedWorkbook, sheet, i+1, err)
			}
			r.Rates[tier] = rate
		}
		parsed = append(parsed, r)
	}

	encoding := EncodingExact
	if sawBand {
		encoding = EncodingBand
	}

	table := &RateTable{
		Product:     product,
		Composition: strings.TrimSpace(sheet),
		Encoding:    encoding,
		AgeLabel:    ageLabel,
		Tiers:       tiers,
		Rows:        parsed,
	}
	table.sortRows()
	if err := table.validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func isEmptySheet(rows [][]string) bool {
	for _, row := range rows {
		if countNonEmpty(row) > 0 {
			return false
		}
	}
	return true
}

func countNonEmpty(row []string) int {
	n := 0
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			n++
		}
	}
	return n
}

func cellAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}
