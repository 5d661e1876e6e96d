package ratetable

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// sheetDef is a test workbook sheet: a name and rows of cell values.
type sheetDef struct {
	name string
	rows [][]interface{}
}

// writeWorkbook builds an xlsx file under dir and returns its path.
func writeWorkbook(t *testing.T, dir, product string, sheets []sheetDef) string {
	t.Helper()

	f := excelize.NewFile()
	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.name))
		} else {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r, row := range s.rows {
			for c, val := range row {
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, err)
				require.NoError(t, f.SetCellValue(s.name, cell, val))
			}
		}
	}

	path := filepath.Join(dir, product+".xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

// activAssureSheets is the standard fixture: a banded family sheet next to
// an exact-age individual sheet, mirroring how insurers actually publish.
func activAssureSheets() []sheetDef {
	return []sheetDef{
		{
			name: "Individual",
			rows: [][]interface{}{
				{"Age", "5L", "10L"},
				{"18", "4500", "6200.50"},
				{"19", "4550", "6300"},
				{"20", "4600", "6400"},
			},
		},
		{
			name: "2 Adults + 1 Child",
			rows: [][]interface{}{
				{"Age Band", "5L", "10L"},
				{"18-35", "11200", "14850"},
				{"36-45", "12900", "16579"},
				{"46-60", "18400", "23100"},
				{"61-75", "27600", "35900"},
				{"76+", "39000", "51200"},
			},
		},
	}
}

func TestLoadWorkbookMixedEncodingsAcrossSheets(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "ActivAssure", activAssureSheets())

	tables, err := LoadWorkbook(path, "ActivAssure")
	require.NoError(t, err)
	require.Len(t, tables, 2)

	indiv := tables[NormalizeComposition("Individual")]
	require.NotNil(t, indiv)
	assert.Equal(t, EncodingExact, indiv.Encoding)
	assert.Equal(t, []int64{500000, 1000000}, indiv.Tiers)

	family := tables[NormalizeComposition("2 Adults + 1 Child")]
	require.NotNil(t, family)
	assert.Equal(t, EncodingBand, family.Encoding)
	assert.Equal(t, "ActivAssure", family.Product)

	rate, err := family.Rate(40, 1000000)
	require.NoError(t, err)
	assert.Equal(t, "16579", rate.String())
}

func TestLoadWorkbookAmbiguousSheetFails(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "Mixed", []sheetDef{
		{
			name: "Individual",
			rows: [][]interface{}{
				{"Age", "5L"},
				{"18", "4500"},
				{"26-30", "5100"},
			},
		},
	})

	_, err := LoadWorkbook(path, "Mixed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguousFormat)
	assert.Contains(t, err.Error(), "Individual")
}

func TestLoadWorkbookBandGapFails(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "Gappy", []sheetDef{
		{
			name: "2 Adults",
			rows: [][]interface{}{
				{"Age Band", "5L"},
				{"18-25", "9000"},
				{"28-40", "11000"},
			},
		},
	})

	_, err := LoadWorkbook(path, "Gappy")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedWorkbook)
	assert.Contains(t, err.Error(), "gap")
}

func TestLoadWorkbookBandOverlapFails(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "Overlappy", []sheetDef{
		{
			name: "2 Adults",
			rows: [][]interface{}{
				{"Age Band", "5L"},
				{"18-30", "9000"},
				{"25-40", "11000"},
			},
		},
	})

	_, err := LoadWorkbook(path, "Overlappy")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedWorkbook)
	assert.Contains(t, err.Error(), "overlap")
}

func TestLoadWorkbookOpenBandMustBeLast(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "OpenEarly", []sheetDef{
		{
			name: "2 Adults",
			rows: [][]interface{}{
				{"Age Band", "5L"},
				{"66+", "9000"},
				{"80-90", "11000"},
			},
		},
	})

	_, err := LoadWorkbook(path, "OpenEarly")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedWorkbook)
}

func TestLoadWorkbookMissingRateFails(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "Sparse", []sheetDef{
		{
			name: "Individual",
			rows: [][]interface{}{
				{"Age", "5L", "10L"},
				{"18", "4500", "6200"},
				{"19", "4550"},
			},
		},
	})

	_, err := LoadWorkbook(path, "Sparse")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedWorkbook)
}

func TestLoadWorkbookDuplicateAgeFails(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "Dupe", []sheetDef{
		{
			name: "Individual",
			rows: [][]interface{}{
				{"Age", "5L"},
				{"18", "4500"},
				{"18", "4700"},
			},
		},
	})

	_, err := LoadWorkbook(path, "Dupe")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedWorkbook)
}

func TestLoadWorkbookUnparseableAgeColumnFails(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "Garbage", []sheetDef{
		{
			name: "Individual",
			rows: [][]interface{}{
				{"Age", "5L"},
				{"adult", "4500"},
			},
		},
	})

	_, err := LoadWorkbook(path, "Garbage")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedWorkbook)
}

func TestBandBoundsInclusiveAndAdjacent(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "Bands", []sheetDef{
		{
			name: "2 Adults",
			rows: [][]interface{}{
				{"Age Band", "5L"},
				{"18-25", "9000"},
				{"26-30", "11000"},
			},
		},
	})

	tables, err := LoadWorkbook(path, "Bands")
	require.NoError(t, err)
	table := tables[NormalizeComposition("2 Adults")]
	require.NotNil(t, table)

	idx25, err := table.RowFor(25)
	require.NoError(t, err)
	idx26, err := table.RowFor(26)
	require.NoError(t, err)
	assert.Equal(t, 0, idx25, "25 belongs to 18-25")
	assert.Equal(t, 1, idx26, "26 belongs to 26-30")

	// No age in the covered span falls through.
	for age := 18; age <= 30; age++ {
		_, err := table.RowFor(age)
		assert.NoError(t, err, "age %d should be covered", age)
	}

	_, err = table.RowFor(17)
	assert.ErrorIs(t, err, ErrAgeOutOfRange)
	_, err = table.RowFor(31)
	assert.ErrorIs(t, err, ErrAgeOutOfRange)
}

func TestOpenBandCoversAllHigherAges(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "Open", []sheetDef{
		{
			name: "Individual",
			rows: [][]interface{}{
				{"Age Band", "5L"},
				{"18-75", "9000"},
				{"76+", "21000"},
			},
		},
	})

	tables, err := LoadWorkbook(path, "Open")
	require.NoError(t, err)
	table := tables[NormalizeComposition("Individual")]

	rate, err := table.Rate(99, 500000)
	require.NoError(t, err)
	assert.Equal(t, "21000", rate.String())

	low, high := table.AgeRange()
	assert.Equal(t, 18, low)
	assert.Equal(t, -1, high, "open-ended table has no upper bound")
}

func TestRateUnsupportedTier(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "ActivAssure", activAssureSheets())

	tables, err := LoadWorkbook(path, "ActivAssure")
	require.NoError(t, err)
	table := tables[NormalizeComposition("2 Adults + 1 Child")]

	_, err = table.Rate(40, 750000)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedSumInsured)
	assert.True(t, table.HasTier(1000000))
	assert.False(t, table.HasTier(750000))
}
