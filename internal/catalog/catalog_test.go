package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/ratetable"
)

type sheetDef struct {
	name string
	rows [][]interface{}
}

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

// newTestCatalog loads two products: ActivAssure with an exact-age individual
// sheet and a banded family sheet, SecureShield with a single banded sheet.
func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()

	writeWorkbook(t, dir, "ActivAssure", []sheetDef{
		{
			name: "Individual",
			rows: [][]interface{}{
				{"Age", "5L", "10L"},
				{"18", "4500", "6200.50"},
				{"19", "4550", "6300"},
			},
		},
		{
			name: "2 Adults + 1 Child",
			rows: [][]interface{}{
				{"Age Band", "5L", "10L"},
				{"18-35", "11200", "14850"},
				{"36-45", "12900", "16579"},
				{"46+", "18400", "23100"},
			},
		},
	})
	writeWorkbook(t, dir, "SecureShield", []sheetDef{
		{
			name: "2 Adults",
			rows: [][]interface{}{
				{"Age Band", "5L"},
				{"18-40", "9800"},
				{"41-65", "15200"},
			},
		},
	})

	cache := ratetable.NewCache(dir, 0, zap.NewNop())
	require.NoError(t, cache.LoadDir(context.Background()))
	return NewCatalog(cache)
}

func TestListSortedByName(t *testing.T) {
	c := newTestCatalog(t)

	infos := c.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "ActivAssure", infos[0].Name)
	assert.Equal(t, "SecureShield", infos[1].Name)
	assert.False(t, infos[0].LoadedAt.IsZero())
	assert.Contains(t, infos[0].Workbook, "ActivAssure.xlsx")
}

func TestGetDescribesTables(t *testing.T) {
	c := newTestCatalog(t)

	info, err := c.Get("activassure")
	require.NoError(t, err)
	require.Len(t, info.Tables, 2)

	byComposition := map[string]TableInfo{}
	for _, tab := range info.Tables {
		byComposition[tab.Composition] = tab
	}

	indiv := byComposition["Individual"]
	assert.Equal(t, "EXACT", indiv.Encoding)
	assert.Equal(t, 18, indiv.MinAge)
	assert.Equal(t, 19, indiv.MaxAge)
	assert.Equal(t, []int64{500000, 1000000}, indiv.SumInsured)

	family := byComposition["2 Adults + 1 Child"]
	assert.Equal(t, "BAND", family.Encoding)
	assert.Equal(t, 18, family.MinAge)
	assert.Equal(t, -1, family.MaxAge, "open-ended top band")
}

func TestGetUnknownProduct(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.Get("NoSuchPlan")
	require.Error(t, err)
	assert.ErrorIs(t, err, ratetable.ErrUnknownProduct)
}

func TestDetectSpacingAndCaseVariants(t *testing.T) {
	c := newTestCatalog(t)

	for _, query := range []string{
		"premium for ActivAssure please",
		"premium for activ assure please",
		"premium for Activ-Assure please",
		"premium for ACTIV ASSURE please",
	} {
		assert.Equal(t, []string{"ActivAssure"}, c.Detect(query), "query %q", query)
	}
}

func TestDetectOrderOfAppearance(t *testing.T) {
	c := newTestCatalog(t)

	names := c.Detect("compare secure shield against activ assure")
	assert.Equal(t, []string{"SecureShield", "ActivAssure"}, names)

	names = c.Detect("compare ActivAssure against SecureShield")
	assert.Equal(t, []string{"ActivAssure", "SecureShield"}, names)
}

func TestDetectNoSubstringFalsePositive(t *testing.T) {
	c := newTestCatalog(t)

	assert.Empty(t, c.Detect("my activities are reassuring"))
	assert.Empty(t, c.Detect("what is a waiting period"))
}

func TestStats(t *testing.T) {
	c := newTestCatalog(t)

	s := c.Stats()
	assert.Equal(t, 2, s.Products)
	assert.Equal(t, 3, s.Tables)
	assert.False(t, s.LastLoaded.IsZero())
}
