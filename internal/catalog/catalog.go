// Package catalog maintains the registry view over loaded insurance
// products.
//
// Responsibilities:
//   - Summarise each loaded product: compositions, sum insured tiers, age
//     coverage, workbook provenance
//   - Detect product names mentioned in free-form query text (word-boundary
//     matching, spacing and casing variations tolerated)
//   - Back the list_products tool and the stats endpoint
//
// The catalog holds no product state of its own; every call reads the rate
// table cache's current snapshot, so a reload is visible immediately.
package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/insurelens/insurelens-ai/internal/ratetable"
)

// TableInfo summarises one composition's rate table.
type TableInfo struct {
	Composition string  `json:"composition"`
	Encoding    string  `json:"encoding"` // EXACT or BAND
	MinAge      int     `json:"min_age"`
	MaxAge      int     `json:"max_age"` // -1 when the last band is open-ended
	SumInsured  []int64 `json:"sum_insured"`
}

// Info is the external view of a loaded product.
type Info struct {
	Name     string      `json:"name"`
	Workbook string      `json:"workbook"`
	LoadedAt time.Time   `json:"loaded_at"`
	Tables   []TableInfo `json:"tables"`
}

// Stats summarises the catalog for monitoring.
type Stats struct {
	Products   int       `json:"products"`
	Tables     int       `json:"tables"`
	LastLoaded time.Time `json:"last_loaded"`
}

// Catalog exposes product lookups and name detection over the rate table
// cache.
type Catalog struct {
	tables *ratetable.Cache

	mu        sync.Mutex
	detectors map[string]*regexp.Regexp
}

// NewCatalog builds a catalog over the given cache.
func NewCatalog(tables *ratetable.Cache) *Catalog {
	return &Catalog{
		tables:    tables,
		detectors: make(map[string]*regexp.Regexp),
	}
}

// List returns every loaded product, sorted by name.
func (c *Catalog) List() []Info {
	products := c.tables.Products()
	infos := make([]Info, 0, len(products))
	for _, p := range products {
		infos = append(infos, describe(p))
	}
	return infos
}

// Get returns one product's summary.
func (c *Catalog) Get(name string) (Info, error) {
	p, ok := c.tables.Get(name)
	if !ok {
		return Info{}, fmt.Errorf("product %q: %w", name, ratetable.ErrUnknownProduct)
	}
	return describe(p), nil
}

// Detect returns the canonical names of loaded products mentioned in the
// query, in order of first appearance. "activ assure", "Activ-Assure" and
// "ActivAssure" all match a product named ActivAssure.
func (c *Catalog) Detect(query string) []string {
	type hit struct {
		name string
		pos  int
	}
	var hits []hit
	for _, p := range c.tables.Products() {
		re := c.detector(p.Name)
		if loc := re.FindStringIndex(query); loc != nil {
			hits = append(hits, hit{name: p.Name, pos: loc[0]})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	names := make([]string, 0, len(hits))
	for _, h := range hits {
		names = append(names, h.name)
	}
	return names
}

// Stats reports catalog totals.
func (c *Catalog) Stats() Stats {
	var s Stats
	for _, p := range c.tables.Products() {
		s.Products++
		s.Tables += len(p.Tables)
		if p.LoadedAt.After(s.LastLoaded) {
			s.LastLoaded = p.LoadedAt
		}
	}
	return s
}

func describe(p *ratetable.Product) Info {
	info := Info{
		Name:     p.Name,
		Workbook: p.Path,
		LoadedAt: p.LoadedAt,
	}
	for _, composition := range p.Compositions {
		t := p.Tables[ratetable.NormalizeComposition(composition)]
		if t == nil {
			continue
		}
		low, high := t.AgeRange()
		info.Tables = append(info.Tables, TableInfo{
			Composition: composition,
			Encoding:    string(t.Encoding),
			MinAge:      low,
			MaxAge:      high,
			SumInsured:  t.Tiers,
		})
	}
	return info
}

// detector returns the memoized word-boundary pattern for a product name.
func (c *Catalog) detector(name string) *regexp.Regexp {
	c.mu.Lock()
	defer c.mu.Unlock()

	if re, ok := c.detectors[name]; ok {
		return re
	}

	tokens := splitName(name)
	escaped := make([]string, len(tokens))
	for i, tok := range tokens {
		escaped[i] = regexp.QuoteMeta(strings.ToLower(tok))
	}
	re := regexp.MustCompile(`(?i)\b` + strings.Join(escaped, `[\s_-]*`) + `\b`)
	c.detectors[name] = re
	return re
}

// splitName breaks a product name on separators and camel-case boundaries:
// "ActivAssure" → ["Activ", "Assure"].
func splitName(name string) []string {
	var tokens []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = nil
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == ' ' || r == '-' || r == '_':
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	if len(tokens) == 0 {
		tokens = []string{name}
	}
	return tokens
}
