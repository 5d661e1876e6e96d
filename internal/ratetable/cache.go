package ratetable

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/metrics"
)

// Product is one loaded workbook: its tables keyed by normalised
// composition, plus provenance for the audit trail.
type Product struct {
	Name         string
	Path         string
	Tables       map[string]*RateTable
	Compositions []string // display names, sheet order lost, sorted
	LoadedAt     time.Time
}

// Tiers returns the union of sum insured tiers across the product's tables.
func (p *Product) Tiers() []int64 {
	set := make(map[int64]bool)
	for _, t := range p.Tables {
		for _, tier := range t.Tiers {
			set[tier] = true
		}
	}
	tiers := make([]int64, 0, len(set))
	for tier := range set {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	return tiers
}

// Cache holds every loaded product behind a single atomically swapped map.
// Readers take a snapshot pointer and never see a partially loaded state; a
// failed reload leaves the previous tables serving.
type Cache struct {
	dir      string
	debounce time.Duration
	log      *zap.Logger

	products atomic.Pointer[map[string]*Product]

	mu          sync.Mutex // serialises loads and debounce timers
	reloadTimer *time.Timer
	watcher     *fsnotify.Watcher
}

// NewCache creates a cache over a directory of product workbooks. Call
// LoadDir before serving lookups.
func NewCache(dir string, debounce time.Duration, log *zap.Logger) *Cache {
	c := &Cache{dir: dir, debounce: debounce, log: log}
	empty := make(map[string]*Product)
	c.products.Store(&empty)
	return c
}

// LoadDir loads every *.xlsx workbook in the directory and swaps the full
// product map in one step. A workbook that fails to parse is logged and its
// previously loaded tables (if any) carry forward; the cache never serves a
// half-loaded product.
func (c *Cache) LoadDir(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadAllLocked()
}

func (c *Cache) loadAllLocked() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading rate table directory %s: %w", c.dir, err)
	}

	old := *c.products.Load()
	next := make(map[string]*Product, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !isWorkbook(entry.Name()) {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		product := ProductNameFromPath(path)
		key := strings.ToLower(product)

		tables, err := LoadWorkbook(path, product)
		if err != nil {
			metrics.RateTableLoads.WithLabelValues(product, "error").Inc()
			c.log.Error("rate workbook load failed, keeping previous tables",
				zap.String("product", product),
				zap.String("path", path),
				zap.Error(err))
			if prev, ok := old[key]; ok {
				next[key] = prev
			}
			continue
		}

		metrics.RateTableLoads.WithLabelValues(product, "success").Inc()
		next[key] = &Product{
			Name:         product,
			Path:         path,
			Tables:       tables,
			Compositions: compositionNames(tables),
			LoadedAt:     time.Now().UTC(),
		}
		c.log.Info("rate workbook loaded",
			zap.String("product", product),
			zap.Int("tables", len(tables)))
	}

	c.products.Store(&next)
	return nil
}

// ReloadProduct reloads a single product's workbook. On failure the previous
// tables stay in place and the error is returned.
func (c *Cache) ReloadProduct(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(name)
	old := *c.products.Load()

	path := ""
	if prev, ok := old[key]; ok {
		path = prev.Path
	} else {
		// A product uploaded after startup has no entry yet; look for its
		// workbook on disk.
		candidate := filepath.Join(c.dir, name+".xlsx")
		if _, err := os.Stat(candidate); err != nil {
			return fmt.Errorf("%w: %s", ErrUnknownProduct, name)
		}
		path = candidate
	}

	product := ProductNameFromPath(path)
	tables, err := LoadWorkbook(path, product)
	if err != nil {
		metrics.RateTableLoads.WithLabelValues(product, "error").Inc()
		return err
	}
	metrics.RateTableLoads.WithLabelValues(product, "success").Inc()

	next := make(map[string]*Product, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[key] = &Product{
		Name:         product,
		Path:         path,
		Tables:       tables,
		Compositions: compositionNames(tables),
		LoadedAt:     time.Now().UTC(),
	}
	c.products.Store(&next)

	c.log.Info("rate workbook reloaded", zap.String("product", product), zap.Int("tables", len(tables)))
	return nil
}

// Get returns a loaded product by name, case-insensitively.
func (c *Cache) Get(name string) (*Product, bool) {
	p, ok := (*c.products.Load())[strings.ToLower(name)]
	return p, ok
}

// Table resolves a product and composition to its rate table.
func (c *Cache) Table(product, composition string) (*RateTable, error) {
	p, ok := c.Get(product)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, product)
	}
	t, ok := p.Tables[NormalizeComposition(composition)]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no rate sheet for %q", ErrUnsupportedComposition, p.Name, composition)
	}
	return t, nil
}

// Products returns the loaded products sorted by name.
func (c *Cache) Products() []*Product {
	snapshot := *c.products.Load()
	out := make([]*Product, 0, len(snapshot))
	for _, p := range snapshot {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Watch reloads the directory when workbooks change on disk. Events settle
// for the debounce interval before a reload runs, so a file still being
// written is not parsed mid-copy. Blocks until ctx is cancelled.
func (c *Cache) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating workbook watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", c.dir, err)
	}
	c.watcher = watcher
	defer watcher.Close()

	c.log.Info("watching rate table directory", zap.String("dir", c.dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isWorkbook(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			c.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Warn("workbook watcher error", zap.Error(err))
		}
	}
}

func (c *Cache) scheduleReload() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reloadTimer != nil {
		c.reloadTimer.Stop()
	}
	c.reloadTimer = time.AfterFunc(c.debounce, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.loadAllLocked(); err != nil {
			c.log.Error("triggered rate table reload failed", zap.Error(err))
		}
	})
}

func compositionNames(tables map[string]*RateTable) []string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.Composition)
	}
	sort.Strings(names)
	return names
}

func isWorkbook(name string) bool {
	if strings.HasPrefix(name, "~$") {
		// Excel lock files
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}
