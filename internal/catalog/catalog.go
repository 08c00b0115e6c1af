// Package catalog is the in-memory index over the official postal code
// catalog (SEPOMEX) and the validator that checks structured addresses
// against it. A Catalog never changes after it is built, so it is shared
// freely between goroutines.
package catalog

import (
	"sync"

	"skill-runner/internal/models"
	"skill-runner/pkg/logging"
	"skill-runner/pkg/metrics"
)

var (
	mLookupHit  = metrics.Default.Counter("catalog_lookup_hits_total", "Postal code lookups that found at least one settlement")
	mLookupMiss = metrics.Default.Counter("catalog_lookup_misses_total", "Postal code lookups with no settlement")
	mRecords    = metrics.Default.Gauge("catalog_records", "Settlement records loaded from the postal catalog")
)

// Source is anything that can answer postal code lookups.
type Source interface {
	LookupByPostalCode(code string) []models.PostalCatalogEntry
}

// Catalog groups catalog entries by postal code.
type Catalog struct {
	entries []models.PostalCatalogEntry
	byCode  map[string][]models.PostalCatalogEntry
	keys    []entryKeys // search keys, parallel to entries
}

// New indexes entries by postal code, keeping file order within a code,
// and precomputes the reverse search keys.
func New(entries []models.PostalCatalogEntry) *Catalog {
	c := &Catalog{
		entries: entries,
		byCode:  make(map[string][]models.PostalCatalogEntry),
		keys:    make([]entryKeys, len(entries)),
	}
	for i, e := range entries {
		c.byCode[e.PostalCode] = append(c.byCode[e.PostalCode], e)
		c.keys[i] = keysFor(e)
	}
	return c
}

// Empty returns a catalog with no records. Every lookup misses.
func Empty() *Catalog { return New(nil) }

// Len is the number of settlement records.
func (c *Catalog) Len() int { return len(c.entries) }

// PostalCodes is the number of distinct postal codes.
func (c *Catalog) PostalCodes() int { return len(c.byCode) }

// LookupByPostalCode returns every settlement for code. Anything other than
// exactly five ASCII digits yields nil.
func (c *Catalog) LookupByPostalCode(code string) []models.PostalCatalogEntry {
	if !IsPostalCodeFormat(code) {
		mLookupMiss.Inc(1)
		return nil
	}
	entries := c.byCode[code]
	if len(entries) == 0 {
		mLookupMiss.Inc(1)
		return nil
	}
	mLookupHit.Inc(1)
	return entries
}

// IsValidPostalCode reports whether code exists in the catalog.
func (c *Catalog) IsValidPostalCode(code string) bool {
	return len(c.LookupByPostalCode(code)) > 0
}

// SettlementNames returns the settlement names of code, de-duplicated, in
// catalog order.
func (c *Catalog) SettlementNames(code string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range c.LookupByPostalCode(code) {
		if _, ok := seen[e.SettlementName]; ok {
			continue
		}
		seen[e.SettlementName] = struct{}{}
		out = append(out, e.SettlementName)
	}
	return out
}

// Location returns the first entry's municipality, state and city as the
// representative location of code.
func (c *Catalog) Location(code string) (models.Location, bool) {
	entries := c.LookupByPostalCode(code)
	if len(entries) == 0 {
		return models.Location{}, false
	}
	return models.Location{
		Municipality: entries[0].Municipality,
		State:        entries[0].State,
		City:         entries[0].City,
	}, true
}

// SettlementsByType groups the settlement names of code by settlement type.
// types lists the groups in first-seen order.
func (c *Catalog) SettlementsByType(code string) (types []string, groups map[string][]string) {
	groups = make(map[string][]string)
	seen := make(map[string]map[string]struct{})
	for _, e := range c.LookupByPostalCode(code) {
		names, ok := seen[e.SettlementType]
		if !ok {
			names = make(map[string]struct{})
			seen[e.SettlementType] = names
			types = append(types, e.SettlementType)
		}
		if _, dup := names[e.SettlementName]; dup {
			continue
		}
		names[e.SettlementName] = struct{}{}
		groups[e.SettlementType] = append(groups[e.SettlementType], e.SettlementName)
	}
	return types, groups
}

// IsPostalCodeFormat reports whether code is exactly five ASCII digits.
func IsPostalCodeFormat(code string) bool {
	if len(code) != 5 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Lazy loads the catalog file once, on first use, and then serves the same
// immutable Catalog. A load failure is logged once and the catalog behaves
// as empty for the rest of the process.
type Lazy struct {
	path string
	log  *logging.Logger

	once sync.Once
	cat  *Catalog
	err  error
}

// NewLazy prepares a catalog backed by the file at path.
func NewLazy(path string, log *logging.Logger) *Lazy {
	if log == nil {
		log = logging.Default()
	}
	return &Lazy{path: path, log: log}
}

// Get returns the catalog, loading it on the first call.
func (l *Lazy) Get() *Catalog {
	l.once.Do(func() {
		lg := l.log.WithComponent("catalog")
		entries, err := LoadFile(l.path)
		if err != nil {
			l.err = err
			l.cat = Empty()
			lg.Error("postal catalog unavailable, every postal code will be treated as unknown", err,
				logging.String("path", l.path))
			return
		}
		l.cat = New(entries)
		mRecords.SetFloat64(float64(l.cat.Len()))
		lg.Info("postal catalog loaded",
			logging.String("path", l.path),
			logging.Int("records", l.cat.Len()),
			logging.Int("postal_codes", l.cat.PostalCodes()))
	})
	return l.cat
}

// Err is the load error, if any. It forces the load.
func (l *Lazy) Err() error {
	l.Get()
	return l.err
}

// LookupByPostalCode implements Source.
func (l *Lazy) LookupByPostalCode(code string) []models.PostalCatalogEntry {
	return l.Get().LookupByPostalCode(code)
}

// Len reports the number of loaded records. It forces the load.
func (l *Lazy) Len() int { return l.Get().Len() }
