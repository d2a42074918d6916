// Package cacheindex maintains an in-memory map of which calendar days are
// cached on disk for each (instrument, series) pair, so existence checks are
// map lookups instead of directory scans. The index is a performance cache
// over the filesystem, never a source of truth: it can always be rebuilt by
// scanning the day layout.
package cacheindex

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-replay/internal/logger"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Index is the two-level (symbol, series key) -> set-of-days map, persisted
// to a small YAML manifest at the cache root after every mutation. All
// mutating operations are serialized by one mutex.
type Index struct {
	root string
	log  *logger.Logger

	mu sync.Mutex
	// days[symbol][seriesKey] is a set of cached days.
	days map[string]map[string]map[types.Day]struct{}
}

// NewIndex creates an index rooted at the given cache directory and loads
// the manifest if one exists. A corrupt manifest triggers a full Rebuild
// instead of failing.
func NewIndex(root string, log *logger.Logger) (*Index, error) {
	idx := &Index{
		root: root,
		log:  log,
		days: make(map[string]map[string]map[types.Day]struct{}),
	}

	if err := idx.load(); err != nil {
		idx.log.Warn("cache index manifest unreadable, rebuilding from disk",
			zap.String("root", root),
			zap.Error(err),
		)

		if err := idx.Rebuild(); err != nil {
			return nil, err
		}
	}

	return idx, nil
}

// CachedDays returns the sorted set of cached days for a symbol/series pair.
func (idx *Index) CachedDays(symbol string, seriesKey string) []types.Day {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	set := idx.daySet(symbol, seriesKey, false)
	if set == nil {
		return nil
	}

	days := make([]types.Day, 0, len(set))
	for d := range set {
		days = append(days, d)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	return days
}

// SeriesEntry summarizes one indexed symbol/series pair.
type SeriesEntry struct {
	Symbol    string
	SeriesKey string
	Days      int
	First     types.Day
	Last      types.Day
}

// Entries returns a summary of every indexed series, sorted by symbol then
// series key.
func (idx *Index) Entries() []SeriesEntry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var entries []SeriesEntry

	for symbol, bySeries := range idx.days {
		for seriesKey, set := range bySeries {
			if len(set) == 0 {
				continue
			}

			entry := SeriesEntry{Symbol: symbol, SeriesKey: seriesKey, Days: len(set)}

			for d := range set {
				if entry.First == "" || d.Before(entry.First) {
					entry.First = d
				}

				if entry.Last == "" || entry.Last.Before(d) {
					entry.Last = d
				}
			}

			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Symbol != entries[j].Symbol {
			return entries[i].Symbol < entries[j].Symbol
		}

		return entries[i].SeriesKey < entries[j].SeriesKey
	})

	return entries
}

// HasDay reports whether a single day is indexed for a symbol/series pair.
func (idx *Index) HasDay(symbol string, seriesKey string, day types.Day) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	set := idx.daySet(symbol, seriesKey, false)
	if set == nil {
		return false
	}

	_, ok := set[day]

	return ok
}

// AddDays records days as cached and persists the manifest. The returned
// error is the persistence failure, if any; the in-memory update always
// succeeds and the caller may log and continue since the index is
// rebuildable.
func (idx *Index) AddDays(symbol string, seriesKey string, days ...types.Day) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	set := idx.daySet(symbol, seriesKey, true)
	for _, d := range days {
		set[d] = struct{}{}
	}

	return idx.persist()
}

// RemoveDay drops one day from the index and persists the manifest.
func (idx *Index) RemoveDay(symbol string, seriesKey string, day types.Day) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if set := idx.daySet(symbol, seriesKey, false); set != nil {
		delete(set, day)
	}

	return idx.persist()
}

// ClearSymbol drops every entry for one symbol.
func (idx *Index) ClearSymbol(symbol string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.days, symbol)

	return idx.persist()
}

// ClearAll drops the whole index.
func (idx *Index) ClearAll() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.days = make(map[string]map[string]map[types.Day]struct{})

	return idx.persist()
}

// Rebuild re-scans the on-disk day layout, replaces the in-memory map and
// persists it. Partially-written or malformed file names are skipped rather
// than failing the scan; Rebuild is idempotent.
func (idx *Index) Rebuild() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rebuilt := make(map[string]map[string]map[types.Day]struct{})

	entries, err := os.ReadDir(idx.root)
	if err != nil {
		if os.IsNotExist(err) {
			// Empty cache root is a valid empty index.
			idx.days = rebuilt

			return idx.persist()
		}

		return errors.Wrap(errors.ErrCodeManifestReadFailed, "failed to scan cache root", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		day, err := types.ParseDay(entry.Name())
		if err != nil {
			// Not a day directory; skip.
			continue
		}

		for _, sub := range []string{OHLCDir, TicksDir} {
			files, err := os.ReadDir(filepath.Join(idx.root, entry.Name(), sub))
			if err != nil {
				continue
			}

			for _, f := range files {
				if f.IsDir() {
					continue
				}

				symbol, seriesKey, err := ParseSeriesFileName(f.Name())
				if err != nil {
					continue
				}

				if _, ok := rebuilt[symbol]; !ok {
					rebuilt[symbol] = make(map[string]map[types.Day]struct{})
				}

				if _, ok := rebuilt[symbol][seriesKey]; !ok {
					rebuilt[symbol][seriesKey] = make(map[types.Day]struct{})
				}

				rebuilt[symbol][seriesKey][day] = struct{}{}
			}
		}
	}

	idx.days = rebuilt

	return idx.persist()
}

// daySet returns the day set for a symbol/series pair, creating intermediate
// maps when create is true. Callers must hold idx.mu.
func (idx *Index) daySet(symbol string, seriesKey string, create bool) map[types.Day]struct{} {
	bySeries, ok := idx.days[symbol]
	if !ok {
		if !create {
			return nil
		}

		bySeries = make(map[string]map[types.Day]struct{})
		idx.days[symbol] = bySeries
	}

	set, ok := bySeries[seriesKey]
	if !ok {
		if !create {
			return nil
		}

		set = make(map[types.Day]struct{})
		bySeries[seriesKey] = set
	}

	return set
}

// manifest is the YAML shape of the persisted index.
type manifest struct {
	Days map[string]map[string][]types.Day `yaml:"days"`
}

// persist writes the manifest. Callers must hold idx.mu.
func (idx *Index) persist() error {
	m := manifest{Days: make(map[string]map[string][]types.Day, len(idx.days))}

	for symbol, bySeries := range idx.days {
		m.Days[symbol] = make(map[string][]types.Day, len(bySeries))

		for seriesKey, set := range bySeries {
			days := make([]types.Day, 0, len(set))
			for d := range set {
				days = append(days, d)
			}

			sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
			m.Days[symbol][seriesKey] = days
		}
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to marshal index manifest", err)
	}

	if err := os.MkdirAll(idx.root, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to create cache root", err)
	}

	if err := os.WriteFile(filepath.Join(idx.root, ManifestFile), data, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to write index manifest", err)
	}

	return nil
}

// load reads the manifest into memory. A missing manifest is an empty index,
// not an error.
func (idx *Index) load() error {
	data, err := os.ReadFile(filepath.Join(idx.root, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return errors.Wrap(errors.ErrCodeManifestReadFailed, "failed to read index manifest", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return errors.Wrap(errors.ErrCodeManifestCorrupt, "malformed index manifest", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.days = make(map[string]map[string]map[types.Day]struct{}, len(m.Days))

	for symbol, bySeries := range m.Days {
		idx.days[symbol] = make(map[string]map[types.Day]struct{}, len(bySeries))

		for seriesKey, days := range bySeries {
			set := make(map[types.Day]struct{}, len(days))
			for _, d := range days {
				set[d] = struct{}{}
			}

			idx.days[symbol][seriesKey] = set
		}
	}

	return nil
}
