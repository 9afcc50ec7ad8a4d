package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"mmls-attendance/internal/assert"
	"mmls-attendance/internal/telemetry"

	"golang.org/x/sync/errgroup"
)

const (
	report_cache_invalidate_if_stale = "cache.invalidate-if-stale"
	report_cache_store               = "cache.store"
	report_cache_size                = "cache.size"
)

// staleProbeCount is the amount of lowest cached ids compared against the portal.
const staleProbeCount = 3

// CacheStore persists cache entries, Cache keeps it in sync with memory.
type CacheStore interface {
	LoadAll(ctx context.Context) ([]Form, error)
	Upsert(ctx context.Context, forms []Form) error
	Delete(ctx context.Context, ids []int) error
	Clear(ctx context.Context) error
}

// Cache maps timetable ids to confirmed sessions. Holes are never stored.
type Cache struct {
	// gate is held exclusively by a staleness check and shared by writers,
	// writers wait for a running check instead of racing it.
	gate    sync.RWMutex
	mutex   sync.RWMutex
	entries map[int]Form
	store   CacheStore
	tel     telemetry.API
}

// NewCache creates an empty cache, store may be nil for a cache that only lives in memory.
func NewCache(store CacheStore, tel telemetry.API) *Cache {
	assert.NotNil(tel)
	return &Cache{
		entries: map[int]Form{},
		store:   store,
		tel:     tel,
	}
}

// Load replaces the memory contents with everything in the store.
func (c *Cache) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	forms, err := c.store.LoadAll(ctx)
	if err != nil {
		c.tel.ReportBroken(report_cache_store, fmt.Errorf("load: %w", err))
		return err
	}

	entries := make(map[int]Form, len(forms))
	for _, form := range forms {
		entries[form.TimetableID] = form
	}
	c.mutex.Lock()
	c.entries = entries
	c.mutex.Unlock()

	c.tel.ReportCount(report_cache_size, int64(len(entries)))
	return nil
}

func (c *Cache) Get(id int) (Form, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	form, ok := c.entries[id]
	return form, ok
}

func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// IDs returns every cached id in ascending order.
func (c *Cache) IDs() []int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return slices.Sorted(maps.Keys(c.entries))
}

// Forms returns every cached form ordered by timetable id.
func (c *Cache) Forms() []Form {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	forms := make([]Form, 0, len(c.entries))
	for _, id := range slices.Sorted(maps.Keys(c.entries)) {
		forms = append(forms, c.entries[id])
	}
	return forms
}

// MaxID returns the highest cached id.
func (c *Cache) MaxID() (int, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if len(c.entries) == 0 {
		return 0, false
	}
	return slices.Max(slices.Collect(maps.Keys(c.entries))), true
}

func (c *Cache) PutMany(ctx context.Context, forms []Form) error {
	if len(forms) == 0 {
		return nil
	}
	c.gate.RLock()
	defer c.gate.RUnlock()

	c.mutex.Lock()
	for _, form := range forms {
		c.entries[form.TimetableID] = form
	}
	c.mutex.Unlock()

	if c.store == nil {
		return nil
	}
	err := c.store.Upsert(ctx, forms)
	if err != nil {
		c.tel.ReportBroken(report_cache_store, fmt.Errorf("upsert: %w", err))
	}
	return err
}

func (c *Cache) Delete(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	c.gate.RLock()
	defer c.gate.RUnlock()

	c.mutex.Lock()
	for _, id := range ids {
		delete(c.entries, id)
	}
	c.mutex.Unlock()

	if c.store == nil {
		return nil
	}
	err := c.store.Delete(ctx, ids)
	if err != nil {
		c.tel.ReportBroken(report_cache_store, fmt.Errorf("delete: %w", err))
	}
	return err
}

func (c *Cache) Clear(ctx context.Context) error {
	c.gate.RLock()
	defer c.gate.RUnlock()
	return c.clear(ctx)
}

func (c *Cache) clear(ctx context.Context) error {
	c.mutex.Lock()
	c.entries = map[int]Form{}
	c.mutex.Unlock()

	if c.store == nil {
		return nil
	}
	err := c.store.Clear(ctx)
	if err != nil {
		c.tel.ReportBroken(report_cache_store, fmt.Errorf("clear: %w", err))
	}
	return err
}

// InvalidateIfStale re-fetches the lowest cached ids from source (which must not read
// from this cache) and clears the whole cache when any of them turned into a hole or
// changed date or class. This happens when the portal starts a new trimester and reuses
// the id space.
//
// Only one check runs at a time and writers block until it is done.
func (c *Cache) InvalidateIfStale(ctx context.Context, source Source) (bool, error) {
	c.gate.Lock()
	defer c.gate.Unlock()

	c.mutex.RLock()
	ids := slices.Sorted(maps.Keys(c.entries))
	if len(ids) > staleProbeCount {
		ids = ids[:staleProbeCount]
	}
	head := make([]Form, len(ids))
	for i, id := range ids {
		head[i] = c.entries[id]
	}
	c.mutex.RUnlock()

	if len(head) == 0 {
		return false, nil
	}

	live := make([]*Form, len(head))
	g, gctx := errgroup.WithContext(ctx)
	for i, cached := range head {
		g.Go(func() error {
			form, err := source.Fetch(gctx, cached.TimetableID)
			live[i] = form
			return err
		})
	}
	err := g.Wait()
	if err != nil {
		c.tel.ReportWarning(report_cache_invalidate_if_stale, err)
		return false, err
	}

	stale := false
	for i, cached := range head {
		form := live[i]
		if form == nil || form.ClassDate != cached.ClassDate || form.ClassID != cached.ClassID {
			stale = true
			break
		}
	}
	if !stale {
		return false, nil
	}

	c.tel.ReportWarning(report_cache_invalidate_if_stale, "cache mismatch, clearing", ids)
	err = c.clear(ctx)
	if err != nil {
		return true, err
	}
	return true, nil
}

type cacheEntryJSON struct {
	StartTime string `json:"starttime"`
	EndTime   string `json:"endtime"`
	ClassDate string `json:"class_date"`
	ClassID   int    `json:"class_id"`
}

// MarshalJSON writes the flat {"<timetable id>": {...}} format.
func (c *Cache) MarshalJSON() ([]byte, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	out := make(map[string]cacheEntryJSON, len(c.entries))
	for id, form := range c.entries {
		out[strconv.Itoa(id)] = cacheEntryJSON{
			StartTime: form.StartTime,
			EndTime:   form.EndTime,
			ClassDate: form.ClassDate,
			ClassID:   form.ClassID,
		}
	}
	return json.Marshal(out)
}

// ParseCacheJSON reads the format written by MarshalJSON.
func ParseCacheJSON(data []byte) ([]Form, error) {
	var raw map[string]cacheEntryJSON
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	forms := make([]Form, 0, len(raw))
	for key, entry := range raw {
		id, err := strconv.Atoi(key)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: timetable id %q is not a positive integer", ErrInvalidInput, key)
		}
		forms = append(forms, Form{
			TimetableID: id,
			StartTime:   entry.StartTime,
			EndTime:     entry.EndTime,
			ClassDate:   entry.ClassDate,
			ClassID:     entry.ClassID,
		})
	}
	slices.SortFunc(forms, func(a, b Form) int {
		return a.TimetableID - b.TimetableID
	})
	return forms, nil
}

// UnmarshalJSON replaces the memory contents, the store is left untouched (see Import).
func (c *Cache) UnmarshalJSON(data []byte) error {
	forms, err := ParseCacheJSON(data)
	if err != nil {
		return err
	}
	entries := make(map[int]Form, len(forms))
	for _, form := range forms {
		entries[form.TimetableID] = form
	}

	c.gate.RLock()
	defer c.gate.RUnlock()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = entries
	return nil
}

// Import adds every entry of a json export to the cache and its store.
func (c *Cache) Import(ctx context.Context, data []byte) (int, error) {
	forms, err := ParseCacheJSON(data)
	if err != nil {
		return 0, err
	}
	err = c.PutMany(ctx, forms)
	if err != nil {
		return 0, err
	}
	return len(forms), nil
}
