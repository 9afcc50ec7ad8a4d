package attendance

import (
	"context"
	"fmt"
	"iter"
	"time"

	"mmls-attendance/internal/assert"
	"mmls-attendance/internal/chrono"
	"mmls-attendance/internal/courses"
	"mmls-attendance/internal/telemetry"
)

const (
	report_scraper_scrape_by_date = "scraper.scrape-by-date"
	report_scraper_cache_write    = "scraper.cache-write"
)

type ScraperOptions struct {
	Options
	// DisableCaching stops live results from being written to the cache,
	// cached entries are still read.
	DisableCaching bool
	// Pool is shared by every fetch of the scraper, one is created from
	// MaxConnections when nil.
	Pool  *Pool
	Clock chrono.API
}

type DateOptions struct {
	// Fast resolves the exact id range of the dates with a boundary search,
	// otherwise scraping starts from an id 1-2 months before the start date.
	Fast bool
	// CacheOnly only yields what is already cached.
	CacheOnly bool
}

// Scraper discovers attendance forms of selected classes.
type Scraper struct {
	opts      Options
	cache     *Cache
	live      Source
	lookup    Source
	pipeline  *Pipeline
	resolver  *Resolver
	refresher *Refresher
	tel       telemetry.API
}

// NewScraper creates a scraper over live, which fetches directly from the portal.
// cache may be nil for a memory-only cache.
func NewScraper(live Source, cache *Cache, opts ScraperOptions, tel telemetry.API) *Scraper {
	assert.NotNil(live)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("attendance", tel)

	if cache == nil {
		cache = NewCache(nil, tel)
	}
	clock := opts.Clock
	if clock == nil {
		clock = chrono.NewStandardImpl()
	}
	pool := opts.Pool
	if pool == nil {
		pool = NewPool(opts.MaxConnections)
	}
	options := opts.Options.WithDefaults()

	pooled := pool.Limit(live)
	lookup := cachedSource{
		cache: cache,
		live:  pooled,
		store: !opts.DisableCaching,
		tel:   tel,
	}

	return &Scraper{
		opts:      options,
		cache:     cache,
		live:      pooled,
		lookup:    lookup,
		pipeline:  NewPipeline(lookup, options, tel),
		resolver:  NewResolver(lookup, options, tel),
		refresher: NewRefresher(cache, pooled, options, clock, tel),
		tel:       tel,
	}
}

func (s *Scraper) Cache() *Cache {
	return s.cache
}

// Fetch looks up a single timetable id, cache first.
func (s *Scraper) Fetch(ctx context.Context, timetableID int) (*Form, error) {
	return s.lookup.Fetch(ctx, timetableID)
}

// Scrape yields the forms of selected classes within rng in timetable id order.
func (s *Scraper) Scrape(ctx context.Context, rng IDRange, c *courses.Courses) iter.Seq2[DetailedForm, error] {
	return func(yield func(DetailedForm, error) bool) {
		err := rng.Validate()
		if err != nil {
			yield(DetailedForm{}, err)
			return
		}

		selected := newClassIndex(c)
		for form, err := range s.pipeline.FetchAll(ctx, rng.IDs()) {
			if err != nil {
				yield(DetailedForm{}, err)
				return
			}
			detailed, ok := selected.detail(form)
			if !ok {
				continue
			}
			if !yield(detailed, nil) {
				return
			}
		}
	}
}

// ScrapeByDate yields the forms of selected classes dated within [start, end].
//
// Cached matches are yielded first. The remaining ids are then resolved from the dates
// and fetched until MaxContiguousUnsorted consecutive sessions fall outside of the
// dates after the range was entered.
func (s *Scraper) ScrapeByDate(ctx context.Context, start, end time.Time, c *courses.Courses, opts DateOptions) iter.Seq2[DetailedForm, error] {
	return func(yield func(DetailedForm, error) bool) {
		start, end := chrono.DateOf(start), chrono.DateOf(end)
		if end.Before(start) {
			yield(DetailedForm{}, fmt.Errorf(
				"%w: end date %s is before start date %s",
				ErrInvalidInput, chrono.FormatDate(end), chrono.FormatDate(start),
			))
			return
		}
		inRange := func(date time.Time) bool {
			return !date.Before(start) && !date.After(end)
		}

		selected := newClassIndex(c)
		matched := map[int]struct{}{}
		minMatched := s.opts.MaxID + 1
		for _, form := range s.cache.Forms() {
			date, err := form.Date()
			if err != nil {
				s.tel.ReportWarning(report_scraper_scrape_by_date, err)
				continue
			}
			if !inRange(date) {
				continue
			}
			matched[form.TimetableID] = struct{}{}
			minMatched = min(minMatched, form.TimetableID)
			detailed, ok := selected.detail(form)
			if !ok {
				continue
			}
			if !yield(detailed, nil) {
				return
			}
		}
		if opts.CacheOnly {
			return
		}

		var rng IDRange
		if opts.Fast {
			resolved, ok, err := s.resolver.ResolveRange(ctx, start, end)
			if err != nil {
				yield(DetailedForm{}, err)
				return
			}
			if !ok {
				s.tel.ReportDebug(report_scraper_scrape_by_date + ": no timetable ids in date range")
				return
			}
			rng = resolved
		} else {
			near, ok, err := s.resolver.FindNear(ctx, start)
			if err != nil {
				yield(DetailedForm{}, err)
				return
			}
			if !ok {
				s.tel.ReportDebug(report_scraper_scrape_by_date + ": no timetable id near start date")
				return
			}
			rng = IDRange{Start: near, End: s.opts.MaxID}
		}

		pending := make([]int, 0, rng.End-rng.Start+1)
		for id := rng.Start; id <= rng.End; id++ {
			if _, ok := matched[id]; !ok {
				pending = append(pending, id)
			}
		}

		entered := false
		outside := 0
		for form, err := range s.pipeline.FetchAll(ctx, pending) {
			if err != nil {
				yield(DetailedForm{}, err)
				return
			}
			date, err := form.Date()
			if err != nil {
				yield(DetailedForm{}, err)
				return
			}

			within := inRange(date)
			if !entered && (within || form.TimetableID >= minMatched) {
				entered = true
				s.tel.ReportDebug(report_scraper_scrape_by_date+": entered date range", form.TimetableID)
			}
			if entered {
				if within {
					outside = 0
				} else {
					outside++
				}
				if outside >= s.opts.MaxContiguousUnsorted {
					s.tel.ReportDebug(report_scraper_scrape_by_date+": left date range", form.TimetableID)
					return
				}
			}
			if !within {
				continue
			}

			detailed, ok := selected.detail(form)
			if !ok {
				continue
			}
			if !yield(detailed, nil) {
				return
			}
		}
	}
}

// CacheRefresh refreshes the cache within rng, or every id when rng is nil, and
// returns the size of the cache afterwards.
func (s *Scraper) CacheRefresh(ctx context.Context, rng *IDRange) (int, error) {
	target := IDRange{Start: s.opts.MinID, End: s.opts.MaxID}
	if rng != nil {
		target = *rng
	}
	return s.refresher.Refresh(ctx, target, RefreshOptions{})
}

// InvalidateStaleCache clears the cache when its lowest entries no longer match
// the portal, which happens when the portal moves to a new trimester.
func (s *Scraper) InvalidateStaleCache(ctx context.Context) (bool, error) {
	return s.cache.InvalidateIfStale(ctx, s.live)
}

// cachedSource answers from the cache and falls back to live, storing what it fetched.
type cachedSource struct {
	cache *Cache
	live  Source
	store bool
	tel   telemetry.API
}

func (c cachedSource) Fetch(ctx context.Context, timetableID int) (*Form, error) {
	if form, ok := c.cache.Get(timetableID); ok {
		return &form, nil
	}
	form, err := c.live.Fetch(ctx, timetableID)
	if err != nil || form == nil || !c.store {
		return form, err
	}
	err = c.cache.PutMany(ctx, []Form{*form})
	if err != nil {
		// the form itself is still valid
		c.tel.ReportWarning(report_scraper_cache_write, timetableID, err)
	}
	return form, nil
}
