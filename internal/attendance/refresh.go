package attendance

import (
	"context"
	"fmt"

	"mmls-attendance/internal/assert"
	"mmls-attendance/internal/chrono"
	"mmls-attendance/internal/telemetry"
)

const (
	report_refresher_refresh = "refresher.refresh"
)

type RefreshOptions struct {
	// SkipCached skips re-fetching cached sessions dated today or later.
	SkipCached bool
}

// Refresher brings a Cache up to date with the portal.
type Refresher struct {
	cache *Cache
	live  Source
	opts  Options
	clock chrono.API
	tel   telemetry.API
}

// NewRefresher creates a Refresher, live must fetch from the portal without
// going through cache.
func NewRefresher(cache *Cache, live Source, opts Options, clock chrono.API, tel telemetry.API) *Refresher {
	assert.NotNil(cache)
	assert.NotNil(live)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return &Refresher{
		cache: cache,
		live:  live,
		opts:  opts.WithDefaults(),
		clock: clock,
		tel:   tel,
	}
}

// Refresh updates the cached ids within rng and returns the size of the cache afterwards.
//
// A stale cache is cleared first. Then, in order:
//  1. cached sessions dated today or later are re-fetched
//  2. ids after the highest cached id are fetched
//  3. every remaining uncached id of rng is fetched
//
// Ids that turn out to be holes are removed from the cache.
func (r *Refresher) Refresh(ctx context.Context, rng IDRange, opts RefreshOptions) (int, error) {
	err := rng.Validate()
	if err != nil {
		return 0, err
	}
	rng = rng.Clamp(r.opts.MinID, r.opts.MaxID)
	if rng.End < rng.Start {
		return 0, fmt.Errorf("%w: range is outside of %d-%d", ErrInvalidInput, r.opts.MinID, r.opts.MaxID)
	}

	_, err = r.cache.InvalidateIfStale(ctx, r.live)
	if err != nil {
		return 0, err
	}

	if !opts.SkipCached {
		today := chrono.Today(r.clock)
		var current []int
		for _, form := range r.cache.Forms() {
			if !rng.Contains(form.TimetableID) {
				continue
			}
			date, err := form.Date()
			if err != nil || !date.Before(today) {
				current = append(current, form.TimetableID)
			}
		}
		r.tel.ReportDebug(report_refresher_refresh+": current", len(current))
		err = r.update(ctx, current)
		if err != nil {
			return 0, err
		}
	}

	var future []int
	maxCached, ok := r.cache.MaxID()
	if ok && maxCached < rng.End {
		from := max(maxCached+1, rng.Start)
		future = IDRange{Start: from, End: rng.End}.IDs()
	}
	r.tel.ReportDebug(report_refresher_refresh+": future", len(future))
	err = r.update(ctx, future)
	if err != nil {
		return 0, err
	}

	attempted := make(map[int]struct{}, len(future))
	for _, id := range future {
		attempted[id] = struct{}{}
	}
	var gaps []int
	for id := rng.Start; id <= rng.End; id++ {
		if _, ok := attempted[id]; ok {
			continue
		}
		if _, ok := r.cache.Get(id); ok {
			continue
		}
		gaps = append(gaps, id)
	}
	r.tel.ReportDebug(report_refresher_refresh+": gaps", len(gaps))
	err = r.update(ctx, gaps)
	if err != nil {
		return 0, err
	}

	count := r.cache.Len()
	r.tel.ReportCount(report_cache_size, int64(count))
	return count, nil
}

func (r *Refresher) update(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	pipeline := NewPipeline(r.live, r.opts, r.tel)
	for res, err := range pipeline.Results(ctx, ids) {
		if err != nil {
			r.tel.ReportWarning(report_refresher_refresh, err)
			return err
		}
		if res.Form == nil {
			if _, cached := r.cache.Get(res.TimetableID); cached {
				err = r.cache.Delete(ctx, []int{res.TimetableID})
			}
		} else {
			err = r.cache.PutMany(ctx, []Form{*res.Form})
		}
		if err != nil {
			return err
		}
	}
	return ctx.Err()
}
