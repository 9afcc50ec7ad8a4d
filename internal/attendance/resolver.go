package attendance

import (
	"context"
	"fmt"
	"time"

	"mmls-attendance/internal/assert"
	"mmls-attendance/internal/chrono"
	"mmls-attendance/internal/telemetry"

	"golang.org/x/sync/errgroup"
)

const (
	report_resolver_resolve_range = "resolver.resolve-range"
	report_resolver_find_near     = "resolver.find-near"
)

const (
	nearProbeGap   = 25
	nearProbeCount = 5
	// a near-date probe converges on an id dated NearMinDays to NearMaxDays before the target.
	NearMinDays = 30
	NearMaxDays = 60
)

// Resolver converts dates into timetable ids by binary searching the id space.
//
// The search assumes ids are sorted by date and that holes only appear past the
// last generated id. Neither is guaranteed by the portal: an out of order id can
// end a boundary search on a false boundary. FindNear is the slower alternative
// that tolerates local disorder.
type Resolver struct {
	source Source
	minID  int
	maxID  int
	tel    telemetry.API
}

func NewResolver(source Source, opts Options, tel telemetry.API) *Resolver {
	assert.NotNil(source)
	assert.NotNil(tel)

	opts = opts.WithDefaults()
	return &Resolver{
		source: source,
		minID:  opts.MinID,
		maxID:  opts.MaxID,
		tel:    tel,
	}
}

func (r *Resolver) fetchDate(ctx context.Context, id int) (*Form, time.Time, error) {
	form, err := r.source.Fetch(ctx, id)
	if err != nil || form == nil {
		return nil, time.Time{}, err
	}
	date, err := form.Date()
	if err != nil {
		return nil, time.Time{}, err
	}
	return form, date, nil
}

// FirstOnOrAfter returns the first timetable id dated `date`.
// Despite its name it only matches the exact date, ResolveRange widens the search.
func (r *Resolver) FirstOnOrAfter(ctx context.Context, date time.Time) (int, bool, error) {
	return r.boundary(ctx, chrono.DateOf(date), true)
}

// LastOnOrBefore returns the last timetable id dated `date`.
func (r *Resolver) LastOnOrBefore(ctx context.Context, date time.Time) (int, bool, error) {
	return r.boundary(ctx, chrono.DateOf(date), false)
}

func (r *Resolver) boundary(ctx context.Context, target time.Time, first bool) (int, bool, error) {
	lower, upper := r.minID, r.maxID
	for lower <= upper {
		mid := (lower + upper) / 2
		form, date, err := r.fetchDate(ctx, mid)
		if err != nil {
			return 0, false, err
		}
		if form == nil {
			// assume ids past a hole are not generated yet
			upper = mid - 1
			continue
		}

		switch {
		case date.Before(target):
			lower = mid + 1
		case date.After(target):
			upper = mid - 1
		default:
			neighbour := mid + 1
			if first {
				neighbour = mid - 1
			}
			if neighbour < r.minID || neighbour > r.maxID {
				return mid, true, nil
			}
			neighbourForm, neighbourDate, err := r.fetchDate(ctx, neighbour)
			if err != nil {
				return 0, false, err
			}
			if neighbourForm == nil || !neighbourDate.Equal(date) {
				return mid, true, nil
			}
			if first {
				upper = mid - 1
			} else {
				lower = mid + 1
			}
		}
	}
	return 0, false, nil
}

// ResolveRange finds the first id of start and the last id of end. A date without
// sessions (a weekend or holiday) is skipped by moving start forward and end
// backward a day at a time until both are found or the dates cross.
func (r *Resolver) ResolveRange(ctx context.Context, start, end time.Time) (IDRange, bool, error) {
	start, end = chrono.DateOf(start), chrono.DateOf(end)
	if end.Before(start) {
		return IDRange{}, false, fmt.Errorf(
			"%w: end date %s is before start date %s",
			ErrInvalidInput, chrono.FormatDate(end), chrono.FormatDate(start),
		)
	}

	var rng IDRange
	foundStart, foundEnd := false, false
	for {
		g, gctx := errgroup.WithContext(ctx)
		if !foundStart {
			g.Go(func() error {
				id, ok, err := r.FirstOnOrAfter(gctx, start)
				rng.Start, foundStart = id, ok
				return err
			})
		}
		if !foundEnd {
			g.Go(func() error {
				id, ok, err := r.LastOnOrBefore(gctx, end)
				rng.End, foundEnd = id, ok
				return err
			})
		}
		err := g.Wait()
		if err != nil {
			r.tel.ReportWarning(report_resolver_resolve_range, err)
			return IDRange{}, false, err
		}
		if foundStart && foundEnd {
			return rng, true, nil
		}

		if !foundStart {
			start = start.AddDate(0, 0, 1)
		}
		if !foundEnd {
			end = end.AddDate(0, 0, -1)
		}
		if start.After(end) {
			r.tel.ReportDebug(report_resolver_resolve_range + ": no sessions in range")
			return IDRange{}, false, nil
		}
	}
}

// probeIDs spreads the probes around id, shifting them to stay inside [min, max].
func probeIDs(id, min, max int) []int {
	ids := make([]int, nearProbeCount)
	first := id - (nearProbeCount/2)*nearProbeGap
	for i := range ids {
		ids[i] = first + i*nearProbeGap
	}

	shift := (nearProbeCount / 2) * nearProbeGap
	if ids[0] < min {
		for i := range ids {
			ids[i] += shift
		}
	} else if ids[len(ids)-1] > max {
		for i := range ids {
			ids[i] -= shift
		}
	}
	return ids
}

// FindNear returns an id dated between NearMinDays and NearMaxDays before target.
//
// Every step probes a cluster of ids around the midpoint so a few holes do not
// derail the search. If target is before every session MinID is returned.
func (r *Resolver) FindNear(ctx context.Context, target time.Time) (int, bool, error) {
	target = chrono.DateOf(target)

	lower, upper := r.minID, r.maxID
	for lower <= upper {
		mid := (lower + upper) / 2
		ids := probeIDs(mid, r.minID, r.maxID)
		forms := make([]*Form, len(ids))

		g, gctx := errgroup.WithContext(ctx)
		for i, id := range ids {
			if id < r.minID || id > r.maxID {
				continue
			}
			g.Go(func() error {
				form, err := r.source.Fetch(gctx, id)
				forms[i] = form
				return err
			})
		}
		err := g.Wait()
		if err != nil {
			r.tel.ReportWarning(report_resolver_find_near, mid, err)
			return 0, false, err
		}

		var picked *Form
		for _, form := range forms {
			if form == nil {
				continue
			}
			if picked == nil || form.TimetableID == mid {
				picked = form
			}
		}
		if picked == nil {
			upper = mid - 1
			continue
		}

		date, err := picked.Date()
		if err != nil {
			return 0, false, err
		}
		days := chrono.DaysBetween(date, target)
		switch {
		case days > NearMaxDays:
			lower = mid + 1
		case days < NearMinDays:
			upper = mid - 1
		default:
			return mid, true, nil
		}

		if mid == r.minID {
			return mid, true, nil
		}
	}
	return 0, false, nil
}
