package attendance

import (
	"context"
	"testing"
	"time"

	"mmls-attendance/internal/chrono"
	"mmls-attendance/internal/telemetry"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := chrono.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func marchResolver(portal *fakePortal) *Resolver {
	return NewResolver(portal, Options{MinID: 1, MaxID: 300}, &telemetry.Recorder{})
}

func TestBoundarySearch(t *testing.T) {
	ctx := context.Background()
	r := marchResolver(marchPortal())

	first, ok, err := r.FirstOnOrAfter(ctx, day("2024-03-01"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 100, first)

	last, ok, err := r.LastOnOrBefore(ctx, day("2024-03-01"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 149, last)

	rng, ok, err := r.ResolveRange(ctx, day("2024-03-01"), day("2024-03-01"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, IDRange{Start: 100, End: 149}, rng)
}

func TestBoundarySearchToleratesTrailingHoles(t *testing.T) {
	portal := marchPortal()
	portal.hole(145, 146, 147, 148, 149)
	r := marchResolver(portal)

	last, ok, err := r.LastOnOrBefore(context.Background(), day("2024-03-01"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 144, last)

	first, ok, err := r.FirstOnOrAfter(context.Background(), day("2024-03-01"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 100, first)
}

func TestResolveRangeWithoutSessions(t *testing.T) {
	r := marchResolver(marchPortal())

	rng, ok, err := r.ResolveRange(context.Background(), day("2024-03-10"), day("2024-03-20"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, IDRange{}, rng)
}

func TestResolveRangeSkipsEmptyDays(t *testing.T) {
	r := marchResolver(marchPortal())

	// neither 2024-02-25 nor 2024-03-05 have sessions
	rng, ok, err := r.ResolveRange(context.Background(), day("2024-02-25"), day("2024-03-05"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, IDRange{Start: 100, End: 149}, rng)
}

func TestResolveRangeRejectsInvertedDates(t *testing.T) {
	portal := marchPortal()
	r := marchResolver(portal)

	_, _, err := r.ResolveRange(context.Background(), day("2024-03-02"), day("2024-03-01"))
	require.ErrorIs(t, err, ErrInvalidInput)
	total, _, _ := portal.stats()
	require.Zero(t, total)
}

// The boundary search trusts that ids are sorted by date, a single out of order id
// is enough to end the search on a false boundary.
func TestBoundarySearchFalseBoundary(t *testing.T) {
	portal := marchPortal()
	portal.set(testForm(131, "2024-04-01", 501))
	r := marchResolver(portal)

	last, ok, err := r.LastOnOrBefore(context.Background(), day("2024-03-01"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 130, last)
}

func TestProbeIDs(t *testing.T) {
	require.Equal(t, []int{50, 75, 100, 125, 150}, probeIDs(100, 1, 1000))
	require.Equal(t, []int{10, 35, 60, 85, 110}, probeIDs(10, 1, 1000))
	require.Equal(t, []int{900, 925, 950, 975, 1000}, probeIDs(1000, 1, 1000))
}

func TestFindNear(t *testing.T) {
	ctx := context.Background()
	portal := dailyPortal()
	r := NewResolver(portal, Options{MinID: 1, MaxID: 5000}, &telemetry.Recorder{})

	target := day("2024-05-01")
	id, ok, err := r.FindNear(ctx, target)
	require.NoError(t, err)
	require.True(t, ok)

	form, err := portal.Fetch(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, form)
	date, err := form.Date()
	require.NoError(t, err)
	days := chrono.DaysBetween(date, target)
	require.GreaterOrEqual(t, days, NearMinDays)
	require.LessOrEqual(t, days, NearMaxDays)
}

func TestFindNearToleratesHoles(t *testing.T) {
	ctx := context.Background()
	portal := dailyPortal()
	// the midpoints of the first steps are holes, their neighbours are not
	portal.hole(2500, 1250, 625, 750)
	r := NewResolver(portal, Options{MinID: 1, MaxID: 5000}, &telemetry.Recorder{})

	id, ok, err := r.FindNear(ctx, day("2024-05-01"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Greater(t, id, 1)
}

func TestFindNearBounds(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(dailyPortal(), Options{MinID: 1, MaxID: 5000}, &telemetry.Recorder{})

	id, ok, err := r.FindNear(ctx, day("2024-01-05"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, id)

	_, ok, err = r.FindNear(ctx, day("2030-01-01"))
	require.NoError(t, err)
	require.False(t, ok)
}
