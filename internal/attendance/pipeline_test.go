package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"mmls-attendance/internal/telemetry"

	"github.com/stretchr/testify/require"
)

func idsOf(forms []Form) []int {
	out := make([]int, len(forms))
	for i, f := range forms {
		out[i] = f.TimetableID
	}
	return out
}

func TestPipelinePreservesOrder(t *testing.T) {
	portal := marchPortal()
	// later ids finish first
	portal.delay = func(id int) time.Duration {
		return time.Duration((60-id)%7) * time.Millisecond
	}
	pool := NewPool(8)
	pipeline := NewPipeline(pool.Limit(portal), Options{QueueSize: 10}, &telemetry.Recorder{})

	ids := []int{5, 3, 60, 1, 2, 59, 4, 58}
	for i := 6; i < 40; i++ {
		ids = append(ids, i)
	}

	forms, err := collect(pipeline.FetchAll(context.Background(), ids))
	require.NoError(t, err)
	require.Equal(t, ids, idsOf(forms))
}

func TestPipelineConcurrencyBound(t *testing.T) {
	portal := marchPortal()
	portal.delay = func(int) time.Duration { return 2 * time.Millisecond }
	pool := NewPool(3)
	pipeline := NewPipeline(pool.Limit(portal), Options{}, &telemetry.Recorder{})

	forms, err := collect(pipeline.FetchAll(context.Background(), IDRange{Start: 1, End: 100}.IDs()))
	require.NoError(t, err)
	require.Len(t, forms, 100)

	_, inFlight, maxInFlight := portal.stats()
	require.Equal(t, 0, inFlight)
	require.LessOrEqual(t, maxInFlight, 3)
}

func TestPipelineAbortsOnContiguousHoles(t *testing.T) {
	portal := marchPortal()
	for id := 21; id <= 300; id++ {
		portal.hole(id)
	}
	const queueSize = 4
	const maxHoles = 10
	tel := &telemetry.Recorder{}
	pipeline := NewPipeline(
		NewPool(2).Limit(portal),
		Options{QueueSize: queueSize, MaxContiguousHoles: maxHoles},
		tel,
	)

	var results []Result
	for res, err := range pipeline.Results(context.Background(), IDRange{Start: 1, End: 1000}.IDs()) {
		require.NoError(t, err)
		results = append(results, res)
	}

	// 20 sessions followed by the holes 21-30
	require.Len(t, results, 20+maxHoles)
	require.Nil(t, results[len(results)-1].Form)

	total, inFlight, _ := portal.stats()
	require.Equal(t, 0, inFlight)
	require.LessOrEqual(t, total, 20+maxHoles+queueSize+2)
	require.NotEmpty(t, tel.Reports(telemetry.REPORT_DEBUG, report_pipeline_hole_abort))
}

func TestPipelineHoleAbortBoundedByQueueSize(t *testing.T) {
	portal := marchPortal()
	for id := 21; id <= 300; id++ {
		portal.hole(id)
	}
	pipeline := NewPipeline(portal, Options{}, &telemetry.Recorder{})

	count := 0
	for _, err := range pipeline.Results(context.Background(), IDRange{Start: 1, End: 5000}.IDs()) {
		require.NoError(t, err)
		count++
	}
	require.Equal(t, 20+DefaultMaxContiguousHoles, count)

	// fetches that were already scheduled ahead of the consumer are wasted
	total, inFlight, _ := portal.stats()
	require.Equal(t, 0, inFlight)
	require.LessOrEqual(t, total, count+DefaultQueueSize+2)
}

func TestPipelineIgnoresScatteredHoles(t *testing.T) {
	portal := newFakePortal()
	pipeline := NewPipeline(portal, Options{MaxContiguousHoles: 3}, &telemetry.Recorder{})

	var ids []int
	for id := 2; id <= 40; id += 2 {
		ids = append(ids, id)
	}
	count := 0
	for res, err := range pipeline.Results(context.Background(), ids) {
		require.NoError(t, err)
		require.Nil(t, res.Form)
		count++
	}
	require.Equal(t, len(ids), count)
}

func TestPipelineConsumerBreak(t *testing.T) {
	portal := marchPortal()
	portal.delay = func(int) time.Duration { return time.Millisecond }
	pipeline := NewPipeline(NewPool(4).Limit(portal), Options{QueueSize: 50}, &telemetry.Recorder{})

	count := 0
	for _, err := range pipeline.FetchAll(context.Background(), IDRange{Start: 1, End: 300}.IDs()) {
		require.NoError(t, err)
		count++
		if count == 5 {
			break
		}
	}
	require.Equal(t, 5, count)

	total, inFlight, _ := portal.stats()
	require.Equal(t, 0, inFlight, "every scheduled fetch must have returned")
	require.Less(t, total, 300)
}

func TestPipelineStopsOnError(t *testing.T) {
	portal := marchPortal()
	portal.errs[5] = &ResponseError{Status: 503}
	pipeline := NewPipeline(portal, Options{}, &telemetry.Recorder{})

	forms, err := collect(pipeline.FetchAll(context.Background(), IDRange{Start: 1, End: 10}.IDs()))
	var resErr *ResponseError
	require.True(t, errors.As(err, &resErr))
	require.Equal(t, 503, resErr.Status)
	require.Equal(t, []int{1, 2, 3, 4}, idsOf(forms))
}

func TestPipelineCallerCancel(t *testing.T) {
	portal := marchPortal()
	portal.delay = func(int) time.Duration { return 5 * time.Millisecond }
	pipeline := NewPipeline(NewPool(2).Limit(portal), Options{}, &telemetry.Recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	count := 0
	for _, err := range pipeline.FetchAll(ctx, IDRange{Start: 1, End: 300}.IDs()) {
		require.NoError(t, err, "cancellation is not an error")
		count++
		if count == 3 {
			cancel()
		}
	}
	require.Less(t, count, 300)

	_, inFlight, _ := portal.stats()
	require.Equal(t, 0, inFlight)
}

func TestPipelineEmpty(t *testing.T) {
	pipeline := NewPipeline(newFakePortal(), Options{}, &telemetry.Recorder{})
	forms, err := collect(pipeline.FetchAll(context.Background(), nil))
	require.NoError(t, err)
	require.Empty(t, forms)
}
