package attendance

import (
	"context"
	"iter"
	"sync"

	"mmls-attendance/internal/assert"
	"mmls-attendance/internal/telemetry"
)

const (
	report_pipeline_fetch_all   = "pipeline.fetch-all"
	report_pipeline_hole_abort  = "pipeline.hole-abort"
	report_pipeline_fetch_count = "pipeline.fetch-count"
)

// Result is the outcome of fetching one timetable id, Form is nil for holes.
type Result struct {
	TimetableID int
	Form        *Form
}

// Pipeline fetches many timetable ids concurrently while delivering results in
// the order the ids were given.
type Pipeline struct {
	source    Source
	queueSize int
	maxHoles  int
	tel       telemetry.API
}

func NewPipeline(source Source, opts Options, tel telemetry.API) *Pipeline {
	assert.NotNil(source)
	assert.NotNil(tel)

	opts = opts.WithDefaults()
	return &Pipeline{
		source:    source,
		queueSize: opts.QueueSize,
		maxHoles:  opts.MaxContiguousHoles,
		tel:       tel,
	}
}

type task struct {
	id   int
	done chan struct{}
	form *Form
	err  error
}

// FetchAll yields the form of every id that is not a hole, in the order of ids.
func (p *Pipeline) FetchAll(ctx context.Context, ids []int) iter.Seq2[Form, error] {
	return func(yield func(Form, error) bool) {
		for res, err := range p.Results(ctx, ids) {
			if err != nil {
				yield(Form{}, err)
				return
			}
			if res.Form == nil {
				continue
			}
			if !yield(*res.Form, nil) {
				return
			}
		}
	}
}

// Results yields the result of every id (holes included) in the order of ids.
//
// A feeder schedules at most QueueSize fetches ahead of the consumer. The sequence ends
// early after MaxContiguousHoles holes with contiguous ids, when the consumer stops
// iterating or when ctx is canceled. None of these are reported as errors. Any other
// error is yielded once and ends the sequence. Every scheduled fetch has returned by
// the time the sequence ends.
func (p *Pipeline) Results(ctx context.Context, ids []int) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		if len(ids) == 0 {
			return
		}

		parent := ctx
		ctx, cancel := context.WithCancel(ctx)
		queue := make(chan *task, p.queueSize)
		feederDone := make(chan struct{})
		var tasks sync.WaitGroup

		go func() {
			defer close(feederDone)
			defer close(queue)
			for _, id := range ids {
				if ctx.Err() != nil {
					return
				}
				t := &task{id: id, done: make(chan struct{})}
				tasks.Add(1)
				go func() {
					defer tasks.Done()
					defer close(t.done)
					t.form, t.err = p.source.Fetch(ctx, t.id)
				}()
				select {
				case queue <- t:
				case <-ctx.Done():
					return
				}
			}
		}()

		defer func() {
			cancel()
			<-feederDone
			tasks.Wait()
		}()

		fetched := 0
		holes := 0
		previous := 0
		started := false
		defer func() {
			p.tel.ReportCount(report_pipeline_fetch_count, int64(fetched))
		}()

		for t := range queue {
			<-t.done
			fetched++

			if t.err != nil {
				if parent.Err() != nil {
					p.tel.ReportDebug(report_pipeline_fetch_all+": canceled", t.id)
					return
				}
				p.tel.ReportWarning(report_pipeline_fetch_all, t.id, t.err)
				yield(Result{}, t.err)
				return
			}

			if t.form != nil {
				holes = 0
			} else if started && t.id-1 == previous {
				holes++
			}
			previous = t.id
			started = true

			if !yield(Result{TimetableID: t.id, Form: t.form}, nil) {
				return
			}
			if holes >= p.maxHoles {
				p.tel.ReportDebug(report_pipeline_hole_abort, t.id, holes)
				return
			}
		}
	}
}
