package attendance

import (
	"context"
	"iter"
	"sync"
	"time"
)

// fakePortal is an in-memory Source that records how it was called.
type fakePortal struct {
	mutex sync.Mutex
	forms map[int]Form
	errs  map[int]error
	// delay is the latency of a single fetch, nil for none.
	delay func(id int) time.Duration
	// gate blocks every fetch until it is closed, nil for none.
	gate    chan struct{}
	entered chan int

	calls       map[int]int
	total       int
	inFlight    int
	maxInFlight int
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		forms: map[int]Form{},
		errs:  map[int]error{},
		calls: map[int]int{},
	}
}

func (f *fakePortal) set(form Form) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.forms[form.TimetableID] = form
}

func (f *fakePortal) hole(ids ...int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, id := range ids {
		delete(f.forms, id)
	}
}

func (f *fakePortal) Fetch(ctx context.Context, id int) (*Form, error) {
	f.mutex.Lock()
	f.calls[id]++
	f.total++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.delay
	gate := f.gate
	entered := f.entered
	f.mutex.Unlock()

	defer func() {
		f.mutex.Lock()
		f.inFlight--
		f.mutex.Unlock()
	}()

	if entered != nil {
		select {
		case entered <- id:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay != nil {
		select {
		case <-time.After(delay(id)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	form, ok := f.forms[id]
	if !ok {
		return nil, nil
	}
	return &form, nil
}

func (f *fakePortal) callsOf(id int) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls[id]
}

func (f *fakePortal) stats() (total, inFlight, maxInFlight int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.total, f.inFlight, f.maxInFlight
}

func testForm(id int, date string, classID int) Form {
	return Form{
		TimetableID: id,
		StartTime:   "08:00:00",
		EndTime:     "10:00:00",
		ClassDate:   date,
		ClassID:     classID,
	}
}

// datedPortal serves every id of [from, to] with the date returned by dateOf.
func datedPortal(from, to int, dateOf func(id int) string, classOf func(id int) int) *fakePortal {
	f := newFakePortal()
	for id := from; id <= to; id++ {
		f.set(testForm(id, dateOf(id), classOf(id)))
	}
	return f
}

// marchPortal has ids 1-99 in February, 100-149 on 2024-03-01 and 150-300 in April.
func marchPortal() *fakePortal {
	return datedPortal(1, 300, func(id int) string {
		switch {
		case id < 100:
			return "2024-02-01"
		case id < 150:
			return "2024-03-01"
		default:
			return "2024-04-01"
		}
	}, func(id int) int {
		if id%2 == 0 {
			return 500
		}
		return 501
	})
}

// dailyPortal has ids 1-2000 with 10 sessions a day starting at 2024-01-01.
func dailyPortal() *fakePortal {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return datedPortal(1, 2000, func(id int) string {
		return start.AddDate(0, 0, (id-1)/10).Format(time.DateOnly)
	}, func(id int) int {
		if id%2 == 0 {
			return 500
		}
		return 501
	})
}

func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
