package attendance

import "fmt"

const (
	DefaultMaxConnections        = 8
	DefaultQueueSize             = 500
	DefaultMaxContiguousHoles    = 50
	DefaultMaxContiguousUnsorted = 50
	DefaultMinID                 = 1
	DefaultMaxID                 = 500_000
)

// Options are the limits shared by the pipeline, resolver and cache refresher.
// Zero values are replaced by their defaults.
type Options struct {
	// MaxConnections is the amount of live fetches allowed in flight.
	MaxConnections int
	// QueueSize is the amount of fetches the pipeline schedules ahead of the consumer.
	// It also bounds the fetches wasted after a hole abort, which against a fast
	// source can be close to QueueSize.
	QueueSize int
	// MaxContiguousHoles is the amount of contiguous holes after which the pipeline
	// assumes it has walked past the last generated timetable id.
	MaxContiguousHoles int
	// MaxContiguousUnsorted is the amount of contiguous out of range dates after which
	// a scrape by date assumes it has left the requested date range.
	MaxContiguousUnsorted int
	MinID                 int
	MaxID                 int
}

func (o Options) WithDefaults() Options {
	if o.MaxConnections <= 0 {
		o.MaxConnections = DefaultMaxConnections
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.MaxContiguousHoles <= 0 {
		o.MaxContiguousHoles = DefaultMaxContiguousHoles
	}
	if o.MaxContiguousUnsorted <= 0 {
		o.MaxContiguousUnsorted = DefaultMaxContiguousUnsorted
	}
	if o.MinID <= 0 {
		o.MinID = DefaultMinID
	}
	if o.MaxID <= 0 {
		o.MaxID = DefaultMaxID
	}
	return o
}

// IDRange is an inclusive range of timetable ids.
type IDRange struct {
	Start int
	End   int
}

func (r IDRange) Validate() error {
	if r.Start <= 0 || r.End <= 0 {
		return fmt.Errorf("%w: timetable ids must be positive, got %d-%d", ErrInvalidInput, r.Start, r.End)
	}
	if r.End < r.Start {
		return fmt.Errorf("%w: end timetable id %d is before start %d", ErrInvalidInput, r.End, r.Start)
	}
	return nil
}

// Clamp restricts r to [min, max].
func (r IDRange) Clamp(min, max int) IDRange {
	if r.Start < min {
		r.Start = min
	}
	if r.End > max {
		r.End = max
	}
	return r
}

func (r IDRange) Contains(id int) bool {
	return id >= r.Start && id <= r.End
}

// IDs lists every id of r in ascending order.
func (r IDRange) IDs() []int {
	if r.End < r.Start {
		return nil
	}
	out := make([]int, 0, r.End-r.Start+1)
	for id := r.Start; id <= r.End; id++ {
		out = append(out, id)
	}
	return out
}
