package attendance

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Source fetches the attendance form of a single timetable id.
//
// A hole (an id without a session) is reported as a nil form and a nil error.
type Source interface {
	Fetch(ctx context.Context, timetableID int) (*Form, error)
}

type SourceFunc func(ctx context.Context, timetableID int) (*Form, error)

func (f SourceFunc) Fetch(ctx context.Context, timetableID int) (*Form, error) {
	return f(ctx, timetableID)
}

// Pool bounds the amount of concurrent fetches of one scrape session,
// every component of the session must share the same Pool.
type Pool struct {
	size int
	sem  *semaphore.Weighted
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultMaxConnections
	}
	return &Pool{
		size: size,
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

func (p *Pool) Size() int {
	return p.size
}

// Limit wraps source so every fetch holds one slot of the pool until it returns.
func (p *Pool) Limit(source Source) Source {
	return SourceFunc(func(ctx context.Context, timetableID int) (*Form, error) {
		err := p.sem.Acquire(ctx, 1)
		if err != nil {
			return nil, err
		}
		defer p.sem.Release(1)
		return source.Fetch(ctx, timetableID)
	})
}
