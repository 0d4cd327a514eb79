// Package dbpool implements the fixed-size connection pool with
// consume/produce discipline and liveness probing that sits in front of
// every DLR storage driver, generalizing the pool embedded in the
// routing core's Postgres client wrapper to a pluggable back-end.
package dbpool

import (
	"context"
	"fmt"
)

// Handle is an opaque, driver-owned connection object.
type Handle any

// Driver is the capability abstraction standing in for the original's
// function-pointer ops vtable: open/close/check.
type Driver interface {
	Open(ctx context.Context) (Handle, error)
	Close(h Handle) error
	Check(h Handle) bool
}

// SQLDriver additionally exposes parameterized select/update, the two
// operations the SQL-backed DLR store needs directly against a handle.
type SQLDriver interface {
	Driver
	Select(ctx context.Context, h Handle, stmt string, binds []any) ([]map[string]any, error)
	// Update returns the affected row count, or -1 if the driver could
	// not determine it.
	Update(ctx context.Context, h Handle, stmt string, binds []any) (int64, error)
}

// Pool is a fixed-size set of validated handles with consume/produce
// discipline: Consume blocks until a handle is available, checking its
// liveness and transparently reopening it if the probe fails; Produce
// returns it to circulation.
type Pool struct {
	driver Driver
	max    int
	slots  chan Handle
}

// New opens max handles through driver and returns a ready Pool. If any
// open fails, all handles opened so far are closed and the error is
// returned.
func New(ctx context.Context, driver Driver, max int) (*Pool, error) {
	if max <= 0 {
		return nil, fmt.Errorf("dbpool: max must be positive, got %d", max)
	}
	p := &Pool{driver: driver, max: max, slots: make(chan Handle, max)}
	for i := 0; i < max; i++ {
		h, err := driver.Open(ctx)
		if err != nil {
			p.Destroy()
			return nil, fmt.Errorf("dbpool: opening handle %d/%d: %w", i+1, max, err)
		}
		p.slots <- h
	}
	return p, nil
}

// Consume blocks until a handle is available or ctx is done. The
// returned handle has passed a liveness check; a dead handle is closed
// and replaced transparently before being returned.
func (p *Pool) Consume(ctx context.Context) (Handle, error) {
	select {
	case h := <-p.slots:
		if p.driver.Check(h) {
			return h, nil
		}
		_ = p.driver.Close(h)
		nh, err := p.driver.Open(ctx)
		if err != nil {
			return nil, fmt.Errorf("dbpool: reopening dead handle: %w", err)
		}
		return nh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Produce returns h to the pool. Producing into a full pool means more
// handles came back than were consumed, a bookkeeping violation that
// panics.
func (p *Pool) Produce(h Handle) {
	select {
	case p.slots <- h:
	default:
		panic("dbpool: produce into a full pool (handle produced more than once)")
	}
}

// Destroy drains and closes every handle currently in the pool. Handles
// checked out at the time of the call are not tracked and will leak if
// never produced back — callers are expected to quiesce first.
func (p *Pool) Destroy() {
	close(p.slots)
	for h := range p.slots {
		_ = p.driver.Close(h)
	}
}

// Len reports the current capacity of the pool.
func (p *Pool) Len() int { return p.max }
