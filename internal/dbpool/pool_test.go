package dbpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeHandle struct {
	id   int
	dead bool
}

type fakeDriver struct {
	mu      sync.Mutex
	opened  int
	closed  int
	reopens int
}

func (d *fakeDriver) Open(ctx context.Context) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened++
	return &fakeHandle{id: d.opened}, nil
}

func (d *fakeDriver) Close(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func (d *fakeDriver) Check(h Handle) bool {
	return !h.(*fakeHandle).dead
}

func TestPoolConsumeProduceRoundTrip(t *testing.T) {
	d := &fakeDriver{}
	p, err := New(context.Background(), d, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, err := p.Consume(context.Background())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	p.Produce(h)

	if d.opened != 3 {
		t.Fatalf("opened = %d, want 3", d.opened)
	}
}

func TestPoolReplacesDeadHandle(t *testing.T) {
	d := &fakeDriver{}
	p, err := New(context.Background(), d, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, _ := p.Consume(context.Background())
	h.(*fakeHandle).dead = true
	p.Produce(h)

	h2, err := p.Consume(context.Background())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if h2.(*fakeHandle).dead {
		t.Fatal("expected a fresh, live handle after liveness probe failure")
	}
	if d.closed != 1 {
		t.Fatalf("closed = %d, want 1", d.closed)
	}
}

func TestPoolConsumeBlocksUntilProduce(t *testing.T) {
	d := &fakeDriver{}
	p, err := New(context.Background(), d, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, _ := p.Consume(context.Background())

	var consumed atomic.Bool
	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := p.Consume(ctx); err == nil {
			consumed.Store(true)
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if consumed.Load() {
		t.Fatal("second Consume returned before Produce")
	}
	p.Produce(h)
	<-done
	if !consumed.Load() {
		t.Fatal("second Consume never unblocked after Produce")
	}
}

func TestPoolConsumeRespectsContext(t *testing.T) {
	d := &fakeDriver{}
	p, err := New(context.Background(), d, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _ = p.Consume(context.Background()) // drain the only handle

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Consume(ctx); err == nil {
		t.Fatal("expected context deadline error")
	}
}
