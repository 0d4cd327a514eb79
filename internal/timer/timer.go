// Package timer implements a heap-ordered set of timers served by a
// single watcher goroutine per set, the Go translation of Kannel's
// gwlib timer facility: set_create/timer_create/timer_start/timer_stop/
// timer_break, with the same heap-index bookkeeping and the same
// stop-races-the-watcher semantics for already-elapsed timers.
package timer

import (
	"context"
	"sync"
	"time"
)

// Timer is owned by exactly one Set and is not safe to share across sets.
type Timer struct {
	set *Set

	output *EventQueue
	data   any

	elapses     time.Time // zero value means inactive
	active      bool
	elapsedData any // non-nil while an elapse event for this timer is queued but not yet consumed-and-acknowledged
	heapIndex   int // index in set.heap, -1 when not in the heap
}

// Data returns the value most recently passed to Start.
func (t *Timer) Data() any {
	t.set.mu.Lock()
	defer t.set.mu.Unlock()
	return t.data
}

// Set is a heap-ordered collection of timers plus the goroutine that
// watches its earliest deadline.
type Set struct {
	mu   sync.Mutex
	heap []*Timer

	wakeup chan struct{}
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewSet creates an empty timer set and starts its watcher goroutine.
func NewSet() *Set {
	s := &Set{
		wakeup: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.watch()
	return s
}

// Destroy stops the watcher goroutine. Any timers still active are left
// untouched in memory but will never elapse; callers should Stop them
// first if that matters.
func (s *Set) Destroy() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	s.wg.Wait()
}

// NewTimer creates an inactive timer bound to this set, publishing its
// elapse events onto output.
func (s *Set) NewTimer(output *EventQueue) *Timer {
	return &Timer{set: s, output: output, heapIndex: -1}
}

// Destroy removes t from its set if active. Safe to call on an inactive
// timer.
func (t *Timer) Destroy() {
	t.Stop()
}

// Start arms t to elapse after interval, carrying data. If t was already
// active it is repositioned in the heap rather than duplicated.
func (t *Timer) Start(interval time.Duration, data any) {
	s := t.set
	s.mu.Lock()
	t.data = data
	t.elapsedData = nil
	t.elapses = time.Now().Add(interval)
	t.active = true
	if t.heapIndex == -1 {
		s.push(t)
	} else {
		s.fix(t.heapIndex)
	}
	s.mu.Unlock()
	s.wake()
}

// Stop deactivates t. If an elapse event for t was already queued for
// delivery, Stop attempts to revoke it before a consumer observes it;
// this races with the consumer, which must tolerate a spurious delivery
// only when it has not yet called Stop.
func (t *Timer) Stop() {
	s := t.set
	s.mu.Lock()
	if t.heapIndex != -1 {
		s.remove(t.heapIndex)
	}
	t.elapses = time.Time{}
	t.active = false
	pending := t.elapsedData
	t.elapsedData = nil
	s.mu.Unlock()

	if pending != nil {
		t.output.DeleteEqual(pending)
	}
}

// Break atomically removes every timer in the set, cancels their
// pending elapse events, and returns the data each carried.
func (s *Set) Break() []any {
	s.mu.Lock()
	old := s.heap
	s.heap = nil
	var out []any
	for _, t := range old {
		out = append(out, t.data)
		t.heapIndex = -1
		t.elapses = time.Time{}
		t.active = false
		if t.elapsedData != nil {
			t.output.DeleteEqual(t.elapsedData)
			t.elapsedData = nil
		}
	}
	s.mu.Unlock()
	return out
}

func (s *Set) wake() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

func (s *Set) watch() {
	defer s.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.done
		cancel()
	}()

	for {
		s.mu.Lock()
		var wait time.Duration
		var fire *Timer
		if len(s.heap) == 0 {
			wait = -1 // sleep indefinitely
		} else {
			top := s.heap[0]
			wait = time.Until(top.elapses)
			if wait <= 0 {
				fire = top
				s.remove(0)
				// Record and publish under the set lock so a concurrent
				// Stop either sees elapsedData and revokes the queued
				// event, or runs before the timer elapsed at all.
				fire.elapsedData = fire.data
				fire.output.Send(fire.data)
			}
		}
		s.mu.Unlock()

		if fire != nil {
			continue
		}

		if wait < 0 {
			select {
			case <-s.wakeup:
			case <-ctx.Done():
				return
			}
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wakeup:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// --- heap primitives; heapIndex is kept consistent on every swap so an
// arbitrary timer can be re-heapified in O(log n) without a linear scan.

func (s *Set) push(t *Timer) {
	t.heapIndex = len(s.heap)
	s.heap = append(s.heap, t)
	s.siftUp(t.heapIndex)
}

func (s *Set) remove(i int) {
	last := len(s.heap) - 1
	s.swap(i, last)
	s.heap[last].heapIndex = -1
	s.heap = s.heap[:last]
	if i < last {
		s.fix(i)
	}
}

func (s *Set) fix(i int) {
	if !s.siftDown(i) {
		s.siftUp(i)
	}
}

func (s *Set) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !s.heap[i].elapses.Before(s.heap[parent].elapses) {
			break
		}
		s.swap(i, parent)
		i = parent
	}
}

// siftDown reports whether it moved the element at i downward.
func (s *Set) siftDown(i int) bool {
	moved := false
	n := len(s.heap)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && s.heap[left].elapses.Before(s.heap[smallest].elapses) {
			smallest = left
		}
		if right < n && s.heap[right].elapses.Before(s.heap[smallest].elapses) {
			smallest = right
		}
		if smallest == i {
			return moved
		}
		s.swap(i, smallest)
		i = smallest
		moved = true
	}
}

func (s *Set) swap(i, j int) {
	s.heap[i], s.heap[j] = s.heap[j], s.heap[i]
	s.heap[i].heapIndex = i
	s.heap[j].heapIndex = j
}
