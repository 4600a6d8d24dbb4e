// Package deque provides a thread-safe, capacity-bounded double-ended queue.
// Items can be inserted at either end and are removed from the head.
package deque

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrFull is returned when a non-blocking or timed insert finds no room.
	ErrFull = errors.New("deque is full")

	// ErrEmpty is returned when a non-blocking or timed removal finds no item.
	ErrEmpty = errors.New("deque is empty")

	// ErrInvalidTimeout is returned for a negative timeout.
	ErrInvalidTimeout = errors.New("timeout must be a non-negative duration")

	// ErrNoPendingTasks is returned by Done when every inserted item has
	// already been marked done.
	ErrNoPendingTasks = errors.New("done called more times than items were added")
)

// minRing is the initial backing size. The ring doubles as needed, up to
// the capacity of a bounded deque.
const minRing = 16

// Stats tracks deque throughput.
type Stats struct {
	TotalAdded   uint64
	TotalRemoved uint64
	CurrentSize  int
	PeakSize     int
}

// Deque is a double-ended blocking queue. A capacity of zero means unbounded.
//
// All state is guarded by one mutex. notEmpty is signalled after every
// insertion at either end and notFull after every removal, so a consumer
// blocked on an empty deque wakes no matter which end received the item.
// A blocked call cannot be cancelled; it returns when another goroutine
// makes room or adds an item, or when its own timeout elapses.
type Deque[T any] struct {
	capacity int

	// Ring buffer storage; head is the index of the next item out.
	items []T
	head  int
	size  int

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	// Items added but not yet marked done; allDone is broadcast at zero.
	unfinished int
	allDone    *sync.Cond

	stats Stats
}

// New creates a deque holding at most capacity items. A capacity of zero or
// less makes it unbounded.
func New[T any](capacity int) *Deque[T] {
	if capacity < 0 {
		capacity = 0
	}

	ring := minRing
	if capacity > 0 && capacity < minRing {
		ring = capacity
	}

	d := &Deque[T]{
		capacity: capacity,
		items:    make([]T, ring),
	}
	d.notEmpty = sync.NewCond(&d.mu)
	d.notFull = sync.NewCond(&d.mu)
	d.allDone = sync.NewCond(&d.mu)
	return d
}

// Put appends item at the tail, blocking while the deque is full.
func (d *Deque[T]) Put(item T) {
	_ = d.insert(item, false, true, -1)
}

// PutTimeout appends item at the tail, waiting at most timeout for room.
func (d *Deque[T]) PutTimeout(item T, timeout time.Duration) error {
	if timeout < 0 {
		return ErrInvalidTimeout
	}
	return d.insert(item, false, true, timeout)
}

// PutNowait appends item at the tail or fails with ErrFull.
func (d *Deque[T]) PutNowait(item T) error {
	return d.insert(item, false, false, 0)
}

// PutLeft inserts item at the head, blocking while the deque is full. The
// item is the next one returned by Get.
func (d *Deque[T]) PutLeft(item T) {
	_ = d.insert(item, true, true, -1)
}

// PutLeftTimeout inserts item at the head, waiting at most timeout for room.
func (d *Deque[T]) PutLeftTimeout(item T, timeout time.Duration) error {
	if timeout < 0 {
		return ErrInvalidTimeout
	}
	return d.insert(item, true, true, timeout)
}

// PutLeftNowait inserts item at the head or fails with ErrFull.
func (d *Deque[T]) PutLeftNowait(item T) error {
	return d.insert(item, true, false, 0)
}

// Get removes and returns the head item, blocking while the deque is empty.
func (d *Deque[T]) Get() T {
	item, _ := d.remove(true, -1)
	return item
}

// GetTimeout removes the head item, waiting at most timeout for one.
func (d *Deque[T]) GetTimeout(timeout time.Duration) (T, error) {
	if timeout < 0 {
		var zero T
		return zero, ErrInvalidTimeout
	}
	return d.remove(true, timeout)
}

// GetNowait removes the head item or fails with ErrEmpty.
func (d *Deque[T]) GetNowait() (T, error) {
	return d.remove(false, 0)
}

// Done marks one previously removed item as processed. Every insertion,
// at either end, adds one unit of work that Done retires.
func (d *Deque[T]) Done() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.unfinished == 0 {
		return ErrNoPendingTasks
	}
	d.unfinished--
	if d.unfinished == 0 {
		d.allDone.Broadcast()
	}
	return nil
}

// Join blocks until every inserted item has been marked done.
func (d *Deque[T]) Join() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for d.unfinished > 0 {
		d.allDone.Wait()
	}
}

// JoinTimeout is Join bounded by timeout. It reports whether all work was
// done in time.
func (d *Deque[T]) JoinTimeout(timeout time.Duration) (bool, error) {
	if timeout < 0 {
		return false, ErrInvalidTimeout
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for d.unfinished > 0 {
		if !d.waitUntil(d.allDone, deadline) {
			return false, nil
		}
	}
	return true, nil
}

// Unfinished returns the number of inserted items not yet marked done.
func (d *Deque[T]) Unfinished() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unfinished
}

// Len returns the number of queued items. The answer may be stale as soon
// as it is returned.
func (d *Deque[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Cap returns the capacity, zero when unbounded.
func (d *Deque[T]) Cap() int {
	return d.capacity
}

// Empty reports whether the deque currently holds no items.
func (d *Deque[T]) Empty() bool {
	return d.Len() == 0
}

// Full reports whether the deque is currently at capacity. An unbounded
// deque is never full.
func (d *Deque[T]) Full() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isFull()
}

// Stats returns a snapshot of the deque counters.
func (d *Deque[T]) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := d.stats
	stats.CurrentSize = d.size
	return stats
}

// insert adds item at the head or tail. A negative timeout with block set
// waits forever.
func (d *Deque[T]) insert(item T, left, block bool, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capacity > 0 {
		switch {
		case !block:
			if d.isFull() {
				return ErrFull
			}
		case timeout < 0:
			for d.isFull() {
				d.notFull.Wait()
			}
		default:
			deadline := time.Now().Add(timeout)
			for d.isFull() {
				if !d.waitUntil(d.notFull, deadline) {
					return ErrFull
				}
			}
		}
	}

	if left {
		d.pushFront(item)
	} else {
		d.pushBack(item)
	}

	d.unfinished++
	d.stats.TotalAdded++
	if d.size > d.stats.PeakSize {
		d.stats.PeakSize = d.size
	}

	d.notEmpty.Signal()
	return nil
}

// remove takes the head item. A negative timeout with block set waits forever.
func (d *Deque[T]) remove(block bool, timeout time.Duration) (T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	switch {
	case !block:
		if d.size == 0 {
			return zero, ErrEmpty
		}
	case timeout < 0:
		for d.size == 0 {
			d.notEmpty.Wait()
		}
	default:
		deadline := time.Now().Add(timeout)
		for d.size == 0 {
			if !d.waitUntil(d.notEmpty, deadline) {
				return zero, ErrEmpty
			}
		}
	}

	item := d.popFront()
	d.stats.TotalRemoved++

	d.notFull.Signal()
	return item, nil
}

// waitUntil waits on cond until signalled or until deadline passes. It
// returns false without waiting if the deadline has already passed. Must be
// called with d.mu held.
//
// sync.Cond has no timed wait, so a timer broadcasts on the condition when
// the deadline arrives; other waiters woken by it simply re-check and wait
// again. time.Now carries a monotonic reading, so wall-clock jumps do not
// affect the deadline.
func (d *Deque[T]) waitUntil(cond *sync.Cond, deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}

	timer := time.AfterFunc(remaining, func() {
		d.mu.Lock()
		cond.Broadcast()
		d.mu.Unlock()
	})
	cond.Wait()
	timer.Stop()
	return true
}

// Private ring helpers; all require d.mu.

func (d *Deque[T]) isFull() bool {
	return d.capacity > 0 && d.size >= d.capacity
}

func (d *Deque[T]) pushBack(item T) {
	d.grow()
	d.items[(d.head+d.size)%len(d.items)] = item
	d.size++
}

func (d *Deque[T]) pushFront(item T) {
	d.grow()
	d.head = (d.head - 1 + len(d.items)) % len(d.items)
	d.items[d.head] = item
	d.size++
}

func (d *Deque[T]) popFront() T {
	var zero T
	item := d.items[d.head]
	d.items[d.head] = zero // release the reference for GC
	d.head = (d.head + 1) % len(d.items)
	d.size--
	return item
}

// grow doubles the ring when it is full, never past the capacity of a
// bounded deque. Callers have already checked that there is room.
func (d *Deque[T]) grow() {
	if d.size < len(d.items) {
		return
	}

	n := len(d.items) * 2
	if d.capacity > 0 && n > d.capacity {
		n = d.capacity
	}
	items := make([]T, n)
	for i := 0; i < d.size; i++ {
		items[i] = d.items[(d.head+i)%len(d.items)]
	}
	d.items = items
	d.head = 0
}
