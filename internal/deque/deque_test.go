package deque_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fucheng830/chatgpt-on-wechat/internal/deque"
)

// TestDequeCreation tests capacity handling on construction.
func TestDequeCreation(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{name: "bounded", capacity: 5, want: 5},
		{name: "zero is unbounded", capacity: 0, want: 0},
		{name: "negative is unbounded", capacity: -3, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := deque.New[int](tt.capacity)
			if d.Cap() != tt.want {
				t.Errorf("Cap() = %d, want %d", d.Cap(), tt.want)
			}
			if !d.Empty() {
				t.Error("new deque should be empty")
			}
			if d.Full() {
				t.Error("new deque should not be full")
			}
		})
	}
}

// TestDequeCapacityBound tests the full/putleft/get sequence.
func TestDequeCapacityBound(t *testing.T) {
	d := deque.New[int](2)

	d.Put(1)
	d.Put(2)

	if err := d.PutNowait(3); !errors.Is(err, deque.ErrFull) {
		t.Fatalf("PutNowait on full deque = %v, want ErrFull", err)
	}
	if err := d.PutLeftNowait(3); !errors.Is(err, deque.ErrFull) {
		t.Fatalf("PutLeftNowait on full deque = %v, want ErrFull", err)
	}
	if err := d.PutLeftTimeout(3, 20*time.Millisecond); !errors.Is(err, deque.ErrFull) {
		t.Fatalf("PutLeftTimeout on full deque = %v, want ErrFull", err)
	}
	if !d.Full() {
		t.Error("Full() = false at capacity")
	}

	if got := d.Get(); got != 1 {
		t.Fatalf("Get() = %d, want 1", got)
	}

	d.PutLeft(0)
	for _, want := range []int{0, 2} {
		if got := d.Get(); got != want {
			t.Errorf("Get() = %d, want %d", got, want)
		}
	}
}

// TestDequePutLeftJumpsQueue checks head inserts come out before queued items.
func TestDequePutLeftJumpsQueue(t *testing.T) {
	d := deque.New[int](3)

	d.Put(1)
	d.Put(2)
	d.PutLeft(0)

	if d.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", d.Len())
	}
	for _, want := range []int{0, 1, 2} {
		got, err := d.GetNowait()
		if err != nil {
			t.Fatalf("GetNowait failed: %v", err)
		}
		if got != want {
			t.Errorf("GetNowait() = %d, want %d", got, want)
		}
	}
}

// TestDequeOrdering checks FIFO for tail inserts and LIFO for head inserts.
func TestDequeOrdering(t *testing.T) {
	d := deque.New[string](0)

	d.Put("t1")
	d.Put("t2")
	d.PutLeft("h1")
	d.PutLeft("h2")
	d.Put("t3")

	want := []string{"h2", "h1", "t1", "t2", "t3"}
	for _, w := range want {
		got, err := d.GetNowait()
		if err != nil {
			t.Fatalf("GetNowait failed: %v", err)
		}
		if got != w {
			t.Errorf("got %q, want %q", got, w)
		}
	}

	if _, err := d.GetNowait(); !errors.Is(err, deque.ErrEmpty) {
		t.Errorf("GetNowait on empty deque = %v, want ErrEmpty", err)
	}
}

// TestDequeUnbounded checks that an unbounded deque never reports full.
func TestDequeUnbounded(t *testing.T) {
	d := deque.New[int](0)

	for i := 0; i < 1000; i++ {
		var err error
		if i%2 == 0 {
			err = d.PutNowait(i)
		} else {
			err = d.PutLeftNowait(i)
		}
		if err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}

	if d.Full() {
		t.Error("unbounded deque reported full")
	}
	if d.Len() != 1000 {
		t.Errorf("Len() = %d, want 1000", d.Len())
	}

	// Head inserts are odd numbers in descending order, then evens ascending.
	if got := d.Get(); got != 999 {
		t.Errorf("first Get() = %d, want 999", got)
	}
}

// TestDequeGrowPreservesOrder wraps the ring before it grows.
func TestDequeGrowPreservesOrder(t *testing.T) {
	d := deque.New[int](0)

	for i := 0; i < 10; i++ {
		d.Put(i)
	}
	for i := 0; i < 10; i++ {
		d.Get()
	}
	for i := 0; i < 40; i++ {
		d.Put(i)
	}
	for i := 0; i < 40; i++ {
		if got := d.Get(); got != i {
			t.Fatalf("Get() = %d, want %d", got, i)
		}
	}
}

// TestDequeLargeCapacity checks that storage is allocated lazily for big
// bounded deques.
func TestDequeLargeCapacity(t *testing.T) {
	d := deque.New[int](1 << 62)
	if d.Cap() != 1<<62 {
		t.Fatalf("Cap() = %d, want %d", d.Cap(), 1<<62)
	}

	d.Put(1)
	d.PutLeft(0)
	if got := d.Get(); got != 0 {
		t.Errorf("Get() = %d, want 0", got)
	}
	if got := d.Get(); got != 1 {
		t.Errorf("Get() = %d, want 1", got)
	}
}

// TestDequeBoundedGrowth fills a bounded deque past the initial ring size.
func TestDequeBoundedGrowth(t *testing.T) {
	const capacity = 37
	d := deque.New[int](capacity)

	// Items 0..35 at the tail, then -1 at the head.
	for i := 0; i < capacity-1; i++ {
		if err := d.PutNowait(i); err != nil {
			t.Fatalf("PutNowait(%d) failed: %v", i, err)
		}
	}
	if err := d.PutLeftNowait(-1); err != nil {
		t.Fatalf("PutLeftNowait failed: %v", err)
	}

	if !d.Full() {
		t.Fatal("deque should be full at capacity")
	}
	if err := d.PutNowait(99); !errors.Is(err, deque.ErrFull) {
		t.Fatalf("PutNowait past capacity = %v, want ErrFull", err)
	}

	for want := -1; want < capacity-1; want++ {
		got, err := d.GetNowait()
		if err != nil {
			t.Fatalf("GetNowait failed: %v", err)
		}
		if got != want {
			t.Fatalf("GetNowait() = %d, want %d", got, want)
		}
	}
}

// TestDequeJoin checks that Join waits for every item to be marked done.
func TestDequeJoin(t *testing.T) {
	d := deque.New[int](4)

	if err := d.Done(); !errors.Is(err, deque.ErrNoPendingTasks) {
		t.Errorf("Done on fresh deque = %v, want ErrNoPendingTasks", err)
	}

	d.Put(1)
	d.PutLeft(0)
	if d.Unfinished() != 2 {
		t.Fatalf("Unfinished() = %d, want 2", d.Unfinished())
	}

	if ok, err := d.JoinTimeout(20 * time.Millisecond); err != nil || ok {
		t.Fatalf("JoinTimeout with pending work = (%v, %v), want (false, nil)", ok, err)
	}
	if _, err := d.JoinTimeout(-time.Second); !errors.Is(err, deque.ErrInvalidTimeout) {
		t.Errorf("JoinTimeout(-1s) = %v, want ErrInvalidTimeout", err)
	}

	joined := make(chan struct{})
	go func() {
		d.Join()
		close(joined)
	}()

	for i := 0; i < 2; i++ {
		d.Get()
		select {
		case <-joined:
			t.Fatal("Join returned before all items were done")
		case <-time.After(10 * time.Millisecond):
		}
		if err := d.Done(); err != nil {
			t.Fatalf("Done failed: %v", err)
		}
	}

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("Join did not return after all items were done")
	}

	if ok, err := d.JoinTimeout(0); err != nil || !ok {
		t.Errorf("JoinTimeout with no work = (%v, %v), want (true, nil)", ok, err)
	}
}

// TestDequeInvalidTimeout checks negative timeouts fail regardless of state.
func TestDequeInvalidTimeout(t *testing.T) {
	d := deque.New[int](5)
	d.Put(1)

	if err := d.PutTimeout(2, -time.Second); !errors.Is(err, deque.ErrInvalidTimeout) {
		t.Errorf("PutTimeout = %v, want ErrInvalidTimeout", err)
	}
	if err := d.PutLeftTimeout(2, -time.Millisecond); !errors.Is(err, deque.ErrInvalidTimeout) {
		t.Errorf("PutLeftTimeout = %v, want ErrInvalidTimeout", err)
	}
	if _, err := d.GetTimeout(-1); !errors.Is(err, deque.ErrInvalidTimeout) {
		t.Errorf("GetTimeout = %v, want ErrInvalidTimeout", err)
	}

	unbounded := deque.New[int](0)
	if err := unbounded.PutTimeout(1, -1); !errors.Is(err, deque.ErrInvalidTimeout) {
		t.Errorf("unbounded PutTimeout = %v, want ErrInvalidTimeout", err)
	}

	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after rejected calls", d.Len())
	}
}

// TestDequeTimeouts checks timed operations give up after roughly timeout.
func TestDequeTimeouts(t *testing.T) {
	d := deque.New[int](1)
	d.Put(1)

	start := time.Now()
	err := d.PutTimeout(2, 50*time.Millisecond)
	elapsed := time.Since(start)
	if !errors.Is(err, deque.ErrFull) {
		t.Fatalf("PutTimeout = %v, want ErrFull", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("PutTimeout returned after %v, want at least 50ms", elapsed)
	}

	if err := d.PutLeftTimeout(2, 0); !errors.Is(err, deque.ErrFull) {
		t.Errorf("PutLeftTimeout with zero timeout = %v, want ErrFull", err)
	}

	d.Get()

	start = time.Now()
	_, err = d.GetTimeout(30 * time.Millisecond)
	elapsed = time.Since(start)
	if !errors.Is(err, deque.ErrEmpty) {
		t.Fatalf("GetTimeout = %v, want ErrEmpty", err)
	}
	if elapsed < 30*time.Millisecond {
		t.Errorf("GetTimeout returned after %v, want at least 30ms", elapsed)
	}

	// With room available a zero timeout succeeds immediately.
	if err := d.PutTimeout(7, 0); err != nil {
		t.Errorf("PutTimeout with room = %v", err)
	}
	if got, err := d.GetTimeout(0); err != nil || got != 7 {
		t.Errorf("GetTimeout(0) = %d, %v; want 7, nil", got, err)
	}
}

// TestDequeBlockedConsumerWokenByPutLeft checks head inserts signal consumers.
func TestDequeBlockedConsumerWokenByPutLeft(t *testing.T) {
	d := deque.New[string](1)

	result := make(chan string, 1)
	go func() {
		result <- d.Get()
	}()

	time.Sleep(20 * time.Millisecond)
	d.PutLeft("wake")

	select {
	case got := <-result:
		if got != "wake" {
			t.Errorf("Get() = %q, want %q", got, "wake")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken by PutLeft")
	}
}

// TestDequeBlockedProducerWokenByGet checks removals signal producers.
func TestDequeBlockedProducerWokenByGet(t *testing.T) {
	d := deque.New[int](1)
	d.Put(1)

	done := make(chan error, 2)
	go func() {
		done <- d.PutTimeout(2, 2*time.Second)
	}()
	go func() {
		d.PutLeft(0)
		done <- nil
	}()

	time.Sleep(20 * time.Millisecond)
	if d.Get() != 1 {
		t.Fatal("expected the original item first")
	}
	d.Get()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("blocked producer failed: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("blocked producer was not released")
		}
	}
}

// TestDequeConcurrentProducersConsumers checks the capacity bound under load.
func TestDequeConcurrentProducersConsumers(t *testing.T) {
	const (
		capacity  = 4
		producers = 8
		perWorker = 250
	)

	d := deque.New[int](capacity)

	var wg sync.WaitGroup
	var received atomic.Int64
	var sum atomic.Int64

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if i%3 == 0 {
					d.PutLeft(1)
				} else {
					d.Put(1)
				}
				if n := d.Len(); n > capacity {
					t.Errorf("Len() = %d exceeds capacity %d", n, capacity)
				}
			}
		}(p)
	}

	var consumers sync.WaitGroup
	for c := 0; c < 4; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for received.Load() < producers*perWorker {
				v, err := d.GetTimeout(10 * time.Millisecond)
				if errors.Is(err, deque.ErrEmpty) {
					continue
				}
				if err != nil {
					t.Errorf("GetTimeout failed: %v", err)
					return
				}
				sum.Add(int64(v))
				received.Add(1)
			}
		}()
	}

	wg.Wait()
	consumers.Wait()

	if got := sum.Load(); got != producers*perWorker {
		t.Errorf("received sum = %d, want %d", got, producers*perWorker)
	}

	stats := d.Stats()
	if stats.TotalAdded != producers*perWorker || stats.TotalRemoved != producers*perWorker {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.PeakSize > capacity {
		t.Errorf("PeakSize = %d exceeds capacity %d", stats.PeakSize, capacity)
	}
	if stats.CurrentSize != 0 {
		t.Errorf("CurrentSize = %d, want 0", stats.CurrentSize)
	}
}
