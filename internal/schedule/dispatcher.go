package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/fucheng830/chatgpt-on-wechat/internal/config"
	"github.com/fucheng830/chatgpt-on-wechat/internal/deque"
)

// ErrQueueFull is returned when a job cannot be queued in time.
var ErrQueueFull = errors.New("dispatch queue full")

// pollInterval bounds how long an idle worker waits before checking for
// cancellation.
const pollInterval = 100 * time.Millisecond

// Handler processes one job.
type Handler func(ctx context.Context, job Job) error

// DispatchStats holds dispatcher counters.
type DispatchStats struct {
	Queue     deque.Stats
	Handled   int64
	Failed    int64
	Rejected  int64
	LastError string
}

// Dispatcher queues due jobs and runs them on a worker pool.
type Dispatcher struct {
	queue         *deque.Deque[Job]
	workers       int
	submitTimeout time.Duration
	limiter       *rate.Limiter

	mu    sync.Mutex
	stats DispatchStats
}

// NewDispatcher creates a dispatcher from cfg.
func NewDispatcher(cfg config.DispatchConfig) *Dispatcher {
	d := &Dispatcher{
		queue:         deque.New[Job](cfg.QueueCapacity),
		workers:       max(cfg.Workers, 1),
		submitTimeout: cfg.SubmitTimeout,
	}

	if cfg.RequestsPerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return d
}

// Submit queues a job. Urgent jobs go to the front of the queue. When the
// queue is full Submit waits up to the configured timeout, giving up early
// with ctx's error once ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	put := d.queue.PutTimeout
	if job.Urgent {
		put = d.queue.PutLeftTimeout
	}

	deadline := time.Now().Add(d.submitTimeout)
	for {
		wait := min(time.Until(deadline), pollInterval)
		err := put(job, max(wait, 0))
		if err == nil {
			return nil
		}
		if !errors.Is(err, deque.ErrFull) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if wait <= 0 {
			break
		}
	}

	d.reject()
	return fmt.Errorf("%w: job %s", ErrQueueFull, job.ID)
}

func (d *Dispatcher) reject() {
	d.mu.Lock()
	d.stats.Rejected++
	d.mu.Unlock()
}

// Drain waits up to timeout for every queued job to be handled and
// reports whether the queue emptied in time. Workers must still be running.
func (d *Dispatcher) Drain(timeout time.Duration) bool {
	ok, err := d.queue.JoinTimeout(timeout)
	return ok && err == nil
}

// Pending returns the number of queued jobs.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Stats returns dispatcher statistics.
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := d.stats
	stats.Queue = d.queue.Stats()
	return stats
}

// Run starts the workers and blocks until ctx is done and every worker has
// returned. Jobs still queued at that point stay queued.
func (d *Dispatcher) Run(ctx context.Context, handle Handler) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.work(ctx, id, handle)
		}(i)
	}
	wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, id int, handle Handler) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := d.queue.GetTimeout(pollInterval)
		if errors.Is(err, deque.ErrEmpty) {
			continue
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				d.requeue(job)
				return
			}
		}

		err = handle(ctx, job)

		d.mu.Lock()
		if err != nil {
			d.stats.Failed++
			d.stats.LastError = err.Error()
		} else {
			d.stats.Handled++
		}
		d.mu.Unlock()
		_ = d.queue.Done()

		if err != nil {
			log.Warn("job failed", "worker", id, "job", job.ID, "session", job.Session, "err", err)
		} else {
			log.Debug("job handled", "worker", id, "job", job.ID, "session", job.Session)
		}
	}
}

// requeue puts back a job taken by a worker that was cancelled before
// handling it.
func (d *Dispatcher) requeue(job Job) {
	if err := d.queue.PutLeftNowait(job); err != nil {
		d.reject()
		log.Warn("job dropped on shutdown", "job", job.ID, "session", job.Session, "err", err)
	}
	// The job was counted again by the insert above, or is gone for good.
	_ = d.queue.Done()
}
