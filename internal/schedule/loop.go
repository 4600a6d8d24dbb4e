package schedule

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Loop moves due jobs from the scheduler to the dispatcher every tick until
// ctx is done. A job the dispatcher cannot accept is retried on the next
// tick.
func Loop(ctx context.Context, sched *Scheduler, disp *Dispatcher, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			Pump(ctx, sched, disp, now)
		}
	}
}

// Pump submits every job due at now and returns how many were queued. Jobs
// that were not queued, including those left over when ctx is done, go
// back to the scheduler unchanged.
func Pump(ctx context.Context, sched *Scheduler, disp *Dispatcher, now time.Time) int {
	due := sched.Due(now)

	queued := 0
	for i, job := range due {
		if ctx.Err() != nil {
			restore(sched, due[i:])
			break
		}

		if err := disp.Submit(ctx, job); err != nil {
			log.Warn("job not queued, retrying next tick", "job", job.ID, "err", err)
			restore(sched, due[i:i+1])
			continue
		}
		queued++
	}
	return queued
}

// restore puts jobs back as they were before Due took them. This
// overwrites the rescheduled copy of a recurring job.
func restore(sched *Scheduler, jobs []Job) {
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			log.Error("failed to requeue job", "job", job.ID, "err", err)
		}
	}
}
