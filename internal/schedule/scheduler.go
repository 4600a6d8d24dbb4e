package schedule

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fucheng830/chatgpt-on-wechat/internal/ordered"
)

// ErrJobNotFound is returned when removing a job that is not scheduled.
var ErrJobNotFound = errors.New("job not found")

// nextRun orders jobs by their next run time.
func nextRun(j Job) int64 {
	return j.At.UnixNano()
}

// Scheduler holds pending jobs keyed by ID. It is safe for concurrent use.
type Scheduler struct {
	mu   sync.Mutex
	jobs *ordered.Map[string, Job, int64]
}

// NewScheduler creates a scheduler. Listing is latest-first when reverse is
// set; due jobs are always taken earliest-first.
func NewScheduler(reverse bool, jobs ...Job) (*Scheduler, error) {
	m, err := ordered.New(ordered.ByValue[string, Job](nextRun), reverse)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{jobs: m}
	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add schedules a job, replacing any job with the same ID.
func (s *Scheduler) Add(job Job) error {
	if job.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidJob)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.jobs.Set(job.ID, job)
}

// Remove unschedules the job with the given ID.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.jobs.Delete(id); err != nil {
		if errors.Is(err, ordered.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return err
	}
	return nil
}

// Get returns the job with the given ID.
func (s *Scheduler) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.jobs.Get(id)
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.jobs.Len()
}

// Next returns the job that runs soonest.
func (s *Scheduler) Next() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs.Peek()
	return e.Value, ok
}

// Jobs returns every scheduled job in listing order.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.jobs.Items()
	jobs := make([]Job, len(items))
	for i, item := range items {
		jobs[i] = item.Value
	}
	return jobs
}

// Due removes and returns the jobs whose run time is at or before now,
// earliest first. Recurring jobs are rescheduled one interval after their
// run time, skipping intervals that were missed entirely.
func (s *Scheduler) Due(now time.Time) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Job
	var again []Job
	for {
		e, ok := s.jobs.Peek()
		if !ok || e.Value.At.After(now) {
			break
		}

		job := e.Value
		due = append(due, job)

		if !job.Recurring() {
			_ = s.jobs.Delete(job.ID)
			continue
		}

		next := job
		next.At = job.At.Add(job.Every)
		if !next.At.After(now) {
			missed := now.Sub(job.At) / job.Every
			next.At = job.At.Add((missed + 1) * job.Every)
		}
		// Rescheduled jobs are set aside so the loop terminates.
		_ = s.jobs.Delete(job.ID)
		again = append(again, next)
	}

	for _, job := range again {
		if err := s.jobs.Set(job.ID, job); err != nil {
			log.Error("failed to reschedule job", "id", job.ID, "err", err)
		}
	}

	return due
}

// Replace swaps the scheduled jobs for jobs, as after a jobs file reload.
func (s *Scheduler) Replace(jobs []Job) error {
	m, err := ordered.New(ordered.ByValue[string, Job](nextRun), s.reverse())
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := m.Set(j.ID, j); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.jobs = m
	s.mu.Unlock()

	return nil
}

func (s *Scheduler) reverse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.jobs.Reverse()
}
