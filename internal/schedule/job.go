// Package schedule runs timed messages against conversations. Jobs wait in
// a priority map ordered by their next run time, and due jobs are handed to
// a bounded dispatch queue drained by a pool of workers.
package schedule

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrInvalidJob is returned for jobs that can never run.
var ErrInvalidJob = errors.New("invalid job")

// Job is a message delivered to a session at a point in time, optionally
// repeating.
type Job struct {
	ID      string
	Session string
	Message string

	// At is the next run time.
	At time.Time

	// Every repeats the job after each run; zero runs it once.
	Every time.Duration

	// Urgent jobs jump ahead of queued work when dispatched.
	Urgent bool
}

// Recurring reports whether the job repeats.
func (j Job) Recurring() bool {
	return j.Every > 0
}

// Validate checks the job and fills in defaults.
func (j *Job) Validate(now time.Time) error {
	if strings.TrimSpace(j.Session) == "" {
		return fmt.Errorf("%w: session is required", ErrInvalidJob)
	}
	if strings.TrimSpace(j.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidJob)
	}
	if j.Every < 0 {
		return fmt.Errorf("%w: every cannot be negative, got %s", ErrInvalidJob, j.Every)
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.At.IsZero() {
		j.At = now.Add(j.Every)
	}
	return nil
}

// jobFile is the yaml layout of a jobs file.
type jobFile struct {
	Jobs []jobSpec `yaml:"jobs"`
}

type jobSpec struct {
	ID      string        `yaml:"id"`
	Session string        `yaml:"session"`
	Message string        `yaml:"message"`
	At      string        `yaml:"at"`
	Every   time.Duration `yaml:"every"`
	Urgent  bool          `yaml:"urgent"`
}

// LoadJobs reads jobs from a yaml file. Times are RFC 3339; a job without
// one first runs one interval after now.
func LoadJobs(path string, now time.Time) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}
	return ParseJobs(data, now)
}

// ParseJobs decodes a yaml jobs document.
func ParseJobs(data []byte, now time.Time) ([]Job, error) {
	var file jobFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse jobs: %w", err)
	}

	jobs := make([]Job, 0, len(file.Jobs))
	seen := make(map[string]struct{}, len(file.Jobs))
	for i, spec := range file.Jobs {
		job := Job{
			ID:      spec.ID,
			Session: spec.Session,
			Message: spec.Message,
			Every:   spec.Every,
			Urgent:  spec.Urgent,
		}
		if spec.At != "" {
			at, err := time.Parse(time.RFC3339, spec.At)
			if err != nil {
				return nil, fmt.Errorf("job %d: %w: bad time %q", i, ErrInvalidJob, spec.At)
			}
			job.At = at
		}
		if err := job.Validate(now); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		if _, dup := seen[job.ID]; dup {
			return nil, fmt.Errorf("job %d: %w: duplicate id %q", i, ErrInvalidJob, job.ID)
		}
		seen[job.ID] = struct{}{}
		jobs = append(jobs, job)
	}

	return jobs, nil
}
