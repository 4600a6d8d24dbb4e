package schedule

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the bursts of events editors produce on save.
const reloadDelay = 200 * time.Millisecond

// Watch reloads the jobs file whenever it is written or recreated and hands
// the new jobs to onChange. Files that fail to parse are logged and
// skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func([]Job)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	// Watch the directory so renames over the file are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	target := filepath.Clean(path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			jobs, err := LoadJobs(path, time.Now())
			if err != nil {
				log.Warn("jobs file reload failed", "path", path, "err", err)
				continue
			}
			log.Info("jobs file reloaded", "path", path, "jobs", len(jobs))
			onChange(jobs)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "err", err)
		}
	}
}
