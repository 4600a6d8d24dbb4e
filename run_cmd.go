package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/fucheng830/chatgpt-on-wechat/internal/config"
	"github.com/fucheng830/chatgpt-on-wechat/internal/schedule"
	"github.com/fucheng830/chatgpt-on-wechat/internal/session"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run the bridge until interrupted",
	Long:    paragraph(fmt.Sprintf("\n%s sessions and deliver scheduled jobs until interrupted. Sessions are saved on exit when a snapshot path is configured.", keyword("Keep"))),
	Example: paragraph("bridge run\nbridge run --jobs ~/jobs.yml --watch"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		closer, err := setupLog(cfg.Log)
		if err != nil {
			return err
		}
		defer closer() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runBridge(ctx, cfg)
	},
}

// runBridge builds the session manager, scheduler and dispatcher for one
// process and runs them until ctx is done.
func runBridge(ctx context.Context, cfg config.Config) error {
	sessions := session.NewManager(cfg.Session)
	defer sessions.Close() //nolint:errcheck

	if cfg.Session.SnapshotPath != "" {
		n, err := sessions.LoadSnapshot(cfg.Session.SnapshotPath)
		if err != nil {
			log.Warn("Could not restore sessions", "path", cfg.Session.SnapshotPath, "err", err)
		} else if n > 0 {
			log.Info("Restored sessions", "count", n)
		}
	}

	var jobs []schedule.Job
	if cfg.Schedule.JobsFile != "" {
		var err error
		jobs, err = schedule.LoadJobs(cfg.Schedule.JobsFile, time.Now())
		if err != nil {
			return err
		}
	}

	sched, err := schedule.NewScheduler(cfg.Schedule.Reverse, jobs...)
	if err != nil {
		return err
	}
	disp := schedule.NewDispatcher(cfg.Dispatch)

	log.Info("Bridge started",
		"jobs", sched.Len(),
		"workers", cfg.Dispatch.Workers,
		"queue", cfg.Dispatch.QueueCapacity,
		"session_ttl", cfg.Session.TTL)

	// Workers outlive ctx so queued jobs can drain before the snapshot.
	workCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		disp.Run(workCtx, deliver(sessions))
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		schedule.Loop(ctx, sched, disp, cfg.Schedule.Tick)
	}()

	if cfg.Schedule.Watch && cfg.Schedule.JobsFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := schedule.Watch(ctx, cfg.Schedule.JobsFile, func(jobs []schedule.Job) {
				if err := sched.Replace(jobs); err != nil {
					log.Error("Could not apply reloaded jobs", "err", err)
				}
			})
			if err != nil {
				log.Error("Jobs file watcher stopped", "err", err)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()

	if cfg.Dispatch.DrainTimeout > 0 && !disp.Drain(cfg.Dispatch.DrainTimeout) {
		log.Warn("Queue not drained before shutdown", "pending", disp.Pending())
	}
	stopWorkers()
	<-workersDone

	stats := disp.Stats()
	log.Info("Bridge stopping",
		"handled", stats.Handled,
		"failed", stats.Failed,
		"rejected", stats.Rejected,
		"pending", disp.Pending(),
		"sessions", sessions.Stats().Live)

	if cfg.Session.SnapshotPath != "" {
		if err := sessions.SaveSnapshot(cfg.Session.SnapshotPath, cfg.Session.CompressionLevel); err != nil {
			return fmt.Errorf("unable to save sessions: %w", err)
		}
	}

	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// deliver returns a job handler that records each scheduled message in its
// session.
func deliver(sessions *session.Manager) schedule.Handler {
	return func(_ context.Context, job schedule.Job) error {
		s := sessions.Append(job.Session, session.RoleUser, job.Message)
		log.Info("Delivered scheduled message",
			"job", job.ID,
			"session", job.Session,
			"messages", len(s.Messages))
		return nil
	}
}
