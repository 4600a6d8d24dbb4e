package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fucheng830/chatgpt-on-wechat/internal/config"
	"github.com/fucheng830/chatgpt-on-wechat/internal/schedule"
	"github.com/fucheng830/chatgpt-on-wechat/internal/session"
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"})
	urgentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
)

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Short:   "List scheduled jobs in run order",
	Long:    paragraph(fmt.Sprintf("\n%s the jobs in the configured jobs file, soonest first.", keyword("List"))),
	Example: paragraph("bridge jobs\nbridge jobs --jobs ~/jobs.yml --reverse"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		path := cfg.Schedule.JobsFile
		if cmd.Flags().Changed("jobs") {
			p, _ := cmd.Flags().GetString("jobs")
			if path, err = config.ExpandPath(p); err != nil {
				return err
			}
		}
		if path == "" {
			return errors.New("no jobs file configured: use --jobs or set schedule.jobs_file")
		}

		reverse := cfg.Schedule.Reverse
		if cmd.Flags().Changed("reverse") {
			reverse, _ = cmd.Flags().GetBool("reverse")
		}

		jobs, err := schedule.LoadJobs(path, time.Now())
		if err != nil {
			return err
		}
		sched, err := schedule.NewScheduler(reverse, jobs...)
		if err != nil {
			return err
		}

		printJobs(sched.Jobs())
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Short:   "List the sessions in the saved snapshot",
	Long:    paragraph(fmt.Sprintf("\n%s the sessions saved by the last run.", keyword("Show"))),
	Example: paragraph("bridge sessions"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Session.SnapshotPath == "" {
			return errors.New("no snapshot path configured: set session.snapshot_path")
		}

		// No sweep: this manager only lives for the listing.
		sessCfg := cfg.Session
		sessCfg.CleanupInterval = 0
		sessions := session.NewManager(sessCfg)
		defer sessions.Close() //nolint:errcheck

		if _, err := sessions.LoadSnapshot(cfg.Session.SnapshotPath); err != nil {
			return err
		}

		for _, id := range sessions.IDs() {
			s, ok := sessions.Lookup(id)
			if !ok {
				continue
			}
			fmt.Printf("%s  %s\n", keyword(s.ID),
				dimStyle.Render(fmt.Sprintf("%d messages, active %s", len(s.Messages), humanize.Time(s.Updated))))
		}
		return nil
	},
}

func printJobs(jobs []schedule.Job) {
	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))

	for _, j := range jobs {
		when := humanize.Time(j.At)
		if j.Recurring() {
			when += ", every " + j.Every.String()
		}

		id := j.ID
		if isTerminal {
			id = keyword(id)
			when = dimStyle.Render(when)
		}

		line := fmt.Sprintf("%s  %s  %s: %s", id, when, j.Session, j.Message)
		if j.Urgent {
			if isTerminal {
				line += " " + urgentStyle.Render("urgent")
			} else {
				line += " (urgent)"
			}
		}
		fmt.Println(line)
	}
}
