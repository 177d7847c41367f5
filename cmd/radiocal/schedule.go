package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sched"},
		Short:   "Manage the automatic sweep schedule",
		Long: `Manage the automatic sweep schedule.

The schedule command can be used in multiple ways:
  radiocal schedule 'minute hour day month weekday' Set schedule with cron expression
  radiocal schedule disable                         Disable the schedule
  radiocal schedule postpone [duration]             Postpone next run
  radiocal schedule skip                            Skip next run
  radiocal schedule show                            Show current schedule`,
		Example: `  radiocal schedule '0 3 * * *'    (At 03:00 every day)
  radiocal schedule '0 */6 * * *'  (Every six hours)
  radiocal schedule '@every 90m'   (Every 90 minutes)`,
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			return runScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		newScheduleDisableCommand(),
		newSchedulePostponeCommand(),
		newScheduleSkipCommand(),
		newScheduleShowCommand(),
	)

	return cmd
}

func newScheduleDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the sweep schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleDisable(cmd)
		},
	}
}

func newSchedulePostponeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled sweep",
		Example: `  radiocal schedule postpone      (Postpone by 1 hour)
  radiocal schedule postpone 90m  (Postpone by 90 minutes)`,
		Long: `Postpone the next scheduled sweep by a duration, 1 hour if none is given.
The sweep cannot be postponed past the run that follows it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := time.Hour
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}
			return runSchedulePostpone(cmd, d)
		},
	}
}

func newScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the next scheduled sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleSkip(cmd)
		},
	}
}

func newScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the sweep schedule and its next runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleShow(cmd)
		},
	}
}

func runScheduleSet(cmd *cobra.Command, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	nextRuns, err := apiClient.SetSchedule(cronExpr)
	if err != nil {
		return err
	}
	cmd.Printf("Sweep scheduled. Next %d run(s):\n", len(nextRuns))
	for _, run := range nextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
	return nil
}

func runScheduleDisable(cmd *cobra.Command) error {
	if _, err := apiClient.SetSchedule(""); err != nil {
		return err
	}
	cmd.Println("Sweep schedule disabled.")
	return nil
}

func runSchedulePostpone(cmd *cobra.Command, duration time.Duration) error {
	next, err := apiClient.PostponeSchedule(duration)
	if err != nil {
		return err
	}
	cmd.Printf("Next sweep postponed by %s, now at %s.\n", duration, next.Local().Format(time.DateTime))
	return nil
}

func runScheduleSkip(cmd *cobra.Command) error {
	next, err := apiClient.SkipSchedule()
	if err != nil {
		return err
	}
	cmd.Printf("Next scheduled sweep skipped. The one after runs at %s.\n", next.Local().Format(time.DateTime))
	return nil
}

func runScheduleShow(cmd *cobra.Command) error {
	s, err := apiClient.GetSchedule()
	if err != nil {
		return err
	}
	if s.Cron == "" {
		cmd.Println("Sweep schedule is not set.")
		return nil
	}
	cmd.Printf("Schedule: %s\n", bold("%s", s.Cron))
	cmd.Printf("Next %d run(s):\n", len(s.NextRuns))
	for _, run := range s.NextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
	return nil
}
