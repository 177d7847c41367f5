package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/radiocal/pkg/calibration"
	"github.com/charlie0129/radiocal/pkg/events"
)

func NewCalibrationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibration",
		Aliases: []string{"calibrate", "cal"},
		Short:   "Run a calibration session on the daemon",
		Long:    "Start, monitor and cancel a calibration session run by the daemon.",
		GroupID: gBasic,
	}

	var watch bool
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a calibration session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := apiClient.StartCalibration()
			if err != nil {
				return err
			}
			cmd.Printf("Calibration started (%s).\n", job)
			if watch {
				return watchJob(cmd, job)
			}
			return nil
		},
	}
	startCmd.Flags().BoolVarP(&watch, "watch", "w", false, "follow the session until it finishes")

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running calibration or sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := apiClient.CancelJob(); err != nil {
				return fmt.Errorf("failed to cancel: %w", err)
			}
			cmd.Println("Cancellation requested. The module is finalized and its settings restored.")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current calibration status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return err
			}
			printRunStatus(cmd, st)
			return nil
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the running job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return err
			}
			return watchJob(cmd, st.Job)
		},
	}

	cmd.AddCommand(startCmd, cancelCmd, statusCmd, watchCmd)
	return cmd
}

// watchJob prints the daemon's events until job finishes or the user interrupts.
// An empty job follows whatever runs next.
func watchJob(cmd *cobra.Command, job string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, err := apiClient.Events(ctx)
	if err != nil {
		return err
	}

	for ev := range ch {
		switch ev.Name {
		case events.SessionTransition:
			t, err := events.DecodeAs[events.TransitionEvent](ev)
			if err != nil {
				logrus.WithError(err).Warn("bad transition event")
				continue
			}
			status := good("%s", t.Status.String())
			if !t.Status.OK() {
				status = bad("%s", t.Status.String())
			}
			cmd.Printf("%-26s -> %-26s %s\n", t.From, t.To, status)
		case events.SessionRecord:
			rec, err := events.DecodeAs[events.RecordEvent](ev)
			if err != nil {
				logrus.WithError(err).Warn("bad record event")
				continue
			}
			printRecord(cmd, rec)
		case events.JobStarted:
			j, _ := events.DecodeAs[events.JobEvent](ev)
			if job == "" {
				job = j.Job
			}
			cmd.Printf("%s %s started\n", bold("%s", j.Kind), j.Job)
		case events.JobFinished:
			j, err := events.DecodeAs[events.JobEvent](ev)
			if err != nil || (job != "" && j.Job != job) {
				continue
			}
			if j.Result != nil {
				printResult(cmd, j.Result)
			}
			if j.Error != "" {
				return fmt.Errorf("%s %s failed: %s", j.Kind, j.Job, j.Error)
			}
			cmd.Printf("%s %s %s\n", bold("%s", j.Kind), j.Job, good("finished"))
			return nil
		}
	}
	return ctx.Err()
}

func printRecord(cmd *cobra.Command, rec calibration.Record) {
	label := fmt.Sprintf("ch %2d", rec.Channel)
	if rec.State != calibration.StateIdle {
		label = rec.State.String()
	}
	cmd.Printf("  %-26s temp %3d  txgc 0x%02X  txpo %s  pdout %d\n",
		label, rec.Temperature, rec.GainControl, bold("%6.2f dBm", rec.Power), rec.PDOut)
}
