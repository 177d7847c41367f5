package daemon

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/events"
	"github.com/charlie0129/radiocal/pkg/sweep"
)

// Schedule actions published on the event stream.
const (
	actionSchedule         = "schedule"
	actionScheduleDisable  = "schedule-disable"
	actionSchedulePostpone = "schedule-postpone"
	actionScheduleSkip     = "schedule-skip"
	actionUpcoming         = "upcoming"
	actionError            = "error"
)

func newSweepScheduler(r *Runner) *Scheduler {
	return NewScheduler(
		func() error {
			_, err := r.StartSweep(scheduledSweepOptions())
			return err
		},
		r.Busy,
		func(data any) {
			at, _ := data.(time.Time)
			publishScheduleAction(actionUpcoming, fmt.Sprintf("Sweep starts at %s", at.Format("Jan _2 15:04")))
		},
		func(data any) {
			logrus.WithField("error", data).Error("scheduled sweep failed")
			publishScheduleAction(actionError, fmt.Sprint(data))
		},
	)
}

func scheduledSweepOptions() sweep.Options {
	return sweep.Options{
		Mode:     sweep.ModeTxpo,
		Channels: conf.SweepChannels(),
		Delay:    conf.PDOutDelay(),
		Samples:  []int{conf.PDOutSamples()},
	}
}

func publishScheduleAction(action, msg string) {
	sseHub.Publish(events.ScheduleAction, events.ScheduleActionEvent{
		Action:  action,
		Message: msg,
		Ts:      time.Now().Unix(),
	})
}

// setSchedule sets the cron expression for scheduled sweeps, persists it and
// returns the next run times. An empty expression disables scheduling.
func setSchedule(cronExpr string) ([]time.Time, error) {
	if cronExpr == "" {
		if conf.SweepSchedule() == "" {
			return nil, nil
		}
		if err := scheduler.Schedule(""); err != nil {
			return nil, err
		}
		conf.SetSweepSchedule("")
		if err := conf.Save(); err != nil {
			logrus.WithError(err).Error("failed to save config")
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
		publishScheduleAction(actionScheduleDisable, "Sweep schedule disabled")
		return nil, nil
	}

	if err := scheduler.Schedule(cronExpr); err != nil {
		return nil, err
	}
	conf.SetSweepSchedule(cronExpr)
	if err := conf.Save(); err != nil {
		logrus.WithError(err).Error("failed to save config")
		return nil, fmt.Errorf("failed to save config: %w", err)
	}
	scheduler.Start()

	// The running loop picks the new schedule up asynchronously, so compute the
	// preview from the expression itself.
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return nil, err
	}
	var nextRuns []time.Time
	t := time.Now()
	for range 3 {
		t = sched.Next(t)
		nextRuns = append(nextRuns, t)
	}

	publishScheduleAction(actionSchedule, fmt.Sprintf("Sweep scheduled at %s", nextRuns[0].Format("Jan _2 15:04")))
	return nextRuns, nil
}

func postpone(d time.Duration) error {
	if err := scheduler.Postpone(d); err != nil {
		logrus.WithError(err).Error("failed to postpone sweep")
		return err
	}
	publishScheduleAction(actionSchedulePostpone, fmt.Sprintf("Sweep postponed for %s", d))
	return nil
}

func skipNextSchedule() error {
	if err := scheduler.Skip(); err != nil {
		logrus.WithError(err).Error("failed to skip next scheduled sweep")
		return err
	}
	publishScheduleAction(actionScheduleSkip, "Next sweep skipped")
	return nil
}
