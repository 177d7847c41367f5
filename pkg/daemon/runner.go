package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/bench"
	"github.com/charlie0129/radiocal/pkg/calibration"
	"github.com/charlie0129/radiocal/pkg/config"
	"github.com/charlie0129/radiocal/pkg/events"
	"github.com/charlie0129/radiocal/pkg/report"
	"github.com/charlie0129/radiocal/pkg/sweep"
)

var (
	// ErrBusy is returned when a job is requested while another one runs.
	ErrBusy = errors.New("a calibration or sweep is already running")
	// ErrNoJob is returned when cancelling with nothing running.
	ErrNoJob = errors.New("no job running")
)

const (
	JobCalibration = "calibration"
	JobSweep       = "sweep"
)

type jobFunc func(ctx context.Context, b *bench.Bench, sink report.Sink, obs bench.Observer) (*calibration.Result, error)

// Runner runs one calibration or sweep at a time in the background and keeps
// the status and recent records for the API.
type Runner struct {
	conf    config.Config
	open    bench.Opener
	hub     *events.EventHub
	records *recordRing

	mu     sync.Mutex
	status calibration.RunStatus
	cancel context.CancelFunc
	done   chan struct{}
	seq    int
	// nextScheduled reports the next scheduled sweep for the status view.
	nextScheduled func() time.Time
}

func NewRunner(c config.Config, open bench.Opener, hub *events.EventHub) *Runner {
	if open == nil {
		open = bench.Open
	}
	return &Runner{
		conf:    c,
		open:    open,
		hub:     hub,
		records: newRecordRing(defaultRecordCapacity),
		status:  calibration.RunStatus{Phase: calibration.PhaseIdle},
	}
}

// StartCalibration starts a calibration session and returns its job ID.
func (r *Runner) StartCalibration() (string, error) {
	return r.start(JobCalibration, calibration.PhaseCalibrating,
		func(ctx context.Context, b *bench.Bench, sink report.Sink, obs bench.Observer) (*calibration.Result, error) {
			return b.Calibrate(ctx, sink, obs)
		})
}

// StartSweep starts a sweep and returns its job ID.
func (r *Runner) StartSweep(opts sweep.Options) (string, error) {
	opts = opts.WithDefaults()
	return r.start(JobSweep, calibration.PhaseSweeping,
		func(ctx context.Context, b *bench.Bench, sink report.Sink, obs bench.Observer) (*calibration.Result, error) {
			_, err := b.Sweep(ctx, opts, sink, obs)
			return nil, err
		})
}

func (r *Runner) start(kind string, phase calibration.Phase, fn jobFunc) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		return "", ErrBusy
	}

	r.seq++
	job := fmt.Sprintf("%s-%d-%d", kind, time.Now().Unix(), r.seq)

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.status.Phase = phase
	r.status.Job = job
	r.status.State = calibration.StateIdle
	r.status.StartedAt = time.Now()
	r.status.LastError = ""

	r.hub.Publish(events.JobStarted, events.JobEvent{Job: job, Kind: kind, Ts: time.Now().Unix()})
	logrus.WithFields(logrus.Fields{"job": job, "kind": kind}).Info("job started")

	go r.run(ctx, job, kind, fn, r.done)
	return job, nil
}

func (r *Runner) run(ctx context.Context, job, kind string, fn jobFunc, done chan struct{}) {
	defer close(done)

	res, err := r.execute(ctx, kind, fn)

	ev := events.JobEvent{Job: job, Kind: kind, Result: res, Ts: time.Now().Unix()}

	r.mu.Lock()
	r.cancel()
	r.cancel = nil
	r.done = nil
	r.status.Phase = calibration.PhaseIdle
	if res != nil {
		r.status.Last = res
	}
	if err != nil {
		r.status.Phase = calibration.PhaseError
		r.status.LastError = err.Error()
		ev.Error = err.Error()
	}
	r.mu.Unlock()

	logger := logrus.WithFields(logrus.Fields{"job": job, "kind": kind})
	if err != nil {
		logger.WithError(err).Error("job failed")
	} else {
		logger.Info("job finished")
	}
	r.hub.Publish(events.JobFinished, ev)
}

func (r *Runner) execute(ctx context.Context, kind string, fn jobFunc) (*calibration.Result, error) {
	b, err := r.open(ctx, r.conf)
	if err != nil {
		return nil, fmt.Errorf("failed to open bench: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close bench")
		}
	}()

	sink, err := bench.OpenSinks(r.conf, kind, b.MAC(ctx))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close record sinks")
		}
	}()

	return fn(ctx, b, sink, r)
}

// Cancel stops the running job. The job winds down in the background.
func (r *Runner) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return ErrNoJob
	}
	r.cancel()
	return nil
}

// Wait blocks until no job is running.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Busy reports whether a job is running. It doubles as the scheduler's pre-check.
func (r *Runner) Busy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return ErrBusy
	}
	return nil
}

func (r *Runner) Status() calibration.RunStatus {
	r.mu.Lock()
	st := r.status
	next := r.nextScheduled
	r.mu.Unlock()

	st.Records = r.records.count()
	if next != nil {
		st.ScheduledAt = next()
	}
	return st
}

// Records returns up to n of the most recent records, oldest first.
func (r *Runner) Records(n int) []calibration.Record {
	return r.records.last(n)
}

func (r *Runner) OnTransition(from, to calibration.State, status calibration.Status) {
	r.mu.Lock()
	r.status.State = to
	r.mu.Unlock()

	r.hub.Publish(events.SessionTransition, events.TransitionEvent{
		From:   from,
		To:     to,
		Status: status,
		Ts:     time.Now().Unix(),
	})
}

func (r *Runner) OnRecord(rec calibration.Record) {
	r.records.add(rec)
	r.hub.Publish(events.SessionRecord, rec)
}
