package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/config"
)

const (
	noticeDuration   = time.Minute // upcoming runs are announced this long in advance
	preCheckMaxTimes = 30
	preCheckInterval = time.Second * 10
)

var cronParser = config.ScheduleParser

type NotifyFunc func(data any)

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler runs Task on a cron schedule. Before each run it announces the run
// through OnUpcoming, then waits for PreCheck to pass, retrying for a while
// before giving up on that run.
type Scheduler struct {
	OnUpcoming NotifyFunc
	OnError    NotifyFunc
	Task       TaskFunc
	PreCheck   TaskFunc

	mu       sync.Mutex
	schedule cron.Schedule
	expr     string
	nextRun  time.Time
	running  bool

	controlCh chan controlMsg
	stopCh    chan struct{}
}

type controlKind int

const (
	ctrlRecalculate controlKind = iota // schedule changed
	ctrlPostpone                       // next run moved later
	ctrlSkip                           // next run dropped
)

type controlMsg struct {
	kind controlKind
	data any
}

func NewScheduler(task, preCheck TaskFunc, onUpcoming, onError NotifyFunc) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		OnUpcoming: onUpcoming,
		OnError:    onError,
		Task:       task,
		PreCheck:   preCheck,
		controlCh:  make(chan controlMsg, 4),
		stopCh:     make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	select {
	case <-s.stopCh:
		s.stopCh = make(chan struct{})
	default:
	}
	s.running = true
	go s.loop(s.stopCh)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Schedule replaces the cron expression. An empty expression clears the schedule.
func (s *Scheduler) Schedule(expr string) error {
	var sh cron.Schedule
	if expr != "" {
		var err error
		if sh, err = cronParser.Parse(expr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
	}

	s.mu.Lock()
	s.expr = expr
	running := s.running
	if !running {
		s.setScheduleLocked(sh)
	}
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlRecalculate, sh)
	}
	return nil
}

func (s *Scheduler) setScheduleLocked(sh cron.Schedule) {
	s.schedule = sh
	if sh == nil {
		s.nextRun = time.Time{}
		return
	}
	s.nextRun = sh.Next(time.Now())
}

// Postpone moves the next run later by d. It may not move past the run after it.
func (s *Scheduler) Postpone(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("postpone duration must be positive")
	}

	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() || !s.running {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to postpone")
	}
	orig := s.nextRun
	following := s.schedule.Next(orig).Truncate(time.Second)
	s.mu.Unlock()

	pp := orig.Add(d).Truncate(time.Second)
	if !pp.Before(following) {
		return fmt.Errorf("cannot postpone past the following run at %s", following.Format(time.DateTime))
	}

	s.mu.Lock()
	s.nextRun = pp
	s.mu.Unlock()
	s.trySendControl(ctrlPostpone, pp)
	return nil
}

// Skip drops the next run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlSkip, nil)
	}
	return nil
}

// Status returns the next run, zero when nothing is scheduled, and whether the
// scheduler loop is running.
func (s *Scheduler) Status() (nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun, s.running
}

// NextRun is Status without the running flag.
func (s *Scheduler) NextRun() time.Time {
	next, _ := s.Status()
	return next
}

// Expr returns the current cron expression.
func (s *Scheduler) Expr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr
}

// NextRuns returns up to n upcoming run times of the current schedule.
func (s *Scheduler) NextRuns(n int) []time.Time {
	s.mu.Lock()
	sh, next := s.schedule, s.nextRun
	s.mu.Unlock()

	if sh == nil || next.IsZero() {
		return nil
	}
	runs := []time.Time{next}
	for len(runs) < n {
		next = sh.Next(next)
		runs = append(runs, next)
	}
	return runs
}

func (s *Scheduler) loop(stopCh chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	for {
		announced := false
		attempts := 0
		var lastPreCheckErr error

		schedule, nextRun := s.snapshot()
		timer := time.NewTimer(s.initialWait(schedule, nextRun))

	wait:
		for {
			select {
			case <-stopCh:
				timer.Stop()
				return

			case msg := <-s.controlCh:
				logrus.WithFields(logrus.Fields{"kind": msg.kind, "data": msg.data}).Debug("scheduler control message")
				switch msg.kind {
				case ctrlRecalculate:
					sh, _ := msg.data.(cron.Schedule)
					s.mu.Lock()
					s.setScheduleLocked(sh)
					s.mu.Unlock()
				case ctrlPostpone:
					nextRun = msg.data.(time.Time)
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					announced = false
					timer.Reset(waitUntil(nextRun.Add(-noticeDuration)))
					continue
				}
				timer.Stop()
				break wait

			case <-timer.C:
				if schedule == nil || nextRun.IsZero() {
					break wait
				}

				if !announced {
					announced = true
					logrus.WithField("at", nextRun.Format(time.DateTime)).Debug("upcoming scheduled sweep")
					s.notify(s.OnUpcoming, nextRun)
					timer.Reset(waitUntil(nextRun))
					continue
				}

				if s.PreCheck != nil {
					if err := s.PreCheck(); err != nil {
						if lastPreCheckErr == nil || err.Error() != lastPreCheckErr.Error() {
							lastPreCheckErr = err
							s.notify(s.OnError, fmt.Errorf("precheck failed: %w", err))
						}
						attempts++
						if attempts <= preCheckMaxTimes {
							logrus.Debugf("precheck failed (%d/%d): %v; retrying in %s", attempts, preCheckMaxTimes, err, preCheckInterval)
							timer.Reset(preCheckInterval)
							continue
						}
						s.advance()
						break wait
					}
				}

				logrus.WithField("at", nextRun.Format(time.DateTime)).Info("running scheduled sweep")
				go func() {
					if err := s.Task(); err != nil {
						s.notify(s.OnError, fmt.Errorf("task failed: %w", err))
					}
				}()
				s.advance()
				break wait
			}
		}
	}
}

func (s *Scheduler) initialWait(schedule cron.Schedule, nextRun time.Time) time.Duration {
	if schedule == nil || nextRun.IsZero() {
		return time.Hour * 10000
	}
	return waitUntil(nextRun.Add(-noticeDuration))
}

func waitUntil(t time.Time) time.Duration {
	if d := time.Until(t); d > 0 {
		return d
	}
	return 0
}

func (s *Scheduler) snapshot() (cron.Schedule, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule, s.nextRun
}

func (s *Scheduler) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return
	}
	s.nextRun = s.schedule.Next(time.Now())
}

func (s *Scheduler) notify(fn NotifyFunc, data any) {
	if fn == nil {
		return
	}
	go fn(data)
}

func (s *Scheduler) trySendControl(kind controlKind, data any) {
	select {
	case s.controlCh <- controlMsg{kind: kind, data: data}:
	default:
	}
}
