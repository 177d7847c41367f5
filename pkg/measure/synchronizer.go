// Package measure runs one transmit/measure round: a transmitter goroutine keeps
// the module on air for one burst while a sampler goroutine reads the power meter
// back to back for as long as the burst lasts.
package measure

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/sample"
)

const (
	DefaultPacketCount = 5000
	DefaultReadTimeout = 10 * time.Second
)

// Transmitter puts the module on air. TransmitBurst blocks for the whole burst.
type Transmitter interface {
	TransmitBurst(ctx context.Context, packets int) error
}

// Meter is the power meter. Query returns one raw reading, Reset puts the meter
// back into free-running mode.
type Meter interface {
	Query(ctx context.Context) (string, error)
	Reset(ctx context.Context) error
}

// Outcome is what one round produced.
type Outcome struct {
	// Samples holds the raw replies in arrival order.
	Samples     []string
	ReadErrors  int
	TransmitErr error
	// ActiveAt is when transmission-active was asserted, zero if it never was.
	ActiveAt time.Time
	Started  time.Time
	Finished time.Time
}

// Count returns the number of samples collected.
func (o *Outcome) Count() int { return len(o.Samples) }

// Aggregate reduces the samples with sample.Aggregate.
func (o *Outcome) Aggregate() (float64, error) { return sample.Aggregate(o.Samples) }

// round owns every piece of state the two actors share. A new one is built for
// each round so nothing leaks from one round to the next.
type round struct {
	ready  *Signal // meter is idle and available
	active *Signal // burst on air
	done   *Signal // transmitter returned

	buf        *sample.Buffer
	readErrors int
	txErr      error
	activeAt   time.Time
}

func newRound() *round {
	return &round{
		ready:  NewSignal(),
		active: NewSignal(),
		done:   NewSignal(),
		buf:    sample.NewBuffer(),
	}
}

// Synchronizer coordinates the transmitter and the sampler. Rounds must not overlap.
type Synchronizer struct {
	Transmitter Transmitter
	Meter       Meter
	PacketCount int
	ReadTimeout time.Duration

	current atomic.Pointer[round]
}

// NewSynchronizer returns a Synchronizer with default burst length and read timeout.
func NewSynchronizer(tx Transmitter, meter Meter) *Synchronizer {
	return &Synchronizer{
		Transmitter: tx,
		Meter:       meter,
		PacketCount: DefaultPacketCount,
		ReadTimeout: DefaultReadTimeout,
	}
}

// MeterReady reports whether the meter is available, i.e. a round is running and no
// read is in flight.
func (s *Synchronizer) MeterReady() bool {
	r := s.current.Load()
	return r != nil && r.ready.IsSet()
}

// TransmissionActive reports whether a burst is on air.
func (s *Synchronizer) TransmissionActive() bool {
	r := s.current.Load()
	return r != nil && r.active.IsSet()
}

// RunRound runs one burst and returns the samples taken while it was on air. It
// returns only after both actors have finished; there is no round timeout.
func (s *Synchronizer) RunRound(ctx context.Context) *Outcome {
	r := newRound()
	s.current.Store(r)
	defer s.current.Store(nil)

	out := &Outcome{Started: time.Now()}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.sample(ctx, r)
	}()
	go func() {
		defer wg.Done()
		s.transmit(ctx, r)
	}()
	wg.Wait()

	out.Samples = r.buf.Drain()
	out.ReadErrors = r.readErrors
	out.TransmitErr = r.txErr
	out.ActiveAt = r.activeAt
	out.Finished = time.Now()

	logrus.WithFields(logrus.Fields{
		"samples":    out.Count(),
		"readErrors": out.ReadErrors,
		"duration":   out.Finished.Sub(out.Started).Round(time.Millisecond),
	}).Debug("measurement round finished")

	return out
}

func (s *Synchronizer) transmit(ctx context.Context, r *round) {
	// Never go on air before the meter is listening, or the burst could end with
	// nothing collected.
	<-r.ready.C()

	packets := s.PacketCount
	if packets <= 0 {
		packets = DefaultPacketCount
	}

	r.activeAt = time.Now()
	r.active.Set()
	logrus.WithField("packets", packets).Debug("transmitting burst")

	err := s.Transmitter.TransmitBurst(ctx, packets)
	if err != nil {
		logrus.WithError(err).Error("burst transmission failed")
		r.txErr = err
	}

	r.active.Clear()
	r.done.Set()
}

func (s *Synchronizer) sample(ctx context.Context, r *round) {
	// Subscribe before announcing readiness so a short burst cannot slip by.
	activated := r.active.C()
	r.ready.Set()
	<-activated

	timeout := s.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	n := 0
	for r.active.IsSet() {
		r.ready.Clear()

		readCtx, cancel := context.WithTimeout(ctx, timeout)
		reply, err := s.Meter.Query(readCtx)
		cancel()

		switch {
		case err == nil:
			r.buf.Push(reply)
			logrus.WithFields(logrus.Fields{"n": n, "reply": reply}).Trace("power meter reading")
		case errors.Is(err, context.DeadlineExceeded):
			r.readErrors++
			logrus.WithField("timeout", timeout).Warn("power meter read timed out")
		case ctx.Err() != nil:
			r.readErrors++
		default:
			r.readErrors++
			logrus.WithError(err).Error("power meter read failed")
		}
		n++

		if ctx.Err() != nil {
			logrus.WithError(ctx.Err()).Debug("round cancelled, waiting for the burst to end")
			break
		}
		r.ready.Set()
	}

	// The meter stays in measurement mode until the transmitter has returned.
	<-r.done.C()

	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.Meter.Reset(resetCtx); err != nil {
		logrus.WithError(err).Warn("failed to return power meter to free-running mode")
	}
	r.ready.Clear()
}
