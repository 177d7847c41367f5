// Package session drives a module through its calibration state machine, feeding
// every requested measurement back from a synchronized transmit/measure round.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/calibration"
	"github.com/charlie0129/radiocal/pkg/device"
	"github.com/charlie0129/radiocal/pkg/measure"
)

// ErrAggregation is wrapped when a round's samples could not be reduced to a value.
var ErrAggregation = errors.New("failed to aggregate measurement")

// finalizeTimeout bounds the FINISHED call issued after a failure, which runs even
// when the session's own context is already done.
const finalizeTimeout = 30 * time.Second

// Rounder runs one measurement round. *measure.Synchronizer implements it.
type Rounder interface {
	RunRound(ctx context.Context) *measure.Outcome
}

// Observer is notified as the session progresses. Callbacks run on the driver's
// goroutine and must not block.
type Observer interface {
	OnTransition(from, to calibration.State, status calibration.Status)
	OnRecord(rec calibration.Record)
}

// Driver runs one calibration session.
type Driver struct {
	Device       device.Transitioner
	Synchronizer Rounder
	Observer     Observer

	// MAC is copied into every record.
	MAC string
	// PDOutDelay and PDOutSamples parametrize the power detector read recorded with
	// each measured step when the device exposes telemetry.
	PDOutDelay   int
	PDOutSamples int
}

// Run performs the session. It returns a nil error only when the device walked back
// to IDLE with every status OK. On any failure the device is sent to FINISHED exactly
// once and the result carries the failing status.
func (d *Driver) Run(ctx context.Context) (*calibration.Result, error) {
	res := &calibration.Result{StartedAt: time.Now()}
	defer func() { res.FinishedAt = time.Now() }()

	logger := logrus.WithField("mac", d.MAC)
	logger.Info("calibration session started")

	last := calibration.None
	status, next, err := d.transition(ctx, calibration.StateBegin, last)
	res.Steps++

	for err == nil && status.OK() && next != calibration.StateIdle {
		current := next

		out := d.Synchronizer.RunRound(ctx)
		res.Rounds++

		meas := calibration.None
		if !current.ActuationOnly() {
			v, aerr := out.Aggregate()
			if aerr != nil {
				res.Status = calibration.StatusInvalidCalMeasurement
				res.State = current
				res.Message = aerr.Error()
				d.finalize(ctx, last)
				logger.WithError(aerr).WithField("state", current).Error("calibration aborted")
				return res, fmt.Errorf("%w at %s: %w", ErrAggregation, current, aerr)
			}
			meas = calibration.Of(v)
			last = meas
			d.record(ctx, current, v, out.Count())
		}

		logger.WithFields(logrus.Fields{
			"state":       current,
			"samples":     out.Count(),
			"readErrors":  out.ReadErrors,
			"measurement": measurementField(meas),
		}).Debug("round complete")

		status, next, err = d.transition(ctx, current, meas)
		res.Steps++
	}

	res.Status = status
	res.State = next

	if err != nil {
		res.Status = calibration.StatusUndefinedFailure
		res.Message = err.Error()
		d.finalize(ctx, last)
		logger.WithError(err).WithField("state", next).Error("calibration aborted")
		return res, fmt.Errorf("transition to %s: %w", next, err)
	}

	if !status.OK() {
		serr := &calibration.StatusError{Status: status, State: next}
		res.Message = serr.Error()
		d.finalize(ctx, last)
		logger.WithFields(logrus.Fields{
			"status": status,
			"state":  next,
		}).Error("calibration failed")
		return res, serr
	}

	logger.WithFields(logrus.Fields{
		"steps":  res.Steps,
		"rounds": res.Rounds,
	}).Info("calibration session finished")
	return res, nil
}

// transition asks the device to enter state. On a transport error the returned
// state is the requested one.
func (d *Driver) transition(ctx context.Context, state calibration.State, m calibration.Measurement) (calibration.Status, calibration.State, error) {
	status, next, err := d.Device.Transition(ctx, state, m)
	if err != nil {
		return calibration.StatusUndefinedFailure, state, err
	}

	logrus.WithFields(logrus.Fields{
		"state":  state,
		"status": status,
		"next":   next,
	}).Debug("transition")

	if d.Observer != nil {
		d.Observer.OnTransition(state, next, status)
	}
	return status, next, nil
}

// finalize tells the device the session is over. Its outcome is only logged: the
// session has already failed.
func (d *Driver) finalize(ctx context.Context, last calibration.Measurement) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	status, next, err := d.Device.Transition(fctx, calibration.StateFinished, last)
	if err != nil {
		logrus.WithError(err).Warn("failed to finalize calibration")
		return
	}
	if d.Observer != nil {
		d.Observer.OnTransition(calibration.StateFinished, next, status)
	}
	logrus.WithFields(logrus.Fields{"status": status, "next": next}).Debug("calibration finalized")
}

func (d *Driver) record(ctx context.Context, state calibration.State, power float64, n int) {
	rec := calibration.Record{
		Timestamp:   time.Now(),
		MAC:         d.MAC,
		State:       state,
		Channel:     state.Channel(),
		Power:       power,
		SampleCount: n,
	}

	if tel, ok := d.Device.(device.Telemetry); ok {
		fillTelemetry(ctx, tel, &rec, d.PDOutDelay, d.PDOutSamples)
	}

	if d.Observer != nil {
		d.Observer.OnRecord(rec)
	}
}

// fillTelemetry completes rec with temperature, TXGC and power detector output.
// Failures are logged and leave the field zero.
func fillTelemetry(ctx context.Context, tel device.Telemetry, rec *calibration.Record, delay, nsamples int) {
	if delay <= 0 {
		delay = device.DefaultPDOutDelay
	}
	if nsamples <= 0 {
		nsamples = device.DefaultPDOutSamples
	}
	rec.Delay = delay
	rec.NSamples = nsamples

	var err error
	if rec.Temperature, err = tel.Temperature(ctx); err != nil {
		logrus.WithError(err).Warn("failed to read temperature")
	}
	if rec.GainControl, err = tel.GainControl(ctx); err != nil {
		logrus.WithError(err).Warn("failed to read txgc")
	}
	if rec.PDOut, err = tel.PDOut(ctx, delay, nsamples); err != nil {
		logrus.WithError(err).Warn("failed to read pdout")
	}
}

func measurementField(m calibration.Measurement) any {
	if !m.Present {
		return "none"
	}
	return m.Value
}
