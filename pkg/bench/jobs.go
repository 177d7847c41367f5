package bench

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/calibration"
	"github.com/charlie0129/radiocal/pkg/report"
	"github.com/charlie0129/radiocal/pkg/session"
	"github.com/charlie0129/radiocal/pkg/sweep"
)

// restoreTimeout bounds Restore, which runs even after the job's context is done.
const restoreTimeout = 30 * time.Second

// Observer receives progress from a job. OnRecord is called after the record
// has been written to the sink.
type Observer = session.Observer

// prepare puts the module in measurement configuration and sets up the meter.
// On success the caller must call restore; on failure it has already run.
func (b *Bench) prepare(ctx context.Context) (*session.Setup, error) {
	setup, err := session.Prepare(ctx, b.Device)
	if err != nil {
		// Prepare may have failed after changing some settings.
		b.restore(ctx)
		return nil, err
	}
	if b.Configure != nil {
		if err := b.Configure(ctx, setup.DutyFactor); err != nil {
			b.restore(ctx)
			return nil, err
		}
	}
	return setup, nil
}

func (b *Bench) restore(ctx context.Context) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()
	if err := session.Restore(rctx, b.Device); err != nil {
		logrus.WithError(err).Error("failed to restore module settings")
	}
}

// Calibrate runs a full calibration session, writing every record to sink.
func (b *Bench) Calibrate(ctx context.Context, sink report.Sink, obs Observer) (*calibration.Result, error) {
	setup, err := b.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer b.restore(ctx)

	d := &session.Driver{
		Device:       b.Device,
		Synchronizer: b.Synchronizer(),
		Observer:     &sinkObserver{sink: sink, next: obs},
		MAC:          setup.Descriptor.MAC,
		PDOutDelay:   b.PDOutDelay,
		PDOutSamples: b.PDOutSamples,
	}
	return d.Run(ctx)
}

// Sweep runs a sweep, writing every record to sink.
func (b *Bench) Sweep(ctx context.Context, opts sweep.Options, sink report.Sink, obs Observer) (*sweep.Summary, error) {
	setup, err := b.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer b.restore(ctx)

	so := &sinkObserver{sink: sink, next: obs}
	s := &sweep.Sweeper{
		Device:       b.Device,
		Synchronizer: b.Synchronizer(),
		MAC:          setup.Descriptor.MAC,
		OnRecord:     so.OnRecord,
	}
	return s.Run(ctx, opts)
}

// MAC returns the module's MAC, or an empty string when it cannot be read.
func (b *Bench) MAC(ctx context.Context) string {
	d, err := b.Device.Describe(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to read module descriptor")
		return ""
	}
	return d.MAC
}

// sinkObserver writes records to a sink before passing events on.
type sinkObserver struct {
	sink report.Sink
	next Observer
}

func (o *sinkObserver) OnTransition(from, to calibration.State, status calibration.Status) {
	if o.next != nil {
		o.next.OnTransition(from, to, status)
	}
}

func (o *sinkObserver) OnRecord(rec calibration.Record) {
	if o.sink != nil {
		if err := o.sink.Write(rec); err != nil {
			logrus.WithError(err).Error("failed to write record")
		}
	}
	if o.next != nil {
		o.next.OnRecord(rec)
	}
}
