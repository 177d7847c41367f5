// Package bench assembles a module, a power meter and record sinks from the
// configuration, and runs calibration and sweep jobs on them.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/config"
	"github.com/charlie0129/radiocal/pkg/device"
	"github.com/charlie0129/radiocal/pkg/device/sim"
	"github.com/charlie0129/radiocal/pkg/measure"
	"github.com/charlie0129/radiocal/pkg/powermeter"
)

// Bench is an opened module and power meter.
type Bench struct {
	Device device.Controller
	Meter  measure.Meter
	// Configure prepares the meter for the module's duty factor. May be nil.
	Configure func(ctx context.Context, dutyFactor float64) error

	PacketCount  int
	ReadTimeout  time.Duration
	PDOutDelay   int
	PDOutSamples int

	closers []func() error
}

// Opener opens a bench. Tests substitute their own.
type Opener func(ctx context.Context, c config.Config) (*Bench, error)

// Open connects to the module and meter named in c. An empty device endpoint
// selects the simulator, whose meter is coupled to the simulated module.
func Open(_ context.Context, c config.Config) (*Bench, error) {
	b := &Bench{
		PacketCount:  c.PacketCount(),
		ReadTimeout:  c.ReadTimeout(),
		PDOutDelay:   c.PDOutDelay(),
		PDOutSamples: c.PDOutSamples(),
	}

	if c.DeviceEndpoint() == "" {
		mod := sim.New(sim.Options{})
		b.Device = mod
		b.Meter = sim.NewMeter(mod, time.Now().UnixNano())
		b.closers = append(b.closers, mod.Close)
		logrus.Info("no device endpoint configured, using the simulator")
		return b, nil
	}

	rpc := device.NewRPC(c.DeviceEndpoint(), 2*time.Minute)
	b.Device = rpc
	b.closers = append(b.closers, rpc.Close)

	pm, err := powermeter.Open(powermeter.Options{
		Port:     c.MeterPort(),
		BaudRate: uint(c.MeterBaudRate()),
	})
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Meter = pm
	b.closers = append(b.closers, pm.Close)

	offsetFile, frequency, timeout := c.OffsetFile(), c.Frequency(), c.ReadTimeout()
	b.Configure = func(ctx context.Context, df float64) error {
		offset, err := powermeter.ReadOffsetFile(offsetFile)
		if err != nil {
			return err
		}
		return pm.Setup(ctx, powermeter.SetupOptions{
			DutyFactor:   df,
			OffsetDB:     offset,
			Frequency:    frequency,
			ReplyTimeout: timeout,
		})
	}

	logrus.WithFields(logrus.Fields{
		"endpoint":  c.DeviceEndpoint(),
		"meterPort": c.MeterPort(),
	}).Info("bench opened")
	return b, nil
}

// Synchronizer returns a measurement synchronizer over the bench.
func (b *Bench) Synchronizer() *measure.Synchronizer {
	s := measure.NewSynchronizer(b.Device, b.Meter)
	if b.PacketCount > 0 {
		s.PacketCount = b.PacketCount
	}
	if b.ReadTimeout > 0 {
		s.ReadTimeout = b.ReadTimeout
	}
	return s
}

// Close releases the meter and the module, in reverse order of opening.
func (b *Bench) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close bench: %w", err)
	}
	return nil
}
