// Package sweep measures output power and power detector readings across RF
// channels with the calibration already programmed, to verify a module after
// calibration or to characterize the detector's read parameters.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/calibration"
	"github.com/charlie0129/radiocal/pkg/device"
	"github.com/charlie0129/radiocal/pkg/measure"
)

// Mode selects what a sweep varies.
type Mode string

const (
	// ModeTxpo reads output power and one pdout value per channel.
	ModeTxpo Mode = "txpo"
	// ModePDOutParams pins TXGC and repeats pdout reads over a range of sample counts.
	ModePDOutParams Mode = "pdout-params"
)

// FixedGainControl is written to every gain register in ModePDOutParams.
const FixedGainControl = 0x2D

// DefaultChannels are the channels swept when none are given.
func DefaultChannels() []int {
	chs := make([]int, 0, 27)
	for ch := 8; ch <= 34; ch++ {
		chs = append(chs, ch)
	}
	return chs
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTxpo, ModePDOutParams:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown sweep mode %q", s)
}

// Device is what a sweep needs from the module.
type Device interface {
	device.Telemetry
	device.Registers
	SetChannel(ctx context.Context, channel int) error
}

// Rounder runs one measurement round.
type Rounder interface {
	RunRound(ctx context.Context) *measure.Outcome
}

// Options parametrize a sweep. Zero values take the mode's defaults.
type Options struct {
	Mode         Mode  `json:"mode"`
	Channels     []int `json:"channels,omitempty"`
	Delay        int   `json:"delay,omitempty"`
	Samples      []int `json:"samples,omitempty"`
	Replications int   `json:"replications,omitempty"`
}

// WithDefaults fills in the mode's defaults.
func (o Options) WithDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeTxpo
	}
	if len(o.Channels) == 0 {
		o.Channels = DefaultChannels()
	}
	switch o.Mode {
	case ModePDOutParams:
		if o.Delay <= 0 {
			o.Delay = 4000
		}
		if len(o.Samples) == 0 {
			o.Samples = []int{4, 8, 16, 32, 64}
		}
		if o.Replications <= 0 {
			o.Replications = 4
		}
	default:
		if o.Delay <= 0 {
			o.Delay = device.DefaultPDOutDelay
		}
		if len(o.Samples) == 0 {
			o.Samples = []int{device.DefaultPDOutSamples}
		}
		if o.Replications <= 0 {
			o.Replications = 1
		}
	}
	return o
}

// Summary describes a finished sweep.
type Summary struct {
	Mode       Mode      `json:"mode"`
	Channels   int       `json:"channels"`
	Records    int       `json:"records"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Sweeper runs sweeps on one module.
type Sweeper struct {
	Device       Device
	Synchronizer Rounder
	// MAC is copied into every record.
	MAC string
	// OnRecord receives each record as it is taken. May be nil.
	OnRecord func(calibration.Record)
}

// Run sweeps the channels in order. It stops at the first device or aggregation
// error; records already emitted stay emitted.
func (s *Sweeper) Run(ctx context.Context, opts Options) (*Summary, error) {
	opts = opts.WithDefaults()
	sum := &Summary{Mode: opts.Mode, StartedAt: time.Now()}
	defer func() { sum.FinishedAt = time.Now() }()

	logger := logrus.WithFields(logrus.Fields{"mac": s.MAC, "mode": opts.Mode})
	logger.WithField("channels", opts.Channels).Info("sweep started")

	if opts.Mode == ModePDOutParams {
		for _, reg := range device.TxgcRegisters() {
			if err := s.Device.WriteRegister(ctx, reg, FixedGainControl); err != nil {
				return sum, fmt.Errorf("failed to pin txgc at 0x%X: %w", reg, err)
			}
		}
	}

	for _, ch := range opts.Channels {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := s.channel(ctx, ch, opts, sum); err != nil {
			return sum, fmt.Errorf("channel %d: %w", ch, err)
		}
		sum.Channels++
	}

	logger.WithField("records", sum.Records).Info("sweep finished")
	return sum, nil
}

func (s *Sweeper) channel(ctx context.Context, ch int, opts Options, sum *Summary) error {
	if err := s.Device.SetChannel(ctx, ch); err != nil {
		return err
	}

	temp, err := s.Device.Temperature(ctx)
	if err != nil {
		return fmt.Errorf("failed to read temperature: %w", err)
	}

	out := s.Synchronizer.RunRound(ctx)
	power, err := out.Aggregate()
	if err != nil {
		return err
	}

	gc, err := s.Device.GainControl(ctx)
	if err != nil {
		return fmt.Errorf("failed to read txgc: %w", err)
	}

	for _, ns := range opts.Samples {
		for i := 0; i < opts.Replications; i++ {
			pd, err := s.Device.PDOut(ctx, opts.Delay, ns)
			if err != nil {
				return fmt.Errorf("failed to read pdout: %w", err)
			}
			rec := calibration.Record{
				Timestamp:   time.Now(),
				MAC:         s.MAC,
				State:       calibration.StateIdle,
				Channel:     ch,
				Temperature: temp,
				GainControl: gc,
				Power:       power,
				PDOut:       pd,
				Delay:       opts.Delay,
				NSamples:    ns,
				SampleCount: out.Count(),
			}
			sum.Records++
			if s.OnRecord != nil {
				s.OnRecord(rec)
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"channel": ch,
		"temp":    temp,
		"txgc":    fmt.Sprintf("0x%X", gc),
		"txpo":    fmt.Sprintf("%.2f", power),
	}).Info("channel measured")
	return nil
}
