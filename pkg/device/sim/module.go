// Package sim provides a simulated radio module and a power meter coupled to it,
// so calibration sessions and sweeps can run without bench hardware.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/calibration"
	"github.com/charlie0129/radiocal/pkg/device"
	"github.com/charlie0129/radiocal/pkg/dutyfactor"
)

var _ device.Controller = &Module{}

// Options configures a simulated module. Zero values pick the defaults below.
type Options struct {
	Descriptor device.Descriptor
	// PacketTime is the airtime of one packet.
	PacketTime time.Duration
	// FailAt makes the module answer FailStatus when asked to enter this state.
	FailAt     calibration.State
	FailStatus calibration.Status
}

const defaultPacketTime = 2 * time.Microsecond

// DefaultDescriptor is a Sherwood XD on a TPM capable firmware.
var DefaultDescriptor = device.Descriptor{
	MAC:             "00:0B:6B:00:00:01",
	ModuleID:        dutyfactor.SherwoodXD,
	FirmwareVersion: dutyfactor.NewFirmwareVersion(199, 2),
	DefaultPower:    17,
}

// Call is one Transition request as the module saw it.
type Call struct {
	State       calibration.State
	Measurement calibration.Measurement
}

// Module is a simulated module. Its calibration walk visits the state catalogue in
// order: each accepted state answers with the next one, the last point state answers
// IDLE and FINISHED always returns the module to IDLE.
type Module struct {
	opts Options

	mu        sync.Mutex
	expected  calibration.State
	channel   int
	regs      map[uint32]uint32
	onAir     bool
	power     float64
	powerComp bool
	dfs       int
	tpm       int
	txPower   int
	calls     []Call
	closed    bool
}

// New returns a simulated module in the IDLE state.
func New(opts Options) *Module {
	if opts.Descriptor.MAC == "" {
		opts.Descriptor = DefaultDescriptor
	}
	if opts.PacketTime <= 0 {
		opts.PacketTime = defaultPacketTime
	}

	m := &Module{
		opts:      opts,
		expected:  calibration.StateBegin,
		regs:      make(map[uint32]uint32),
		powerComp: true,
		txPower:   opts.Descriptor.DefaultPower,
		power:     float64(opts.Descriptor.DefaultPower),
	}
	m.regs[device.RegTxgcIndex] = 1
	for i, r := range device.TxgcRegisters() {
		m.regs[r] = uint32(0x20 + i)
	}
	return m
}

// targetPower is the output power the module aims for while in state s.
func targetPower(s calibration.State) float64 {
	ch := s.Channel()
	if ch == calibration.NoChannel {
		return 17
	}
	p := 10.0 - 0.05*float64(ch)
	switch s.Kind() {
	case calibration.KindSearch:
		// Successive approximation converges on the point 0 level.
		p += float64(int(1)<<s.Bit()) / 8
	case calibration.KindPoint:
		p += 3 * float64(s.Point())
	}
	return p
}

func (m *Module) Transition(ctx context.Context, state calibration.State, meas calibration.Measurement) (calibration.Status, calibration.State, error) {
	if err := ctx.Err(); err != nil {
		return calibration.StatusUndefinedFailure, state, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return calibration.StatusUndefinedFailure, state, device.ErrNotConnected
	}
	m.calls = append(m.calls, Call{State: state, Measurement: meas})

	if state == calibration.StateFinished {
		m.expected = calibration.StateBegin
		m.power = float64(m.txPower)
		return calibration.StatusOK, calibration.StateIdle, nil
	}
	if !state.Valid() || state != m.expected {
		logrus.WithFields(logrus.Fields{
			"requested": state,
			"expected":  m.expected,
		}).Debug("simulated module rejected transition")
		return calibration.StatusInvalidStateTransition, state, nil
	}
	if m.opts.FailStatus != calibration.StatusOK && state == m.opts.FailAt {
		return m.opts.FailStatus, state, nil
	}
	if !state.ActuationOnly() && !meas.Present {
		return calibration.StatusInvalidMeasurementPointer, state, nil
	}

	next := state + 1
	if next == calibration.StateFinished {
		next = calibration.StateIdle
		m.expected = calibration.StateBegin
	} else {
		m.expected = next
		m.power = targetPower(next)
	}
	return calibration.StatusOK, next, nil
}

// Calls returns every Transition request received so far.
func (m *Module) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Module) TransmitBurst(ctx context.Context, packets int) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return device.ErrNotConnected
	}
	m.onAir = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.onAir = false
		m.mu.Unlock()
	}()

	t := time.NewTimer(time.Duration(packets) * m.opts.PacketTime)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// OnAir reports whether a burst is being transmitted and at what power.
func (m *Module) OnAir() (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onAir, m.power
}

func (m *Module) SetChannel(_ context.Context, channel int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel = channel
	m.power = targetPower(pointZero(channel))
	return nil
}

// pointZero returns the point 0 state of a channel, or IDLE for channels outside
// the calibration plan.
func pointZero(channel int) calibration.State {
	s, ok := calibration.PointState(channel, 0)
	if !ok {
		return calibration.StateIdle
	}
	return s
}

func (m *Module) Temperature(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return 38 + m.channel%5, nil
}

func (m *Module) GainControl(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.regs[device.RegTxgcIndex]
	regs := device.TxgcRegisters()
	if idx < 1 || int(idx) > len(regs) {
		return 0, device.ErrStatus
	}
	return int(m.regs[regs[idx-1]]), nil
}

// PDOut models the power detector: proportional to the output power, averaged
// over nsamples.
func (m *Module) PDOut(_ context.Context, delay, nsamples int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if nsamples <= 0 {
		return 0, device.ErrStatus
	}
	return int(400+m.power*20) + delay/1000 - nsamples%3, nil
}

func (m *Module) ReadRegister(_ context.Context, addr uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[addr], nil
}

func (m *Module) WriteRegister(_ context.Context, addr, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[addr] = value
	return nil
}

func (m *Module) SetPowerCompensation(_ context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerComp = enabled
	return nil
}

func (m *Module) DFSOverride(_ context.Context, mode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dfs = mode
	return nil
}

func (m *Module) SetTPMMode(_ context.Context, mode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tpm = mode
	return nil
}

func (m *Module) SetTransmitPower(_ context.Context, power int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txPower = power
	return nil
}

// Settings reports the power compensation flag, DFS override mode and TPM mode.
func (m *Module) Settings() (powerComp bool, dfs, tpm int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.powerComp, m.dfs, m.tpm
}

func (m *Module) Describe(context.Context) (*device.Descriptor, error) {
	d := m.opts.Descriptor
	return &d, nil
}

func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
