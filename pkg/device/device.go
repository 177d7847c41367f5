// Package device defines the device controller the calibration session drives and
// a JSON-RPC client for the bench bridge that fronts a physical module.
package device

import (
	"context"
	"errors"

	"github.com/charlie0129/radiocal/pkg/calibration"
	"github.com/charlie0129/radiocal/pkg/dutyfactor"
)

var (
	// ErrNotConnected is returned when an operation needs an open transport.
	ErrNotConnected = errors.New("device not connected")
	// ErrStatus is wrapped when the module answers with a non-success status byte.
	ErrStatus = errors.New("device returned failure status")
)

// Transitioner advances the module's calibration state machine. The call blocks
// while the module computes the next point, which may take many seconds.
type Transitioner interface {
	Transition(ctx context.Context, state calibration.State, m calibration.Measurement) (calibration.Status, calibration.State, error)
}

// Transmitter keeps the module on air for a fixed number of packets.
type Transmitter interface {
	TransmitBurst(ctx context.Context, packets int) error
}

// Telemetry exposes the diagnostics recorded alongside each measured step.
type Telemetry interface {
	Temperature(ctx context.Context) (int, error)
	GainControl(ctx context.Context) (int, error)
	PDOut(ctx context.Context, delay, nsamples int) (int, error)
}

// Registers is raw register access, used by setup code only.
type Registers interface {
	ReadRegister(ctx context.Context, addr uint32) (uint32, error)
	WriteRegister(ctx context.Context, addr, value uint32) error
}

// Descriptor is the identity read from the module's manufacturing data.
type Descriptor struct {
	MAC             string                     `json:"mac"`
	ModuleID        dutyfactor.ModuleID        `json:"moduleId"`
	FirmwareVersion dutyfactor.FirmwareVersion `json:"firmwareVersion"`
	DefaultPower    int                        `json:"defaultPower"`
}

// Controller is everything radiocal needs from a module.
type Controller interface {
	Transitioner
	Transmitter
	Telemetry
	Registers

	Describe(ctx context.Context) (*Descriptor, error)
	SetChannel(ctx context.Context, channel int) error
	SetPowerCompensation(ctx context.Context, enabled bool) error
	DFSOverride(ctx context.Context, mode int) error
	SetTPMMode(ctx context.Context, mode int) error
	SetTransmitPower(ctx context.Context, power int) error
	Close() error
}
