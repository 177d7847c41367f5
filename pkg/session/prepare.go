package session

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/device"
	"github.com/charlie0129/radiocal/pkg/dutyfactor"
)

// Setup is what Prepare learned about the module.
type Setup struct {
	Descriptor device.Descriptor
	DutyFactor float64
	TPM        bool
}

// Prepare puts the module into a fixed transmit configuration for measurement:
// interrupts off, CCA level 0, data rate per module family, power compensation off
// and DFS overridden. TPM capable modules also get TPM off and their default power.
func Prepare(ctx context.Context, dev device.Controller) (*Setup, error) {
	desc, err := dev.Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	s := &Setup{
		Descriptor: *desc,
		DutyFactor: dutyfactor.Resolve(desc.ModuleID, desc.FirmwareVersion),
		TPM:        dutyfactor.SupportsTPM(desc.ModuleID, desc.FirmwareVersion),
	}

	logrus.WithFields(logrus.Fields{
		"mac":        desc.MAC,
		"moduleId":   fmt.Sprintf("0x%02X", uint8(desc.ModuleID)),
		"family":     dutyfactor.FamilyOf(desc.ModuleID),
		"firmware":   desc.FirmwareVersion,
		"dutyFactor": s.DutyFactor,
		"tpm":        s.TPM,
	}).Info("preparing module")

	writes := []struct {
		name  string
		addr  uint32
		value uint32
	}{
		{"irq", device.RegIRQEnable, 0},
		{"cca", device.RegCCALevel, 0},
		{"data rate", device.RegDataRate, dutyfactor.DataRate(dutyfactor.FamilyOf(desc.ModuleID))},
	}
	for _, w := range writes {
		if err := dev.WriteRegister(ctx, w.addr, w.value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", w.name, err)
		}
	}

	if err := dev.SetPowerCompensation(ctx, false); err != nil {
		return nil, fmt.Errorf("failed to disable power compensation: %w", err)
	}

	dfs := device.DFSDisabled
	if s.TPM {
		dfs = device.DFSDisabledTPM
	}
	if err := dev.DFSOverride(ctx, dfs); err != nil {
		return nil, fmt.Errorf("failed to override DFS: %w", err)
	}

	if s.TPM {
		if err := dev.SetTPMMode(ctx, 0); err != nil {
			return nil, fmt.Errorf("failed to disable TPM: %w", err)
		}
		if err := dev.SetTransmitPower(ctx, desc.DefaultPower); err != nil {
			return nil, fmt.Errorf("failed to set transmit power: %w", err)
		}
	}

	return s, nil
}

// Restore undoes Prepare's DFS override and power compensation change. Both steps are
// attempted; the first error is returned.
func Restore(ctx context.Context, dev device.Controller) error {
	var first error
	if err := dev.DFSOverride(ctx, device.DFSEnabled); err != nil {
		logrus.WithError(err).Warn("failed to restore DFS")
		first = err
	}
	if err := dev.SetPowerCompensation(ctx, true); err != nil {
		logrus.WithError(err).Warn("failed to re-enable power compensation")
		if first == nil {
			first = err
		}
	}
	return first
}
