package powermeter

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/dutyfactor"
)

// DefaultFrequency is the calibration carrier.
const DefaultFrequency = "5.500GHZ"

// offsetWidth is how many leading bytes of the offset file hold the value.
const offsetWidth = 6

// SetupOptions are the per-session instrument settings.
type SetupOptions struct {
	DutyFactor float64
	// OffsetDB is the cable and attenuator loss added to every reading.
	OffsetDB  float64
	Frequency string
	// ReplyTimeout bounds every query issued during setup.
	ReplyTimeout time.Duration
}

// Setup presets the meter and configures it for a pulsed measurement at the given
// duty factor.
func (p *SCPI) Setup(ctx context.Context, opts SetupOptions) error {
	if opts.Frequency == "" {
		opts.Frequency = DefaultFrequency
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 15 * time.Second
	}

	for _, cmd := range []string{"SYST:PRES", "SYST:REM"} {
		if err := p.Write(ctx, cmd); err != nil {
			return err
		}
	}

	qctx, cancel := context.WithTimeout(ctx, opts.ReplyTimeout)
	sensor, err := p.Cmd(qctx, "SERV:SENS1:TYPE?")
	cancel()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to query sensor type")
	}

	// Type A sensors need their correction table selected explicitly.
	if strings.Trim(sensor, "\"") == "A" {
		for _, cmd := range []string{"CORR:CSET1:SEL 'HP8481A'", "CORR:CSET1:STAT ON"} {
			if err := p.Write(ctx, cmd); err != nil {
				return err
			}
		}
	}

	cmds := []string{
		fmt.Sprintf("CORR:DCYC %.2fPCT", opts.DutyFactor*100),
		fmt.Sprintf("CORR:GAIN2 %.2f", opts.OffsetDB),
		"FREQ " + opts.Frequency,
	}
	for _, cmd := range cmds {
		if err := p.Write(ctx, cmd); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"sensor":       sensor,
		"dutyFactor":   opts.DutyFactor,
		"correctionDB": fmt.Sprintf("%.2f", dutyfactor.CorrectionDB(opts.DutyFactor)),
		"offsetDB":     opts.OffsetDB,
		"frequency":    opts.Frequency,
	}).Info("power meter configured")

	return nil
}

// ReadOffsetFile reads the bench offset in dB from the first bytes of path.
func ReadOffsetFile(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to read offset file %s", path)
	}
	if len(b) > offsetWidth {
		b = b[:offsetWidth]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "invalid offset in %s", path)
	}
	return v, nil
}
