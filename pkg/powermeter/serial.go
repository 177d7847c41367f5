package powermeter

import (
	"github.com/jacobsa/go-serial/serial"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultBaudRate = 9600

// Options selects the serial line the meter is attached to.
type Options struct {
	Port     string
	BaudRate uint
}

// Open opens the serial port and returns a SCPI connection on it.
func Open(opts Options) (*SCPI, error) {
	if opts.BaudRate == 0 {
		opts.BaudRate = DefaultBaudRate
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:        opts.Port,
		BaudRate:        opts.BaudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open power meter on %s", opts.Port)
	}

	logrus.WithFields(logrus.Fields{
		"port":     opts.Port,
		"baudRate": opts.BaudRate,
	}).Info("power meter serial port opened")

	return New(port), nil
}
