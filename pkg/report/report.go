// Package report writes calibration and sweep records to their destinations.
package report

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/calibration"
)

// Sink receives records. Implementations must be safe for use by one writer at a time.
type Sink interface {
	Write(rec calibration.Record) error
	Close() error
}

// Multi fans records out to several sinks. A failing sink does not stop the others.
type Multi []Sink

func (m Multi) Write(rec calibration.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes each record as a structured log line. The zero value logs at info.
type Log struct {
	Level logrus.Level
}

func (l Log) Write(rec calibration.Record) error {
	level := l.Level
	if level == logrus.PanicLevel {
		level = logrus.InfoLevel
	}
	logrus.WithFields(logrus.Fields{
		"mac":     rec.MAC,
		"state":   rec.State,
		"channel": rec.Channel,
		"temp":    rec.Temperature,
		"txgc":    rec.GainControl,
		"txpo":    rec.Power,
		"pdout":   rec.PDOut,
		"samples": rec.SampleCount,
	}).Log(level, "record")
	return nil
}

func (Log) Close() error { return nil }
