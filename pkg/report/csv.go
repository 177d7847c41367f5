package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/calibration"
)

// Header is the column layout of record files.
var Header = []string{"datetime", "MAC", "channel", "temp", "txgc", "txpo", "pdout", "delay", "nsamples"}

const timeLayout = "2006-01-02 15:04:05"

// CSV appends records to a file, flushing after every row so a crash loses at most
// the row being written.
type CSV struct {
	f *os.File
	w *csv.Writer
}

// FileName returns the record file name for a module and start time.
func FileName(prefix, mac string, t time.Time) string {
	mac = strings.ReplaceAll(mac, ":", "")
	if mac == "" {
		mac = "unknown"
	}
	return fmt.Sprintf("%s_%s_%s.csv", prefix, mac, t.Format("20060102-150405"))
}

// NewCSV creates dir if needed and opens name inside it for appending. The header
// is written when the file is new.
func NewCSV(dir, name string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create record directory %s", dir)
	}

	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open record file %s", path)
	}

	c := &CSV{f: f, w: csv.NewWriter(f)}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, pkgerrors.Wrapf(err, "failed to stat record file %s", path)
	}
	if st.Size() == 0 {
		if err := c.writeRow(Header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	logrus.WithField("path", path).Info("writing records")
	return c, nil
}

func (c *CSV) writeRow(row []string) error {
	if err := c.w.Write(row); err != nil {
		return pkgerrors.Wrap(err, "failed to write record")
	}
	c.w.Flush()
	return pkgerrors.Wrap(c.w.Error(), "failed to flush record")
}

func (c *CSV) Write(rec calibration.Record) error {
	return c.writeRow([]string{
		rec.Timestamp.Format(timeLayout),
		rec.MAC,
		strconv.Itoa(rec.Channel),
		strconv.Itoa(rec.Temperature),
		fmt.Sprintf("0x%X", rec.GainControl),
		strconv.FormatFloat(rec.Power, 'f', 2, 64),
		strconv.Itoa(rec.PDOut),
		strconv.Itoa(rec.Delay),
		strconv.Itoa(rec.NSamples),
	})
}

// Path returns the file being written.
func (c *CSV) Path() string { return c.f.Name() }

func (c *CSV) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.f.Close()
		return err
	}
	return c.f.Close()
}
