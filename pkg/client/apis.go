package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/radiocal/pkg/calibration"
	"github.com/charlie0129/radiocal/pkg/config"
	"github.com/charlie0129/radiocal/pkg/sweep"
	"github.com/charlie0129/radiocal/pkg/version"
)

func decode[T any](ret string, what string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return v, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return v, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}
	conf, err := decode[config.RawFileConfig](ret, "config")
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Client) GetVersion() (version.Info, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return version.Info{}, pkgerrors.Wrapf(err, "failed to get version")
	}
	return decode[version.Info](ret, "version")
}

func (c *Client) GetStatus() (*calibration.RunStatus, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}
	st, err := decode[calibration.RunStatus](ret, "status")
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// StartCalibration starts a calibration session and returns its job ID.
func (c *Client) StartCalibration() (string, error) {
	ret, err := c.Post("/calibration", "")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to start calibration")
	}
	return decode[string](ret, "job id")
}

// StartSweep starts a sweep and returns its job ID.
func (c *Client) StartSweep(opts sweep.Options) (string, error) {
	payload, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	ret, err := c.Post("/sweep", string(payload))
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to start sweep")
	}
	return decode[string](ret, "job id")
}

func (c *Client) CancelJob() (string, error) {
	return c.Delete("/job")
}

func (c *Client) GetRecords(limit int) ([]calibration.Record, error) {
	path := "/records"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get records")
	}
	return decode[[]calibration.Record](ret, "records")
}

// DutyFactor is the daemon's duty factor resolution for one module.
type DutyFactor struct {
	Module       string  `json:"module"`
	Family       string  `json:"family"`
	Firmware     string  `json:"firmware"`
	DutyFactor   float64 `json:"dutyFactor"`
	CorrectionDB float64 `json:"correctionDB"`
	TPM          bool    `json:"tpm"`
}

func (c *Client) GetDutyFactor(module uint8, firmware string) (*DutyFactor, error) {
	q := url.Values{}
	q.Set("module", fmt.Sprintf("0x%02X", module))
	q.Set("firmware", firmware)
	ret, err := c.Get("/duty-factor?" + q.Encode())
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to resolve duty factor")
	}
	df, err := decode[DutyFactor](ret, "duty factor")
	if err != nil {
		return nil, err
	}
	return &df, nil
}

func (c *Client) SetPacketCount(n int) (string, error) {
	return c.Put("/packet-count", strconv.Itoa(n))
}

func (c *Client) SetReadTimeout(d time.Duration) (string, error) {
	return c.Put("/read-timeout", strconv.Quote(d.String()))
}

func (c *Client) SetSweepChannels(chs []int) (string, error) {
	payload, err := json.Marshal(chs)
	if err != nil {
		return "", err
	}
	return c.Put("/sweep-channels", string(payload))
}

// Schedule is the daemon's sweep schedule.
type Schedule struct {
	Cron     string      `json:"cron"`
	NextRuns []time.Time `json:"nextRuns"`
	Running  bool        `json:"running"`
}

func (c *Client) GetSchedule() (*Schedule, error) {
	ret, err := c.Get("/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedule")
	}
	s, err := decode[Schedule](ret, "schedule")
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSchedule sets the sweep cron expression and returns the next run times.
// An empty expression disables scheduled sweeps.
func (c *Client) SetSchedule(expr string) ([]time.Time, error) {
	ret, err := c.Put("/schedule", strconv.Quote(expr))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set schedule")
	}
	return decode[[]time.Time](ret, "next runs")
}

// PostponeSchedule delays the next scheduled sweep and returns its new time.
func (c *Client) PostponeSchedule(d time.Duration) (time.Time, error) {
	ret, err := c.Post("/schedule/postpone", strconv.Quote(d.String()))
	if err != nil {
		return time.Time{}, pkgerrors.Wrapf(err, "failed to postpone schedule")
	}
	return decode[time.Time](ret, "next run")
}

// SkipSchedule drops the next scheduled sweep and returns the one after it.
func (c *Client) SkipSchedule() (time.Time, error) {
	ret, err := c.Post("/schedule/skip", "")
	if err != nil {
		return time.Time{}, pkgerrors.Wrapf(err, "failed to skip schedule")
	}
	return decode[time.Time](ret, "next run")
}
