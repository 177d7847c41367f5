package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/config"
	"github.com/charlie0129/radiocal/pkg/dutyfactor"
	"github.com/charlie0129/radiocal/pkg/sweep"
	"github.com/charlie0129/radiocal/pkg/version"
)

const defaultRecordLimit = 100

func abortWith(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

// jobErrorCode maps runner errors to HTTP status codes.
func jobErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrNoJob):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, runner.Status())
}

func startCalibration(c *gin.Context) {
	job, err := runner.StartCalibration()
	if err != nil {
		abortWith(c, jobErrorCode(err), err)
		return
	}
	c.IndentedJSON(http.StatusAccepted, job)
}

func startSweep(c *gin.Context) {
	var opts sweep.Options
	if c.Request.ContentLength != 0 {
		if err := c.BindJSON(&opts); err != nil {
			abortWith(c, http.StatusBadRequest, err)
			return
		}
	}

	if opts.Mode != "" {
		if _, err := sweep.ParseMode(string(opts.Mode)); err != nil {
			abortWith(c, http.StatusBadRequest, err)
			return
		}
	}
	for _, ch := range opts.Channels {
		if ch < 0 || ch > 34 {
			abortWith(c, http.StatusBadRequest, fmt.Errorf("channel must be between 0 and 34, got %d", ch))
			return
		}
	}
	if len(opts.Channels) == 0 {
		opts.Channels = conf.SweepChannels()
	}

	job, err := runner.StartSweep(opts)
	if err != nil {
		abortWith(c, jobErrorCode(err), err)
		return
	}
	c.IndentedJSON(http.StatusAccepted, job)
}

func cancelJob(c *gin.Context) {
	if err := runner.Cancel(); err != nil {
		abortWith(c, jobErrorCode(err), err)
		return
	}
	logrus.Info("job cancellation requested")
	c.IndentedJSON(http.StatusAccepted, "ok")
}

func getRecords(c *gin.Context) {
	limit := defaultRecordLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			abortWith(c, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer, got %q", s))
			return
		}
		limit = n
	}
	c.IndentedJSON(http.StatusOK, runner.Records(limit))
}

// dutyFactorInfo is the answer of GET /duty-factor.
type dutyFactorInfo struct {
	Module       string  `json:"module"`
	Family       string  `json:"family"`
	Firmware     string  `json:"firmware"`
	DutyFactor   float64 `json:"dutyFactor"`
	CorrectionDB float64 `json:"correctionDB"`
	TPM          bool    `json:"tpm"`
}

func getDutyFactor(c *gin.Context) {
	id, err := strconv.ParseUint(c.Query("module"), 0, 8)
	if err != nil {
		abortWith(c, http.StatusBadRequest, fmt.Errorf("invalid module id %q: %w", c.Query("module"), err))
		return
	}
	fw, err := parseFirmware(c.Query("firmware"))
	if err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}

	mod := dutyfactor.ModuleID(id)
	df := dutyfactor.Resolve(mod, fw)
	c.IndentedJSON(http.StatusOK, dutyFactorInfo{
		Module:       fmt.Sprintf("0x%02X", id),
		Family:       dutyfactor.FamilyOf(mod).String(),
		Firmware:     fw.String(),
		DutyFactor:   df,
		CorrectionDB: dutyfactor.CorrectionDB(df),
		TPM:          dutyfactor.SupportsTPM(mod, fw),
	})
}

// parseFirmware accepts "major.minor" or a bare major revision.
func parseFirmware(s string) (dutyfactor.FirmwareVersion, error) {
	var major, minor int
	if n, _ := fmt.Sscanf(s, "%d.%d", &major, &minor); n == 0 {
		return 0, fmt.Errorf("invalid firmware version %q", s)
	}
	if major < 0 || major > 0x7FF || minor < 0 || minor > 0x1F {
		return 0, fmt.Errorf("firmware version %q out of range", s)
	}
	return dutyfactor.NewFirmwareVersion(major, minor), nil
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Get())
}

func setPacketCount(c *gin.Context) {
	var n int
	if err := c.BindJSON(&n); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}

	if n <= 0 {
		abortWith(c, http.StatusBadRequest, fmt.Errorf("packet count must be positive, got %d", n))
		return
	}

	conf.SetPacketCount(n)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWith(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set packet count to %d", n)
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("packet count set to %d, effective from the next job", n))
}

func setReadTimeout(c *gin.Context) {
	var s string
	if err := c.BindJSON(&s); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}
	if d < time.Second {
		abortWith(c, http.StatusBadRequest, fmt.Errorf("read timeout must be at least 1s, got %s", d))
		return
	}

	conf.SetReadTimeout(d)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWith(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set read timeout to %s", d)
	c.IndentedJSON(http.StatusCreated, "ok")
}

func setSweepChannels(c *gin.Context) {
	var chs []int
	if err := c.BindJSON(&chs); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}

	for _, ch := range chs {
		if ch < 0 || ch > 34 {
			abortWith(c, http.StatusBadRequest, fmt.Errorf("channel must be between 0 and 34, got %d", ch))
			return
		}
	}

	conf.SetSweepChannels(chs)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWith(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set sweep channels to %v", chs)
	c.IndentedJSON(http.StatusCreated, "ok")
}

// scheduleInfo is the answer of GET /schedule.
type scheduleInfo struct {
	Cron     string      `json:"cron"`
	NextRuns []time.Time `json:"nextRuns"`
	Running  bool        `json:"running"`
}

func getSchedule(c *gin.Context) {
	_, running := scheduler.Status()
	c.IndentedJSON(http.StatusOK, scheduleInfo{
		Cron:     scheduler.Expr(),
		NextRuns: scheduler.NextRuns(3),
		Running:  running,
	})
}

func putSchedule(c *gin.Context) {
	var expr string
	if err := c.BindJSON(&expr); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}

	nextRuns, err := setSchedule(expr)
	if err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, nextRuns)
}

func postponeSchedule(c *gin.Context) {
	var s string
	if err := c.BindJSON(&s); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}

	if err := postpone(d); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, scheduler.NextRun())
}

func skipSchedule(c *gin.Context) {
	if err := skipNextSchedule(); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, scheduler.NextRun())
}
