package daemon

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charlie0129/radiocal/pkg/calibration"
	"github.com/charlie0129/radiocal/pkg/config"
	"github.com/charlie0129/radiocal/pkg/device/sim"
)

// newTestServer sets the daemon up on a temporary config. With blocking set,
// jobs hang until cancelled.
func newTestServer(t *testing.T, blocking bool) (*httptest.Server, *config.File) {
	t.Helper()
	c := testConfig(t)
	release := make(chan struct{})
	if blocking {
		setup(c, blockingOpener(release))
	} else {
		setup(c, simOpener(sim.Options{}))
	}
	t.Cleanup(func() {
		close(release)
		runner.Wait()
		scheduler.Stop()
	})

	srv := httptest.NewServer(setupRoutes())
	t.Cleanup(srv.Close)
	return srv, c
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(b)
}

func TestHandlersSettings(t *testing.T) {
	srv, c := newTestServer(t, false)

	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPut, "/packet-count", "-5", http.StatusBadRequest},
		{http.MethodPut, "/packet-count", "1000", http.StatusCreated},
		{http.MethodPut, "/read-timeout", `"soon"`, http.StatusBadRequest},
		{http.MethodPut, "/read-timeout", `"3s"`, http.StatusCreated},
		{http.MethodPut, "/sweep-channels", "[8, 40]", http.StatusBadRequest},
		{http.MethodPut, "/sweep-channels", "[8, 9]", http.StatusCreated},
		{http.MethodPut, "/schedule", `"every tuesday"`, http.StatusBadRequest},
		{http.MethodPost, "/schedule/skip", "", http.StatusBadRequest},
		{http.MethodGet, "/records?limit=0", "", http.StatusBadRequest},
		{http.MethodGet, "/duty-factor?module=0xFD&firmware=x", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got, body := do(t, srv, tt.method, tt.path, tt.body); got != tt.want {
			t.Errorf("%s %s %s: status = %d, want %d (%s)", tt.method, tt.path, tt.body, got, tt.want, body)
		}
	}

	if c.PacketCount() != 1000 || c.ReadTimeout().String() != "3s" {
		t.Errorf("config not updated: packets %d, timeout %s", c.PacketCount(), c.ReadTimeout())
	}
	if chs := c.SweepChannels(); len(chs) != 2 || chs[0] != 8 || chs[1] != 9 {
		t.Errorf("sweep channels = %v", chs)
	}

	reloaded, err := config.NewFile(c.Path())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.PacketCount() != 1000 {
		t.Errorf("saved packet count = %d", reloaded.PacketCount())
	}
}

func TestHandlersSchedule(t *testing.T) {
	srv, c := newTestServer(t, false)

	code, body := do(t, srv, http.MethodPut, "/schedule", `"@every 1h"`)
	if code != http.StatusCreated {
		t.Fatalf("PUT /schedule = %d (%s)", code, body)
	}
	if c.SweepSchedule() != "@every 1h" {
		t.Errorf("saved schedule = %q", c.SweepSchedule())
	}

	code, body = do(t, srv, http.MethodGet, "/schedule", "")
	var info scheduleInfo
	if code != http.StatusOK || json.Unmarshal([]byte(body), &info) != nil || info.Cron != "@every 1h" {
		t.Errorf("GET /schedule = %d (%s)", code, body)
	}

	if code, body := do(t, srv, http.MethodPost, "/schedule/postpone", `"2h"`); code != http.StatusBadRequest {
		t.Errorf("postpone past the following run = %d (%s)", code, body)
	}

	if code, body := do(t, srv, http.MethodPut, "/schedule", `""`); code != http.StatusCreated {
		t.Errorf("clearing schedule = %d (%s)", code, body)
	}
	if c.SweepSchedule() != "" {
		t.Errorf("schedule not cleared: %q", c.SweepSchedule())
	}
}

func TestHandlersDutyFactor(t *testing.T) {
	srv, _ := newTestServer(t, false)

	code, body := do(t, srv, http.MethodGet, "/duty-factor?module=0xFD&firmware=199.2", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d (%s)", code, body)
	}
	var info dutyFactorInfo
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		t.Fatal(err)
	}
	if info.DutyFactor != 0.45 || info.Family != "Olympus" || !info.TPM || info.Firmware != "199.2" {
		t.Errorf("info = %+v", info)
	}
}

func TestHandlersJobs(t *testing.T) {
	srv, _ := newTestServer(t, true)

	if code, _ := do(t, srv, http.MethodDelete, "/job", ""); code != http.StatusNotFound {
		t.Errorf("DELETE /job with no job = %d", code)
	}
	if code, body := do(t, srv, http.MethodPost, "/sweep", `{"channels":[99]}`); code != http.StatusBadRequest {
		t.Errorf("POST /sweep with bad channel = %d (%s)", code, body)
	}
	if code, body := do(t, srv, http.MethodPost, "/calibration", ""); code != http.StatusAccepted {
		t.Fatalf("POST /calibration = %d (%s)", code, body)
	}
	if code, _ := do(t, srv, http.MethodPost, "/sweep", ""); code != http.StatusConflict {
		t.Errorf("POST /sweep while busy = %d, want 409", code)
	}

	code, body := do(t, srv, http.MethodGet, "/status", "")
	var st calibration.RunStatus
	if code != http.StatusOK || json.Unmarshal([]byte(body), &st) != nil || st.Phase != calibration.PhaseCalibrating {
		t.Errorf("GET /status = %d (%s)", code, body)
	}

	if code, _ := do(t, srv, http.MethodDelete, "/job", ""); code != http.StatusAccepted {
		t.Errorf("DELETE /job = %d", code)
	}
	runner.Wait()
}

func TestHandlersSweepRecords(t *testing.T) {
	srv, _ := newTestServer(t, false)

	if code, body := do(t, srv, http.MethodPost, "/sweep", `{"channels":[8, 9]}`); code != http.StatusAccepted {
		t.Fatalf("POST /sweep = %d (%s)", code, body)
	}
	runner.Wait()

	code, body := do(t, srv, http.MethodGet, "/records?limit=1", "")
	var recs []calibration.Record
	if code != http.StatusOK || json.Unmarshal([]byte(body), &recs) != nil {
		t.Fatalf("GET /records = %d (%s)", code, body)
	}
	if len(recs) != 1 || recs[0].Channel != 9 {
		t.Errorf("records = %+v", recs)
	}
}
