package calibration

import (
	"errors"
	"strings"
	"testing"
)

func TestStatusCatalogue(t *testing.T) {
	if got := len(Statuses()); got != 25 {
		t.Fatalf("len(Statuses()) = %d, want 25", got)
	}
	if StatusOK.String() != "RADIOCAL_OK" || !StatusOK.OK() {
		t.Errorf("StatusOK = %s", StatusOK)
	}
	if StatusUndefinedFailure.String() != "RADIOCAL_UNDEFINED_FAILURE" {
		t.Errorf("StatusUndefinedFailure = %s", StatusUndefinedFailure)
	}
	for _, s := range Statuses() {
		parsed, err := ParseStatus(s.String())
		if err != nil || parsed != s {
			t.Errorf("ParseStatus(%s) = %v, %v", s, parsed, err)
		}
		if s != StatusOK && s.OK() {
			t.Errorf("%s must not be OK", s)
		}
	}
	if got := Status(99).String(); got != "RADIOCAL_STATUS(99)" {
		t.Errorf("Status(99).String() = %s", got)
	}
}

func TestStatusError(t *testing.T) {
	s1, _ := ParseState("RADIOCALSTATE_F0_P0")
	var err error = &StatusError{Status: StatusFailedToSetCalPoint, State: s1}

	var se *StatusError
	if !errors.As(err, &se) || se.Status != StatusFailedToSetCalPoint {
		t.Fatalf("errors.As failed for %v", err)
	}
	if !strings.Contains(err.Error(), "RADIOCAL_FAILED_TO_SET_CAL_POINT") {
		t.Errorf("Error() = %s", err)
	}
}
