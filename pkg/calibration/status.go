package calibration

import (
	"fmt"
)

// Status is the outcome code returned by the device for every state transition.
type Status int

// statusNames is indexed by Status; order matches the device firmware.
var statusNames = []string{
	"RADIOCAL_OK",
	"RADIOCAL_INVALID_POINTER",
	"RADIOCAL_INVALID_STATE_POINTER",
	"RADIOCAL_INVALID_STATE_TRANSITION",
	"RADIOCAL_FAILED_TO_READ_MFG_SECTION_DATA",
	"RADIOCAL_FAILED_TO_ERASE_MFG_SECTION_DATA",
	"RADIOCAL_FAILED_TO_WRITE_MFG_SECTION_DATA",
	"RADIOCAL_FAILED_TO_INITIALIZE_STATIC_TX_PARAMETERS",
	"RADIOCAL_FAILED_TO_ENABLE_POWER_COMPENSATION",
	"RADIOCAL_FAILED_TO_DISABLE_POWER_COMPENSATION",
	"RADIOCAL_INVALID_MEASUREMENT_POINTER",
	"RADIOCAL_FAILED_TO_REGISTER_TX_PARAMETERS",
	"RADIOCAL_FAILED_TO_SET_CAL_POINT",
	"RADIOCAL_FAILED_TO_RETRIEVE_TEMPERATURE",
	"RADIOCAL_INVALID_CAL_PARAMETERS",
	"RADIOCAL_INVALID_CAL_POINT",
	"RADIOCAL_INVALID_CAL_MEASUREMENT",
	"RADIOCAL_INVALID_STATE_INFO_STATE",
	"RADIOCAL_INVALID_STATE_FOR_TXGC_UPDATE",
	"RADIOCAL_SLOPE_INTERCEPT_DIVIDE_BY_ZERO_ERROR",
	"RADIOCAL_INVALID_CORRECTION_DATA",
	"RADIOCAL_FAILED_TO_READ_REGISTER",
	"RADIOCAL_FAILED_TO_WRITE_REGISTER",
	"RADIOCAL_FAILED_WHILE_UPDATING_RADIO_CAL_BLOCK",
	"RADIOCAL_UNDEFINED_FAILURE",
}

const (
	StatusOK Status = iota
	StatusInvalidPointer
	StatusInvalidStatePointer
	StatusInvalidStateTransition
	StatusFailedToReadMfgSection
	StatusFailedToEraseMfgSection
	StatusFailedToWriteMfgSection
	StatusFailedToInitStaticTxParams
	StatusFailedToEnablePowerComp
	StatusFailedToDisablePowerComp
	StatusInvalidMeasurementPointer
	StatusFailedToRegisterTxParams
	StatusFailedToSetCalPoint
	StatusFailedToRetrieveTemperature
	StatusInvalidCalParameters
	StatusInvalidCalPoint
	StatusInvalidCalMeasurement
	StatusInvalidStateInfoState
	StatusInvalidStateForTxgcUpdate
	StatusSlopeInterceptDivideByZero
	StatusInvalidCorrectionData
	StatusFailedToReadRegister
	StatusFailedToWriteRegister
	StatusFailedWhileUpdatingCalBlock
	StatusUndefinedFailure
)

var statusByName = func() map[string]Status {
	m := make(map[string]Status, len(statusNames))
	for i, n := range statusNames {
		m[n] = Status(i)
	}
	return m
}()

// Statuses returns all known status codes in firmware order.
func Statuses() []Status {
	s := make([]Status, len(statusNames))
	for i := range statusNames {
		s[i] = Status(i)
	}
	return s
}

// ParseStatus looks a status up by its canonical name.
func ParseStatus(name string) (Status, error) {
	s, ok := statusByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown calibration status %q", name)
	}
	return s, nil
}

// OK reports whether the session may continue.
func (s Status) OK() bool { return s == StatusOK }

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("RADIOCAL_STATUS(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StatusError is returned when the device reports a non-OK status.
type StatusError struct {
	Status Status
	// State is the state the device was asked to enter.
	State State
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("calibration failed at %s: %d (%s)", e.State, int(e.Status), e.Status)
}
