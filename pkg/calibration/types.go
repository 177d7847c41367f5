package calibration

import "time"

// Measurement is an aggregated power reading in dBm. The zero value carries no
// measurement.
type Measurement struct {
	Value   float64 `json:"value"`
	Present bool    `json:"present"`
}

// None is passed to the device for actuation-only states.
var None = Measurement{}

// Of wraps an aggregated reading.
func Of(v float64) Measurement { return Measurement{Value: v, Present: true} }

// Result is the outcome of one calibration session.
type Result struct {
	Status Status `json:"status"`
	// State is the last state reported by the device.
	State      State     `json:"state"`
	Steps      int       `json:"steps"`
	Rounds     int       `json:"rounds"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Message    string    `json:"message,omitempty"`
}

// Succeeded reports whether the session reached IDLE with an OK status.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status.OK() && r.State == StateIdle
}

// Record is one measured step, in the column order of the bench CSV files.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	MAC         string    `json:"mac,omitempty"`
	State       State     `json:"state"`
	Channel     int       `json:"channel"`
	Temperature int       `json:"temperature"`
	GainControl int       `json:"txgc"`
	Power       float64   `json:"txpo"`
	PDOut       int       `json:"pdout"`
	Delay       int       `json:"delay,omitempty"`
	NSamples    int       `json:"nsamples,omitempty"`
	SampleCount int       `json:"sampleCount"`
}

// Phase is the coarse activity of the daemon's runner.
type Phase string

const (
	PhaseIdle        Phase = "Idle"
	PhaseCalibrating Phase = "Calibrating"
	PhaseSweeping    Phase = "Sweeping"
	PhaseError       Phase = "Error"
)

// RunStatus is a synthesized view model exposed via HTTP and printed by the CLI.
type RunStatus struct {
	Phase     Phase     `json:"phase"`
	State     State     `json:"state"`
	Job       string    `json:"job,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	Records   int       `json:"records"`
	LastError string    `json:"lastError,omitempty"`
	Last      *Result   `json:"last,omitempty"`
	// ScheduledAt is the next scheduled sweep, zero when none is scheduled.
	ScheduledAt time.Time `json:"scheduledAt,omitempty"`
}
