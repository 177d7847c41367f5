package events

import (
	"encoding/json"

	"github.com/charlie0129/radiocal/pkg/calibration"
)

// Event name constants
const (
	SessionTransition = "session.transition"
	SessionRecord     = "session.record"
	JobStarted        = "job.started"
	JobFinished       = "job.finished"
	ScheduleAction    = "schedule.action"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// TransitionEvent is the typed payload for session.transition.
type TransitionEvent struct {
	From   calibration.State  `json:"from"`
	To     calibration.State  `json:"to"`
	Status calibration.Status `json:"status"`
	Ts     int64              `json:"ts"`
}

// RecordEvent is the typed payload for session.record.
type RecordEvent = calibration.Record

// JobEvent is the typed payload for job.started and job.finished.
type JobEvent struct {
	Job   string `json:"job"`
	Kind  string `json:"kind"`
	Error string `json:"error,omitempty"`
	// Result is set for finished calibration jobs.
	Result *calibration.Result `json:"result,omitempty"`
	Ts     int64               `json:"ts"`
}

// ScheduleActionEvent is the typed payload for schedule.action.
type ScheduleActionEvent struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.TransitionEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.From, payload.To)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
