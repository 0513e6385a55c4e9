package eventbus

import "time"

// Event types published by the core.
const (
	TimetableLoaded = "timetable.loaded"
	AlertFired      = "alert.fired"
	AlertSkipped    = "alert.skipped"
	PlaybackStarted = "playback.started"
	PlaybackStopped = "playback.stopped"
	PlaybackFailed  = "playback.failed"
	ControlAction   = "control.action"
)

type TimetableData struct {
	Date    string
	Events  int
	Dropped int
}

// AlertData describes a scheduled event reaching its time.
// Reason is set for skipped alerts ("disabled", "late", "unknown_date").
type AlertData struct {
	Date   string
	Event  string
	At     time.Time
	Reason string
}

type PlaybackData struct {
	Session string
	Event   string
	Clip    string
	Volume  int
	Reason  string
	Took    time.Duration
	Error   string
}

// ControlData records an operator action from the control surface.
type ControlData struct {
	Action  string
	Date    string
	Event   string
	Enabled *bool
	Remote  string
	OK      bool
	Error   string
}
