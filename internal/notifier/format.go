package notifier

import (
	"fmt"

	"adhand/internal/eventbus"
)

// Format renders a bus event as an operator message. It reports false for
// events with no operator-facing form.
func Format(ev eventbus.Event) (Notification, bool) {
	n := Notification{Kind: ev.Type, At: ev.Time, Payload: ev.Data}
	switch d := ev.Data.(type) {
	case eventbus.AlertData:
		switch ev.Type {
		case eventbus.AlertFired:
			n.Text = fmt.Sprintf("🕌 %s adhan at %s (%s)", d.Event, d.At.Format("15:04"), d.Date)
		case eventbus.AlertSkipped:
			n.Text = fmt.Sprintf("⏭ %s skipped on %s: %s", d.Event, d.Date, d.Reason)
		default:
			return Notification{}, false
		}
	case eventbus.PlaybackData:
		if ev.Type != eventbus.PlaybackFailed {
			return Notification{}, false
		}
		n.Text = fmt.Sprintf("🚨 playback failed for %s (%s): %s", d.Event, d.Clip, d.Error)
	case eventbus.TimetableData:
		n.Text = fmt.Sprintf("📅 timetable %s loaded: %d events, %d dropped", d.Date, d.Events, d.Dropped)
	case eventbus.ControlData:
		status := "ok"
		if !d.OK {
			status = "failed: " + d.Error
		}
		n.Text = fmt.Sprintf("🎛 %s from %s %s", d.Action, d.Remote, status)
	default:
		return Notification{}, false
	}
	return n, true
}
