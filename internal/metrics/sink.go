package metrics

import "time"

// Sink records daemon metrics. Methods are fire-and-forget: implementations
// must not block or return errors.
type Sink interface {
	// Scheduler
	TimetableFetched(duration time.Duration, err error)
	TimetableLoaded(events, dropped int)
	AlertFired(event string)
	AlertSkipped(event, reason string)
	ProviderCache(hit bool)

	// Playback
	SignalReceived(kind string)
	SessionStarted(event string)
	SessionEnded(reason string, duration time.Duration)
	VolumeChanged(level int)
	BackendFailure()

	// Notifier
	NotificationDelivered(sink string, err error)
}

// Session end reasons.
const (
	EndCompleted = "completed"
	EndStopped   = "stopped"
	EndShutdown  = "shutdown"
)

// Or returns s, or a NoopSink when s is nil.
func Or(s Sink) Sink {
	if s == nil {
		return NoopSink{}
	}
	return s
}
