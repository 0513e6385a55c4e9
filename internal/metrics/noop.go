package metrics

import "time"

// NoopSink discards all metrics.
type NoopSink struct{}

var _ Sink = NoopSink{}

func (NoopSink) TimetableFetched(time.Duration, error) {}
func (NoopSink) TimetableLoaded(int, int)              {}
func (NoopSink) AlertFired(string)                     {}
func (NoopSink) AlertSkipped(string, string)           {}
func (NoopSink) ProviderCache(bool)                    {}
func (NoopSink) SignalReceived(string)                 {}
func (NoopSink) SessionStarted(string)                 {}
func (NoopSink) SessionEnded(string, time.Duration)    {}
func (NoopSink) VolumeChanged(int)                     {}
func (NoopSink) BackendFailure()                       {}
func (NoopSink) NotificationDelivered(string, error)   {}
