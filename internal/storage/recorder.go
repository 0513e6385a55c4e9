package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"adhand/internal/eventbus"
	logx "adhand/pkg/logx"
)

// Recorder appends bus events to a Store.
type Recorder struct {
	store Store
	log   logx.Logger
}

func NewRecorder(store Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, log: log.With(logx.String("comp", "storage.recorder"))}
}

// Run consumes the bus until ctx is done.
func (r *Recorder) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			e, keep := EntryFor(ev)
			if !keep {
				continue
			}
			actx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := r.store.Append(actx, e)
			cancel()
			if err != nil {
				r.log.Warn("history append failed", logx.String("kind", e.Kind), logx.Err(err))
			}
		}
	}
}

// EntryFor maps a bus event to a history entry.
func EntryFor(ev eventbus.Event) (Entry, bool) {
	e := Entry{At: ev.Time, Kind: ev.Type, OK: true}
	switch d := ev.Data.(type) {
	case eventbus.TimetableData:
		e.Actor = "scheduler"
		e.Date = d.Date
		e.Detail = fmt.Sprintf("events=%d dropped=%d", d.Events, d.Dropped)
	case eventbus.AlertData:
		e.Actor = "scheduler"
		e.Date = d.Date
		e.Event = d.Event
		var parts []string
		if !d.At.IsZero() {
			parts = append(parts, "at="+d.At.Format(time.RFC3339))
		}
		if d.Reason != "" {
			parts = append(parts, "reason="+d.Reason)
		}
		e.Detail = strings.Join(parts, " ")
	case eventbus.PlaybackData:
		e.Actor = "playback"
		e.Event = d.Event
		e.Detail = fmt.Sprintf("session=%s clip=%s volume=%d", d.Session, d.Clip, d.Volume)
		if d.Reason != "" {
			e.Detail += fmt.Sprintf(" reason=%s took=%s", d.Reason, d.Took.Round(time.Second))
		}
		if d.Error != "" {
			e.OK = false
			e.Error = d.Error
		}
	case eventbus.ControlData:
		e.Actor = "http"
		if d.Remote != "" {
			e.Actor += ":" + d.Remote
		}
		e.Date = d.Date
		e.Event = d.Event
		e.Detail = "action=" + d.Action
		if d.Enabled != nil {
			e.Detail += fmt.Sprintf(" enabled=%t", *d.Enabled)
		}
		e.OK = d.OK
		e.Error = d.Error
	default:
		return Entry{}, false
	}
	return e, true
}
