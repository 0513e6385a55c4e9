package httpapi

import (
	"context"
	"net/http"
	"time"

	"adhand/internal/eventbus"
	"adhand/internal/playback"
	"adhand/internal/runtime/supervisor"
	"adhand/internal/scheduler"
	"adhand/internal/storage"
	"adhand/internal/timetable"
)

// Config controls the HTTP server.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	CORSOrigins   []string
	StaticDir     string
	Pprof         bool
	MetricsPath   string

	// ControlRate limits mutating requests per second; 0 disables the limit.
	ControlRate  float64
	ControlBurst int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

const (
	DefaultAddr        = "127.0.0.1:3000"
	DefaultMetricsPath = "/metrics"
)

// StatusSource reports the playback controller state.
type StatusSource interface {
	Status() playback.Status
}

// NextSource reports the alert the scheduler is waiting for.
type NextSource interface {
	NextAlert() (scheduler.Next, bool)
}

// HistorySource serves audit entries, newest first.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]storage.Entry, error)
}

// Deps are the collaborators the routes act on. Store and Signals are
// required; the rest are optional.
type Deps struct {
	Store    *timetable.Store
	Signals  playback.Sender
	Location *time.Location

	Playback StatusSource
	Next     NextSource
	History  HistorySource
	Bus      eventbus.Bus
	Health   func() supervisor.Snapshot
	Metrics  http.Handler
}

// EventView is one entry of a day.
type EventView struct {
	Event   string `json:"event"`
	Time    string `json:"time"`
	Enabled bool   `json:"enabled"`
}

// DayView is the wire form of a DayTimetable. Timings and PlayAdhan repeat
// Events keyed by clock and by event name for older clients.
type DayView struct {
	Date      string            `json:"date"`
	Timestamp int64             `json:"timestamp"`
	Events    []EventView       `json:"events"`
	Timings   map[string]string `json:"timings"`
	PlayAdhan map[string]bool   `json:"play_adhan"`
}

type SessionView struct {
	ID      string    `json:"id"`
	Event   string    `json:"event"`
	Clip    string    `json:"clip"`
	Volume  int       `json:"volume"`
	Started time.Time `json:"started"`
}

type NextView struct {
	Date  string    `json:"date"`
	Event string    `json:"event"`
	At    time.Time `json:"at"`
}

type StatusView struct {
	State   string       `json:"state"`
	Session *SessionView `json:"session,omitempty"`
	Next    *NextView    `json:"next,omitempty"`
	Days    int          `json:"days"`
	Queued  int          `json:"queued"`
}

// enabledRequest accepts "enabled" or the older "play_adhan" key.
type enabledRequest struct {
	Enabled   *bool `json:"enabled"`
	PlayAdhan *bool `json:"play_adhan"`
}

func (r enabledRequest) value() (bool, bool) {
	switch {
	case r.Enabled != nil:
		return *r.Enabled, true
	case r.PlayAdhan != nil:
		return *r.PlayAdhan, true
	}
	return false, false
}

type playRequest struct {
	Event string `json:"event"`
}
