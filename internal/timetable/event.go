package timetable

import (
	"fmt"
	"strings"
)

// Event identifies one of the daily prayer times.
// The zero value is invalid; valid events are numbered in daily order.
type Event uint8

const (
	Fajr Event = iota + 1
	Dhuhr
	Asr
	Maghrib
	Isha
)

// NumEvents is the size of the closed Event enumeration.
const NumEvents = 5

var eventNames = [NumEvents + 1]string{"", "Fajr", "Dhuhr", "Asr", "Maghrib", "Isha"}

// Events lists every event in daily order.
func Events() []Event {
	return []Event{Fajr, Dhuhr, Asr, Maghrib, Isha}
}

func (e Event) Valid() bool { return e >= Fajr && e <= Isha }

func (e Event) String() string {
	if !e.Valid() {
		return fmt.Sprintf("Event(%d)", uint8(e))
	}
	return eventNames[e]
}

// index maps a valid event onto [0, NumEvents).
func (e Event) index() int { return int(e) - 1 }

// ParseEvent resolves an event name case-insensitively ("fajr", "FAJR", "Fajr").
func ParseEvent(s string) (Event, error) {
	s = strings.TrimSpace(s)
	for i := 1; i <= NumEvents; i++ {
		if strings.EqualFold(s, eventNames[i]) {
			return Event(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown event %q", ErrInvalidArgument, s)
}

func (e Event) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: invalid event %d", ErrInvalidArgument, uint8(e))
	}
	return []byte(e.String()), nil
}

func (e *Event) UnmarshalText(b []byte) error {
	v, err := ParseEvent(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Flags holds one enabled flag per event, indexed by the enumeration.
type Flags [NumEvents]bool

// AllEnabled returns a table with every flag set.
func AllEnabled() Flags {
	var f Flags
	for i := range f {
		f[i] = true
	}
	return f
}

func (f Flags) Get(e Event) bool {
	if !e.Valid() {
		return false
	}
	return f[e.index()]
}

func (f *Flags) Set(e Event, enabled bool) {
	if !e.Valid() {
		return
	}
	f[e.index()] = enabled
}
