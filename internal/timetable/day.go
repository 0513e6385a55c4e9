package timetable

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the key format of a DayTimetable.
const DateLayout = "2006-01-02"

var (
	ErrPassed    = errors.New("timetable: event time already passed")
	ErrDuplicate = errors.New("timetable: duplicate entry")
)

// Clock is a local time of day in seconds since midnight.
type Clock int32

// NoCutoff keeps every slot when passed to Build.
const NoCutoff Clock = -1

// ClockOf returns the time-of-day of t in t's location.
func ClockOf(t time.Time) Clock {
	h, m, s := t.Clock()
	return Clock(h*3600 + m*60 + s)
}

// ParseClock accepts "HH:MM" or "HH:MM:SS", optionally followed by a zone
// annotation such as "04:40 (NZDT)".
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t("); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: malformed clock %q", ErrInvalidArgument, s)
	}
	limits := [3]int{23, 59, 59}
	var v [3]int
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("%w: malformed clock %q", ErrInvalidArgument, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("%w: malformed clock %q", ErrInvalidArgument, s)
		}
		v[i] = n
	}
	return Clock(v[0]*3600 + v[1]*60 + v[2]), nil
}

func (c Clock) String() string {
	if c < 0 {
		return "--:--:--"
	}
	return fmt.Sprintf("%02d:%02d:%02d", c/3600, (c/60)%60, c%60)
}

func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// On returns the instant of c on the given date in loc.
func (c Clock) On(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidArgument, date)
	}
	y, m, day := d.Date()
	sec := int(c)
	return time.Date(y, m, day, sec/3600, (sec/60)%60, sec%60, 0, loc), nil
}

// Slot is one raw (clock, name) pair as returned by a timetable provider.
type Slot struct {
	Clock string
	Name  string
}

// Entry is a parsed slot.
type Entry struct {
	Clock Clock
	Event Event
}

// DayTimetable is the timetable of one calendar date.
// Entries are sorted by clock with no duplicate clocks or events.
type DayTimetable struct {
	Date    string
	Entries []Entry
	Enabled Flags
}

// Dropped reports a slot that Build refused.
type Dropped struct {
	Slot Slot
	Err  error
}

// Build parses slots into a DayTimetable for date with every flag enabled.
// Slots earlier than cutoff are dropped with ErrPassed; pass NoCutoff to keep all.
// Malformed or duplicate slots are dropped too and reported back.
func Build(date string, slots []Slot, cutoff Clock) (DayTimetable, []Dropped) {
	day := DayTimetable{Date: date, Enabled: AllEnabled()}
	var dropped []Dropped

	entries := make([]Entry, 0, len(slots))
	for _, sl := range slots {
		ev, err := ParseEvent(sl.Name)
		if err != nil {
			dropped = append(dropped, Dropped{Slot: sl, Err: err})
			continue
		}
		c, err := ParseClock(sl.Clock)
		if err != nil {
			dropped = append(dropped, Dropped{Slot: sl, Err: err})
			continue
		}
		if c < cutoff {
			dropped = append(dropped, Dropped{Slot: sl, Err: ErrPassed})
			continue
		}
		entries = append(entries, Entry{Clock: c, Event: ev})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Clock < entries[j].Clock })

	var seen Flags
	out := entries[:0]
	for _, e := range entries {
		if seen.Get(e.Event) || (len(out) > 0 && out[len(out)-1].Clock == e.Clock) {
			dropped = append(dropped, Dropped{
				Slot: Slot{Clock: e.Clock.String(), Name: e.Event.String()},
				Err:  ErrDuplicate,
			})
			continue
		}
		seen.Set(e.Event, true)
		out = append(out, e)
	}
	day.Entries = out
	return day, dropped
}

// Has reports whether e is scheduled on this day.
func (d DayTimetable) Has(e Event) bool {
	for _, en := range d.Entries {
		if en.Event == e {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (d DayTimetable) Clone() DayTimetable {
	out := d
	if d.Entries != nil {
		out.Entries = append([]Entry(nil), d.Entries...)
	}
	return out
}

// Equal compares dates, entries and flags.
func (d DayTimetable) Equal(o DayTimetable) bool {
	if d.Date != o.Date || d.Enabled != o.Enabled || len(d.Entries) != len(o.Entries) {
		return false
	}
	for i := range d.Entries {
		if d.Entries[i] != o.Entries[i] {
			return false
		}
	}
	return true
}
