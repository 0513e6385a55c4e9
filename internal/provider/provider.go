// Package provider fetches daily timetables from a timing source.
package provider

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"adhand/internal/timetable"
)

// ErrUnavailable wraps every failure to obtain a timetable.
var ErrUnavailable = errors.New("provider: timetable unavailable")

// Tune holds per-event minute offsets applied by the source.
type Tune struct {
	Fajr    int
	Dhuhr   int
	Asr     int
	Maghrib int
	Isha    int
}

// Location selects where and how times are computed. City/Country take
// precedence over coordinates when both are set.
type Location struct {
	City      string
	Country   string
	Latitude  float64
	Longitude float64
	HasCoords bool
	Method    int
	School    int
	Timezone  string
	Tune      Tune
}

// Key is a short stable identity of l, used for cache keys.
func (l Location) Key() string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%s|%v|%.6f|%.6f|%d|%d|%s|%+v",
		l.City, l.Country, l.HasCoords, l.Latitude, l.Longitude, l.Method, l.School, l.Timezone, l.Tune)
	return strconv.FormatUint(h.Sum64(), 36)
}

// Provider returns the (clock, name) slots of one local date.
// Clocks are already resolved to the location's local time.
type Provider interface {
	Fetch(ctx context.Context, date time.Time, loc Location) ([]timetable.Slot, error)
}

// Func adapts a function to Provider.
type Func func(ctx context.Context, date time.Time, loc Location) ([]timetable.Slot, error)

func (f Func) Fetch(ctx context.Context, date time.Time, loc Location) ([]timetable.Slot, error) {
	return f(ctx, date, loc)
}
