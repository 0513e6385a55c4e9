package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRollover starts each day five minutes after local midnight, clear
// of the timing source's own day boundary.
const DefaultRollover = "5 0 * * *"

// MaxRolloverOffset bounds how far past local midnight a day may start.
const MaxRolloverOffset = time.Hour

var rolloverParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Rollover decides when the next day's timetable is loaded.
type Rollover struct {
	spec  string
	sched cron.Schedule
}

func ParseRollover(spec string) (Rollover, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultRollover
	}
	s, err := rolloverParser.Parse(spec)
	if err != nil {
		return Rollover{}, fmt.Errorf("parse rollover %q: %w", spec, err)
	}
	if err := checkDaily(s); err != nil {
		return Rollover{}, fmt.Errorf("rollover %q: %w", spec, err)
	}
	return Rollover{spec: spec, sched: s}, nil
}

// Next returns the first rollover strictly after t, evaluated in t's location.
func (r Rollover) Next(after time.Time) time.Time {
	if r.sched == nil {
		r, _ = ParseRollover(DefaultRollover)
	}
	return r.sched.Next(after)
}

func (r Rollover) String() string {
	if r.spec == "" {
		return DefaultRollover
	}
	return r.spec
}

// checkDaily walks a leap year of firings and requires exactly one per
// calendar day, inside (00:00, 00:00+MaxRolloverOffset).
func checkDaily(s cron.Schedule) error {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := day.Add(-time.Minute)
	for i := 0; i < 366; i++ {
		at = s.Next(at)
		if at.IsZero() {
			return errors.New("never fires")
		}
		if y, m, d := at.Date(); y != day.Year() || m != day.Month() || d != day.Day() {
			return fmt.Errorf("must fire once every day, next after %s is %s",
				day.AddDate(0, 0, -1).Format(time.DateOnly), at.Format("2006-01-02 15:04"))
		}
		if off := at.Sub(day); off <= 0 || off >= MaxRolloverOffset {
			return fmt.Errorf("must fire within %s after midnight, got %s", MaxRolloverOffset, at.Format("15:04"))
		}
		day = day.AddDate(0, 0, 1)
	}
	return nil
}
