package provider

import (
	"context"
	"fmt"
	"time"

	"adhand/internal/timetable"
)

// Static returns the same clock for each event every day.
type Static struct {
	slots []timetable.Slot
}

var _ Provider = (*Static)(nil)

// NewStatic validates times (event name -> "HH:MM[:SS]").
func NewStatic(times map[string]string) (*Static, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("static provider: no times configured")
	}
	byEvent := map[timetable.Event]string{}
	for name, clock := range times {
		e, err := timetable.ParseEvent(name)
		if err != nil {
			return nil, fmt.Errorf("static provider: %w", err)
		}
		if _, err := timetable.ParseClock(clock); err != nil {
			return nil, fmt.Errorf("static provider: %s: %w", name, err)
		}
		byEvent[e] = clock
	}
	s := &Static{}
	for _, e := range timetable.Events() {
		if c, ok := byEvent[e]; ok {
			s.slots = append(s.slots, timetable.Slot{Clock: c, Name: e.String()})
		}
	}
	return s, nil
}

func (s *Static) Fetch(ctx context.Context, _ time.Time, _ Location) ([]timetable.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]timetable.Slot(nil), s.slots...), nil
}
