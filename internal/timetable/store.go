package timetable

import (
	"fmt"
	"sort"
	"sync"
)

// Store is a date-keyed table of DayTimetable records.
//
// All methods are safe for concurrent use and atomic with respect to each
// other. Records are copied on the way in and on the way out, so callers
// never share memory with the table. Entries are never removed.
type Store struct {
	mu   sync.Mutex
	days map[string]DayTimetable
}

func NewStore() *Store {
	return &Store{days: map[string]DayTimetable{}}
}

// GetAll returns every stored record. The order is unspecified; callers
// that need a stable order must sort the result themselves.
func (s *Store) GetAll() []DayTimetable {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DayTimetable, 0, len(s.days))
	for _, d := range s.days {
		out = append(out, d.Clone())
	}
	return out
}

func (s *Store) Get(date string) (DayTimetable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.days[date]
	if !ok {
		return DayTimetable{}, false
	}
	return d.Clone(), true
}

func (s *Store) Set(date string, rec DayTimetable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[date] = rec.Clone()
}

// SetAll stores recs[i] under dates[i]. Both slices must have the same length.
func (s *Store) SetAll(dates []string, recs []DayTimetable) error {
	if len(dates) != len(recs) {
		return fmt.Errorf("%w: %d dates for %d records", ErrInvalidArgument, len(dates), len(recs))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, date := range dates {
		s.days[date] = recs[i].Clone()
	}
	return nil
}

// PatchEnabled sets one event's flag on one date.
func (s *Store) PatchEnabled(date string, e Event, enabled bool) error {
	if !e.Valid() {
		return fmt.Errorf("%w: invalid event %d", ErrInvalidArgument, uint8(e))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.days[date]
	if !ok {
		return fmt.Errorf("%w: date %q", ErrNotFound, date)
	}
	d.Enabled.Set(e, enabled)
	s.days[date] = d
	return nil
}

// Enabled reads the current flag of e on date.
func (s *Store) Enabled(date string, e Event) (bool, error) {
	if !e.Valid() {
		return false, fmt.Errorf("%w: invalid event %d", ErrInvalidArgument, uint8(e))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.days[date]
	if !ok {
		return false, fmt.Errorf("%w: date %q", ErrNotFound, date)
	}
	return d.Enabled.Get(e), nil
}

// SetAllEnabled sets every flag of every stored record and returns the
// number of records touched.
func (s *Store) SetAllEnabled(enabled bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for date, d := range s.days {
		for _, e := range Events() {
			d.Enabled.Set(e, enabled)
		}
		s.days[date] = d
	}
	return len(s.days)
}

// Publish inserts rec under rec.Date. If a record for the same date is
// already stored its flags win over rec's, so a re-fetch never re-enables an
// alert that was switched off. The stored record is returned.
func (s *Store) Publish(rec DayTimetable) DayTimetable {
	rec = rec.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.days[rec.Date]; ok {
		rec.Enabled = prev.Enabled
	}
	s.days[rec.Date] = rec
	return rec.Clone()
}

// Latest returns the record with the greatest date.
func (s *Store) Latest() (DayTimetable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  string
		found bool
	)
	for date := range s.days {
		if !found || date > best {
			best, found = date, true
		}
	}
	if !found {
		return DayTimetable{}, false
	}
	return s.days[best].Clone(), true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.days)
}

// SortByDate orders records by ascending date in place.
func SortByDate(days []DayTimetable) {
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
}
