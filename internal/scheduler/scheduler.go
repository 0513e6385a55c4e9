// Package scheduler runs the daily loop: load the day's timetable, wait for
// each event and ask the playback controller to play it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"adhand/internal/eventbus"
	"adhand/internal/metrics"
	"adhand/internal/playback"
	"adhand/internal/provider"
	"adhand/internal/timetable"
	logx "adhand/pkg/logx"
)

// DefaultMaxSleep caps a single sleep so wall-clock jumps (suspend, NTP
// steps) are noticed within a minute.
const DefaultMaxSleep = time.Minute

type Config struct {
	Location *time.Location
	Rollover Rollover
	Where    provider.Location
	MaxSleep time.Duration
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Rollover.sched == nil {
		c.Rollover, _ = ParseRollover(DefaultRollover)
	}
	if c.MaxSleep <= 0 {
		c.MaxSleep = DefaultMaxSleep
	}
	return c
}

// Next describes the alert the scheduler is currently waiting for.
type Next struct {
	Date  string
	Event timetable.Event
	At    time.Time
}

// Scheduler owns the day loop. It is the only writer of whole DayTimetable
// records to the store.
type Scheduler struct {
	provider provider.Provider
	store    *timetable.Store
	signals  playback.Sender
	log      logx.Logger
	bus      eventbus.Bus
	metrics  metrics.Sink

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	cfg  Config
	next *Next
}

type Option func(*Scheduler)

func WithBus(b eventbus.Bus) Option     { return func(s *Scheduler) { s.bus = b } }
func WithMetrics(m metrics.Sink) Option { return func(s *Scheduler) { s.metrics = metrics.Or(m) } }

// WithClock replaces time.Now and the sleep primitive; used by tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

func New(cfg Config, p provider.Provider, store *timetable.Store, signals playback.Sender, log logx.Logger, opts ...Option) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		provider: p,
		store:    store,
		signals:  signals,
		log:      log.With(logx.String("comp", "scheduler")),
		metrics:  metrics.NoopSink{},
		now:      time.Now,
		sleep:    sleepCtx,
		cfg:      cfg.withDefaults(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Apply replaces the configuration. It takes effect at the next day start;
// the day in progress keeps its timetable.
func (s *Scheduler) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Scheduler) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// NextAlert returns the alert being waited for, if any.
func (s *Scheduler) NextAlert() (Next, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		return Next{}, false
	}
	return *s.next, true
}

func (s *Scheduler) setNext(n *Next) {
	s.mu.Lock()
	s.next = n
	s.mu.Unlock()
}

// Run loops over calendar days until ctx is done or a day fails. A provider
// failure or a closed signal channel is returned as an error; the caller is
// expected to treat it as fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started")
	for {
		if err := s.RunDay(ctx); err != nil {
			return err
		}
		cfg := s.config()
		until := cfg.Rollover.Next(s.now().In(cfg.Location))
		s.log.Info("day complete; waiting for rollover",
			logx.Time("until", until),
			logx.String("rollover", cfg.Rollover.String()),
		)
		if err := s.sleepUntil(ctx, until, cfg.MaxSleep); err != nil {
			return err
		}
	}
}

// RunDay loads today's timetable and serves its remaining events.
func (s *Scheduler) RunDay(ctx context.Context) error {
	cfg := s.config()
	day, err := s.Load(ctx, s.now().In(cfg.Location))
	if err != nil {
		return err
	}
	defer s.setNext(nil)

	for _, en := range day.Entries {
		at, err := en.Clock.On(day.Date, cfg.Location)
		if err != nil {
			return err
		}
		log := s.log.With(logx.String("date", day.Date), logx.String("event", en.Event.String()))

		if wait := at.Sub(s.now()); wait <= 0 {
			log.Warn("event time passed before it could be waited for; skipping", logx.Duration("late", -wait))
			s.skipped(day.Date, en.Event, at, "late")
			continue
		}

		s.setNext(&Next{Date: day.Date, Event: en.Event, At: at})
		log.Debug("waiting for event", logx.Time("at", at))
		if err := s.sleepUntil(ctx, at, cfg.MaxSleep); err != nil {
			return err
		}

		// Read the flag after waking so late toggles are honoured.
		enabled, err := s.store.Enabled(day.Date, en.Event)
		if err != nil {
			log.Warn("timetable vanished from store; skipping", logx.Err(err))
			s.skipped(day.Date, en.Event, at, "unknown_date")
			continue
		}
		if !enabled {
			log.Info("alert disabled; not playing")
			s.skipped(day.Date, en.Event, at, "disabled")
			continue
		}

		if err := s.signals.Send(ctx, playback.Play(en.Event)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("signal play %s: %w", en.Event, err)
		}
		log.Info("alert fired", logx.Time("at", at))
		s.metrics.AlertFired(en.Event.String())
		eventbus.Publish(s.bus, eventbus.AlertFired, eventbus.AlertData{Date: day.Date, Event: en.Event.String(), At: at})
	}
	return nil
}

// Load fetches the timetable for the date of now, drops events earlier than
// now and publishes the result to the store.
func (s *Scheduler) Load(ctx context.Context, now time.Time) (timetable.DayTimetable, error) {
	cfg := s.config()
	now = now.In(cfg.Location)
	date := now.Format(timetable.DateLayout)

	start := time.Now()
	slots, err := s.provider.Fetch(ctx, now, cfg.Where)
	s.metrics.TimetableFetched(time.Since(start), err)
	if err != nil {
		if ctx.Err() != nil {
			return timetable.DayTimetable{}, ctx.Err()
		}
		s.log.Error("timetable fetch failed", logx.String("date", date), logx.Err(err))
		return timetable.DayTimetable{}, fmt.Errorf("fetch timetable for %s: %w", date, err)
	}

	// The fetch may have taken a while; filter against the current instant.
	cutoff := timetable.ClockOf(s.now().In(cfg.Location))
	if s.now().In(cfg.Location).Format(timetable.DateLayout) != date {
		cutoff = timetable.NoCutoff
	}
	day, dropped := timetable.Build(date, slots, cutoff)
	for _, d := range dropped {
		f := []logx.Field{
			logx.String("date", date),
			logx.String("name", d.Slot.Name),
			logx.String("clock", d.Slot.Clock),
			logx.Err(d.Err),
		}
		if errors.Is(d.Err, timetable.ErrPassed) {
			s.log.Debug("event already passed; dropped", f...)
			continue
		}
		s.log.Warn("malformed timetable slot dropped", f...)
	}

	day = s.store.Publish(day)
	s.metrics.TimetableLoaded(len(day.Entries), len(dropped))
	s.log.Info("timetable loaded",
		logx.String("date", date),
		logx.Int("events", len(day.Entries)),
		logx.Int("dropped", len(dropped)),
	)
	eventbus.Publish(s.bus, eventbus.TimetableLoaded, eventbus.TimetableData{
		Date: date, Events: len(day.Entries), Dropped: len(dropped),
	})
	return day, nil
}

func (s *Scheduler) skipped(date string, e timetable.Event, at time.Time, reason string) {
	s.metrics.AlertSkipped(e.String(), reason)
	eventbus.Publish(s.bus, eventbus.AlertSkipped, eventbus.AlertData{
		Date: date, Event: e.String(), At: at, Reason: reason,
	})
}

// sleepUntil waits for the wall clock to reach at, in slices of at most
// maxSleep so a jump of the wall clock is picked up.
func (s *Scheduler) sleepUntil(ctx context.Context, at time.Time, maxSleep time.Duration) error {
	for {
		d := at.Sub(s.now())
		if d <= 0 {
			return nil
		}
		if maxSleep > 0 && d > maxSleep {
			d = maxSleep
		}
		if err := s.sleep(ctx, d); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
