package playback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"adhand/internal/eventbus"
	"adhand/internal/metrics"
	"adhand/internal/timetable"
	logx "adhand/pkg/logx"
)

type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
)

// Session is the live state of one firing alert.
type Session struct {
	ID      string
	Event   timetable.Event
	Clip    string
	Volume  int
	Started time.Time
}

// Status is a snapshot of the controller.
type Status struct {
	State   State
	Session *Session
}

// Controller is the single consumer of the signal channel and owns the
// only playback session.
//
// Idle -> Play -> Playing -> (clip ends | Stop) -> Idle.
type Controller struct {
	backend Backend
	signals *Channel
	log     logx.Logger
	bus     eventbus.Bus
	metrics metrics.Sink
	now     func() time.Time

	mu      sync.Mutex
	cfg     Config
	session *Session
}

type Option func(*Controller)

func WithBus(b eventbus.Bus) Option         { return func(c *Controller) { c.bus = b } }
func WithMetrics(m metrics.Sink) Option     { return func(c *Controller) { c.metrics = metrics.Or(m) } }
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

func NewController(cfg Config, backend Backend, signals *Channel, log logx.Logger, opts ...Option) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Controller{
		backend: backend,
		signals: signals,
		log:     log.With(logx.String("comp", "playback")),
		metrics: metrics.NoopSink{},
		now:     time.Now,
		cfg:     cfg.withDefaults(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Apply replaces the configuration used by the next session.
func (c *Controller) Apply(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg.withDefaults()
	c.mu.Unlock()
}

func (c *Controller) config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Status{State: StateIdle}
	}
	s := *c.session
	return Status{State: StatePlaying, Session: &s}
}

func (c *Controller) setSession(s *Session) {
	c.mu.Lock()
	if s == nil {
		c.session = nil
	} else {
		cp := *s
		c.session = &cp
	}
	c.mu.Unlock()
}

// Run consumes signals until ctx is done. The signal channel is closed on
// return so producers observe ErrClosed.
func (c *Controller) Run(ctx context.Context) error {
	defer c.signals.Close()
	c.log.Info("playback controller started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("playback controller stopped")
			return ctx.Err()
		case sig := <-c.signals.C():
			c.metrics.SignalReceived(sig.Kind.String())
			c.handleIdle(ctx, sig)
		}
	}
}

func (c *Controller) handleIdle(ctx context.Context, sig Signal) {
	switch sig.Kind {
	case SignalPlay:
		c.play(ctx, sig.Event)
	case SignalStop:
		c.log.Debug("stop while idle; nothing to do")
	case SignalVolumeUp, SignalVolumeDown:
		c.log.Debug("volume signal while idle; ignored", logx.String("signal", sig.String()))
	default:
		c.log.Warn("unknown signal ignored", logx.Int("kind", int(sig.Kind)))
	}
}

func (c *Controller) play(ctx context.Context, ev timetable.Event) {
	if stale := c.signals.Drain(); len(stale) > 0 {
		c.log.Debug("discarded stale signals", logx.Int("count", len(stale)))
	}

	cfg := c.config()
	sess := &Session{
		ID:      uuid.NewString(),
		Event:   ev,
		Clip:    cfg.ClipFor(ev),
		Volume:  cfg.Volume,
		Started: c.now(),
	}
	log := c.log.With(
		logx.String("session", sess.ID),
		logx.String("event", ev.String()),
		logx.String("clip", sess.Clip),
	)

	h, err := c.backend.Play(ctx, sess.Clip, sess.Volume)
	if err != nil {
		log.Error("audio backend failed to start", logx.Err(err))
		c.metrics.BackendFailure()
		eventbus.Publish(c.bus, eventbus.PlaybackFailed, eventbus.PlaybackData{
			Session: sess.ID, Event: ev.String(), Clip: sess.Clip, Volume: sess.Volume, Error: err.Error(),
		})
		return
	}

	c.setSession(sess)
	c.metrics.SessionStarted(ev.String())
	c.metrics.VolumeChanged(sess.Volume)
	log.Info("playback started", logx.Int("volume", sess.Volume))
	eventbus.Publish(c.bus, eventbus.PlaybackStarted, eventbus.PlaybackData{
		Session: sess.ID, Event: ev.String(), Clip: sess.Clip, Volume: sess.Volume,
	})

	reason := c.control(ctx, sess, h, cfg.ControlTimeout, log)

	took := c.now().Sub(sess.Started)
	c.setSession(nil)
	c.metrics.SessionEnded(reason, took)
	log.Info("playback stopped",
		logx.String("reason", reason),
		logx.Int("volume", sess.Volume),
		logx.Duration("took", took),
	)
	eventbus.Publish(c.bus, eventbus.PlaybackStopped, eventbus.PlaybackData{
		Session: sess.ID, Event: ev.String(), Clip: sess.Clip, Volume: sess.Volume, Reason: reason, Took: took,
	})
}

// control serves signals while h renders. Whichever comes first, clip end
// or Stop, ends the session. When no signal arrives within timeout the
// loop stops listening and only waits for the clip to end.
func (c *Controller) control(ctx context.Context, sess *Session, h Handle, timeout time.Duration, log logx.Logger) string {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-h.Done():
			return metrics.EndCompleted
		case <-ctx.Done():
			c.stop(h, log)
			return metrics.EndShutdown
		case <-timer.C:
			log.Warn("control window elapsed; clip continues without control", logx.Duration("timeout", timeout))
			select {
			case <-h.Done():
				return metrics.EndCompleted
			case <-ctx.Done():
				c.stop(h, log)
				return metrics.EndShutdown
			}
		case sig := <-c.signals.C():
			c.metrics.SignalReceived(sig.Kind.String())
			switch sig.Kind {
			case SignalStop:
				c.stop(h, log)
				return metrics.EndStopped
			case SignalVolumeUp, SignalVolumeDown:
				c.adjustVolume(sess, h, sig.Kind, log)
			case SignalPlay:
				log.Info("already playing; play ignored", logx.String("requested", sig.Event.String()))
			default:
				log.Warn("unknown signal ignored", logx.Int("kind", int(sig.Kind)))
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)
		}
	}
}

func (c *Controller) adjustVolume(sess *Session, h Handle, kind SignalKind, log logx.Logger) {
	next := sess.Volume
	if kind == SignalVolumeUp {
		next++
	} else {
		next--
	}
	next = ClampVolume(next)
	if next == sess.Volume {
		log.Debug("volume at limit", logx.Int("volume", next))
		return
	}
	if err := c.backend.SetVolume(h, next); err != nil {
		log.Warn("set volume failed", logx.Int("volume", next), logx.Err(err))
		return
	}
	sess.Volume = next
	c.setSession(sess)
	c.metrics.VolumeChanged(next)
	log.Debug("volume changed", logx.Int("volume", next))
}

func (c *Controller) stop(h Handle, log logx.Logger) {
	if err := c.backend.Stop(h); err != nil {
		log.Warn("stop failed", logx.Err(err))
	}
}
