package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"adhand/internal/audio"
	"adhand/internal/config"
	"adhand/internal/eventbus"
	"adhand/internal/httpapi"
	"adhand/internal/metrics"
	"adhand/internal/notifier"
	"adhand/internal/playback"
	rtsup "adhand/internal/runtime/supervisor"
	"adhand/internal/scheduler"
	"adhand/internal/storage"
	"adhand/internal/timetable"
	logx "adhand/pkg/logx"
	"adhand/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	metrics        metrics.Sink
	metricsHandler http.Handler

	days    *timetable.Store
	signals *playback.Channel
	player  *audio.Player
	ctrl    *playback.Controller
	sched   *scheduler.Scheduler

	closeProvider func() error

	history storage.Store
	notif   *notifier.Service
	sinks   []notifier.Sink
	http    *httpapi.Server
	sd      *systemd.Notifier
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(mapLogConfig(cfg))
	log := root.With(logx.String("comp", "app"))

	a := &App{cfgm: cfgm, log: log, logs: logs, bus: eventbus.New()}
	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	a.metrics, a.metricsHandler = mapMetrics(cfg, root.With(logx.String("comp", "metrics")))

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, root)
		if err != nil {
			return nil, err
		}
		a.history = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	prov, closeProv, err := mapProvider(cfg, root.With(logx.String("comp", "provider")), a.metrics)
	if err != nil {
		return nil, err
	}
	a.closeProvider = closeProv

	pcfg, err := mapPlaybackConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.signals = playback.NewChannel(cfg.Playback.SignalBuffer)
	a.player = audio.New(mapAudioConfig(cfg), nil, root)
	if err := a.player.Check(pcfg.FajrClip, pcfg.Clip); err != nil {
		// Missing clips are reported per session; the schedule still runs.
		log.Warn("audio clips not ready", logx.Err(err))
	}
	a.ctrl = playback.NewController(pcfg, a.player, a.signals, root,
		playback.WithBus(a.bus),
		playback.WithMetrics(a.metrics),
	)

	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.days = timetable.NewStore()
	a.sched = scheduler.New(scfg, prov, a.days, a.signals, root,
		scheduler.WithBus(a.bus),
		scheduler.WithMetrics(a.metrics),
	)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	if a.sinks, err = mapNotifierSinks(cfg); err != nil {
		return nil, err
	}
	a.notif = notifier.New(ncfg, a.sinks, root, notifier.WithMetrics(a.metrics))

	hcfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	deps := httpapi.Deps{
		Store:    a.days,
		Signals:  a.signals,
		Location: scfg.Location,
		Playback: a.ctrl,
		Next:     a.sched,
		Bus:      a.bus,
		Health:   a.snapshot,
		Metrics:  a.metricsHandler,
	}
	if a.history != nil {
		deps.History = a.history
	}
	a.http = httpapi.NewServer(hcfg, deps, root)

	a.sd = systemd.New(cfg.Systemd.Notify, root)

	ok = true
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) snapshot() rtsup.Snapshot {
	if a.sup == nil {
		return rtsup.Snapshot{}
	}
	return a.sup.Snapshot()
}

// validate rejects a reloaded config that the components could not apply.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPlaybackConfig(cfg); err != nil {
		return err
	}
	if _, err := mapHTTPConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
		a.logs.SetNotifier(a.notif)
	}

	// The core: any exit other than shutdown is fatal.
	a.sup.Go("playback.controller", a.ctrl.Run)
	a.sup.Go("scheduler", a.sched.Run)

	a.sup.Go("notifier.events", func(c context.Context) error { return a.notif.Run(c, a.bus) })
	if a.history != nil {
		rec := storage.NewRecorder(a.history, a.log)
		a.sup.Go("storage.recorder", func(c context.Context) error { return rec.Run(c, a.bus) })
	}
	if a.http.Enabled() {
		a.http.Start(a.sup.Context())
	}
	a.sup.Go("systemd.watchdog", a.sd.Watchdog)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				if d, ok := e.Data.(eventbus.TimetableData); ok && e.Type == eventbus.TimetableLoaded {
					a.sd.Status(fmt.Sprintf("%s: %d events scheduled", d.Date, d.Events))
				}
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sd.Ready()
	a.log.Info("app started")
	return nil
}

// applyConfig pushes a reloaded config into the live components.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	ch := config.Summarize(oldCfg, newCfg)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.sd.Reloading()
	defer a.sd.Ready()

	changed := strings.Join(ch.Sections, ",")
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", changed)}, ch.Attrs...)...)
	if len(ch.Restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(ch.Restart, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if pc, err := mapPlaybackConfig(newCfg); err != nil {
		a.log.Warn("invalid playback config; keeping previous", logx.Err(err))
	} else {
		a.ctrl.Apply(pc)
	}

	if sc, err := mapSchedulerConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}

	if nc, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		prev := a.notif.Enabled()
		a.notif.Apply(nc)
		switch now := a.notif.Enabled(); {
		case prev && !now:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
			a.logs.SetNotifier(nil)
		case !prev && now:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
			a.logs.SetNotifier(a.notif)
		}
	}

	if hc, err := mapHTTPConfig(newCfg); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else {
		a.http.Reconfigure(ctx, hc)
	}

	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", changed)}, ch.Attrs...)...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// step bounds one shutdown step so a single component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("notifier", 2*time.Second, func(c context.Context) error {
		a.logs.SetNotifier(nil)
		a.notif.Stop(c)
		return nil
	})
	step("resources", 2*time.Second, func(context.Context) error { a.closeResources(); return nil })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

type closer interface{ Close() }

// closeResources releases what New opened. Safe on a partially built App.
func (a *App) closeResources() {
	if a.player != nil {
		a.player.Close()
	}
	for _, s := range a.sinks {
		if c, ok := s.(closer); ok {
			c.Close()
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
		a.history = nil
	}
	if a.closeProvider != nil {
		if err := a.closeProvider(); err != nil {
			a.log.Warn("provider close failed", logx.Err(err))
		}
		a.closeProvider = nil
	}
}

// Timings fetches and builds the timetable of date without starting the
// daemon. Dropped slots are returned for display.
func Timings(ctx context.Context, cfg *config.Config, date time.Time, log logx.Logger) (timetable.DayTimetable, []timetable.Dropped, error) {
	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return timetable.DayTimetable{}, nil, err
	}
	prov, closeProv, err := mapProvider(cfg, log, metrics.NoopSink{})
	if err != nil {
		return timetable.DayTimetable{}, nil, err
	}
	defer func() { _ = closeProv() }()

	day := date.In(scfg.Location)
	slots, err := prov.Fetch(ctx, day, scfg.Where)
	if err != nil {
		return timetable.DayTimetable{}, nil, err
	}
	rec, dropped := timetable.Build(day.Format(timetable.DateLayout), slots, timetable.NoCutoff)
	return rec, dropped, nil
}
