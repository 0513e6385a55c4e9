package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"adhand/internal/audio"
	"adhand/internal/config"
	"adhand/internal/httpapi"
	"adhand/internal/metrics"
	"adhand/internal/notifier"
	"adhand/internal/playback"
	"adhand/internal/provider"
	"adhand/internal/scheduler"
	"adhand/internal/storage"
	"adhand/internal/timetable"
	logx "adhand/pkg/logx"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 48 * time.Hour

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		JSON:    l.JSON,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Notify: logx.NotifyConfig{
			Enabled:    l.Notify.Enabled,
			MinLevel:   l.Notify.MinLevel,
			RatePerSec: l.Notify.RatePerSec,
		},
	}
}

// mapTimezone resolves location.timezone; empty means the host zone.
func mapTimezone(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Location.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("location.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

func mapWhere(cfg *config.Config) (provider.Location, error) {
	lc := cfg.Location
	where := provider.Location{
		City:     strings.TrimSpace(lc.City),
		Country:  strings.TrimSpace(lc.Country),
		Method:   config.DefaultMethod,
		School:   lc.School,
		Timezone: strings.TrimSpace(lc.Timezone),
	}
	if lc.Method != nil {
		where.Method = *lc.Method
	}
	if lc.Latitude != nil && lc.Longitude != nil {
		where.Latitude, where.Longitude, where.HasCoords = *lc.Latitude, *lc.Longitude, true
	}
	for name, minutes := range lc.Tune {
		ev, err := timetable.ParseEvent(name)
		if err != nil {
			return provider.Location{}, fmt.Errorf("location.tune: %w", err)
		}
		switch ev {
		case timetable.Fajr:
			where.Tune.Fajr = minutes
		case timetable.Dhuhr:
			where.Tune.Dhuhr = minutes
		case timetable.Asr:
			where.Tune.Asr = minutes
		case timetable.Maghrib:
			where.Tune.Maghrib = minutes
		case timetable.Isha:
			where.Tune.Isha = minutes
		}
	}
	return where, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	loc, err := mapTimezone(cfg)
	if err != nil {
		return scheduler.Config{}, err
	}
	where, err := mapWhere(cfg)
	if err != nil {
		return scheduler.Config{}, err
	}
	roll, err := scheduler.ParseRollover(cfg.Scheduler.Rollover)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("scheduler.rollover: %w", err)
	}
	maxSleep, err := config.ParseDurationOrDefault("scheduler.max_sleep", cfg.Scheduler.MaxSleep, scheduler.DefaultMaxSleep)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Location: loc, Rollover: roll, Where: where, MaxSleep: maxSleep}, nil
}

// mapProvider builds the timetable source. The returned closer releases the
// cache connection, if any.
func mapProvider(cfg *config.Config, log logx.Logger, m metrics.Sink) (provider.Provider, func() error, error) {
	pc := cfg.Provider
	noop := func() error { return nil }

	var p provider.Provider
	switch kind := strings.ToLower(strings.TrimSpace(pc.Kind)); kind {
	case "", config.DefaultProviderKind:
		timeout, err := config.ParseDurationOrDefault("provider.timeout", pc.Timeout, config.DefaultProviderTimeout)
		if err != nil {
			return nil, noop, err
		}
		backoff, err := config.ParseDurationField("provider.backoff", pc.Backoff)
		if err != nil {
			return nil, noop, err
		}
		p = provider.NewAladhan(provider.AladhanConfig{
			BaseURL: pc.BaseURL,
			Timeout: timeout,
			Retries: pc.Retries,
			Backoff: backoff,
		}, nil, log)
	case "static":
		s, err := provider.NewStatic(pc.Static)
		if err != nil {
			return nil, noop, fmt.Errorf("provider.static: %w", err)
		}
		p = s
	default:
		return nil, noop, fmt.Errorf("unknown provider.kind: %s", pc.Kind)
	}

	if pc.Cache == nil || !pc.Cache.Enabled {
		return p, noop, nil
	}
	ttl, err := config.ParseDurationOrDefault("provider.cache.ttl", pc.Cache.TTL, defaultCacheTTL)
	if err != nil {
		return nil, noop, err
	}
	addr := strings.TrimSpace(pc.Cache.Addr)
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	rc := provider.NewRedisCache(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pc.Cache.Password,
		DB:       pc.Cache.DB,
	}))
	return provider.NewCached(p, rc, ttl, log, m), rc.Close, nil
}

func mapPlaybackConfig(cfg *config.Config) (playback.Config, error) {
	pc := cfg.Playback
	vol := playback.DefaultVolume
	if pc.Volume != nil {
		vol = *pc.Volume
	}
	timeout, err := config.ParseDurationOrDefault("playback.control_timeout", pc.ControlTimeout, playback.DefaultControlTimeout)
	if err != nil {
		return playback.Config{}, err
	}
	return playback.Config{
		Volume:         vol,
		ControlTimeout: timeout,
		FajrClip:       strings.TrimSpace(pc.FajrClip),
		Clip:           strings.TrimSpace(pc.Clip),
	}, nil
}

func mapAudioConfig(cfg *config.Config) audio.Config {
	return audio.Config{
		Dir:        strings.TrimSpace(cfg.Playback.ClipDir),
		SampleRate: cfg.Playback.SampleRate,
	}
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	hc := cfg.HTTP
	read, err := config.ParseDurationField("http.read_timeout", hc.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationField("http.write_timeout", hc.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", hc.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	addr := strings.TrimSpace(hc.Addr)
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = strings.TrimSpace(cfg.Metrics.Path)
		if metricsPath == "" {
			metricsPath = config.DefaultMetricsPath
		}
	}
	return httpapi.Config{
		Enabled:       config.HTTPEnabled(cfg),
		Addr:          addr,
		Token:         strings.TrimSpace(hc.Token),
		AllowInsecure: hc.AllowInsecure,
		CORSOrigins:   hc.CORSOrigins,
		StaticDir:     strings.TrimSpace(hc.StaticDir),
		Pprof:         hc.Pprof,
		MetricsPath:   metricsPath,
		ControlRate:   hc.ControlRate,
		ControlBurst:  hc.ControlBurst,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil || !nc.Enabled {
		return notifier.Config{Enabled: false}, nil
	}
	base, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	if nc.Workers < 0 || nc.QueueSize < 0 || nc.RatePerSec < 0 || nc.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: workers, queue_size, rate_per_sec and retry_max must be >= 0")
	}
	return notifier.Config{
		Enabled:       true,
		Workers:       nc.Workers,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		Events:        nc.Events,
	}, nil
}

// mapNotifierSinks builds the delivery targets. Sinks are fixed for the
// process lifetime.
func mapNotifierSinks(cfg *config.Config) ([]notifier.Sink, error) {
	nc := cfg.Notifier
	if nc == nil {
		return nil, nil
	}
	var sinks []notifier.Sink
	if tc := nc.Telegram; tc != nil {
		tg, err := notifier.NewTelegram(notifier.TelegramConfig{
			Token:    tc.Token,
			ChatID:   tc.ChatID,
			ThreadID: tc.ThreadID,
		})
		if err != nil {
			return nil, fmt.Errorf("notifier.telegram: %w", err)
		}
		sinks = append(sinks, tg)
	}
	if mc := nc.MQTT; mc != nil {
		if mc.QoS < 0 || mc.QoS > 2 {
			return nil, fmt.Errorf("notifier.mqtt.qos must be 0, 1 or 2")
		}
		mq, err := notifier.NewMQTT(notifier.MQTTConfig{
			Broker:   mc.Broker,
			ClientID: mc.ClientID,
			Username: mc.Username,
			Password: mc.Password,
			Topic:    mc.Topic,
			QoS:      byte(mc.QoS),
			Retain:   mc.Retain,
		})
		if err != nil {
			return nil, fmt.Errorf("notifier.mqtt: %w", err)
		}
		sinks = append(sinks, mq)
	}
	return sinks, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = config.DefaultStorageDriver
	}
	if driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: driver, Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	case "postgres", "postgresql":
		dsn := strings.TrimSpace(sc.DSN)
		if dsn == "" {
			return storage.Config{}, false, fmt.Errorf("storage.dsn is required when storage.driver=postgres")
		}
		return storage.Config{Driver: driver, DSN: dsn}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapMetrics returns the sink and the scrape handler. Both are no-ops
// (nil handler) when metrics are disabled.
func mapMetrics(cfg *config.Config, log logx.Logger) (metrics.Sink, http.Handler) {
	if !cfg.Metrics.Enabled {
		return metrics.NoopSink{}, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := metrics.NewPrometheusSink(reg, log)
	return sink, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
