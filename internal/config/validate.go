package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"adhand/internal/playback"
	"adhand/internal/scheduler"
	"adhand/internal/timetable"
)

// Defaults applied when the corresponding field is omitted.
const (
	DefaultHTTPAddr        = "127.0.0.1:3000"
	DefaultProviderKind    = "aladhan"
	DefaultMethod          = 3
	DefaultMetricsPath     = "/metrics"
	DefaultStorageDriver   = "file"
	DefaultProviderTimeout = 15 * time.Second
)

// Validate checks cfg without touching the network or filesystem. All
// problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	durations := func(fields map[string]string) {
		for path, raw := range fields {
			_, err := ParseDurationField(path, raw)
			add(err)
		}
	}

	// location
	loc := cfg.Location
	if (loc.Latitude == nil) != (loc.Longitude == nil) {
		add(errors.New("location: latitude and longitude must be set together"))
	}
	if loc.Latitude != nil && (*loc.Latitude < -90 || *loc.Latitude > 90) {
		add(fmt.Errorf("location.latitude: %v out of range", *loc.Latitude))
	}
	if loc.Longitude != nil && (*loc.Longitude < -180 || *loc.Longitude > 180) {
		add(fmt.Errorf("location.longitude: %v out of range", *loc.Longitude))
	}
	if tz := strings.TrimSpace(loc.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("location.timezone: invalid %q: %w", tz, err))
		}
	}
	for name := range loc.Tune {
		if _, err := timetable.ParseEvent(name); err != nil {
			add(fmt.Errorf("location.tune: %w", err))
		}
	}

	// provider
	p := cfg.Provider
	switch strings.ToLower(strings.TrimSpace(p.Kind)) {
	case "", "aladhan":
		if loc.City == "" && loc.Latitude == nil {
			add(errors.New("location: city/country or latitude/longitude required for the aladhan provider"))
		}
	case "static":
		if len(p.Static) == 0 {
			add(errors.New("provider.static: at least one event time required"))
		}
		for name, clock := range p.Static {
			if _, err := timetable.ParseEvent(name); err != nil {
				add(fmt.Errorf("provider.static: %w", err))
			}
			if _, err := timetable.ParseClock(clock); err != nil {
				add(fmt.Errorf("provider.static.%s: %w", name, err))
			}
		}
	default:
		add(fmt.Errorf("provider.kind: unknown %q", p.Kind))
	}
	if p.Retries < 0 {
		add(errors.New("provider.retries must be >= 0"))
	}
	durations(map[string]string{"provider.timeout": p.Timeout, "provider.backoff": p.Backoff})
	if c := p.Cache; c != nil && c.Enabled {
		if strings.TrimSpace(c.Addr) == "" {
			add(errors.New("provider.cache.addr is required when the cache is enabled"))
		}
		durations(map[string]string{"provider.cache.ttl": c.TTL})
	}

	// scheduler
	if _, err := scheduler.ParseRollover(cfg.Scheduler.Rollover); err != nil {
		add(fmt.Errorf("scheduler.rollover: %w", err))
	}
	durations(map[string]string{"scheduler.max_sleep": cfg.Scheduler.MaxSleep})

	// playback
	pb := cfg.Playback
	if pb.Volume != nil && (*pb.Volume < playback.MinVolume || *pb.Volume > playback.MaxVolume) {
		add(fmt.Errorf("playback.volume: %d not in [%d,%d]", *pb.Volume, playback.MinVolume, playback.MaxVolume))
	}
	if pb.SampleRate < 0 || pb.SignalBuffer < 0 {
		add(errors.New("playback.sample_rate and playback.signal_buffer must be >= 0"))
	}
	durations(map[string]string{"playback.control_timeout": pb.ControlTimeout})

	// http
	h := cfg.HTTP
	if h.ControlRate < 0 || h.ControlBurst < 0 {
		add(errors.New("http.control_rate and http.control_burst must be >= 0"))
	}
	durations(map[string]string{
		"http.read_timeout":  h.ReadTimeout,
		"http.write_timeout": h.WriteTimeout,
		"http.idle_timeout":  h.IdleTimeout,
	})
	if HTTPEnabled(cfg) {
		addr := strings.TrimSpace(h.Addr)
		if addr == "" {
			addr = DefaultHTTPAddr
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			add(fmt.Errorf("http.addr: %w", err))
		} else if !IsLoopback(addr) && strings.TrimSpace(h.Token) == "" && !h.AllowInsecure {
			add(fmt.Errorf("http.addr %q is not loopback: set http.token or http.allow_insecure", addr))
		}
	}

	// logging
	if !validLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown %q", cfg.Logging.Level))
	}
	if n := cfg.Logging.Notify; n.Enabled && !validLevel(n.MinLevel) {
		add(fmt.Errorf("logging.notify.min_level: unknown %q", n.MinLevel))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path is required when file logging is enabled"))
	}

	// notifier
	if n := cfg.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
			add(errors.New("notifier: workers, queue_size, rate_per_sec and retry_max must be >= 0"))
		}
		durations(map[string]string{"notifier.retry_base": n.RetryBase, "notifier.retry_max_delay": n.RetryMaxDelay})
		if n.Telegram != nil && n.Telegram.ChatID == 0 {
			add(errors.New("notifier.telegram.chat_id is required"))
		}
		if m := n.MQTT; m != nil {
			if strings.TrimSpace(m.Broker) == "" {
				add(errors.New("notifier.mqtt.broker is required"))
			}
			if m.QoS < 0 || m.QoS > 2 {
				add(fmt.Errorf("notifier.mqtt.qos: %d not in [0,2]", m.QoS))
			}
		}
	}

	// storage
	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				add(errors.New("storage.path is required when storage.driver=sqlite"))
			}
		case "postgres", "postgresql":
			if strings.TrimSpace(s.DSN) == "" {
				add(errors.New("storage.dsn is required when storage.driver=postgres"))
			}
		default:
			add(fmt.Errorf("storage.driver: unknown %q", s.Driver))
		}
		durations(map[string]string{"storage.busy_timeout": s.BusyTimeout})
	}

	return errors.Join(errs...)
}

// HTTPEnabled reports whether the control surface should run. It defaults to on.
func HTTPEnabled(cfg *Config) bool {
	return cfg.HTTP.Enabled == nil || *cfg.HTTP.Enabled
}

// IsLoopback reports whether addr binds only to a loopback interface.
func IsLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func validLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
