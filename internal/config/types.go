package config

// Config is the daemon configuration file (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "200s", "5m").
type Config struct {
	Location  LocationConfig  `json:"location"`
	Provider  ProviderConfig  `json:"provider"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Playback  PlaybackConfig  `json:"playback"`
	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics"`
	Systemd   SystemdConfig   `json:"systemd"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

// LocationConfig selects where times are computed. City/country win over
// coordinates when both are set. Changes apply from the next day's fetch.
type LocationConfig struct {
	City      string   `json:"city,omitempty"`
	Country   string   `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Method is the calculation method id (default 3, Muslim World League).
	Method *int `json:"method,omitempty"`
	School int  `json:"school,omitempty"`

	// Timezone is both the scheduling zone and the provider's timezonestring.
	// Empty means the host zone.
	Timezone string `json:"timezone,omitempty"`

	// Tune holds per-event minute offsets keyed by event name.
	Tune map[string]int `json:"tune,omitempty"`
}

// ProviderConfig selects the timetable source.
//
// Example:
//
//	provider: { kind: static, static: { fajr: "05:10", dhuhr: "12:30" } }
type ProviderConfig struct {
	Kind    string `json:"kind,omitempty"` // aladhan (default) | static
	BaseURL string `json:"base_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
	Retries int    `json:"retries,omitempty"`
	Backoff string `json:"backoff,omitempty"`

	Static map[string]string `json:"static,omitempty"`
	Cache  *CacheConfig      `json:"cache,omitempty"`
}

// CacheConfig enables the redis timetable cache.
type CacheConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	DB       int    `json:"db,omitempty"`
	TTL      string `json:"ttl,omitempty"`
}

type SchedulerConfig struct {
	// Rollover is a 5-field cron spec for loading the next day (default
	// "5 0 * * *"). It must fire once a day, within an hour after midnight.
	Rollover string `json:"rollover,omitempty"`
	MaxSleep string `json:"max_sleep,omitempty"`
}

type PlaybackConfig struct {
	Volume         *int   `json:"volume,omitempty"`
	ControlTimeout string `json:"control_timeout,omitempty"`
	ClipDir        string `json:"clip_dir,omitempty"`
	FajrClip       string `json:"fajr_clip,omitempty"`
	Clip           string `json:"clip,omitempty"`
	SampleRate     int    `json:"sample_rate,omitempty"`
	SignalBuffer   int    `json:"signal_buffer,omitempty"`
}

// HTTPConfig controls the control surface.
//
// Security note:
//   - Prefer binding to localhost.
//   - A non-loopback addr requires a token or allow_insecure.
type HTTPConfig struct {
	Enabled       *bool    `json:"enabled,omitempty"`
	Addr          string   `json:"addr,omitempty"`
	Token         string   `json:"token,omitempty"` // do not log
	AllowInsecure bool     `json:"allow_insecure,omitempty"`
	CORSOrigins   []string `json:"cors_origins,omitempty"`
	StaticDir     string   `json:"static_dir,omitempty"`
	Pprof         bool     `json:"pprof,omitempty"`

	// ControlRate limits mutating requests per second (0 disables).
	ControlRate  float64 `json:"control_rate,omitempty"`
	ControlBurst int     `json:"control_burst,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	JSON    bool          `json:"json,omitempty"`
	File    LoggingFile   `json:"file"`
	Notify  LoggingNotify `json:"notify"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingNotify forwards log records at or above MinLevel to the notifier.
type LoggingNotify struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"` // default /metrics
}

type SystemdConfig struct {
	// Notify sends READY/STOPPING and watchdog pings when run under systemd.
	Notify bool `json:"notify"`
}

// NotifierConfig controls announcements. Omitting the section disables them.
type NotifierConfig struct {
	Enabled       bool     `json:"enabled"`
	Workers       int      `json:"workers,omitempty"`
	QueueSize     int      `json:"queue_size,omitempty"`
	RatePerSec    int      `json:"rate_per_sec,omitempty"`
	RetryMax      int      `json:"retry_max,omitempty"`
	RetryBase     string   `json:"retry_base,omitempty"`
	RetryMaxDelay string   `json:"retry_max_delay,omitempty"`
	Events        []string `json:"events,omitempty"`

	Telegram *TelegramConfig `json:"telegram,omitempty"`
	MQTT     *MQTTConfig     `json:"mqtt,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"` // do not log
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	Topic    string `json:"topic,omitempty"`
	QoS      int    `json:"qos,omitempty"`
	Retain   bool   `json:"retain,omitempty"`
}

// StorageConfig controls the optional audit history.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./adhand.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // postgres; do not log
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
