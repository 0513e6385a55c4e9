package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
location:
  city: Auckland
  country: NZ
  timezone: Pacific/Auckland
  tune:
    fajr: 2
playback:
  volume: 8
  control_timeout: 200s
  fajr_clip: fajr.mp3
  clip: adhan.mp3
http:
  addr: 127.0.0.1:3000
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
  notify:
    enabled: false
metrics:
  enabled: true
systemd:
  notify: false
notifier:
  enabled: true
  telegram:
    chat_id: -100123
storage:
  driver: file
  path: ./history
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDecode_YAML(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("adhand.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Location.City != "Auckland" || cfg.Location.Tune["fajr"] != 2 {
		t.Fatalf("unexpected location: %+v", cfg.Location)
	}
	if cfg.Playback.Volume == nil || *cfg.Playback.Volume != 8 {
		t.Fatalf("unexpected volume: %v", cfg.Playback.Volume)
	}
	if cfg.Notifier == nil || cfg.Notifier.Telegram == nil || cfg.Notifier.Telegram.ChatID != -100123 {
		t.Fatalf("unexpected notifier: %+v", cfg.Notifier)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecode_RejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()

	if _, err := Decode("c.yaml", []byte("playback:\n  volum: 3\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if _, err := Decode("c.json", []byte(`{"metrics":{"enabled":true}} {}`)); err == nil {
		t.Fatalf("expected trailing data error")
	}
	if _, err := Decode("c.json", []byte(`{"metrics":{"enabled":true}}`)); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Provider: ProviderConfig{Cache: &CacheConfig{Enabled: true, Addr: "localhost:6379"}},
		Notifier: &NotifierConfig{Telegram: &TelegramConfig{Token: "file", ChatID: 1}},
	}
	env := map[string]string{
		EnvHTTPToken:     "secret",
		EnvTelegramToken: "env-token",
		EnvRedisPassword: "redis-pw",
		EnvMQTTPassword:  "ignored",
		EnvStorageDSN:    "ignored",
	}
	ApplyEnv(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.HTTP.Token != "secret" || cfg.Notifier.Telegram.Token != "env-token" || cfg.Provider.Cache.Password != "redis-pw" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Storage != nil || cfg.Notifier.MQTT != nil {
		t.Fatalf("absent sections must stay absent")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	vol := func(v int) *int { return &v }
	base := func() *Config {
		return &Config{
			Provider: ProviderConfig{Kind: "static", Static: map[string]string{"fajr": "05:10"}},
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "volume", mutate: func(c *Config) { c.Playback.Volume = vol(16) }, want: "playback.volume"},
		{name: "zero volume ok", mutate: func(c *Config) { c.Playback.Volume = vol(0) }},
		{name: "rollover", mutate: func(c *Config) { c.Scheduler.Rollover = "not cron" }, want: "scheduler.rollover"},
		{name: "rollover noon", mutate: func(c *Config) { c.Scheduler.Rollover = "0 12 * * *" }, want: "scheduler.rollover"},
		{name: "rollover weekly", mutate: func(c *Config) { c.Scheduler.Rollover = "5 0 * * 1" }, want: "scheduler.rollover"},
		{name: "timezone", mutate: func(c *Config) { c.Location.Timezone = "Nowhere/Place" }, want: "location.timezone"},
		{name: "provider kind", mutate: func(c *Config) { c.Provider.Kind = "sundial" }, want: "provider.kind"},
		{name: "static event", mutate: func(c *Config) { c.Provider.Static["sunrise"] = "06:00" }, want: "provider.static"},
		{name: "static clock", mutate: func(c *Config) { c.Provider.Static["fajr"] = "25:99" }, want: "provider.static.fajr"},
		{name: "aladhan needs location", mutate: func(c *Config) { c.Provider.Kind = "aladhan" }, want: "location"},
		{name: "duration", mutate: func(c *Config) { c.Playback.ControlTimeout = "soon" }, want: "playback.control_timeout"},
		{name: "storage driver", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "mongo"} }, want: "storage.driver"},
		{name: "postgres dsn", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "postgres"} }, want: "storage.dsn"},
		{name: "insecure bind", mutate: func(c *Config) { c.HTTP.Addr = "0.0.0.0:3000" }, want: "http.addr"},
		{name: "insecure allowed", mutate: func(c *Config) { c.HTTP.Addr = ":3000"; c.HTTP.AllowInsecure = true }},
		{name: "token bind", mutate: func(c *Config) { c.HTTP.Addr = ":3000"; c.HTTP.Token = "t" }},
		{name: "mqtt qos", mutate: func(c *Config) {
			c.Notifier = &NotifierConfig{MQTT: &MQTTConfig{Broker: "tcp://b:1883", QoS: 3}}
		}, want: "notifier.mqtt.qos"},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "logging.level"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestIsLoopback(t *testing.T) {
	t.Parallel()

	for addr, want := range map[string]bool{
		"127.0.0.1:3000": true,
		"localhost:80":   true,
		"[::1]:3000":     true,
		":3000":          false,
		"0.0.0.0:3000":   false,
		"10.0.0.2:3000":  false,
		"garbage":        false,
	} {
		if got := IsLoopback(addr); got != want {
			t.Fatalf("IsLoopback(%q)=%v, want %v", addr, got, want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("got %s, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "200s", 5*time.Second)
	if err != nil || d != 200*time.Second {
		t.Fatalf("got %s, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("expected negative duration error")
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	oldCfg, err := Decode("a.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	newCfg, _ := Decode("a.yaml", []byte(sampleYAML))
	if ch := Summarize(oldCfg, newCfg); !ch.Empty() {
		t.Fatalf("expected no changes, got %v", ch.Sections)
	}

	newCfg.Playback.ControlTimeout = "100s"
	newCfg.Storage.Driver = "sqlite"
	newCfg.HTTP.Token = "rotated"
	ch := Summarize(oldCfg, newCfg)
	for _, s := range []string{"playback", "storage", "http"} {
		if !ch.Has(s) {
			t.Fatalf("expected %q in %v", s, ch.Sections)
		}
	}
	if len(ch.Restart) != 1 || ch.Restart[0] != "storage" {
		t.Fatalf("restart=%v, want [storage]", ch.Restart)
	}
}

func TestManager_ReloadPublishesChanges(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "adhand.yaml", sampleYAML)
	m := NewManager(path)
	m.lookupEnv = func(string) (string, bool) { return "", false }
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)
	ctx := context.Background()

	if m.reload(ctx) {
		t.Fatalf("unchanged file must not publish")
	}

	if err := os.WriteFile(path, []byte(strings.Replace(sampleYAML, "volume: 8", "volume: 99", 1)), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m.reload(ctx) {
		t.Fatalf("invalid config must not publish")
	}
	if v := *m.Get().Playback.Volume; v != 8 {
		t.Fatalf("committed volume=%d, want previous 8", v)
	}

	if err := os.WriteFile(path, []byte(strings.Replace(sampleYAML, "volume: 8", "volume: 12", 1)), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !m.reload(ctx) {
		t.Fatalf("expected publish")
	}
	select {
	case cfg := <-sub:
		if *cfg.Playback.Volume != 12 {
			t.Fatalf("published volume=%d", *cfg.Playback.Volume)
		}
	default:
		t.Fatalf("subscriber got nothing")
	}
}

func TestManager_ValidatorRejects(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "adhand.yaml", sampleYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		return context.DeadlineExceeded
	})
	if err := os.WriteFile(path, []byte(strings.Replace(sampleYAML, "volume: 8", "volume: 9", 1)), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m.reload(context.Background()) {
		t.Fatalf("validator rejection must not publish")
	}
}
