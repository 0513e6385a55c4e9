package config

import (
	"reflect"
	"strings"

	logx "adhand/pkg/logx"
)

// Change summarizes a reload for logging. Attrs never carry secrets.
type Change struct {
	// Sections lists every top-level section that differs.
	Sections []string
	// Restart lists sections whose changes only take effect after a restart.
	Restart []string
	Attrs   []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// Summarize compares two configs section by section.
func Summarize(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	section := func(name string, changed, restart bool, attrs ...logx.Field) {
		if !changed {
			return
		}
		ch.Sections = append(ch.Sections, name)
		if restart {
			ch.Restart = append(ch.Restart, name)
		}
		ch.Attrs = append(ch.Attrs, attrs...)
	}

	section("location", !reflect.DeepEqual(oldCfg.Location, newCfg.Location), false,
		logx.String("location.city", newCfg.Location.City),
		logx.String("location.timezone", newCfg.Location.Timezone),
	)
	section("provider", !reflect.DeepEqual(redactProvider(oldCfg.Provider), redactProvider(newCfg.Provider)) ||
		secretChanged(cachePassword(oldCfg), cachePassword(newCfg)), true,
		logx.String("provider.kind", newCfg.Provider.Kind),
	)
	section("scheduler", oldCfg.Scheduler != newCfg.Scheduler, false,
		logx.String("scheduler.rollover", newCfg.Scheduler.Rollover),
	)

	oldPB, newPB := oldCfg.Playback, newCfg.Playback
	audioChanged := oldPB.ClipDir != newPB.ClipDir || oldPB.SampleRate != newPB.SampleRate || oldPB.SignalBuffer != newPB.SignalBuffer
	section("playback", !reflect.DeepEqual(oldPB, newPB), audioChanged,
		logx.String("playback.control_timeout", newPB.ControlTimeout),
		logx.String("playback.clip", newPB.Clip),
	)

	oldHTTP, newHTTP := oldCfg.HTTP, newCfg.HTTP
	oldHTTP.Token, newHTTP.Token = "", ""
	section("http", !reflect.DeepEqual(oldHTTP, newHTTP) || secretChanged(oldCfg.HTTP.Token, newCfg.HTTP.Token), false,
		logx.String("http.addr", newCfg.HTTP.Addr),
		logx.Bool("http.token_set", strings.TrimSpace(newCfg.HTTP.Token) != ""),
		logx.Bool("http.pprof", newCfg.HTTP.Pprof),
	)
	section("logging", oldCfg.Logging != newCfg.Logging, false,
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.notify", newCfg.Logging.Notify.Enabled),
	)
	section("metrics", oldCfg.Metrics != newCfg.Metrics, true)
	section("systemd", oldCfg.Systemd != newCfg.Systemd, true)

	oldN, newN := derefNotifier(oldCfg.Notifier), derefNotifier(newCfg.Notifier)
	sinksChanged := !reflect.DeepEqual(oldN.Telegram, newN.Telegram) || !reflect.DeepEqual(oldN.MQTT, newN.MQTT)
	section("notifier", !reflect.DeepEqual(oldN, newN), sinksChanged,
		logx.Bool("notifier.enabled", newN.Enabled),
	)

	section("storage", !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage), true)
	return ch
}

func redactProvider(p ProviderConfig) ProviderConfig {
	if p.Cache != nil {
		c := *p.Cache
		c.Password = ""
		p.Cache = &c
	}
	return p
}

func cachePassword(cfg *Config) string {
	if cfg.Provider.Cache == nil {
		return ""
	}
	return cfg.Provider.Cache.Password
}

func secretChanged(a, b string) bool {
	return strings.TrimSpace(a) != strings.TrimSpace(b)
}

func derefNotifier(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{}
	}
	return *n
}
