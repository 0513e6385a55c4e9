package config

import "strings"

// Environment variables that override secrets from the file.
const (
	EnvHTTPToken     = "ADHAND_HTTP_TOKEN"
	EnvTelegramToken = "ADHAND_TELEGRAM_TOKEN"
	EnvMQTTPassword  = "ADHAND_MQTT_PASSWORD"
	EnvRedisPassword = "ADHAND_REDIS_PASSWORD"
	EnvStorageDSN    = "ADHAND_STORAGE_DSN"
)

// ApplyEnv overrides secrets with non-empty environment values. Sections
// that are absent from the file are not created.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvHTTPToken); ok {
		cfg.HTTP.Token = v
	}
	if v, ok := get(EnvRedisPassword); ok && cfg.Provider.Cache != nil {
		cfg.Provider.Cache.Password = v
	}
	if v, ok := get(EnvStorageDSN); ok && cfg.Storage != nil {
		cfg.Storage.DSN = v
	}
	if cfg.Notifier != nil {
		if v, ok := get(EnvTelegramToken); ok && cfg.Notifier.Telegram != nil {
			cfg.Notifier.Telegram.Token = v
		}
		if v, ok := get(EnvMQTTPassword); ok && cfg.Notifier.MQTT != nil {
			cfg.Notifier.MQTT.Password = v
		}
	}
}
