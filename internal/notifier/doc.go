// Package notifier forwards high-signal daemon events to operators.
//
// Notifications are queued and delivered by a small worker pool with a shared
// rate limit and per-sink retry. Each notification goes to every configured
// Sink (Telegram chat, MQTT topic).
//
// # Sources
//
// Run subscribes to the event bus and turns alert and playback failure events
// into notifications. NotifyLog lets the logging service push error records
// through the same pipeline.
package notifier
