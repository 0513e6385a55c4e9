package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage. An empty Driver or "none" disables it.
type Config struct {
	Driver      string
	Path        string        // file, sqlite
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one history record. Keep it compact and schema-stable.
type Entry struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Date   string    `json:"date,omitempty"`
	Event  string    `json:"event,omitempty"`
	Actor  string    `json:"actor,omitempty"`
	Detail string    `json:"detail,omitempty"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
}

// Store is the persistence API used by the recorder and the HTTP history route.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

const (
	DefaultRecent = 50
	MaxRecent     = 1000
)

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultRecent
	}
	return min(n, MaxRecent)
}
