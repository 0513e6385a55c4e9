package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "adhand/pkg/logx"
)

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	base := time.Date(2024, 3, 1, 13, 20, 0, 0, time.UTC)
	entries := []Entry{
		{At: base, Kind: "alert.fired", Date: "2024-03-01", Event: "Dhuhr", Actor: "scheduler", OK: true},
		{At: base.Add(time.Minute), Kind: "playback.failed", Event: "Dhuhr", Actor: "playback", Error: "no device"},
		{At: base.Add(2 * time.Minute), Kind: "control.action", Actor: "http:127.0.0.1", Detail: "action=halt", OK: true},
	}
	for _, e := range entries {
		if err := st.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent len = %d", len(got))
	}
	if got[0].Kind != "control.action" || !got[0].OK || got[0].Detail != "action=halt" {
		t.Fatalf("newest = %+v", got[0])
	}
	if got[1].OK || got[1].Error != "no device" || !got[1].At.Equal(base.Add(time.Minute)) {
		t.Fatalf("second = %+v", got[1])
	}
}

func TestSQLiteRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("Open(sqlite without path) = nil error")
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("Open(postgres without dsn) = nil error")
	}
}
