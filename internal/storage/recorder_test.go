package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"adhand/internal/eventbus"
	logx "adhand/pkg/logx"
)

func TestEntryFor(t *testing.T) {
	t.Parallel()
	off := false
	tests := []struct {
		name string
		ev   eventbus.Event
		keep bool
		want Entry
	}{
		{
			name: "skipped alert",
			ev:   eventbus.Event{Type: eventbus.AlertSkipped, Data: eventbus.AlertData{Date: "2024-03-01", Event: "Asr", Reason: "disabled"}},
			keep: true,
			want: Entry{Kind: eventbus.AlertSkipped, Date: "2024-03-01", Event: "Asr", Actor: "scheduler", Detail: "reason=disabled", OK: true},
		},
		{
			name: "failed playback",
			ev:   eventbus.Event{Type: eventbus.PlaybackFailed, Data: eventbus.PlaybackData{Session: "s1", Event: "Fajr", Clip: "f.mp3", Volume: 10, Error: "no device"}},
			keep: true,
			want: Entry{Kind: eventbus.PlaybackFailed, Event: "Fajr", Actor: "playback", Detail: "session=s1 clip=f.mp3 volume=10", Error: "no device"},
		},
		{
			name: "patch",
			ev:   eventbus.Event{Type: eventbus.ControlAction, Data: eventbus.ControlData{Action: "patch", Date: "2024-03-01", Event: "Isha", Enabled: &off, Remote: "10.0.0.2", OK: true}},
			keep: true,
			want: Entry{Kind: eventbus.ControlAction, Date: "2024-03-01", Event: "Isha", Actor: "http:10.0.0.2", Detail: "action=patch enabled=false", OK: true},
		},
		{
			name: "unknown payload",
			ev:   eventbus.Event{Type: "other", Data: 42},
		},
	}
	for _, tt := range tests {
		got, keep := EntryFor(tt.ev)
		if keep != tt.keep {
			t.Fatalf("%s: keep = %v", tt.name, keep)
		}
		if keep && got != tt.want {
			t.Fatalf("%s: entry = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestRecorderPersistsBusEvents(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	rec := NewRecorder(st, logx.Nop())
	go func() { done <- rec.Run(ctx, bus) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		eventbus.Publish(bus, eventbus.AlertFired, eventbus.AlertData{Date: "2024-03-01", Event: "Maghrib"})
		got, err := st.Recent(context.Background(), 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) == 1 && got[0].Event == "Maghrib" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("recorder never persisted the event")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
}
