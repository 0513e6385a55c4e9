package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"adhand/internal/timetable"
)

func TestPrintDay(t *testing.T) {
	t.Parallel()

	day, dropped := timetable.Build("2024-03-01", []timetable.Slot{
		{Clock: "05:10", Name: "Fajr"},
		{Clock: "nope", Name: "Asr"},
	}, timetable.NoCutoff)

	var buf bytes.Buffer
	printDay(&buf, day, dropped)
	out := buf.String()
	for _, want := range []string{"2024-03-01", "Fajr", "05:10:00", `dropped "Asr"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(good, []byte("provider: { kind: static, static: { fajr: \"05:00\" } }\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(bad, []byte("playback: { volume: 99 }\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := newApp().Run([]string{"adhand", "validate", "-c", good}); err != nil {
		t.Fatalf("validate good: %v", err)
	}
	err := newApp().Run([]string{"adhand", "validate", "-c", bad})
	if err == nil || !strings.Contains(err.Error(), "playback.volume") {
		t.Fatalf("validate bad: %v", err)
	}
	if err := newApp().Run([]string{"adhand", "validate", "-c", filepath.Join(dir, "missing.yaml")}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err=%v", err)
	}
}
