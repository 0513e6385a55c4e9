package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"adhand/internal/timetable"
	logx "adhand/pkg/logx"
)

func logxNop() logx.Logger { return logx.Nop() }

func TestChannelSendDrain(t *testing.T) {
	t.Parallel()
	c := NewChannel(4)
	ctx := context.Background()
	for _, sig := range []Signal{Play(timetable.Fajr), VolumeUp(), Stop()} {
		if err := c.Send(ctx, sig); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	got := c.Drain()
	if len(got) != 3 || got[0] != Play(timetable.Fajr) || got[2].Kind != SignalStop {
		t.Fatalf("Drain = %v", got)
	}
	if c.Len() != 0 {
		t.Fatalf("Len after drain = %d", c.Len())
	}
}

func TestChannelSendHonoursContext(t *testing.T) {
	t.Parallel()
	c := NewChannel(1)
	if err := c.Send(context.Background(), Stop()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Send(ctx, Stop()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send on full channel = %v, want deadline exceeded", err)
	}
}

func TestChannelCloseReleasesBlockedSender(t *testing.T) {
	t.Parallel()
	c := NewChannel(1)
	_ = c.Send(context.Background(), Stop())

	errc := make(chan error, 1)
	go func() { errc <- c.Send(context.Background(), VolumeUp()) }()
	time.Sleep(10 * time.Millisecond)
	c.Close()
	c.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("blocked Send = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not release blocked sender")
	}
}

func TestSignalString(t *testing.T) {
	t.Parallel()
	if got := Play(timetable.Maghrib).String(); got != "play(Maghrib)" {
		t.Fatalf("String = %q", got)
	}
	if got := VolumeDown().String(); got != "volume_down" {
		t.Fatalf("String = %q", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{Volume: 99, FajrClip: "f.mp3", Clip: "a.mp3"}.withDefaults()
	if cfg.Volume != MaxVolume || cfg.ControlTimeout != DefaultControlTimeout {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.ClipFor(timetable.Fajr) != "f.mp3" || cfg.ClipFor(timetable.Asr) != "a.mp3" {
		t.Fatal("clip selection wrong")
	}
	if (Config{Clip: "a.mp3"}).ClipFor(timetable.Fajr) != "a.mp3" {
		t.Fatal("missing fajr clip should fall back to shared clip")
	}
}
