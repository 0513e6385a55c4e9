package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adhand/internal/eventbus"
	"adhand/internal/timetable"
)

type fakeHandle struct {
	done chan struct{}
	once sync.Once
}

func newFakeHandle() *fakeHandle { return &fakeHandle{done: make(chan struct{})} }

func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) finish()               { h.once.Do(func() { close(h.done) }) }
func (h *fakeHandle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

type fakeBackend struct {
	mu      sync.Mutex
	playErr error
	clips   []string
	volumes []int
	stops   int
	handles []*fakeHandle
}

func (b *fakeBackend) Play(_ context.Context, clip string, volume int) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.playErr != nil {
		return nil, b.playErr
	}
	h := newFakeHandle()
	b.clips = append(b.clips, clip)
	b.volumes = append(b.volumes, volume)
	b.handles = append(b.handles, h)
	return h, nil
}

func (b *fakeBackend) Stop(h Handle) error {
	b.mu.Lock()
	b.stops++
	b.mu.Unlock()
	h.(*fakeHandle).finish()
	return nil
}

func (b *fakeBackend) SetVolume(_ Handle, volume int) error {
	b.mu.Lock()
	b.volumes = append(b.volumes, volume)
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) snapshot() (clips []string, volumes []int, stops int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.clips...), append([]int(nil), b.volumes...), b.stops
}

func (b *fakeBackend) lastHandle() *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.handles) == 0 {
		return nil
	}
	return b.handles[len(b.handles)-1]
}

type harness struct {
	ctrl    *Controller
	backend *fakeBackend
	signals *Channel
	events  <-chan eventbus.Event
	cancel  context.CancelFunc
	done    chan error
}

func startController(t *testing.T, cfg Config, backend *fakeBackend) *harness {
	t.Helper()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(64)
	signals := NewChannel(16)
	ctrl := NewController(cfg, backend, signals, logxNop(), WithBus(bus))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	h := &harness{ctrl: ctrl, backend: backend, signals: signals, events: events, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		<-done
		unsub()
	})
	return h
}

func (h *harness) send(t *testing.T, sig Signal) {
	t.Helper()
	if err := h.signals.Send(context.Background(), sig); err != nil {
		t.Fatalf("Send(%v): %v", sig, err)
	}
}

func (h *harness) waitEvent(t *testing.T, typ string) eventbus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-h.events:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func (h *harness) waitState(t *testing.T, want State) Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := h.ctrl.Status(); st.State == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("controller never reached %s", want)
	return Status{}
}

func testConfig() Config {
	return Config{Volume: 10, ControlTimeout: time.Minute, FajrClip: "fajr.mp3", Clip: "adhan.mp3"}
}

func TestStopWhileIdle(t *testing.T) {
	t.Parallel()
	h := startController(t, testConfig(), &fakeBackend{})

	h.send(t, Stop())
	h.send(t, Stop())
	// A Play after the Stops proves the loop survived them.
	h.send(t, Play(timetable.Asr))
	h.waitEvent(t, eventbus.PlaybackStarted)

	_, _, stops := h.backend.snapshot()
	if stops != 0 {
		t.Fatalf("backend stops = %d, want 0", stops)
	}
}

func TestPlayVolumeUpThenStop(t *testing.T) {
	t.Parallel()
	h := startController(t, testConfig(), &fakeBackend{})

	h.send(t, Play(timetable.Dhuhr))
	h.waitState(t, StatePlaying)
	h.send(t, VolumeUp())
	h.send(t, VolumeUp())
	h.send(t, VolumeUp())
	h.send(t, Stop())

	e := h.waitEvent(t, eventbus.PlaybackStopped)
	d := e.Data.(eventbus.PlaybackData)
	if d.Reason != "stopped" {
		t.Fatalf("reason = %q, want stopped", d.Reason)
	}
	if d.Volume != 13 {
		t.Fatalf("final volume = %d, want 13", d.Volume)
	}
	if d.Event != "Dhuhr" || d.Clip != "adhan.mp3" {
		t.Fatalf("session = %+v", d)
	}
	if st := h.ctrl.Status(); st.State != StateIdle {
		t.Fatalf("state = %s, want idle", st.State)
	}
}

func TestVolumeClamped(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		start int
		sig   func() Signal
		want  int
	}{
		{name: "up at max", start: MaxVolume, sig: VolumeUp, want: MaxVolume},
		{name: "down at min", start: MinVolume, sig: VolumeDown, want: MinVolume},
		{name: "down from one", start: 1, sig: VolumeDown, want: MinVolume},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.Volume = tt.start
			h := startController(t, cfg, &fakeBackend{})

			h.send(t, Play(timetable.Isha))
			h.waitState(t, StatePlaying)
			for i := 0; i < 4; i++ {
				h.send(t, tt.sig())
			}
			h.send(t, Stop())
			d := h.waitEvent(t, eventbus.PlaybackStopped).Data.(eventbus.PlaybackData)
			if d.Volume != tt.want {
				t.Fatalf("final volume = %d, want %d", d.Volume, tt.want)
			}
		})
	}
}

func TestClipSelection(t *testing.T) {
	t.Parallel()
	h := startController(t, testConfig(), &fakeBackend{})

	h.send(t, Play(timetable.Fajr))
	h.waitState(t, StatePlaying)
	h.backend.lastHandle().finish()
	h.waitEvent(t, eventbus.PlaybackStopped)

	h.send(t, Play(timetable.Maghrib))
	h.waitState(t, StatePlaying)
	h.backend.lastHandle().finish()
	d := h.waitEvent(t, eventbus.PlaybackStopped).Data.(eventbus.PlaybackData)
	if d.Reason != "completed" {
		t.Fatalf("reason = %q, want completed", d.Reason)
	}

	clips, _, _ := h.backend.snapshot()
	if len(clips) != 2 || clips[0] != "fajr.mp3" || clips[1] != "adhan.mp3" {
		t.Fatalf("clips = %v", clips)
	}
}

func TestRedundantPlayIgnored(t *testing.T) {
	t.Parallel()
	h := startController(t, testConfig(), &fakeBackend{})

	h.send(t, Play(timetable.Asr))
	h.waitState(t, StatePlaying)
	h.send(t, Play(timetable.Isha))
	h.send(t, VolumeDown())
	h.send(t, Stop())
	d := h.waitEvent(t, eventbus.PlaybackStopped).Data.(eventbus.PlaybackData)
	if d.Event != "Asr" || d.Volume != 9 {
		t.Fatalf("session = %+v", d)
	}
	clips, _, _ := h.backend.snapshot()
	if len(clips) != 1 {
		t.Fatalf("backend plays = %d, want 1", len(clips))
	}
}

func TestBackendFailureReturnsToIdle(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{playErr: errors.New("no audio device")}
	h := startController(t, testConfig(), b)

	h.send(t, Play(timetable.Dhuhr))
	e := h.waitEvent(t, eventbus.PlaybackFailed)
	if d := e.Data.(eventbus.PlaybackData); d.Error != "no audio device" {
		t.Fatalf("error = %q", d.Error)
	}
	if st := h.ctrl.Status(); st.State != StateIdle {
		t.Fatalf("state = %s, want idle", st.State)
	}

	b.mu.Lock()
	b.playErr = nil
	b.mu.Unlock()
	h.send(t, Play(timetable.Dhuhr))
	h.waitEvent(t, eventbus.PlaybackStarted)
}

func TestControlTimeoutWaitsForCompletion(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.ControlTimeout = 20 * time.Millisecond
	h := startController(t, cfg, &fakeBackend{})

	h.send(t, Play(timetable.Dhuhr))
	h.waitState(t, StatePlaying)
	time.Sleep(60 * time.Millisecond)

	// Past the control window a Stop is no longer served; it stays queued.
	h.send(t, Stop())
	time.Sleep(20 * time.Millisecond)
	if st := h.ctrl.Status(); st.State != StatePlaying {
		t.Fatalf("state = %s, want playing", st.State)
	}
	_, _, stops := h.backend.snapshot()
	if stops != 0 {
		t.Fatalf("backend stops = %d, want 0", stops)
	}

	h.backend.lastHandle().finish()
	d := h.waitEvent(t, eventbus.PlaybackStopped).Data.(eventbus.PlaybackData)
	if d.Reason != "completed" {
		t.Fatalf("reason = %q, want completed", d.Reason)
	}

	// The queued Stop is consumed by the idle loop, then a new Play drains
	// nothing stale and starts normally.
	h.send(t, Play(timetable.Asr))
	h.waitEvent(t, eventbus.PlaybackStarted)
}

func TestPlayDrainsStaleSignals(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{}
	signals := NewChannel(16)
	ctrl := NewController(testConfig(), b, signals, logxNop())

	// Queue a Stop, then deliver Play directly as the idle loop would.
	if err := signals.Send(context.Background(), Stop()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		ctrl.handleIdle(ctx, Play(timetable.Fajr))
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.Status().State != StatePlaying {
		if time.Now().After(deadline) {
			t.Fatal("stale Stop ended the new session")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if signals.Len() != 0 {
		t.Fatalf("queued = %d, want 0", signals.Len())
	}
	b.lastHandle().finish()
	<-done
}

func TestRunClosesChannelOnExit(t *testing.T) {
	t.Parallel()
	signals := NewChannel(1)
	ctrl := NewController(testConfig(), &fakeBackend{}, signals, logxNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if err := signals.Send(context.Background(), Stop()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after exit = %v, want ErrClosed", err)
	}
}

func TestShutdownStopsLiveSession(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{}
	signals := NewChannel(4)
	ctrl := NewController(testConfig(), b, signals, logxNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	if err := signals.Send(context.Background(), Play(timetable.Isha)); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for ctrl.Status().State != StatePlaying {
		if time.Now().After(deadline) {
			t.Fatal("never started playing")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if _, _, stops := b.snapshot(); stops != 1 {
		t.Fatalf("stops = %d, want 1", stops)
	}
}
