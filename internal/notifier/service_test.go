package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"adhand/internal/eventbus"
	logx "adhand/pkg/logx"
)

type fakeSink struct {
	mu    sync.Mutex
	fails int
	got   []Notification
	calls int
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Deliver(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return errors.New("unavailable")
	}
	f.got = append(f.got, n)
	return nil
}

func (f *fakeSink) snapshot() ([]Notification, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.got...), f.calls
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       1,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestNotify_DeliversWithRetry(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{fails: 2}
	s := New(testConfig(), []Sink{sink}, logxNop())
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	if err := s.Notify(ctx, Notification{Kind: "test", Text: "hello"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool {
		got, _ := sink.snapshot()
		return len(got) == 1
	})
	got, calls := sink.snapshot()
	if calls != 3 {
		t.Fatalf("calls=%d, want 3", calls)
	}
	if got[0].Text != "hello" || got[0].At.IsZero() {
		t.Fatalf("unexpected notification: %+v", got[0])
	}
}

func TestNotify_DisabledAndStopped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig()
	cfg.Enabled = false
	s := New(cfg, []Sink{&fakeSink{}}, logxNop())
	s.Start(ctx)
	if err := s.Notify(ctx, Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err=%v, want ErrDisabled", err)
	}

	s = New(testConfig(), []Sink{&fakeSink{}}, logxNop())
	if err := s.Notify(ctx, Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v, want ErrStopped before Start", err)
	}
	s.Start(ctx)
	s.Stop(ctx)
	if err := s.Notify(ctx, Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v, want ErrStopped after Stop", err)
	}
}

func TestStop_DrainsQueue(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s := New(testConfig(), []Sink{sink}, logxNop())
	ctx := context.Background()
	s.Start(ctx)
	for i := 0; i < 5; i++ {
		if err := s.NotifyLog(ctx, "line"); err != nil {
			t.Fatalf("NotifyLog: %v", err)
		}
	}
	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	got, _ := sink.snapshot()
	if len(got) != 5 {
		t.Fatalf("delivered=%d, want 5", len(got))
	}
	if got[0].Kind != KindLog {
		t.Fatalf("kind=%q, want %q", got[0].Kind, KindLog)
	}
}

func TestRun_ForwardsConfiguredEvents(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s := New(testConfig(), []Sink{sink}, logxNop())
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	runDone := make(chan struct{})
	go func() {
		_ = s.Run(ctx, bus)
		close(runDone)
	}()

	at := time.Date(2024, 3, 1, 18, 12, 0, 0, time.UTC)
	waitFor(t, func() bool {
		bus.Publish(eventbus.Event{Type: eventbus.PlaybackStarted, Data: eventbus.PlaybackData{Event: "Maghrib"}})
		bus.Publish(eventbus.Event{Type: eventbus.AlertFired, Data: eventbus.AlertData{Date: "2024-03-01", Event: "Maghrib", At: at}})
		got, _ := sink.snapshot()
		return len(got) > 0
	})
	cancel()
	<-runDone

	got, _ := sink.snapshot()
	for _, n := range got {
		if n.Kind != eventbus.AlertFired {
			t.Fatalf("unexpected kind forwarded: %q", n.Kind)
		}
		if !strings.Contains(n.Text, "Maghrib") || !strings.Contains(n.Text, "18:12") {
			t.Fatalf("unexpected text: %q", n.Text)
		}
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ev   eventbus.Event
		want string
		ok   bool
	}{
		{
			name: "skipped",
			ev:   eventbus.Event{Type: eventbus.AlertSkipped, Data: eventbus.AlertData{Date: "2024-03-01", Event: "Asr", Reason: "late"}},
			want: "Asr skipped on 2024-03-01: late",
			ok:   true,
		},
		{
			name: "playback failed",
			ev:   eventbus.Event{Type: eventbus.PlaybackFailed, Data: eventbus.PlaybackData{Event: "Fajr", Clip: "fajr.mp3", Error: "no device"}},
			want: "playback failed for Fajr (fajr.mp3): no device",
			ok:   true,
		},
		{
			name: "playback stopped",
			ev:   eventbus.Event{Type: eventbus.PlaybackStopped, Data: eventbus.PlaybackData{Event: "Fajr"}},
		},
		{
			name: "unknown payload",
			ev:   eventbus.Event{Type: "other", Data: 42},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n, ok := Format(tc.ev)
			if ok != tc.ok {
				t.Fatalf("ok=%v, want %v", ok, tc.ok)
			}
			if ok && !strings.Contains(n.Text, tc.want) {
				t.Fatalf("text=%q, want it to contain %q", n.Text, tc.want)
			}
		})
	}
}

func TestRetryDelay_Capped(t *testing.T) {
	t.Parallel()

	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 10; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d: delay=%s out of range", attempt, d)
		}
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	if got := splitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("unexpected split: %q", got)
	}
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(s, 10)
	if len(got) != 2 || got[0] != strings.Repeat("a", 6)+"\n" || got[1] != strings.Repeat("b", 6) {
		t.Fatalf("unexpected split: %q", got)
	}
	if strings.Join(splitText(strings.Repeat("x", 25), 10), "") != strings.Repeat("x", 25) {
		t.Fatalf("split lost content")
	}
}

func TestTopicFor(t *testing.T) {
	t.Parallel()

	if got := TopicFor("home/adhan/", "alert.fired"); got != "home/adhan/alert/fired" {
		t.Fatalf("topic=%q", got)
	}
}

func TestTelegram_Deliver(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		form url.Values
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		form = decodeParams(r.Header.Get("Content-Type"), body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":42,"type":"group"}}}`)
	}))
	defer srv.Close()

	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", ChatID: 42, ThreadID: 5, URL: srv.URL})
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	if err := tg.Deliver(context.Background(), Notification{Text: "adhan"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("path=%q", path)
	}
	if form.Get("chat_id") != "42" || form.Get("text") != "adhan" || form.Get("message_thread_id") != "5" {
		t.Fatalf("unexpected params: %v", form)
	}
}

func TestNewTelegram_Validates(t *testing.T) {
	t.Parallel()

	if _, err := NewTelegram(TelegramConfig{ChatID: 1}); err == nil {
		t.Fatalf("expected error for empty token")
	}
	if _, err := NewTelegram(TelegramConfig{Token: "t"}); err == nil {
		t.Fatalf("expected error for empty chat id")
	}
}

// decodeParams accepts either the JSON or form body the Bot API client sends.
func decodeParams(contentType string, body []byte) url.Values {
	if !strings.HasPrefix(contentType, "application/json") {
		v, _ := url.ParseQuery(string(body))
		return v
	}
	out := url.Values{}
	var m map[string]any
	_ = json.Unmarshal(body, &m)
	for k, v := range m {
		out.Set(k, fmt.Sprint(v))
	}
	return out
}

func logxNop() logx.Logger { return logx.Nop() }
