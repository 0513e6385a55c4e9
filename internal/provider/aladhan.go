package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"adhand/internal/timetable"
	logx "adhand/pkg/logx"
)

const DefaultAladhanURL = "https://api.aladhan.com"

// AladhanConfig configures the aladhan.com client.
type AladhanConfig struct {
	BaseURL string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// Aladhan fetches daily timings from the aladhan.com API.
type Aladhan struct {
	base    string
	client  *http.Client
	retries int
	backoff time.Duration
	log     logx.Logger
}

var _ Provider = (*Aladhan)(nil)

func NewAladhan(cfg AladhanConfig, client *http.Client, log logx.Logger) *Aladhan {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultAladhanURL
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Aladhan{
		base:    base,
		client:  client,
		retries: max(0, cfg.Retries),
		backoff: backoff,
		log:     log.With(logx.String("comp", "provider.aladhan")),
	}
}

type aladhanResponse struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   struct {
		Timings map[string]string `json:"timings"`
	} `json:"data"`
}

func (a *Aladhan) Fetch(ctx context.Context, date time.Time, loc Location) ([]timetable.Slot, error) {
	u, err := a.url(date, loc)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			wait := a.backoff << (attempt - 1)
			a.log.Warn("timetable fetch failed; retrying",
				logx.Int("attempt", attempt),
				logx.Duration("wait", wait),
				logx.Err(lastErr),
			)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
			case <-t.C:
			}
		}
		slots, err := a.fetchOnce(ctx, u)
		if err == nil {
			return slots, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

func (a *Aladhan) url(date time.Time, loc Location) (string, error) {
	q := url.Values{}
	var path string
	switch {
	case loc.City != "" && loc.Country != "":
		path = "/v1/timingsByCity/" + date.Format("02-01-2006")
		q.Set("city", loc.City)
		q.Set("country", loc.Country)
	case loc.HasCoords:
		path = "/v1/timings/" + date.Format("02-01-2006")
		q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
		q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	default:
		return "", fmt.Errorf("%w: location needs city+country or coordinates", ErrUnavailable)
	}
	q.Set("method", strconv.Itoa(loc.Method))
	if loc.School != 0 {
		q.Set("school", strconv.Itoa(loc.School))
	}
	if loc.Timezone != "" {
		q.Set("timezonestring", loc.Timezone)
	}
	t := loc.Tune
	// imsak, fajr, sunrise, dhuhr, asr, maghrib, sunset, isha
	q.Set("tune", fmt.Sprintf("0,%d,0,%d,%d,%d,0,%d", t.Fajr, t.Dhuhr, t.Asr, t.Maghrib, t.Isha))
	return a.base + path + "?" + q.Encode(), nil
}

func (a *Aladhan) fetchOnce(ctx context.Context, u string) ([]timetable.Slot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var r aladhanResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if r.Code != http.StatusOK || !strings.EqualFold(r.Status, "OK") {
		return nil, fmt.Errorf("api status %d %q", r.Code, r.Status)
	}
	if len(r.Data.Timings) == 0 {
		return nil, fmt.Errorf("api returned no timings")
	}

	slots := make([]timetable.Slot, 0, timetable.NumEvents)
	for _, e := range timetable.Events() {
		raw, ok := r.Data.Timings[e.String()]
		if !ok {
			a.log.Warn("timing missing from response", logx.String("event", e.String()))
			continue
		}
		slots = append(slots, timetable.Slot{Clock: raw, Name: e.String()})
	}
	return slots, nil
}
