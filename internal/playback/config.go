package playback

import (
	"time"

	"adhand/internal/timetable"
)

const (
	MinVolume     = 0
	MaxVolume     = 15
	DefaultVolume = 10

	DefaultControlTimeout = 200 * time.Second
)

type Config struct {
	// Volume is the starting level of every session, in [MinVolume, MaxVolume].
	Volume int
	// ControlTimeout bounds each wait for a control signal while playing.
	ControlTimeout time.Duration
	// FajrClip plays for Fajr; Clip plays for every other event.
	FajrClip string
	Clip     string
}

func (c Config) withDefaults() Config {
	c.Volume = ClampVolume(c.Volume)
	if c.ControlTimeout <= 0 {
		c.ControlTimeout = DefaultControlTimeout
	}
	return c
}

// ClipFor selects the clip for e.
func (c Config) ClipFor(e timetable.Event) string {
	if e == timetable.Fajr && c.FajrClip != "" {
		return c.FajrClip
	}
	return c.Clip
}

// ClampVolume bounds v to [MinVolume, MaxVolume].
func ClampVolume(v int) int {
	return min(max(v, MinVolume), MaxVolume)
}
