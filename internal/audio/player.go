// Package audio renders clips to the default output device.
package audio

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	"github.com/spf13/afero"

	"adhand/internal/playback"
	logx "adhand/pkg/logx"
)

var ErrUnsupported = errors.New("audio: unsupported clip format")

const (
	DefaultSampleRate = beep.SampleRate(44100)
	DefaultBuffer     = 100 * time.Millisecond

	// volumeStep is how many levels halve the amplitude.
	volumeStep = 3.0
)

type Config struct {
	// Dir is the directory clips are resolved under. Empty means the
	// working directory.
	Dir        string
	SampleRate int
	Buffer     time.Duration
}

// Player implements playback.Backend with beep.
type Player struct {
	fs     afero.Fs
	log    logx.Logger
	rate   beep.SampleRate
	buffer time.Duration

	mu    sync.Mutex
	ready bool
}

var _ playback.Backend = (*Player)(nil)

// New returns a Player reading clips from fs rooted at cfg.Dir.
// A nil fs means the OS filesystem.
func New(cfg Config, fs afero.Fs, log logx.Logger) *Player {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dir := strings.TrimSpace(cfg.Dir); dir != "" {
		fs = afero.NewBasePathFs(fs, dir)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rate := DefaultSampleRate
	if cfg.SampleRate > 0 {
		rate = beep.SampleRate(cfg.SampleRate)
	}
	buf := cfg.Buffer
	if buf <= 0 {
		buf = DefaultBuffer
	}
	return &Player{fs: fs, log: log.With(logx.String("comp", "audio")), rate: rate, buffer: buf}
}

// Check verifies that every named clip exists and has a supported format.
func (p *Player) Check(clips ...string) error {
	var errs []error
	for _, c := range clips {
		if c == "" {
			continue
		}
		if _, err := decoderFor(c); err != nil {
			errs = append(errs, err)
			continue
		}
		ok, err := afero.Exists(p.fs, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("audio: stat %s: %w", c, err))
			continue
		}
		if !ok {
			errs = append(errs, fmt.Errorf("audio: clip %s not found", c))
		}
	}
	return errors.Join(errs...)
}

func (p *Player) Play(ctx context.Context, clip string, volume int) (playback.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, format, err := p.open(clip)
	if err != nil {
		return nil, err
	}
	if err := p.init(); err != nil {
		_ = src.Close()
		return nil, err
	}

	var s beep.Streamer = src
	if format.SampleRate != p.rate {
		s = beep.Resample(4, format.SampleRate, p.rate, src)
	}
	h := &handle{
		done: make(chan struct{}),
		src:  src,
		ctrl: &beep.Ctrl{Streamer: s},
	}
	h.vol = &effects.Volume{Streamer: h.ctrl, Base: 2}
	applyLevel(h.vol, volume)

	speaker.Play(beep.Seq(h.vol, beep.Callback(h.finish)))
	p.log.Debug("clip started",
		logx.String("clip", clip),
		logx.Int("volume", volume),
		logx.Int("sample_rate", int(format.SampleRate)),
	)
	return h, nil
}

func (p *Player) Stop(ph playback.Handle) error {
	h, ok := ph.(*handle)
	if !ok {
		return fmt.Errorf("audio: foreign handle %T", ph)
	}
	if h.Finished() {
		return nil
	}
	speaker.Lock()
	h.ctrl.Streamer = nil
	speaker.Unlock()
	h.finish()
	return nil
}

func (p *Player) SetVolume(ph playback.Handle, level int) error {
	h, ok := ph.(*handle)
	if !ok {
		return fmt.Errorf("audio: foreign handle %T", ph)
	}
	speaker.Lock()
	applyLevel(h.vol, level)
	speaker.Unlock()
	return nil
}

// Close releases the output device.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		speaker.Close()
		p.ready = false
	}
}

func (p *Player) init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		return nil
	}
	if err := speaker.Init(p.rate, p.rate.N(p.buffer)); err != nil {
		return fmt.Errorf("audio: init speaker: %w", err)
	}
	p.ready = true
	return nil
}

type decodeFunc func(f afero.File) (beep.StreamSeekCloser, beep.Format, error)

func decoderFor(clip string) (decodeFunc, error) {
	switch strings.ToLower(path.Ext(clip)) {
	case ".mp3":
		return func(f afero.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) }, nil
	case ".wav":
		return func(f afero.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) }, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, clip)
	}
}

func (p *Player) open(clip string) (beep.StreamSeekCloser, beep.Format, error) {
	dec, err := decoderFor(clip)
	if err != nil {
		return nil, beep.Format{}, err
	}
	f, err := p.fs.Open(clip)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("audio: open %s: %w", clip, err)
	}
	src, format, err := dec(f)
	if err != nil {
		_ = f.Close()
		return nil, beep.Format{}, fmt.Errorf("audio: decode %s: %w", clip, err)
	}
	return src, format, nil
}

// applyLevel maps a level in [0, playback.MaxVolume] onto the volume effect.
// MaxVolume is unity gain, every volumeStep levels below halves it, 0 mutes.
func applyLevel(v *effects.Volume, level int) {
	level = playback.ClampVolume(level)
	v.Silent = level == playback.MinVolume
	v.Volume = float64(level-playback.MaxVolume) / volumeStep
}

type handle struct {
	done chan struct{}
	once sync.Once
	src  beep.StreamSeekCloser
	ctrl *beep.Ctrl
	vol  *effects.Volume
}

func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *handle) finish() {
	h.once.Do(func() {
		close(h.done)
		_ = h.src.Close()
	})
}
