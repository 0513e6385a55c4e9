package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gopxl/beep/v2/effects"
	"github.com/spf13/afero"

	logx "adhand/pkg/logx"
)

// pcmWAV builds a mono 16-bit PCM WAVE file of n silent samples.
func pcmWAV(rate, n int) []byte {
	var b bytes.Buffer
	dataLen := n * 2
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&b, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&b, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(rate*2))
	_ = binary.Write(&b, binary.LittleEndian, uint16(2))
	_ = binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(dataLen))
	b.Write(make([]byte, dataLen))
	return b.Bytes()
}

func newTestPlayer(t *testing.T) (*Player, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/clips/adhan.wav", pcmWAV(22050, 2205), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/clips/broken.mp3", []byte("not an mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	return New(Config{Dir: "/clips"}, fs, logx.Nop()), fs
}

func TestCheckClips(t *testing.T) {
	t.Parallel()
	p, _ := newTestPlayer(t)
	if err := p.Check("adhan.wav", ""); err != nil {
		t.Fatalf("Check(existing) = %v", err)
	}
	err := p.Check("missing.mp3", "adhan.ogg")
	if err == nil {
		t.Fatal("Check(missing, unsupported) = nil")
	}
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Check err = %v, want ErrUnsupported in chain", err)
	}
}

func TestOpenDecodesWAV(t *testing.T) {
	t.Parallel()
	p, _ := newTestPlayer(t)
	src, format, err := p.open("adhan.wav")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()
	if format.SampleRate != 22050 || format.NumChannels != 1 {
		t.Fatalf("format = %+v", format)
	}
	if src.Len() != 2205 {
		t.Fatalf("Len = %d, want 2205", src.Len())
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()
	p, _ := newTestPlayer(t)
	if _, _, err := p.open("nope.wav"); err == nil {
		t.Fatal("open(missing) = nil error")
	}
	if _, _, err := p.open("broken.mp3"); err == nil {
		t.Fatal("open(corrupt mp3) = nil error")
	}
	if _, _, err := p.open("adhan.flac"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("open(flac) = %v, want ErrUnsupported", err)
	}
}

func TestApplyLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level  int
		silent bool
		gain   float64
	}{
		{level: 15, gain: 1},
		{level: 12, gain: 0.5},
		{level: 9, gain: 0.25},
		{level: 0, silent: true},
		{level: -4, silent: true},
		{level: 40, gain: 1},
	}
	for _, tt := range tests {
		v := &effects.Volume{Base: 2}
		applyLevel(v, tt.level)
		if v.Silent != tt.silent {
			t.Fatalf("level %d silent = %v, want %v", tt.level, v.Silent, tt.silent)
		}
		if tt.silent {
			continue
		}
		if got := math.Pow(v.Base, v.Volume); math.Abs(got-tt.gain) > 1e-9 {
			t.Fatalf("level %d gain = %v, want %v", tt.level, got, tt.gain)
		}
	}
}

func TestForeignHandleRejected(t *testing.T) {
	t.Parallel()
	p, _ := newTestPlayer(t)
	if err := p.Stop(nil); err == nil {
		t.Fatal("Stop(nil) = nil error")
	}
	if err := p.SetVolume(nil, 3); err == nil {
		t.Fatal("SetVolume(nil) = nil error")
	}
}
