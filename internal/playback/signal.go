package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"adhand/internal/timetable"
)

// ErrClosed is returned by Channel.Send once the consumer has exited.
var ErrClosed = errors.New("playback: signal channel closed")

type SignalKind uint8

const (
	SignalPlay SignalKind = iota + 1
	SignalStop
	SignalVolumeUp
	SignalVolumeDown
)

func (k SignalKind) String() string {
	switch k {
	case SignalPlay:
		return "play"
	case SignalStop:
		return "stop"
	case SignalVolumeUp:
		return "volume_up"
	case SignalVolumeDown:
		return "volume_down"
	default:
		return fmt.Sprintf("signal(%d)", uint8(k))
	}
}

// Signal is a command for the Controller. Event is only set for SignalPlay.
type Signal struct {
	Kind  SignalKind
	Event timetable.Event
}

func Play(e timetable.Event) Signal { return Signal{Kind: SignalPlay, Event: e} }
func Stop() Signal                  { return Signal{Kind: SignalStop} }
func VolumeUp() Signal              { return Signal{Kind: SignalVolumeUp} }
func VolumeDown() Signal            { return Signal{Kind: SignalVolumeDown} }

func (s Signal) String() string {
	if s.Kind == SignalPlay {
		return "play(" + s.Event.String() + ")"
	}
	return s.Kind.String()
}

// Sender is the producer side of the signal channel.
type Sender interface {
	Send(ctx context.Context, sig Signal) error
}

// DefaultChannelSize bounds the number of queued signals.
const DefaultChannelSize = 64

// Channel carries signals from many producers to the single Controller.
//
// Send blocks only while the buffer is full and honours ctx. After Close,
// Send fails with ErrClosed instead of panicking. The underlying Go channel
// is never closed.
type Channel struct {
	ch chan Signal

	done      chan struct{}
	closeOnce sync.Once
}

func NewChannel(size int) *Channel {
	if size <= 0 {
		size = DefaultChannelSize
	}
	return &Channel{ch: make(chan Signal, size), done: make(chan struct{})}
}

func (c *Channel) Send(ctx context.Context, sig Signal) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.ch <- sig:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C returns the receive side.
func (c *Channel) C() <-chan Signal { return c.ch }

// Drain discards every queued signal without blocking and returns them.
func (c *Channel) Drain() []Signal {
	var out []Signal
	for {
		select {
		case sig := <-c.ch:
			out = append(out, sig)
		default:
			return out
		}
	}
}

// Len reports the number of queued signals.
func (c *Channel) Len() int { return len(c.ch) }

// Close marks the channel closed. Pending and future sends fail with ErrClosed.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once Close has been called.
func (c *Channel) Done() <-chan struct{} { return c.done }
