package playback

import "context"

// Backend renders audio clips. Implementations must be safe for use from
// the Controller goroutine only; they are never called concurrently.
type Backend interface {
	// Play starts rendering clip at volume and returns immediately.
	Play(ctx context.Context, clip string, volume int) (Handle, error)
	// Stop halts rendering. Stopping a finished handle is a no-op.
	Stop(h Handle) error
	SetVolume(h Handle, volume int) error
}

// Handle is a live rendering started by Backend.Play.
type Handle interface {
	// Done is closed when the clip ends or is stopped.
	Done() <-chan struct{}
	Finished() bool
}
