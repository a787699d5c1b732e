package canbus

import (
	"context"
	"errors"
)

// Bus represents one opened CAN interface which can send and receive CAN
// frames. A Bus is owned by a single caller; it is opened for one exchange
// and closed afterwards.
type Bus interface {
	// Send transmits a frame. It blocks until the transmit queue accepts the
	// frame or a hard I/O error occurs. Context cancellation aborts the wait
	// and returns the context error.
	Send(ctx context.Context, frame Frame) error

	// Receive retrieves the next frame accepted by the current filter. It
	// blocks until a frame is available or the context is done, in which case
	// the context error is returned (context.DeadlineExceeded for a timeout).
	Receive(ctx context.Context) (Frame, error)

	// SetFilter restricts subsequent reads to frames whose identifier matches
	// id under mask: frame.ID&mask == id&mask.
	SetFilter(id, mask uint32) error

	// ClearFilter restores the accept-all filter.
	ClearFilter() error

	// Close releases resources. Further Send/Receive return ErrClosed.
	Close() error
}

// Opener opens a Bus by interface name (e.g. "can0", "vcan0").
type Opener interface {
	Open(name string) (Bus, error)
}

var (
	// ErrClosed indicates the bus or endpoint has been closed.
	ErrClosed = errors.New("canbus: closed")
	// ErrNoSuchBus is returned by an Opener for an unknown interface name.
	ErrNoSuchBus = errors.New("canbus: no such bus")
	// ErrUnsupported is returned where the platform has no SocketCAN.
	ErrUnsupported = errors.New("canbus: unsupported on this platform")
)

// IsTimeout reports whether err is the expected outcome of a bounded Receive
// that saw no frame in time.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
