//go:build linux

package canbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollSlice bounds a single poll(2) when the context carries no deadline, so
// cancellation is still observed.
const pollSlice = 50 * time.Millisecond

// socketCAN implements Bus over a Linux SocketCAN raw socket.
type socketCAN struct {
	iface  string
	fd     int
	mu     sync.Mutex
	closed bool
}

// DialSocketCAN opens a raw CAN socket bound to the given interface name (e.g., "can0").
func DialSocketCAN(iface string) (Bus, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_CAN): %w", err)
	}

	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("if %q: %w", iface, err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: netIf.Index}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind(can@%s): %w", iface, err)
	}

	// Non-blocking so every wait goes through poll(2) with a bound.
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &socketCAN{iface: iface, fd: fd}, nil
}

// SocketCANOpener opens SocketCAN interfaces by name.
type SocketCANOpener struct{}

// Open implements Opener.
func (SocketCANOpener) Open(name string) (Bus, error) { return DialSocketCAN(name) }

func (s *socketCAN) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}

func (s *socketCAN) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send writes one frame using the Linux can_frame binary layout. A full
// transmit queue (EAGAIN, ENOBUFS) is waited out rather than reported.
func (s *socketCAN) Send(ctx context.Context, frame Frame) error {
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	for {
		if s.isClosed() {
			return ErrClosed
		}
		n, werr := unix.Write(s.fd, buf)
		if werr == nil {
			if n != len(buf) {
				return errors.New("canbus: short write")
			}
			return nil
		}
		switch {
		case errors.Is(werr, unix.EAGAIN), errors.Is(werr, unix.ENOBUFS):
			if err := s.wait(ctx, unix.POLLOUT); err != nil {
				return err
			}
		case errors.Is(werr, unix.EINTR):
		default:
			return fmt.Errorf("write(can@%s): %w", s.iface, werr)
		}
	}
}

// Receive reads one frame, blocking until one arrives or ctx is done.
func (s *socketCAN) Receive(ctx context.Context) (Frame, error) {
	var buf [FrameSize]byte
	for {
		if s.isClosed() {
			return Frame{}, ErrClosed
		}
		n, rerr := unix.Read(s.fd, buf[:])
		if rerr == nil {
			if n != FrameSize {
				return Frame{}, fmt.Errorf("canbus: short read: %d", n)
			}
			var f Frame
			if err := f.UnmarshalBinary(buf[:]); err != nil {
				return Frame{}, err
			}
			return f, nil
		}
		switch {
		case errors.Is(rerr, unix.EAGAIN):
			if err := s.wait(ctx, unix.POLLIN); err != nil {
				return Frame{}, err
			}
		case errors.Is(rerr, unix.EINTR):
		default:
			return Frame{}, fmt.Errorf("read(can@%s): %w", s.iface, rerr)
		}
	}
}

func (s *socketCAN) SetFilter(id, mask uint32) error {
	return s.setFilters([]unix.CanFilter{{Id: id, Mask: mask}})
}

// ClearFilter installs a zero-mask filter, which accepts every frame.
func (s *socketCAN) ClearFilter() error {
	return s.setFilters([]unix.CanFilter{{Id: 0, Mask: 0}})
}

func (s *socketCAN) setFilters(filters []unix.CanFilter) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := unix.SetsockoptCanRawFilter(s.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filters); err != nil {
		return fmt.Errorf("setsockopt(CAN_RAW_FILTER): %w", err)
	}
	return nil
}

// wait polls the socket for events, bounded by the context deadline.
func (s *socketCAN) wait(ctx context.Context, events int16) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		timeout := pollSlice
		if deadline, ok := ctx.Deadline(); ok {
			d := time.Until(deadline)
			if d <= 0 {
				return context.DeadlineExceeded
			}
			if d < timeout {
				timeout = d
			}
		}
		ms := int(timeout / time.Millisecond)
		if ms <= 0 {
			ms = 1
		}
		pfd := []unix.PollFd{{Fd: int32(s.fd), Events: events}}
		n, err := unix.Poll(pfd, ms)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll(can@%s): %w", s.iface, err)
		}
		if n > 0 {
			return nil
		}
	}
}
