package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/notnil/canrelay/canbus"
	"github.com/stretchr/testify/require"
)

// fakeBus is a scripted canbus.Bus that records every call.
type fakeBus struct {
	mu sync.Mutex

	sendErr        error
	setFilterErr   error
	clearFilterErr error
	recvErr        error
	recvPanic      bool
	rx             []canbus.Frame

	sent        []canbus.Frame
	filterID    uint32
	filterMask  uint32
	filterSet   bool
	clearCalls  int
	closed      bool
	receiveCall int
}

func (b *fakeBus) Send(ctx context.Context, f canbus.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, f)
	return nil
}

// Receive hands out scripted frames, then blocks until the deadline.
func (b *fakeBus) Receive(ctx context.Context) (canbus.Frame, error) {
	b.mu.Lock()
	b.receiveCall++
	if b.recvPanic {
		b.mu.Unlock()
		panic("driver fault")
	}
	if b.recvErr != nil {
		err := b.recvErr
		b.mu.Unlock()
		return canbus.Frame{}, err
	}
	if len(b.rx) > 0 {
		f := b.rx[0]
		b.rx = b.rx[1:]
		b.mu.Unlock()
		return f, nil
	}
	b.mu.Unlock()
	<-ctx.Done()
	return canbus.Frame{}, ctx.Err()
}

func (b *fakeBus) SetFilter(id, mask uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.setFilterErr != nil {
		return b.setFilterErr
	}
	b.filterID, b.filterMask, b.filterSet = id, mask, true
	return nil
}

func (b *fakeBus) ClearFilter() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearCalls++
	if b.clearFilterErr != nil {
		return b.clearFilterErr
	}
	b.filterSet = false
	return nil
}

func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// acceptsAll reports whether the bus was left with the accept-all filter.
func (b *fakeBus) acceptsAll() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.filterSet
}

type fakeOpener struct {
	bus     *fakeBus
	openErr error
	opened  int
}

func (o *fakeOpener) Open(name string) (canbus.Bus, error) {
	o.opened++
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.bus, nil
}

var errDriver = errors.New("driver says no")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFakeRelay(t *testing.T, bus *fakeBus, opts ...Option) (*Relay, *fakeOpener) {
	t.Helper()
	opener := &fakeOpener{bus: bus}
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	r, err := New(opener, NewCounters([]string{"can0"}), opts...)
	require.NoError(t, err)
	return r, opener
}

func newLoopbackRelay(t *testing.T, opts ...Option) (*Relay, *canbus.LoopbackNetwork) {
	t.Helper()
	network := canbus.NewLoopbackNetwork("vcan0")
	t.Cleanup(func() { _ = network.Close() })
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	r, err := New(network, NewCounters([]string{"vcan0"}), opts...)
	require.NoError(t, err)
	return r, network
}

func ptr[T any](v T) *T { return &v }
