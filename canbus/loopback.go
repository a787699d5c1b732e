package canbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// loopbackQueueLen is the per-endpoint receive queue length. Like a raw CAN
// socket, an endpoint whose queue is full drops further frames.
const loopbackQueueLen = 64

// LoopbackBus is an in-memory CAN bus for tests and simulations.
// Multiple endpoints opened from the same bus can exchange frames.
type LoopbackBus struct {
	mu        sync.RWMutex
	closed    bool
	endpoints map[*loopEndpoint]struct{}
}

// NewLoopbackBus creates a new loopback bus.
func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{endpoints: make(map[*loopEndpoint]struct{})}
}

// Open creates a new endpoint attached to the bus. An endpoint opened on a
// closed bus is returned already closed.
func (b *LoopbackBus) Open() Bus {
	ep := &loopEndpoint{
		bus:    b,
		ch:     make(chan Frame, loopbackQueueLen),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ep.dead = true
		close(ep.closed)
		close(ep.ch)
		return ep
	}
	b.endpoints[ep] = struct{}{}
	return ep
}

// Close closes the bus and detaches all endpoints.
func (b *LoopbackBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ep := range b.endpoints {
		ep.closeNoLock()
	}
	b.endpoints = nil
	return nil
}

// Endpoints returns the number of endpoints currently attached.
func (b *LoopbackBus) Endpoints() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.endpoints)
}

type loopEndpoint struct {
	bus    *LoopbackBus
	ch     chan Frame
	mu     sync.Mutex
	dead   bool
	filter FrameFilter
	closed chan struct{}
}

// Send broadcasts the frame to all other endpoints on the same bus whose
// filter accepts it.
func (e *loopEndpoint) Send(ctx context.Context, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	if e.dead {
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()

	// Deliver under the bus read lock so endpoints cannot close mid-delivery.
	e.bus.mu.RLock()
	defer e.bus.mu.RUnlock()
	if e.bus.closed {
		return ErrClosed
	}
	for ep := range e.bus.endpoints {
		if ep != e {
			ep.deliver(frame)
		}
	}
	return nil
}

func (e *loopEndpoint) deliver(frame Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead || (e.filter != nil && !e.filter(frame)) {
		return
	}
	select {
	case e.ch <- frame:
	default:
	}
}

// Receive waits for the next accepted frame or until ctx is done.
func (e *loopEndpoint) Receive(ctx context.Context) (Frame, error) {
	select {
	case f, ok := <-e.ch:
		if !ok {
			return Frame{}, ErrClosed
		}
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (e *loopEndpoint) SetFilter(id, mask uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return ErrClosed
	}
	e.filter = ByMask(id, mask)
	return nil
}

func (e *loopEndpoint) ClearFilter() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return ErrClosed
	}
	e.filter = nil
	return nil
}

// Close detaches endpoint from bus and closes its channel.
func (e *loopEndpoint) Close() error {
	e.bus.mu.Lock()
	e.closeNoLock()
	e.bus.mu.Unlock()
	return nil
}

func (e *loopEndpoint) closeNoLock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return
	}
	e.dead = true
	close(e.closed)
	close(e.ch)
	if e.bus.endpoints != nil {
		delete(e.bus.endpoints, e)
	}
}

// LoopbackNetwork is a named set of loopback buses. It implements Opener so
// it can stand in for SocketCAN interfaces.
type LoopbackNetwork struct {
	buses *xsync.MapOf[string, *LoopbackBus]
}

// NewLoopbackNetwork creates a network with one loopback bus per name.
func NewLoopbackNetwork(names ...string) *LoopbackNetwork {
	n := &LoopbackNetwork{buses: xsync.NewMapOf[string, *LoopbackBus]()}
	for _, name := range names {
		n.buses.LoadOrCompute(name, NewLoopbackBus)
	}
	return n
}

// Bus returns the loopback bus registered under name.
func (n *LoopbackNetwork) Bus(name string) (*LoopbackBus, bool) {
	return n.buses.Load(name)
}

// Open attaches a new endpoint to the named bus.
func (n *LoopbackNetwork) Open(name string) (Bus, error) {
	b, ok := n.buses.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchBus, name)
	}
	return b.Open(), nil
}

// Close closes every bus in the network.
func (n *LoopbackNetwork) Close() error {
	n.buses.Range(func(name string, b *LoopbackBus) bool {
		_ = b.Close()
		n.buses.Delete(name)
		return true
	})
	return nil
}
