package relay

import (
	"math"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Counters tracks relay activity for the lifetime of the process. It is
// created once at startup and handed to every request handler.
//
// Readers (status and statistics queries) share the lock; a successful send
// takes it exclusively. The lock is never held across bus I/O.
type Counters struct {
	mu             sync.RWMutex
	startedOn      time.Time
	packetsSent    uint32
	lastPacketSent *time.Time
	buses          []string
	perBus         *xsync.MapOf[string, *xsync.Counter]
	now            func() time.Time
}

// Stats is a point-in-time copy of Counters.
type Stats struct {
	StartedOn      time.Time
	Uptime         time.Duration
	PacketsSent    uint32
	LastPacketSent *time.Time
	PerBus         map[string]int64
}

// NewCounters creates counters for the given configured bus names.
func NewCounters(buses []string) *Counters {
	return newCounters(buses, time.Now)
}

func newCounters(buses []string, now func() time.Time) *Counters {
	c := &Counters{
		startedOn: now(),
		buses:     append([]string(nil), buses...),
		perBus:    xsync.NewMapOf[string, *xsync.Counter](),
		now:       now,
	}
	for _, b := range c.buses {
		c.perBus.Store(b, xsync.NewCounter())
	}
	return c
}

// StartedOn returns the time the counters were created.
func (c *Counters) StartedOn() time.Time { return c.startedOn }

// Buses returns a copy of the configured bus names in startup order.
func (c *Counters) Buses() []string {
	return append([]string(nil), c.buses...)
}

// HasBus reports whether name is a configured bus.
func (c *Counters) HasBus(name string) bool {
	_, ok := c.perBus.Load(name)
	return ok
}

// RecordSent notes one confirmed transmission on bus. At the counter's
// maximum the count saturates and ErrCounterOverflow is returned; the
// timestamp is still updated.
func (c *Counters) RecordSent(bus string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now()
	c.lastPacketSent = &ts
	if cnt, ok := c.perBus.Load(bus); ok {
		cnt.Inc()
	}
	if c.packetsSent == math.MaxUint32 {
		return ErrCounterOverflow
	}
	c.packetsSent++
	return nil
}

// Snapshot returns a consistent copy of all counters.
func (c *Counters) Snapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		StartedOn:   c.startedOn,
		Uptime:      c.now().Sub(c.startedOn),
		PacketsSent: c.packetsSent,
		PerBus:      make(map[string]int64, len(c.buses)),
	}
	if c.lastPacketSent != nil {
		ts := *c.lastPacketSent
		s.LastPacketSent = &ts
	}
	c.perBus.Range(func(name string, cnt *xsync.Counter) bool {
		s.PerBus[name] = cnt.Value()
		return true
	})
	return s
}
