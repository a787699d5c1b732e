package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/notnil/canrelay/canbus"
)

// Relay runs send and send-and-wait exchanges against the configured buses.
// It is safe for concurrent use; each call opens its own bus handle.
type Relay struct {
	opener   canbus.Opener
	counters *Counters
	cfg      *config
	logger   *slog.Logger
}

// New creates a Relay that opens buses through opener and records successful
// transmissions in counters. Only buses listed in counters may be opened.
func New(opener canbus.Opener, counters *Counters, opts ...Option) (*Relay, error) {
	if opener == nil {
		return nil, fmt.Errorf("relay: opener is nil")
	}
	if counters == nil {
		return nil, fmt.Errorf("relay: counters is nil")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, fmt.Errorf("relay: %w", err)
		}
	}
	cfg.normalize()
	return &Relay{
		opener:   opener,
		counters: counters,
		cfg:      cfg,
		logger:   cfg.logger,
	}, nil
}

// Counters returns the counters the relay records into.
func (r *Relay) Counters() *Counters { return r.counters }

// Limits returns the clamping bounds for send-and-wait requests.
func (r *Relay) Limits() (maxTimeout time.Duration, maxPackets int) {
	return r.cfg.maxTimeout, r.cfg.maxPackets
}

func (r *Relay) open(name string) (canbus.Bus, error) {
	if !r.counters.HasBus(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBus, name)
	}
	bus, err := r.opener.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, name, err)
	}
	if r.cfg.traceFrames {
		bus = canbus.NewLoggedBusWithFilter(bus, r.logger.With("bus", name), r.cfg.traceLevel, canbus.LogAll, r.cfg.traceFilter)
	}
	return bus, nil
}

func (r *Relay) recordSent(bus string) {
	if err := r.counters.RecordSent(bus); err != nil {
		r.logger.Error("packet counter saturated", "bus", bus, "error", err)
	}
}

// newFrame builds a standard data frame, mapping range errors to ErrFrameBuild.
func newFrame(id uint32, payload []byte) (canbus.Frame, error) {
	f, err := canbus.NewFrame(id, payload)
	if err != nil {
		return f, fmt.Errorf("%w: %v", ErrFrameBuild, err)
	}
	return f, nil
}
