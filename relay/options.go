package relay

import (
	"errors"
	"log/slog"
	"time"

	"github.com/notnil/canrelay/canbus"
)

// Defaults applied to a send-and-wait request that omits timeout or maxpkts.
const (
	DefaultTimeout    = 1500 * time.Millisecond
	DefaultMaxPackets = 3
)

// Upper bounds on per-request worker occupancy. Requests asking for more are
// clamped to these values.
const (
	DefaultTimeoutLimit = 10 * time.Second
	DefaultPacketLimit  = 64
)

// IsoTPFilterMask is the acceptance mask installed for the response
// identifier: all 11 standard identifier bits.
const IsoTPFilterMask = 0x7FF

type config struct {
	logger            *slog.Logger
	defaultTimeout    time.Duration
	defaultMaxPackets int
	maxTimeout        time.Duration
	maxPackets        int
	traceFrames       bool
	traceLevel        slog.Level
	traceFilter       canbus.FrameFilter
}

func defaultConfig() *config {
	return &config{
		logger:            slog.Default(),
		defaultTimeout:    DefaultTimeout,
		defaultMaxPackets: DefaultMaxPackets,
		maxTimeout:        DefaultTimeoutLimit,
		maxPackets:        DefaultPacketLimit,
	}
}

// normalize lowers the request defaults to the limits, so a default never
// exceeds what an explicit request could ask for.
func (cfg *config) normalize() {
	cfg.defaultTimeout = min(cfg.defaultTimeout, cfg.maxTimeout)
	cfg.defaultMaxPackets = min(cfg.defaultMaxPackets, cfg.maxPackets)
}

// Option represents a functional option for configuring a Relay.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithLogger sets the logger used for operation outcomes.
func WithLogger(l *slog.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l
		return nil
	})
}

// WithDefaultTimeout sets the collection budget used when a request gives none.
//
// Defaults to 1500 milliseconds.
func WithDefaultTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("default timeout must be positive")
		}
		cfg.defaultTimeout = d
		return nil
	})
}

// WithDefaultMaxPackets sets the packet bound used when a request gives none.
//
// Defaults to 3.
func WithDefaultMaxPackets(n int) Option {
	return optFunc(func(cfg *config) error {
		if n <= 0 {
			return errors.New("default max packets must be positive")
		}
		cfg.defaultMaxPackets = n
		return nil
	})
}

// WithMaxTimeout sets the largest collection budget a request may ask for.
//
// Defaults to 10 seconds.
func WithMaxTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("max timeout must be positive")
		}
		cfg.maxTimeout = d
		return nil
	})
}

// WithMaxPackets sets the largest packet bound a request may ask for.
//
// Defaults to 64.
func WithMaxPackets(n int) Option {
	return optFunc(func(cfg *config) error {
		if n <= 0 {
			return errors.New("max packets must be positive")
		}
		cfg.maxPackets = n
		return nil
	})
}

// WithFrameLogging logs every frame, filter change and bus error of opened
// handles at the given level.
func WithFrameLogging(level slog.Level) Option {
	return optFunc(func(cfg *config) error {
		cfg.traceFrames = true
		cfg.traceLevel = level
		return nil
	})
}

// WithFrameLogFilter restricts frame logging to frames accepted by filter.
// Filter and error records are always logged. It has no effect without
// WithFrameLogging.
func WithFrameLogFilter(filter canbus.FrameFilter) Option {
	return optFunc(func(cfg *config) error {
		if filter == nil {
			return errors.New("frame log filter is nil")
		}
		cfg.traceFilter = filter
		return nil
	})
}
