package canbus

import (
	"context"
	"log/slog"
)

// LogOption is a bitmask for selecting which operations to log.
type LogOption uint8

const (
	LogNone  LogOption = 0
	LogRead  LogOption = 1 << iota
	LogWrite
	LogFilter
	LogAll = LogRead | LogWrite | LogFilter
)

// NewLoggedBus wraps the given Bus and logs selected operations at the given
// level. Errors are always logged at slog.LevelError.
func NewLoggedBus(inner Bus, logger *slog.Logger, level slog.Level, opts LogOption) Bus {
	return &loggedBus{
		inner:  inner,
		logger: logger,
		level:  level,
		opts:   opts,
	}
}

// NewLoggedBusWithFilter wraps the given Bus and logs selected operations but
// only for frames that satisfy the provided filter. If filter is nil, all
// frames are considered for logging (same as NewLoggedBus behavior).
func NewLoggedBusWithFilter(inner Bus, logger *slog.Logger, level slog.Level, opts LogOption, filter FrameFilter) Bus {
	return &loggedBus{
		inner:  inner,
		logger: logger,
		level:  level,
		opts:   opts,
		filter: filter,
	}
}

type loggedBus struct {
	inner  Bus
	logger *slog.Logger
	level  slog.Level
	opts   LogOption
	filter FrameFilter
}

func (l *loggedBus) logFrame(ctx context.Context, msg string, f Frame) {
	l.logger.Log(ctx, l.level, msg,
		"id", f.ID,
		"extended", f.Extended,
		"rtr", f.RTR,
		"len", int(f.Len),
		"string", f.String(),
	)
}

// Send logs the frame and the result when write logging is enabled.
func (l *loggedBus) Send(ctx context.Context, frame Frame) error {
	if l.opts&LogWrite != 0 && (l.filter == nil || l.filter(frame)) {
		l.logFrame(ctx, "canbus send", frame)
	}
	err := l.inner.Send(ctx, frame)
	if l.opts&LogWrite != 0 && err != nil {
		l.logger.Log(ctx, slog.LevelError, "canbus send error",
			"id", frame.ID,
			"error", err,
		)
	}
	return err
}

// Receive logs the received frame or error when read logging is enabled.
// Timeouts are logged at the configured level, not as errors.
func (l *loggedBus) Receive(ctx context.Context) (Frame, error) {
	f, err := l.inner.Receive(ctx)
	if l.opts&LogRead == 0 {
		return f, err
	}
	switch {
	case IsTimeout(err):
		l.logger.Log(context.Background(), l.level, "canbus receive timeout")
	case err != nil:
		l.logger.Log(context.Background(), slog.LevelError, "canbus receive error",
			"error", err,
		)
	case l.filter == nil || l.filter(f):
		l.logFrame(context.Background(), "canbus receive", f)
	}
	return f, err
}

func (l *loggedBus) SetFilter(id, mask uint32) error {
	err := l.inner.SetFilter(id, mask)
	if l.opts&LogFilter != 0 {
		if err != nil {
			l.logger.Log(context.Background(), slog.LevelError, "canbus set filter error",
				"id", id, "mask", mask, "error", err)
		} else {
			l.logger.Log(context.Background(), l.level, "canbus set filter", "id", id, "mask", mask)
		}
	}
	return err
}

func (l *loggedBus) ClearFilter() error {
	err := l.inner.ClearFilter()
	if l.opts&LogFilter != 0 {
		if err != nil {
			l.logger.Log(context.Background(), slog.LevelError, "canbus clear filter error", "error", err)
		} else {
			l.logger.Log(context.Background(), l.level, "canbus clear filter")
		}
	}
	return err
}

// Close forwards to the inner Bus without logging.
func (l *loggedBus) Close() error {
	return l.inner.Close()
}
