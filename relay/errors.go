package relay

import "errors"

var (
	// ErrOpen indicates the bus could not be opened.
	ErrOpen = errors.New("relay: bus unavailable")
	// ErrUnknownBus indicates a bus name outside the configured set.
	ErrUnknownBus = errors.New("relay: bus not configured")
	// ErrDecode indicates a malformed hex identifier, payload or parameter.
	ErrDecode = errors.New("relay: decode error")
	// ErrPayloadTooLong indicates a payload whose length cannot be expressed
	// in the single length byte.
	ErrPayloadTooLong = errors.New("relay: payload longer than 255 bytes")
	// ErrFrameBuild indicates an identifier or payload outside CAN limits.
	ErrFrameBuild = errors.New("relay: frame build error")
	// ErrFilter indicates the receive filter was rejected.
	ErrFilter = errors.New("relay: filter rejected")
	// ErrTransmit indicates the driver refused the frame.
	ErrTransmit = errors.New("relay: transmit failed")
	// ErrReceive indicates a hard read error during collection.
	ErrReceive = errors.New("relay: receive failed")
	// ErrFilterReset indicates the accept-all filter could not be restored.
	ErrFilterReset = errors.New("relay: filter reset failed")
	// ErrCounterOverflow indicates packets_sent reached its maximum.
	ErrCounterOverflow = errors.New("relay: packet counter overflow")
)
