// Package canbus provides the CAN bus layer of the relay: a classical CAN
// Frame type, the Bus handle interface with acceptance filters, and the
// implementations the relay opens per request.
//
// It includes:
//   - A Frame type with validation and can_frame binary marshaling helpers
//   - A Linux SocketCAN driver with CAN_RAW_FILTER support (linux-only)
//   - An in-memory loopback bus and named loopback network for tests and
//     the relay's virtual mode
//   - A slog decorator that logs bus traffic
package canbus
