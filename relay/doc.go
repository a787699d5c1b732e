// Package relay implements the frame-construction and bounded send/receive
// engine behind the HTTP bridge: hex payload decoding, single-frame ISO-TP
// length prefixing and padding, single-frame transmission, filtered
// multi-frame collection under a count and time bound, and the counters that
// track relay activity across concurrent requests.
//
// Every operation opens its own bus handle and closes it before returning.
// Malformed input and bus failures are reported as an unsuccessful result
// carrying the error for logging, never as a panic.
package relay
