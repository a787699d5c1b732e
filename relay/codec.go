package relay

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/notnil/canrelay/canbus"
)

// SingleFrameLen is the fixed size of a classical CAN payload.
const SingleFrameLen = canbus.MaxDataLen

// maxPrefixedLen is the largest payload length the length byte can carry.
const maxPrefixedLen = 0xFF

// Packet is the wire rendering of a received frame: identifier and bytes as
// upper-case hex without zero padding ("7E8", ["2", "41", "C"]).
type Packet struct {
	ID   string   `json:"id"`
	Data []string `json:"data"`
}

// DecodePayload parses a hex string into bytes. An empty string yields an
// empty payload.
func DecodePayload(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: payload %q: %v", ErrDecode, s, err)
	}
	return b, nil
}

// ParseID parses a hexadecimal arbitration identifier. A leading "0x" is
// accepted. Range checks against the CAN identifier width happen when the
// frame is built.
func ParseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(trimHexPrefix(s), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: identifier %q: %v", ErrDecode, s, err)
	}
	return uint32(v), nil
}

// ParsePadding parses an optional single padding byte. The empty string means
// no padding.
func ParsePadding(s string) (*byte, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(trimHexPrefix(s), 16, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: padding %q: %v", ErrDecode, s, err)
	}
	b := byte(v)
	return &b, nil
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return s[2:]
	}
	return s
}

// BuildSingleFrame prepends the payload length and fits the result into one
// classical CAN frame. A result longer than 8 bytes is truncated to 8; a
// shorter one is padded to 8 with padding when padding is non-nil. Payloads
// over 255 bytes are rejected with ErrPayloadTooLong.
func BuildSingleFrame(payload []byte, padding *byte) ([]byte, error) {
	if len(payload) > maxPrefixedLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(payload))
	}
	out := make([]byte, 0, SingleFrameLen)
	out = append(out, byte(len(payload)))
	out = append(out, payload...)
	if len(out) > SingleFrameLen {
		return out[:SingleFrameLen], nil
	}
	if padding != nil {
		for len(out) < SingleFrameLen {
			out = append(out, *padding)
		}
	}
	return out, nil
}

// Truncated reports whether BuildSingleFrame drops bytes of payload.
func Truncated(payload []byte) bool {
	return len(payload)+1 > SingleFrameLen
}

// EncodeFrame renders a frame for output.
func EncodeFrame(f canbus.Frame) Packet {
	payload := f.Payload()
	p := Packet{
		ID:   fmt.Sprintf("%X", f.ID),
		Data: make([]string, len(payload)),
	}
	for i, b := range payload {
		p.Data[i] = fmt.Sprintf("%X", b)
	}
	return p
}
