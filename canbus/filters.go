package canbus

// FrameFilter decides whether a frame should be accepted.
type FrameFilter func(Frame) bool

// ByID returns a filter that matches frames with the exact identifier.
func ByID(id uint32) FrameFilter {
	return func(f Frame) bool { return f.ID == id }
}

// ByMask matches when (frame.ID & mask) == (id & mask). This is the acceptance
// rule applied by the SocketCAN CAN_RAW_FILTER option.
func ByMask(id uint32, mask uint32) FrameFilter {
	want := id & mask
	return func(f Frame) bool { return (f.ID & mask) == want }
}
