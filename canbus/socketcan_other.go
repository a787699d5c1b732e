//go:build !linux

package canbus

// DialSocketCAN is only available on Linux.
func DialSocketCAN(iface string) (Bus, error) {
	return nil, ErrUnsupported
}

// SocketCANOpener opens SocketCAN interfaces by name.
type SocketCANOpener struct{}

// Open implements Opener.
func (SocketCANOpener) Open(name string) (Bus, error) { return DialSocketCAN(name) }

// IsInterfaceUp is only available on Linux.
func IsInterfaceUp(name string) (bool, error) {
	return false, ErrUnsupported
}
