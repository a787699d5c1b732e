//go:build linux

package canbus

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// IsInterfaceUp returns true if the Linux network interface has IFF_UP set.
// It needs no privileges.
func IsInterfaceUp(name string) (bool, error) {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return false, fmt.Errorf("canbus: invalid interface name %q: %w", name, err)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return false, err
	}
	defer unix.Close(fd)
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFFLAGS, ifr); err != nil {
		return false, fmt.Errorf("ioctl(SIOCGIFFLAGS, %s): %w", name, err)
	}
	return ifr.Uint16()&unix.IFF_UP != 0, nil
}
