//go:build !linux

package devices

import "errors"

// Capability is what a device node reports about itself.
type Capability struct {
	Driver   string
	Card     string
	Loopback bool
	Capture  bool
	Output   bool
}

// QueryCapability is only supported on Linux.
func QueryCapability(string) (Capability, error) {
	return Capability{}, errors.New("video4linux is not supported on this platform")
}

// ScanSysfs finds nothing off Linux.
func ScanSysfs() ([]Device, error) {
	return nil, nil
}
