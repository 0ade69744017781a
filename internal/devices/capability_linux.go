//go:build linux

package devices

import "github.com/smazurov/camloop/pkg/linuxav/v4l2"

// Capability is what a device node reports about itself.
type Capability struct {
	Driver   string
	Card     string
	Loopback bool
	Capture  bool
	Output   bool
}

// QueryCapability asks the driver behind path for its identity.
func QueryCapability(path string) (Capability, error) {
	c, err := v4l2.QueryCapability(path)
	if err != nil {
		return Capability{}, err
	}
	return Capability{
		Driver:   c.Driver,
		Card:     c.Card,
		Loopback: c.IsLoopback(),
		Capture:  c.IsCapture(),
		Output:   c.IsOutput(),
	}, nil
}

// ScanSysfs lists the nodes under /sys/class/video4linux that answer a
// capability query.
func ScanSysfs() ([]Device, error) {
	infos, err := v4l2.FindDevices()
	if err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{Path: info.DevicePath, Name: info.DeviceName})
	}
	return devices, nil
}
