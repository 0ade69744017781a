//go:build linux

package v4l2

import "fmt"

// LoopbackDriver is the driver name v4l2loopback reports.
const LoopbackDriver = "v4l2 loopback"

// Capability flags.
const (
	CapVideoCapture = 0x00000001
	CapVideoOutput  = 0x00000002
	CapVideoM2M     = 0x00008000
	CapStreaming    = 0x04000000
	capDeviceCaps   = 0x80000000
)

// Capability is the result of VIDIOC_QUERYCAP.
type Capability struct {
	Driver  string
	Card    string
	BusInfo string
	Version uint32
	// Caps holds the node's own capabilities when the driver reports them,
	// otherwise the whole device's.
	Caps uint32
}

// IsCapture reports whether the node can be read as a camera.
func (c Capability) IsCapture() bool {
	return c.Caps&CapVideoCapture != 0
}

// IsOutput reports whether frames can be written to the node.
func (c Capability) IsOutput() bool {
	return c.Caps&CapVideoOutput != 0
}

// IsLoopback reports whether the node belongs to v4l2loopback.
func (c Capability) IsLoopback() bool {
	return c.Driver == LoopbackDriver
}

// KernelVersion formats the packed driver version as "major.minor.patch".
func (c Capability) KernelVersion() string {
	return fmt.Sprintf("%d.%d.%d", c.Version>>16, (c.Version>>8)&0xff, c.Version&0xff)
}

// DeviceInfo describes a video4linux node.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	Capability Capability
}
