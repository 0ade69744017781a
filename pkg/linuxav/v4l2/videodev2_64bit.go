//go:build linux && (amd64 || arm64)

package v4l2

import "unsafe"

// Build fails if the struct does not match the kernel layout.
var _ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}

// VIDIOC_QUERYCAP
const vidiocQuerycap = 0x80685600

// v4l2Capability has size 104 bytes.
type v4l2Capability struct {
	driver       [16]byte  // offset 0
	card         [32]byte  // offset 16
	busInfo      [32]byte  // offset 48
	version      uint32    // offset 80
	capabilities uint32    // offset 84
	deviceCaps   uint32    // offset 88
	reserved     [3]uint32 // offset 92
}
