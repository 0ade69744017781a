//go:build linux && arm && !arm64

package v4l2

import "unsafe"

// v4l2_capability has no pointers, so the 32-bit layout is the same 104 bytes.
var _ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}

// VIDIOC_QUERYCAP
const vidiocQuerycap = 0x80685600

type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}
