//go:build linux

// Package v4l2 provides pure Go bindings to the small part of the
// Video4Linux2 API needed to recognise loopback devices.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    if dev.Capability.IsLoopback() {
//	        fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	    }
//	}
package v4l2
