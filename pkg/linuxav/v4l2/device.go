//go:build linux

package v4l2

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unsafe"
)

// SysfsRoot lists the video4linux nodes known to the kernel.
const SysfsRoot = "/sys/class/video4linux"

// QueryCapability runs VIDIOC_QUERYCAP against a device node.
func QueryCapability(devicePath string) (Capability, error) {
	fd, err := open(devicePath)
	if err != nil {
		return Capability{}, err
	}
	defer close(fd)

	var raw v4l2Capability
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&raw)); err != nil {
		return Capability{}, fmt.Errorf("query capability %s: %w", devicePath, err)
	}
	return toCapability(&raw), nil
}

func toCapability(raw *v4l2Capability) Capability {
	caps := raw.capabilities
	if caps&capDeviceCaps != 0 {
		caps = raw.deviceCaps
	}
	return Capability{
		Driver:  cstr(raw.driver[:]),
		Card:    cstr(raw.card[:]),
		BusInfo: cstr(raw.busInfo[:]),
		Version: raw.version,
		Caps:    caps,
	}
}

// FindDevices lists every video4linux node that can be queried, ordered by
// kernel index. Nodes that cannot be opened are skipped.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(SysfsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	type indexed struct {
		index int
		info  DeviceInfo
	}
	var found []indexed

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "video") {
			continue
		}
		devicePath := "/dev/" + entry.Name()

		c, err := QueryCapability(devicePath)
		if err != nil {
			slog.With("component", "linuxav").Debug("failed to query video device", "path", devicePath, "error", err)
			continue
		}

		found = append(found, indexed{
			index: deviceIndex(entry.Name()),
			info: DeviceInfo{
				DevicePath: devicePath,
				DeviceName: c.Card,
				Capability: c,
			},
		})
	}

	slices.SortFunc(found, func(a, b indexed) int { return a.index - b.index })

	devices := make([]DeviceInfo, 0, len(found))
	for _, f := range found {
		devices = append(devices, f.info)
	}
	return devices, nil
}

// deviceIndex prefers the sysfs index and falls back to the node number.
func deviceIndex(name string) int {
	if v, ok := readSysfsInt(filepath.Join(SysfsRoot, name, "index")); ok {
		return v
	}
	n, _ := strconv.Atoi(strings.TrimPrefix(name, "video"))
	return n
}

func readSysfsInt(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	val, err := strconv.Atoi(strings.TrimSpace(string(data)))
	return val, err == nil
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
