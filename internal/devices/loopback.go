package devices

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/camloop/internal/events"
)

// LoopbackSpec describes a loopback device to create.
type LoopbackSpec struct {
	Number        int    // /dev/video<Number>
	Label         string // card label shown to applications
	ExclusiveCaps bool   // advertise capture only once a writer is attached
}

// ModprobeArgs returns the command that loads the module for spec.
func ModprobeArgs(spec LoopbackSpec, sudo bool) []string {
	label := spec.Label
	if label == "" {
		label = DefaultLabel
	}
	args := []string{
		"modprobe", ModuleName,
		"video_nr=" + strconv.Itoa(spec.Number),
		"card_label=" + label,
	}
	if spec.ExclusiveCaps {
		args = append(args, "exclusive_caps=1")
	}
	if sudo {
		args = append([]string{"sudo"}, args...)
	}
	return args
}

// Provision loads v4l2loopback with the requested device number and label.
// It needs root, is attempted once and reports the tool's output on failure.
func (m *Manager) Provision(ctx context.Context, spec LoopbackSpec) error {
	if spec.Number < 0 {
		return fmt.Errorf("invalid device number %d", spec.Number)
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	argv := ModprobeArgs(spec, m.sudo)
	m.logger.Info("Loading loopback module", "video_nr", spec.Number, "label", spec.Label, "exclusive_caps", spec.ExclusiveCaps)
	if out, err := m.run(ctx, argv); err != nil {
		return fmt.Errorf("failed to load %s: %w: %s", ModuleName, err, strings.TrimSpace(string(out)))
	}
	m.bus.Publish(events.LoopbackModuleEvent{
		Action:     "loaded",
		DevicePath: "/dev/video" + strconv.Itoa(spec.Number),
		Label:      spec.Label,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
	return nil
}

// Remove unloads v4l2loopback. Every loopback device disappears with it.
func (m *Manager) Remove(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	argv := []string{"modprobe", "-r", ModuleName}
	if m.sudo {
		argv = append([]string{"sudo"}, argv...)
	}
	m.logger.Info("Unloading loopback module")
	if out, err := m.run(ctx, argv); err != nil {
		return fmt.Errorf("failed to unload %s: %w: %s", ModuleName, err, strings.TrimSpace(string(out)))
	}
	m.bus.Publish(events.LoopbackModuleEvent{
		Action:    "removed",
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return nil
}

// DeviceNumber returns N for a /dev/videoN path.
func DeviceNumber(path string) (int, error) {
	base := filepath.Base(path)
	num, ok := strings.CutPrefix(base, "video")
	if !ok {
		return 0, fmt.Errorf("not a video device path: %s", path)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("not a video device path: %s", path)
	}
	return n, nil
}

// ResolveDevicePath turns "42", "video42", a /dev path or a stable
// /dev/v4l/by-id name into a device path.
func ResolveDevicePath(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", fmt.Errorf("empty device reference")
	case strings.HasPrefix(ref, "/"):
		return ref, nil
	case strings.HasPrefix(ref, "video"):
		if _, err := DeviceNumber(ref); err != nil {
			return "", err
		}
		return "/dev/" + ref, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 0 {
			return "", fmt.Errorf("invalid device number %d", n)
		}
		return "/dev/video" + ref, nil
	}
	// Stable symlinks: USB cameras usually have by-id, platform devices only by-path.
	if strings.HasPrefix(ref, "usb-") {
		if p := "/dev/v4l/by-id/" + ref; exists(p) {
			return p, nil
		}
	}
	if strings.HasPrefix(ref, "usb-") || strings.HasPrefix(ref, "platform-") {
		if p := "/dev/v4l/by-path/" + ref; exists(p) {
			return p, nil
		}
		return "", fmt.Errorf("no stable symlink found for device ID: %s", ref)
	}
	return "", fmt.Errorf("unrecognised device reference: %s", ref)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
