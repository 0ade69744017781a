// Package devices finds video4linux nodes and manages the v4l2loopback
// kernel module that backs virtual webcams.
package devices

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/smazurov/camloop/internal/events"
)

// Host commands and paths.
const (
	ListTool        = "v4l2-ctl"
	ModuleName      = "v4l2loopback"
	VideoDeviceGlob = "/dev/video*"
	DefaultDevice   = "/dev/video42"
	DefaultLabel    = "GoPro Webcam"
)

const commandTimeout = 10 * time.Second

// Device is a video4linux node.
type Device struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Driver   string `json:"driver,omitempty"`
	Loopback bool   `json:"loopback"`
	Capture  bool   `json:"capture"`
	Output   bool   `json:"output"`
}

// Runner runs argv and returns its combined output.
type Runner func(ctx context.Context, argv []string) ([]byte, error)

// ExecRunner runs commands on the host.
func ExecRunner(ctx context.Context, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

// Options configures a Manager. Zero values use the host.
type Options struct {
	Run    Runner
	Glob   func(pattern string) ([]string, error)
	Query  func(path string) (Capability, error)
	Scan   func() ([]Device, error) // sysfs enumeration, tried before Glob
	Sudo   bool                     // prefix modprobe with sudo
	Events *events.Bus              // receives LoopbackModuleEvent, may be nil
	Logger *slog.Logger
}

// Manager lists devices and loads or unloads the loopback module.
type Manager struct {
	run    Runner
	glob   func(string) ([]string, error)
	query  func(string) (Capability, error)
	scan   func() ([]Device, error)
	sudo   bool
	bus    *events.Bus
	logger *slog.Logger
}

// NewManager creates a Manager. opts may be nil.
func NewManager(opts *Options) *Manager {
	if opts == nil {
		opts = &Options{}
	}
	m := &Manager{
		run:    opts.Run,
		glob:   opts.Glob,
		query:  opts.Query,
		scan:   opts.Scan,
		sudo:   opts.Sudo,
		bus:    opts.Events,
		logger: opts.Logger,
	}
	if m.run == nil {
		m.run = ExecRunner
	}
	if m.glob == nil {
		m.glob = filepath.Glob
	}
	if m.query == nil {
		m.query = QueryCapability
	}
	if m.scan == nil {
		m.scan = ScanSysfs
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// List returns the video devices on the host. v4l2-ctl is preferred; when it
// is unavailable sysfs is scanned, and failing that the /dev/video* nodes are
// listed. Each device is annotated with its driver when the node can be queried.
func (m *Manager) List(ctx context.Context) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var devices []Device
	out, err := m.run(ctx, []string{ListTool, "--list-devices"})
	if err == nil {
		devices = ParseListDevices(string(out))
	} else {
		m.logger.Debug("v4l2-ctl unavailable, scanning sysfs", "error", err)
		devices, err = m.scan()
		if err != nil || len(devices) == 0 {
			devices, err = m.globDevices()
			if err != nil {
				return nil, err
			}
		}
	}

	for i := range devices {
		c, err := m.query(devices[i].Path)
		if err != nil {
			m.logger.Debug("Could not query device", "path", devices[i].Path, "error", err)
			continue
		}
		devices[i].Driver = c.Driver
		devices[i].Loopback = c.Loopback
		devices[i].Capture = c.Capture
		devices[i].Output = c.Output
	}
	return devices, nil
}

func (m *Manager) globDevices() ([]Device, error) {
	paths, err := m.glob(VideoDeviceGlob)
	if err != nil {
		return nil, fmt.Errorf("list video nodes: %w", err)
	}
	slices.Sort(paths)

	devices := make([]Device, 0, len(paths))
	for _, p := range paths {
		devices = append(devices, Device{
			Path: p,
			Name: "Video Device " + filepath.Base(p),
		})
	}
	return devices, nil
}

// ParseListDevices parses `v4l2-ctl --list-devices` output. Each unindented
// line names a card and the /dev/video nodes below it belong to that card.
func ParseListDevices(out string) []Device {
	var devices []Device
	current := ""
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case !strings.HasPrefix(line, "/dev/"):
			current = strings.TrimSuffix(line, ":")
		case strings.HasPrefix(line, "/dev/video") && current != "":
			devices = append(devices, Device{Path: line, Name: current})
		}
	}
	return devices
}
