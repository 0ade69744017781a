// Package consumer turns a live camera stream into a virtual video device by
// driving an external media pipeline. Two backends exist: a loopback
// consumer that runs ffmpeg into a v4l2loopback node and a graph consumer
// that runs a GStreamer graph ending in a PipeWire source.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/camloop/internal/events"
	"github.com/smazurov/camloop/internal/gst"
	"github.com/smazurov/camloop/internal/probe"
	"github.com/smazurov/camloop/internal/process"
)

// Consumer consumes one stream and exposes it as one virtual device. A
// consumer owns at most one worker at a time. All methods are safe for
// concurrent use.
type Consumer interface {
	// Start validates requirements and launches the worker. Starting a
	// running consumer is a no-op.
	Start(ctx context.Context) error

	// Stop tears the worker down. Stopping an idle consumer is a no-op.
	// The consumer is idle afterwards even when teardown reports an error.
	Stop(ctx context.Context) error

	// OutputInfo describes the virtual device. Computed on every call.
	OutputInfo() OutputInfo

	// ValidateRequirements lists what the host is missing. Empty means ready.
	ValidateRequirements(ctx context.Context) []string

	State() process.State

	// Err returns the error that moved the consumer to failed, if any.
	Err() error
}

// OutputInfo is a snapshot of a consumer's virtual device.
type OutputInfo struct {
	Type    string `json:"type"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`

	// loopback
	DevicePath  string `json:"device_path,omitempty"`
	DeviceLabel string `json:"device_label,omitempty"`
	VideoSize   string `json:"video_size,omitempty"`
	FrameRate   int    `json:"framerate,omitempty"`

	// graph
	NodeName   string `json:"node_name,omitempty"`
	ClientName string `json:"client_name,omitempty"`
	MediaClass string `json:"media_class,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	FPS        int    `json:"fps,omitempty"`
	Format     string `json:"format,omitempty"`
}

// Options are the collaborators shared by both backends. Zero values select
// the host implementations.
type Options struct {
	Name          string        // label for logs, events and metrics
	Prober        *probe.Prober // nil = probe.New(nil)
	Engine        gst.Engine    // graph only, nil = gst.LaunchEngine
	Events        *events.Bus   // nil = no events
	Logger        *slog.Logger
	ProcessLogger *slog.Logger // worker output

	// Transcoder is the ffmpeg binary for the loopback backend.
	Transcoder string
	// TranscoderLogLevel adds a level prefix to ffmpeg output, e.g. "info".
	TranscoderLogLevel string
	// Progress collects ffmpeg progress into metrics.
	Progress bool

	// CheckDevice verifies the loopback node before launch.
	// nil = devices.CheckAccess.
	CheckDevice func(path string) error

	StartupProbe time.Duration // 0 = process.DefaultStartupProbe
	GracePeriod  time.Duration // 0 = process.DefaultGracePeriod
	DrainTimeout time.Duration // graph EOS drain, 0 = 500ms
	JoinTimeout  time.Duration // graph bus loop join, 0 = 2s
}

// New builds the backend selected by cfg.Kind. The config is validated and
// copied; later changes to cfg do not affect the consumer.
func New(cfg Config, opts *Options) (Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Options{}
	}
	switch cfg.Kind {
	case KindLoopback:
		return NewLoopback(cfg, opts)
	case KindGraph:
		return NewGraph(cfg, opts)
	}
	return nil, NewError(ErrInvalidConfig, "unsupported consumer kind "+string(cfg.Kind), nil)
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Options) prober() *probe.Prober {
	if o.Prober != nil {
		return o.Prober
	}
	return probe.New(&probe.Options{Logger: o.logger()})
}

func (o *Options) name(kind Kind) string {
	if o.Name != "" {
		return o.Name
	}
	return string(kind)
}
