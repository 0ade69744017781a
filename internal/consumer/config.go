package consumer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/smazurov/camloop/internal/devices"
	"github.com/smazurov/camloop/internal/ffmpeg"
	"github.com/smazurov/camloop/internal/gst"
)

// Kind selects the consumer backend.
type Kind string

// Consumer kinds. Only loopback and graph have a backend.
const (
	KindLoopback Kind = "loopback"
	KindGraph    Kind = "graph"
	KindRelay    Kind = "relay"
	KindFile     Kind = "file"
)

// ParseKind accepts the kind names and their historical aliases
// (v4l2, pipewire, rtmp).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "loopback", "v4l2":
		return KindLoopback, nil
	case "graph", "pipewire":
		return KindGraph, nil
	case "relay", "rtmp":
		return KindRelay, nil
	case "file":
		return KindFile, nil
	}
	return "", fmt.Errorf("unknown consumer kind %q", s)
}

// Config is a consumer definition: a shared header plus the payload of the
// backend selected by Kind. It is treated as an immutable value once a
// consumer has been built from it.
type Config struct {
	SourceURL string `toml:"source_url"`
	Kind      Kind   `toml:"kind"`

	InputBufferBytes      int    `toml:"input_buffer_bytes"`
	InputFormat           string `toml:"input_format"`
	VideoCodec            string `toml:"video_codec"`
	PixelFormat           string `toml:"pixel_format"`
	DisableInputBuffering bool   `toml:"disable_input_buffering"`
	LowLatency            bool   `toml:"low_latency"`
	ZeroLatencyTuning     bool   `toml:"zero_latency_tuning"`

	Loopback *LoopbackConfig `toml:"loopback,omitempty"`
	Graph    *GraphConfig    `toml:"graph,omitempty"`
}

// LoopbackConfig is the payload of a loopback consumer.
type LoopbackConfig struct {
	DevicePath    string `toml:"device_path"`
	DeviceLabel   string `toml:"device_label"`
	VideoSize     string `toml:"video_size"` // WxH, empty keeps the source size
	FrameRate     int    `toml:"frame_rate"` // 0 keeps the source rate
	ExclusiveCaps bool   `toml:"exclusive_caps"`
	MaxBuffers    int    `toml:"max_buffers"`
}

// GraphConfig is the payload of a graph consumer.
type GraphConfig struct {
	NodeName   string `toml:"node_name"`
	ClientName string `toml:"client_name"`
	MediaClass string `toml:"media_class"`

	// Zero inherits the source.
	Width  int `toml:"width"`
	Height int `toml:"height"`
	FPS    int `toml:"fps"`

	Format      string `toml:"format"` // mpegts-h264, rtp-h264, rtp-mjpeg or auto
	JitterMs    int    `toml:"jitter_ms"`
	PayloadType int    `toml:"payload_type"`

	PreferHardwareDecode bool `toml:"prefer_hardware_decode"`
	SyncPlayback         bool `toml:"sync_playback"`
	DropOnLate           bool `toml:"drop_on_late"`
	HandleLost           bool `toml:"handle_lost"`
}

// DefaultConfig returns a config for kind with every default applied.
func DefaultConfig(kind Kind) Config {
	cfg := Config{
		Kind:                  kind,
		InputBufferBytes:      ffmpeg.DefaultInputBufferBytes,
		PixelFormat:           ffmpeg.DefaultPixelFormat,
		DisableInputBuffering: true,
		LowLatency:            true,
		ZeroLatencyTuning:     true,
	}
	switch kind {
	case KindLoopback:
		cfg.Loopback = DefaultLoopbackConfig()
	case KindGraph:
		cfg.Graph = DefaultGraphConfig()
	}
	return cfg
}

// DefaultLoopbackConfig returns the loopback payload defaults.
func DefaultLoopbackConfig() *LoopbackConfig {
	return &LoopbackConfig{
		DevicePath:    devices.DefaultDevice,
		DeviceLabel:   devices.DefaultLabel,
		FrameRate:     30,
		ExclusiveCaps: true,
		MaxBuffers:    ffmpeg.DefaultMaxBuffers,
	}
}

// DefaultGraphConfig returns the graph payload defaults.
func DefaultGraphConfig() *GraphConfig {
	return &GraphConfig{
		NodeName:             "GoPro Camera",
		ClientName:           "GoPro Webcam Controller",
		MediaClass:           gst.DefaultMediaClass,
		Format:               string(gst.FormatMPEGTSH264),
		PayloadType:          gst.DefaultPayloadType,
		PreferHardwareDecode: true,
		DropOnLate:           true,
		HandleLost:           true,
	}
}

// FormatAuto as a graph format means the stream format is detected from
// the traffic before the consumer is built.
const FormatAuto = "auto"

// DetectsFormat reports whether the graph format still has to be detected.
func (c *Config) DetectsFormat() bool {
	return c.Kind == KindGraph && c.Graph != nil && c.Graph.Format == FormatAuto
}

var videoSizePattern = regexp.MustCompile(`^[1-9][0-9]*x[1-9][0-9]*$`)

// Validate checks the config is complete for its kind.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SourceURL) == "" {
		return NewError(ErrInvalidConfig, "source URL is required", nil)
	}
	if c.InputBufferBytes <= 0 {
		return NewError(ErrInvalidConfig, fmt.Sprintf("input buffer size must be positive, got %d", c.InputBufferBytes), nil)
	}

	switch c.Kind {
	case KindLoopback:
		return c.validateLoopback()
	case KindGraph:
		return c.validateGraph()
	case KindRelay, KindFile:
		return NewError(ErrInvalidConfig, fmt.Sprintf("consumer kind %q has no backend", c.Kind), nil)
	}
	return NewError(ErrInvalidConfig, fmt.Sprintf("unknown consumer kind %q", c.Kind), nil)
}

func (c *Config) validateLoopback() error {
	l := c.Loopback
	if l == nil {
		return NewError(ErrInvalidConfig, "loopback settings are missing", nil)
	}
	if l.DevicePath == "" {
		return NewError(ErrInvalidConfig, "device path is required", nil)
	}
	if l.VideoSize != "" && !videoSizePattern.MatchString(l.VideoSize) {
		return NewError(ErrInvalidConfig, fmt.Sprintf("video size must be WxH, got %q", l.VideoSize), nil)
	}
	if l.FrameRate < 0 {
		return NewError(ErrInvalidConfig, fmt.Sprintf("frame rate must not be negative, got %d", l.FrameRate), nil)
	}
	if l.MaxBuffers <= 0 {
		return NewError(ErrInvalidConfig, fmt.Sprintf("max buffers must be positive, got %d", l.MaxBuffers), nil)
	}
	return nil
}

func (c *Config) validateGraph() error {
	g := c.Graph
	if g == nil {
		return NewError(ErrInvalidConfig, "graph settings are missing", nil)
	}
	if g.Format != FormatAuto {
		if _, err := gst.ParseFormat(g.Format); err != nil {
			return NewError(ErrGraphConstructionFailure, "unsupported stream format", err)
		}
	}
	if g.JitterMs < 0 {
		return NewError(ErrInvalidConfig, fmt.Sprintf("jitter must not be negative, got %dms", g.JitterMs), nil)
	}
	if g.PayloadType < 0 || g.PayloadType > 127 {
		return NewError(ErrInvalidConfig, fmt.Sprintf("payload type must be 0-127, got %d", g.PayloadType), nil)
	}
	if g.Width < 0 || g.Height < 0 || g.FPS < 0 {
		return NewError(ErrInvalidConfig, "output size must not be negative", nil)
	}
	return nil
}

// loopbackParams maps a loopback config onto transcoder parameters.
func loopbackParams(c *Config, binary string) *ffmpeg.LoopbackParams {
	return &ffmpeg.LoopbackParams{
		Binary:                binary,
		SourceURL:             c.SourceURL,
		InputFormat:           c.InputFormat,
		InputBufferBytes:      c.InputBufferBytes,
		DisableInputBuffering: c.DisableInputBuffering,
		LowLatency:            c.LowLatency,
		PixelFormat:           c.PixelFormat,
		VideoCodec:            c.VideoCodec,
		ZeroLatencyTuning:     c.ZeroLatencyTuning,
		FrameRate:             c.Loopback.FrameRate,
		VideoSize:             c.Loopback.VideoSize,
		MaxBuffers:            c.Loopback.MaxBuffers,
		DevicePath:            c.Loopback.DevicePath,
	}
}

// pipelineParams maps a graph config onto graph parameters. The UDP port
// comes from the source URL.
func pipelineParams(c *Config, format gst.Format) *gst.PipelineParams {
	g := c.Graph
	return &gst.PipelineParams{
		Format:      format,
		Port:        gst.ParsePort(c.SourceURL),
		NodeName:    g.NodeName,
		ClientName:  g.ClientName,
		MediaClass:  g.MediaClass,
		Width:       g.Width,
		Height:      g.Height,
		FPS:         g.FPS,
		JitterMs:    g.JitterMs,
		PayloadType: g.PayloadType,
		DropOnLate:  g.DropOnLate,
		DoLost:      g.HandleLost,
		Sync:        g.SyncPlayback,
	}
}
