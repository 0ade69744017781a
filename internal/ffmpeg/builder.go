package ffmpeg

import (
	"slices"
	"strconv"
	"strings"
)

// zeroLatencyCodecs are the software H.264 encoders that accept -tune zerolatency.
var zeroLatencyCodecs = []string{"libx264", "h264"}

// BuildLoopbackArgs builds the ffmpeg argument vector for a loopback device
// output. The first element is the binary. Identical params always produce
// an identical slice.
func BuildLoopbackArgs(p *LoopbackParams) []string {
	binary := p.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	args := []string{binary}

	if p.LogLevel != "" {
		args = append(args, "-hide_banner", "-loglevel", "level+"+p.LogLevel)
	}
	if p.Progress {
		args = append(args, "-progress", "pipe:1", "-nostats")
	}

	// Input options for low latency
	if p.DisableInputBuffering {
		args = append(args, "-fflags", "nobuffer")
	}
	if p.LowLatency {
		args = append(args, "-flags", "low_delay", "-avioflags", "direct")
	}

	if p.InputFormat != "" {
		args = append(args, "-f", p.InputFormat)
	}

	bufferBytes := p.InputBufferBytes
	if bufferBytes <= 0 {
		bufferBytes = DefaultInputBufferBytes
	}
	args = append(args, "-fifo_size", strconv.Itoa(bufferBytes))
	args = append(args, "-i", p.SourceURL)

	pixelFormat := p.PixelFormat
	if pixelFormat == "" {
		pixelFormat = DefaultPixelFormat
	}
	args = append(args, "-vf", "format="+pixelFormat)

	if p.VideoCodec != "" {
		args = append(args, "-c:v", p.VideoCodec)
	}
	if p.ZeroLatencyTuning && slices.Contains(zeroLatencyCodecs, p.VideoCodec) {
		args = append(args, "-tune", "zerolatency", "-preset", "ultrafast")
	}

	// Virtual webcams never carry audio.
	args = append(args, "-an")

	if p.FrameRate > 0 {
		args = append(args, "-r", strconv.Itoa(p.FrameRate))
	}
	if p.VideoSize != "" {
		args = append(args, "-s", p.VideoSize)
	}

	maxBuffers := p.MaxBuffers
	if maxBuffers <= 0 {
		maxBuffers = DefaultMaxBuffers
	}
	args = append(args, "-f", "v4l2", "-bufsize", strconv.Itoa(maxBuffers))

	return append(args, p.DevicePath)
}

// CommandString renders args as a shell-like string for logging.
func CommandString(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'\\$") {
			quoted[i] = strconv.Quote(a)
		} else {
			quoted[i] = a
		}
	}
	return strings.Join(quoted, " ")
}
