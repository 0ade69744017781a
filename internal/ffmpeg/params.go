package ffmpeg

// Defaults for loopback output.
const (
	DefaultBinary           = "ffmpeg"
	DefaultPixelFormat      = "yuv420p"
	DefaultInputBufferBytes = 5000000
	DefaultMaxBuffers       = 2
)

// LoopbackParams holds everything needed to build a transcoder command
// that writes a network stream into a v4l2 loopback device.
type LoopbackParams struct {
	Binary string // ffmpeg executable, DefaultBinary when empty

	// LogLevel, when set, prepends -hide_banner -loglevel level+<LogLevel>
	// so output lines carry a parseable level prefix.
	LogLevel string

	// Progress, when set, adds -progress pipe:1 -nostats so stdout carries
	// key=value progress blocks (see ProgressParser).
	Progress bool

	// Input
	SourceURL             string // udp://@:8554
	InputFormat           string // mpegts, rtp, etc. Empty lets ffmpeg probe.
	InputBufferBytes      int    // -fifo_size
	DisableInputBuffering bool   // -fflags nobuffer
	LowLatency            bool   // -flags low_delay -avioflags direct

	// Encoding
	PixelFormat       string // yuv420p
	VideoCodec        string // libx264, rawvideo, etc. Empty keeps ffmpeg's default.
	ZeroLatencyTuning bool   // -tune zerolatency -preset ultrafast for software H.264

	// Output
	FrameRate  int    // 0 = not set
	VideoSize  string // 1280x720, empty = not set
	MaxBuffers int    // -bufsize
	DevicePath string // /dev/video42
}
