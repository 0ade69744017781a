package gst

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Pipeline defaults.
const (
	DefaultPort        = 8554
	DefaultMediaClass  = "Video/Source"
	DefaultPayloadType = 96
)

// PipelineParams describes the graph that receives a UDP stream and
// publishes it as a PipeWire video source.
type PipelineParams struct {
	Format Format
	Port   int // 0 = DefaultPort

	NodeName   string
	ClientName string
	MediaClass string // "" = DefaultMediaClass

	// Output constraints, applied only when all three are set (RTP formats).
	Width  int
	Height int
	FPS    int

	// RTP only
	JitterMs    int
	PayloadType int
	DropOnLate  bool
	DoLost      bool

	Sync bool
}

// RequiredElements returns the elements a format needs besides the H.264 decoder.
func RequiredElements(f Format) []string {
	elements := []string{"udpsrc", "pipewiresink", "videoconvert"}
	switch f {
	case FormatRTPH264:
		elements = append(elements, "rtpjitterbuffer", "rtph264depay", "h264parse")
	case FormatRTPMJPEG:
		elements = append(elements, "rtpjitterbuffer", "rtpjpegdepay", "jpegdec")
	case FormatMPEGTSH264:
		elements = append(elements, "tsparse", "tsdemux", "h264parse")
	}
	return elements
}

// BuildPipeline renders a gst-launch description for p. decoder is the H.264
// decoder element and is ignored for MJPEG.
func BuildPipeline(p *PipelineParams, decoder string) (string, error) {
	if err := validate(p); err != nil {
		return "", err
	}
	if p.Format.NeedsH264Decoder() && decoder == "" {
		return "", ErrNoDecoder
	}

	port := p.Port
	if port == 0 {
		port = DefaultPort
	}
	mediaClass := p.MediaClass
	if mediaClass == "" {
		mediaClass = DefaultMediaClass
	}

	switch p.Format {
	case FormatMPEGTSH264:
		// No caps here: cameras emit whatever profile they like and the
		// parsers negotiate it.
		return fmt.Sprintf(
			`udpsrc port=%d ! tsparse ! tsdemux ! h264parse ! %s ! videoconvert ! `+
				`pipewiresink client-name=%s name=%s `+
				`stream-properties="p,media.class=%s,media.role=Camera" sync=false`,
			port, decoder, quote(p.ClientName), quote(p.NodeName), nestedQuote(mediaClass),
		), nil

	case FormatRTPH264:
		caps := fmt.Sprintf("application/x-rtp,media=video,encoding-name=H264,payload=%d,clock-rate=90000", p.PayloadType)
		return rtpPipeline(p, port, mediaClass, caps, "rtph264depay ! h264parse ! "+decoder), nil

	case FormatRTPMJPEG:
		caps := fmt.Sprintf("application/x-rtp,media=video,encoding-name=JPEG,payload=%d,clock-rate=90000", p.PayloadType)
		return rtpPipeline(p, port, mediaClass, caps, "rtpjpegdepay ! jpegdec"), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, p.Format)
}

func rtpPipeline(p *PipelineParams, port int, mediaClass, caps, decode string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `udpsrc port=%d caps="%s" ! `, port, caps)
	fmt.Fprintf(&b, "rtpjitterbuffer latency=%d drop-on-late=%t do-lost=%t ! ", p.JitterMs, p.DropOnLate, p.DoLost)
	b.WriteString(decode)
	b.WriteString(" ! videoconvert ! ")

	if p.Width > 0 && p.Height > 0 && p.FPS > 0 {
		fmt.Fprintf(&b, "video/x-raw,format=NV12,width=%d,height=%d,framerate=%d/1 ! ", p.Width, p.Height, p.FPS)
	}

	// Leaky queue keeps latency bounded by dropping the oldest frames.
	b.WriteString("queue max-size-buffers=0 max-size-bytes=0 max-size-time=0 leaky=downstream ! ")
	fmt.Fprintf(&b, "pipewiresink mode=provide client-name=%s node-name=%s media-class=%s sync=%t",
		quote(p.ClientName), quote(p.NodeName), quote(mediaClass), p.Sync)

	return b.String()
}

func validate(p *PipelineParams) error {
	if p == nil {
		return fmt.Errorf("%w: nil params", ErrInvalidParams)
	}
	switch p.Format {
	case FormatMPEGTSH264, FormatRTPH264, FormatRTPMJPEG:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, p.Format)
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidParams, p.Port)
	}
	if p.JitterMs < 0 {
		return fmt.Errorf("%w: jitter %dms", ErrInvalidParams, p.JitterMs)
	}
	if p.PayloadType < 0 || p.PayloadType > 127 {
		return fmt.Errorf("%w: payload type %d", ErrInvalidParams, p.PayloadType)
	}
	if p.Width < 0 || p.Height < 0 || p.FPS < 0 {
		return fmt.Errorf("%w: negative output size", ErrInvalidParams)
	}
	return nil
}

// quote renders a property value as a gst-launch quoted string.
func quote(s string) string {
	return `"` + escape(s) + `"`
}

// nestedQuote renders a value as a quoted string inside an already quoted
// structure property such as stream-properties.
func nestedQuote(s string) string {
	return escape(quote(s))
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// SplitDescription splits a pipeline description into the argv tokens
// gst-launch expects: whitespace separates tokens except inside double
// quotes, and the quotes stay in the token. A backslash inside quotes
// escapes the next character.
func SplitDescription(description string) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		inQuote bool
		escaped bool
		pending bool
	)
	for _, r := range description {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && inQuote:
			cur.WriteRune(r)
			escaped = true
		case r == '"':
			cur.WriteRune(r)
			inQuote = !inQuote
			pending = true
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			if pending {
				tokens = append(tokens, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if inQuote || escaped {
		return nil, fmt.Errorf("%w: unterminated quote", ErrInvalidPipeline)
	}
	if pending {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// ParsePort extracts the port from a stream URL such as "udp://@:8554",
// "udp://10.5.5.9:5600" or "udp://@:5600?overrun_nonfatal=1". A URL without
// a usable port yields DefaultPort.
func ParsePort(rawURL string) int {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return DefaultPort
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return DefaultPort
	}
	return port
}
