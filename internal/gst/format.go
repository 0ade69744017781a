package gst

import (
	"fmt"
	"strings"
)

// Format identifies the transport and codec of the incoming stream.
type Format string

// Supported stream formats.
const (
	FormatMPEGTSH264 Format = "mpegts-h264"
	FormatRTPH264    Format = "rtp-h264"
	FormatRTPMJPEG   Format = "rtp-mjpeg"
)

// Formats lists every supported format.
var Formats = []Format{FormatMPEGTSH264, FormatRTPH264, FormatRTPMJPEG}

// ParseFormat accepts both the dashed form ("rtp-h264") and the constant
// form ("RTP_H264"), case-insensitively.
func ParseFormat(s string) (Format, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
	for _, f := range Formats {
		if string(f) == norm {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// IsRTP reports whether the format arrives as RTP packets.
func (f Format) IsRTP() bool {
	return f == FormatRTPH264 || f == FormatRTPMJPEG
}

// NeedsH264Decoder reports whether the format carries H.264.
func (f Format) NeedsH264Decoder() bool {
	return f == FormatMPEGTSH264 || f == FormatRTPH264
}
