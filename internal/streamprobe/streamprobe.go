// Package streamprobe identifies the format of a UDP camera stream from the
// packets on the wire.
package streamprobe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/pion/rtp"

	"github.com/smazurov/camloop/internal/gst"
)

const (
	tsPacketSize   = 188
	tsSyncByte     = 0x47
	payloadTypeJPG = 26 // static RTP payload type for JPEG
	maxDatagram    = 65535
	readSlice      = 250 * time.Millisecond
)

// ErrUnknownFormat is returned for packets that match no supported format.
var ErrUnknownFormat = errors.New("unrecognised stream packet")

// Result describes a detected stream.
type Result struct {
	Format gst.Format
	Codec  *core.Codec
	// PayloadType is the RTP payload type, zero for MPEG-TS.
	PayloadType uint8
}

// Classify detects the stream format from one datagram.
func Classify(packet []byte) (Result, error) {
	if isTransportStream(packet) {
		return Result{
			Format: gst.FormatMPEGTSH264,
			Codec:  &core.Codec{Name: core.CodecH264, ClockRate: 90000},
		}, nil
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(packet); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnknownFormat, err)
	}
	if pkt.Version != 2 {
		return Result{}, fmt.Errorf("%w: RTP version %d", ErrUnknownFormat, pkt.Version)
	}

	pt := pkt.PayloadType
	switch {
	case pt == payloadTypeJPG:
		return rtpResult(gst.FormatRTPMJPEG, core.CodecJPEG, pt), nil
	case isH264Payload(pkt.Payload):
		return rtpResult(gst.FormatRTPH264, core.CodecH264, pt), nil
	case isJPEGPayload(pkt.Payload):
		return rtpResult(gst.FormatRTPMJPEG, core.CodecJPEG, pt), nil
	}
	return Result{}, fmt.Errorf("%w: RTP payload type %d", ErrUnknownFormat, pt)
}

func rtpResult(f gst.Format, codec string, pt uint8) Result {
	return Result{
		Format:      f,
		Codec:       &core.Codec{Name: codec, ClockRate: 90000, PayloadType: pt},
		PayloadType: pt,
	}
}

// isTransportStream checks every 188-byte packet starts with the sync byte.
func isTransportStream(b []byte) bool {
	if len(b) == 0 || len(b)%tsPacketSize != 0 {
		return false
	}
	for i := 0; i < len(b); i += tsPacketSize {
		if b[i] != tsSyncByte {
			return false
		}
	}
	return true
}

// isH264Payload accepts single NAL units, STAP-A and FU-A.
func isH264Payload(p []byte) bool {
	if len(p) < 2 || p[0]&0x80 != 0 {
		return false
	}
	t := p[0] & 0x1f
	return (t >= 1 && t <= 24) || t == 28
}

// isJPEGPayload checks the RFC 2435 header carries a frame size.
func isJPEGPayload(p []byte) bool {
	return len(p) > 8 && p[6] > 0 && p[7] > 0
}

// Sniff listens on the UDP port until a classifiable packet arrives or ctx
// is done. Packets that match no format are skipped.
func Sniff(ctx context.Context, port int) (Result, error) {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", ":"+strconv.Itoa(port))
	if err != nil {
		return Result{}, fmt.Errorf("listen on port %d: %w", port, err)
	}
	defer conn.Close()

	buf := make([]byte, maxDatagram)
	lastErr := ErrUnknownFormat
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("no stream on port %d: %w (last: %w)", port, err, lastErr)
		}
		_ = conn.SetReadDeadline(time.Now().Add(readSlice))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return Result{}, fmt.Errorf("read port %d: %w", port, err)
		}
		res, err := Classify(buf[:n])
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
}
