package ffmpeg

import "testing"

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"[info] Press [q] to stop", "info", "Press [q] to stop"},
		{"[error] Could not open /dev/video42", "error", "Could not open /dev/video42"},
		{"[udp @ 0x5581] [warning] Circular buffer overrun", "warning", "[udp @ 0x5581] Circular buffer overrun"},
		{"[h264 @ 0x55] decode_slice_header error", "info", "[h264 @ 0x55] decode_slice_header error"},
		{"frame=  120 fps= 30 q=-0.0 size=N/A", "info", "frame=  120 fps= 30 q=-0.0 size=N/A"},
		{"drop_frames=3", "debug", "drop_frames=3"},
		{"progress=continue", "debug", "progress=continue"},
		{"[verbose] Opening an input file", "debug", "Opening an input file"},
		{"[panic] out of memory", "fatal", "out of memory"},
		{"[loud] not a level", "info", "[loud] not a level"},
		{"", "info", ""},
	}

	for _, tt := range tests {
		level, msg := ParseLogLevel(tt.line)
		if level != tt.wantLevel || msg != tt.wantMsg {
			t.Errorf("ParseLogLevel(%q) = (%q, %q), want (%q, %q)", tt.line, level, msg, tt.wantLevel, tt.wantMsg)
		}
	}
}
