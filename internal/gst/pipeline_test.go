package gst

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func rtpParams(f Format) *PipelineParams {
	return &PipelineParams{
		Format:      f,
		Port:        5600,
		NodeName:    "GoPro Camera",
		ClientName:  "GoPro Webcam Controller",
		JitterMs:    50,
		PayloadType: 96,
		DropOnLate:  true,
		DoLost:      true,
	}
}

func TestBuildPipelineRTPH264(t *testing.T) {
	got, err := BuildPipeline(rtpParams(FormatRTPH264), "openh264dec")
	if err != nil {
		t.Fatalf("BuildPipeline() error = %v", err)
	}

	want := `udpsrc port=5600 caps="application/x-rtp,media=video,encoding-name=H264,payload=96,clock-rate=90000" ! ` +
		`rtpjitterbuffer latency=50 drop-on-late=true do-lost=true ! rtph264depay ! h264parse ! openh264dec ! videoconvert ! ` +
		`queue max-size-buffers=0 max-size-bytes=0 max-size-time=0 leaky=downstream ! ` +
		`pipewiresink mode=provide client-name="GoPro Webcam Controller" node-name="GoPro Camera" media-class="Video/Source" sync=false`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildPipeline() mismatch (-want +got):\n%s", diff)
	}

	for _, part := range []string{"udpsrc port=5600", "payload=96", "rtpjitterbuffer latency=50"} {
		if !strings.Contains(got, part) {
			t.Errorf("pipeline missing %q", part)
		}
	}
}

func TestBuildPipelineRTPMJPEG(t *testing.T) {
	p := rtpParams(FormatRTPMJPEG)
	p.Sync = true

	got, err := BuildPipeline(p, "")
	if err != nil {
		t.Fatalf("BuildPipeline() error = %v", err)
	}

	want := `udpsrc port=5600 caps="application/x-rtp,media=video,encoding-name=JPEG,payload=96,clock-rate=90000" ! ` +
		`rtpjitterbuffer latency=50 drop-on-late=true do-lost=true ! rtpjpegdepay ! jpegdec ! videoconvert ! ` +
		`queue max-size-buffers=0 max-size-bytes=0 max-size-time=0 leaky=downstream ! ` +
		`pipewiresink mode=provide client-name="GoPro Webcam Controller" node-name="GoPro Camera" media-class="Video/Source" sync=true`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildPipeline() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPipelineMPEGTS(t *testing.T) {
	p := &PipelineParams{
		Format:      FormatMPEGTSH264,
		Port:        8554,
		NodeName:    "GoPro Camera",
		ClientName:  "GoPro Webcam Controller",
		JitterMs:    200,
		PayloadType: 96,
		Width:       1280,
		Height:      720,
		FPS:         30,
	}

	got, err := BuildPipeline(p, "avdec_h264")
	if err != nil {
		t.Fatalf("BuildPipeline() error = %v", err)
	}

	want := `udpsrc port=8554 ! tsparse ! tsdemux ! h264parse ! avdec_h264 ! videoconvert ! ` +
		`pipewiresink client-name="GoPro Webcam Controller" name="GoPro Camera" ` +
		`stream-properties="p,media.class=\"Video/Source\",media.role=Camera" sync=false`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildPipeline() mismatch (-want +got):\n%s", diff)
	}

	for _, forbidden := range []string{"rtpjitterbuffer", "payload=", "application/x-rtp", "video/x-raw"} {
		if strings.Contains(got, forbidden) {
			t.Errorf("MPEG-TS pipeline contains %q", forbidden)
		}
	}
}

func TestBuildPipelineRTPAlwaysHasJitterBuffer(t *testing.T) {
	for _, f := range []Format{FormatRTPH264, FormatRTPMJPEG} {
		for _, jitter := range []int{0, 1, 50, 2000} {
			p := rtpParams(f)
			p.JitterMs = jitter

			got, err := BuildPipeline(p, "vah264dec")
			if err != nil {
				t.Fatalf("BuildPipeline(%s, %d) error = %v", f, jitter, err)
			}
			want := "rtpjitterbuffer latency=" + strconv.Itoa(jitter) + " "
			if !strings.Contains(got, want) {
				t.Errorf("BuildPipeline(%s, %d) missing %q in %s", f, jitter, want, got)
			}
		}
	}
}

func TestBuildPipelineScaleCaps(t *testing.T) {
	tests := []struct {
		name          string
		w, h, fps     int
		wantScaleCaps bool
	}{
		{"all set", 1920, 1080, 30, true},
		{"missing fps", 1920, 1080, 0, false},
		{"missing width", 0, 1080, 30, false},
		{"none", 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := rtpParams(FormatRTPH264)
			p.Width, p.Height, p.FPS = tt.w, tt.h, tt.fps

			got, err := BuildPipeline(p, "openh264dec")
			if err != nil {
				t.Fatalf("BuildPipeline() error = %v", err)
			}
			has := strings.Contains(got, "video/x-raw,format=NV12,width=1920,height=1080,framerate=30/1 ! queue")
			if has != tt.wantScaleCaps {
				t.Errorf("scale caps present = %v, want %v: %s", has, tt.wantScaleCaps, got)
			}
		})
	}
}

func TestBuildPipelineErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PipelineParams)
		decoder string
		wantErr error
	}{
		{"unknown format", func(p *PipelineParams) { p.Format = "rtmp" }, "openh264dec", ErrUnsupportedFormat},
		{"h264 without decoder", func(p *PipelineParams) {}, "", ErrNoDecoder},
		{"payload out of range", func(p *PipelineParams) { p.PayloadType = 128 }, "openh264dec", ErrInvalidParams},
		{"negative jitter", func(p *PipelineParams) { p.JitterMs = -1 }, "openh264dec", ErrInvalidParams},
		{"bad port", func(p *PipelineParams) { p.Port = 70000 }, "openh264dec", ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := rtpParams(FormatRTPH264)
			tt.mutate(p)
			if _, err := BuildPipeline(p, tt.decoder); !errors.Is(err, tt.wantErr) {
				t.Errorf("BuildPipeline() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := BuildPipeline(nil, "x"); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("BuildPipeline(nil) error = %v", err)
	}
}

func TestBuildPipelineQuotesNames(t *testing.T) {
	p := rtpParams(FormatRTPMJPEG)
	p.NodeName = `Cam "Front"`

	got, err := BuildPipeline(p, "")
	if err != nil {
		t.Fatalf("BuildPipeline() error = %v", err)
	}
	if !strings.Contains(got, `node-name="Cam \"Front\""`) {
		t.Errorf("node name not escaped: %s", got)
	}
}

func TestBuildPipelineQuotesMediaClass(t *testing.T) {
	p := rtpParams(FormatRTPH264)
	p.MediaClass = "Video/Source, Virtual"

	got, err := BuildPipeline(p, "openh264dec")
	if err != nil {
		t.Fatalf("BuildPipeline() error = %v", err)
	}
	if !strings.Contains(got, `media-class="Video/Source, Virtual" sync=false`) {
		t.Errorf("media class not quoted: %s", got)
	}

	p.Format = FormatMPEGTSH264
	got, err = BuildPipeline(p, "openh264dec")
	if err != nil {
		t.Fatalf("BuildPipeline() error = %v", err)
	}
	if !strings.Contains(got, `stream-properties="p,media.class=\"Video/Source, Virtual\",media.role=Camera"`) {
		t.Errorf("media class not quoted in stream properties: %s", got)
	}
	tokens, err := SplitDescription(got)
	if err != nil {
		t.Fatalf("SplitDescription() error = %v", err)
	}
	if want := `stream-properties="p,media.class=\"Video/Source, Virtual\",media.role=Camera"`; !slices.Contains(tokens, want) {
		t.Errorf("stream properties split apart: %q", tokens)
	}
}

func TestSplitDescription(t *testing.T) {
	got, err := SplitDescription(`udpsrc port=5600 caps="application/x-rtp,payload=96" !  pipewiresink client-name="GoPro \"Webcam\" Controller"` + "\tsync=false\n")
	if err != nil {
		t.Fatalf("SplitDescription() error = %v", err)
	}
	want := []string{
		"udpsrc", "port=5600", `caps="application/x-rtp,payload=96"`, "!",
		"pipewiresink", `client-name="GoPro \"Webcam\" Controller"`, "sync=false",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitDescription() mismatch (-want +got):\n%s", diff)
	}

	if _, err := SplitDescription(`udpsrc caps="application/x-rtp`); !errors.Is(err, ErrInvalidPipeline) {
		t.Errorf("unterminated quote error = %v, want ErrInvalidPipeline", err)
	}
	if got, _ := SplitDescription("   "); len(got) != 0 {
		t.Errorf("blank description gave %q", got)
	}
}

func TestRequiredElements(t *testing.T) {
	tests := []struct {
		format Format
		want   []string
	}{
		{FormatMPEGTSH264, []string{"udpsrc", "pipewiresink", "videoconvert", "tsparse", "tsdemux", "h264parse"}},
		{FormatRTPH264, []string{"udpsrc", "pipewiresink", "videoconvert", "rtpjitterbuffer", "rtph264depay", "h264parse"}},
		{FormatRTPMJPEG, []string{"udpsrc", "pipewiresink", "videoconvert", "rtpjitterbuffer", "rtpjpegdepay", "jpegdec"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, RequiredElements(tt.format)); diff != "" {
			t.Errorf("RequiredElements(%s) mismatch (-want +got):\n%s", tt.format, diff)
		}
	}
}

func TestParsePort(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"udp://@:8554", 8554},
		{"udp://10.5.5.9:5600", 5600},
		{"udp://0.0.0.0:8554", 8554},
		{"udp://camera", DefaultPort},
		{"udp://camera:notaport", DefaultPort},
		{"udp://camera:0", DefaultPort},
		{"udp://camera:99999", DefaultPort},
		{"udp://@:5600?overrun_nonfatal=1&fifo_size=50000000", 5600},
		{"rtsp://10.5.5.9:554/live", 554},
		{"udp://@:8556/", 8556},
		{" udp://@:5600 ", 5600},
		{"", DefaultPort},
	}
	for _, tt := range tests {
		if got := ParsePort(tt.url); got != tt.want {
			t.Errorf("ParsePort(%q) = %d, want %d", tt.url, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"mpegts-h264", FormatMPEGTSH264, false},
		{"MPEGTS_H264", FormatMPEGTSH264, false},
		{"rtp-h264", FormatRTPH264, false},
		{"RTP_MJPEG", FormatRTPMJPEG, false},
		{"rtmp", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
