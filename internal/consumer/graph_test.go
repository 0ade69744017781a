package consumer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/smazurov/camloop/internal/gst"
	"github.com/smazurov/camloop/internal/probe"
	"github.com/smazurov/camloop/internal/process"
)

var rtpH264Elements = []string{
	"udpsrc", "pipewiresink", "videoconvert",
	"rtpjitterbuffer", "rtph264depay", "h264parse",
	"avdec_h264",
}

func graphHost() *host {
	return &host{tools: []string{gst.DefaultLaunchBinary}, service: true}
}

func graphConfig() Config {
	cfg := DefaultConfig(KindGraph)
	cfg.SourceURL = "udp://10.5.5.9:5600"
	cfg.Graph.Format = string(gst.FormatRTPH264)
	cfg.Graph.JitterMs = 50
	cfg.Graph.PayloadType = 96
	return cfg
}

func newTestGraph(t *testing.T, engine *fakeEngine, h *host, elements []string, mutate func(*Config)) *GraphConsumer {
	t.Helper()
	cfg := graphConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewGraph(cfg, &Options{
		Prober:       newProber(h, elements...),
		Engine:       engine,
		Logger:       discardLogger(),
		DrainTimeout: 50 * time.Millisecond,
		JoinTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return c
}

func TestGraphStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine := &fakeEngine{}
	c := newTestGraph(t, engine, graphHost(), rtpH264Elements, nil)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.State() != process.StateRunning {
		t.Fatalf("state = %s, want running", c.State())
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if n := engine.count(); n != 1 {
		t.Fatalf("engine launched %d pipelines, want 1", n)
	}

	desc := engine.launched[0]
	for _, want := range []string{"udpsrc port=5600", "payload=96", "rtpjitterbuffer latency=50", "avdec_h264"} {
		if !strings.Contains(desc, want) {
			t.Errorf("description missing %q: %s", want, desc)
		}
	}
	if c.Decoder() != "avdec_h264" {
		t.Errorf("decoder = %q", c.Decoder())
	}

	info := c.OutputInfo()
	if !info.Running || info.Type != "graph" || info.NodeName != "GoPro Camera" || info.Format != "rtp-h264" {
		t.Errorf("unexpected output info %+v", info)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	played, eos, nulls, closes := engine.last().counts()
	if played != 1 || eos != 1 || nulls < 1 || closes != 1 {
		t.Errorf("played=%d eos=%d nulls=%d closes=%d", played, eos, nulls, closes)
	}
	if c.State() != process.StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
	if c.OutputInfo().Running {
		t.Error("output info still reports running")
	}
}

func TestGraphStopWithoutStart(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestGraph(t, engine, graphHost(), rtpH264Elements, nil)

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if engine.count() != 0 {
		t.Error("Stop must not touch the engine")
	}
	if c.State() != process.StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
}

func TestGraphStopReturnsOnceDrained(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine := &fakeEngine{eosOnSignal: true}
	c := newTestGraph(t, engine, graphHost(), rtpH264Elements, nil)
	c.drainTimeout = 10 * time.Second

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop waited %v despite end-of-stream", elapsed)
	}
	_, _, nulls, _ := engine.last().counts()
	if nulls == 0 {
		t.Error("graph must be forced to NULL after draining")
	}
}

func TestGraphErrorMessageFails(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine := &fakeEngine{}
	c := newTestGraph(t, engine, graphHost(), rtpH264Elements, nil)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	engine.last().push(gst.Message{Type: gst.MessageError, Source: "udpsrc0", Text: "Could not get/set settings from/on resource."})

	waitForState(t, c, process.StateFailed)
	if !IsKind(c.Err(), ErrEngineRuntimeFailure) {
		t.Errorf("expected engine runtime failure, got %v", c.Err())
	}
	if !strings.Contains(c.Err().Error(), "Could not get/set settings") {
		t.Errorf("error text lost: %v", c.Err())
	}

	_, _, nulls, closes := engine.last().counts()
	if nulls == 0 || closes != 1 {
		t.Errorf("expected forced stop and release, nulls=%d closes=%d", nulls, closes)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.State() != process.StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
}

func TestGraphEndOfStreamReturnsToIdle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine := &fakeEngine{}
	c := newTestGraph(t, engine, graphHost(), rtpH264Elements, nil)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	engine.last().push(gst.Message{Type: gst.MessageStateChanged, Source: "pipeline0", OldState: gst.StatePaused, NewState: gst.StatePlaying})
	engine.last().push(gst.Message{Type: gst.MessageEOS})

	waitForState(t, c, process.StateIdle)
	if c.Err() != nil {
		t.Errorf("end of stream is not an error: %v", c.Err())
	}

	// Starting again launches a fresh pipeline.
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if engine.count() != 2 {
		t.Errorf("engine launched %d pipelines, want 2", engine.count())
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGraphMissingDecoder(t *testing.T) {
	engine := &fakeEngine{}
	elements := slices.DeleteFunc(slices.Clone(rtpH264Elements), func(e string) bool { return e == "avdec_h264" })
	c := newTestGraph(t, engine, graphHost(), elements, nil)

	err := c.Start(context.Background())
	if !IsKind(err, ErrMissingRequirement) {
		t.Fatalf("expected missing requirement, got %v", err)
	}
	var ce *Error
	if errors.As(err, &ce) && !slices.Contains(ce.Missing, probe.MissingH264Decoder) {
		t.Errorf("missing = %v", ce.Missing)
	}
	if engine.count() != 0 {
		t.Error("engine must not be used when requirements are missing")
	}
}

func TestGraphMJPEGNeedsNoDecoder(t *testing.T) {
	engine := &fakeEngine{}
	elements := []string{"udpsrc", "pipewiresink", "videoconvert", "rtpjitterbuffer", "rtpjpegdepay", "jpegdec"}
	c := newTestGraph(t, engine, graphHost(), elements, func(cfg *Config) {
		cfg.Graph.Format = "rtp_mjpeg"
		cfg.Graph.PayloadType = 26
	})

	if missing := c.ValidateRequirements(context.Background()); len(missing) != 0 {
		t.Fatalf("unexpected missing %v", missing)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop(context.Background())

	if desc := engine.launched[0]; !strings.Contains(desc, "rtpjpegdepay ! jpegdec") {
		t.Errorf("unexpected description %s", desc)
	}
}

func TestGraphServiceDown(t *testing.T) {
	h := graphHost()
	h.service = false
	c := newTestGraph(t, &fakeEngine{}, h, rtpH264Elements, nil)

	missing := c.ValidateRequirements(context.Background())
	if !slices.Equal(missing, []string{probe.MissingPipeWire}) {
		t.Errorf("missing = %v, want [%s]", missing, probe.MissingPipeWire)
	}
}

func TestGraphEngineRejectsDescription(t *testing.T) {
	engine := &fakeEngine{launchErr: fmt.Errorf("%w: no element \"foo\"", gst.ErrInvalidPipeline)}
	c := newTestGraph(t, engine, graphHost(), rtpH264Elements, nil)

	err := c.Start(context.Background())
	if !IsKind(err, ErrGraphConstructionFailure) {
		t.Fatalf("expected graph construction failure, got %v", err)
	}
	if c.State() != process.StateFailed {
		t.Errorf("state = %s, want failed", c.State())
	}
}

func TestGraphPlayFailureReleasesPipeline(t *testing.T) {
	engine := &fakeEngine{playErr: errors.New("gst-launch-1.0 exited during startup (exit code 1)")}
	c := newTestGraph(t, engine, graphHost(), rtpH264Elements, nil)

	err := c.Start(context.Background())
	if !IsKind(err, ErrLaunchFailure) {
		t.Fatalf("expected launch failure, got %v", err)
	}
	if _, _, _, closes := engine.last().counts(); closes != 1 {
		t.Errorf("pipeline closes = %d, want 1", closes)
	}
}

func TestGraphDescriptionMPEGTS(t *testing.T) {
	c := newTestGraph(t, &fakeEngine{}, graphHost(), nil, func(cfg *Config) {
		cfg.SourceURL = "udp://@:8554"
		cfg.Graph.Format = "mpegts-h264"
	})

	desc, err := c.Description("avdec_h264")
	if err != nil {
		t.Fatalf("Description: %v", err)
	}
	if strings.Contains(desc, "rtpjitterbuffer") || strings.Contains(desc, "payload=") {
		t.Errorf("MPEG-TS graph must not contain RTP stages: %s", desc)
	}
	if !strings.HasPrefix(desc, "udpsrc port=8554 ! tsparse ! tsdemux") {
		t.Errorf("unexpected description %s", desc)
	}
}
