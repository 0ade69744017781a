package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camloop/internal/config"
	"github.com/smazurov/camloop/internal/consumer"
	"github.com/smazurov/camloop/internal/events"
	"github.com/smazurov/camloop/internal/gst"
	"github.com/smazurov/camloop/internal/process"
)

type fakeConsumer struct {
	cfg      consumer.Config
	name     string
	bus      *events.Bus
	startErr error

	mu    sync.Mutex
	state process.State
	err   error
	stops int
}

func (f *fakeConsumer) set(to process.State, err error) {
	f.mu.Lock()
	from := f.state
	f.state = to
	if to == process.StateFailed {
		f.err = err
	}
	f.mu.Unlock()
	f.bus.Publish(events.ConsumerStateChangedEvent{Consumer: f.name, From: string(from), To: string(to)})
}

func (f *fakeConsumer) Start(context.Context) error {
	f.set(process.StateStarting, nil)
	if f.startErr != nil {
		f.set(process.StateFailed, f.startErr)
		return f.startErr
	}
	f.set(process.StateRunning, nil)
	return nil
}

func (f *fakeConsumer) Stop(context.Context) error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.set(process.StateIdle, nil)
	return nil
}

func (f *fakeConsumer) OutputInfo() consumer.OutputInfo { return consumer.OutputInfo{} }

func (f *fakeConsumer) ValidateRequirements(context.Context) []string { return nil }

func (f *fakeConsumer) State() process.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConsumer) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeConsumer) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// builder hands out fake consumers and reports each one on built.
type builder struct {
	mu       sync.Mutex
	startErr error
	built    chan *fakeConsumer
}

func (b *builder) failStarts(err error) {
	b.mu.Lock()
	b.startErr = err
	b.mu.Unlock()
}

func newBuilder() *builder {
	return &builder{built: make(chan *fakeConsumer, 8)}
}

func (b *builder) build(cfg consumer.Config, opts *consumer.Options) (consumer.Consumer, error) {
	b.mu.Lock()
	startErr := b.startErr
	b.mu.Unlock()
	f := &fakeConsumer{cfg: cfg, name: opts.Name, bus: opts.Events, startErr: startErr, state: process.StateIdle}
	b.built <- f
	return f, nil
}

func (b *builder) next(t *testing.T) *fakeConsumer {
	t.Helper()
	select {
	case f := <-b.built:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for a consumer to be built")
		return nil
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loopbackConfig(url string) consumer.Config {
	cfg := consumer.DefaultConfig(consumer.KindLoopback)
	cfg.SourceURL = url
	return cfg
}

func runAsync(ctx context.Context, r *Runner) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	return errc
}

func wait(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	b := newBuilder()
	r := New(Options{Name: "desk", Config: loopbackConfig("udp://@:8554"), Build: b.build, Logger: discard()})

	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, r)

	f := b.next(t)
	if f.cfg.SourceURL != "udp://@:8554" || f.name != "desk" {
		t.Errorf("built %q for %q", f.cfg.SourceURL, f.name)
	}

	cancel()
	if err := wait(t, errc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.stopCount() != 1 || f.State() != process.StateIdle {
		t.Errorf("stops=%d state=%s, want one stop and idle", f.stopCount(), f.State())
	}
}

func TestRunReturnsStartFailure(t *testing.T) {
	b := newBuilder()
	b.failStarts(consumer.NewError(consumer.ErrLaunchFailure, "boom", nil))
	r := New(Options{Config: loopbackConfig("udp://@:8554"), Build: b.build, Logger: discard()})

	err := r.Run(context.Background())
	if !consumer.IsKind(err, consumer.ErrLaunchFailure) {
		t.Fatalf("Run = %v, want LAUNCH_FAILURE", err)
	}
}

func TestRunEndsWhenConsumerFails(t *testing.T) {
	b := newBuilder()
	r := New(Options{Name: "desk", Config: loopbackConfig("udp://@:8554"), Build: b.build, Logger: discard()})
	errc := runAsync(context.Background(), r)

	f := b.next(t)
	cause := consumer.NewError(consumer.ErrWorkerExited, "transcoder exited", nil)
	f.set(process.StateFailed, cause)

	err := wait(t, errc)
	if !errors.Is(err, cause) {
		t.Fatalf("Run = %v, want the consumer's error", err)
	}
	if f.State() != process.StateIdle {
		t.Errorf("failed consumer not stopped: %s", f.State())
	}
}

func TestRunEndsWhenStreamEnds(t *testing.T) {
	b := newBuilder()
	r := New(Options{Config: loopbackConfig("udp://@:8554"), Build: b.build, Logger: discard()})
	errc := runAsync(context.Background(), r)

	f := b.next(t)
	f.set(process.StateStopping, nil)
	f.set(process.StateIdle, nil)

	if err := wait(t, errc); err != nil {
		t.Fatalf("Run = %v, want nil after end of stream", err)
	}
}

const watchedDoc = `
[consumers.desk]
kind = "loopback"
source_url = "%s"
`

func writeConsumers(t *testing.T, path, url string) {
	t.Helper()
	doc := strings.Replace(watchedDoc, "%s", url, 1)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunRestartsOnConfigChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consumers.toml")
	writeConsumers(t, path, "udp://@:8554")
	all, err := config.LoadConsumers(path)
	if err != nil {
		t.Fatal(err)
	}

	b := newBuilder()
	r := New(Options{
		Name:          "desk",
		Config:        all["desk"],
		ConsumersFile: path,
		Watch:         true,
		Debounce:      30 * time.Millisecond,
		Build:         b.build,
		Logger:        discard(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, r)

	first := b.next(t)
	time.Sleep(100 * time.Millisecond)

	// Same definition: no restart.
	writeConsumers(t, path, "udp://@:8554")
	time.Sleep(200 * time.Millisecond)
	select {
	case <-b.built:
		t.Fatal("unchanged config restarted the consumer")
	default:
	}

	writeConsumers(t, path, "udp://@:9000")
	second := b.next(t)
	if second.cfg.SourceURL != "udp://@:9000" {
		t.Errorf("restarted with %q", second.cfg.SourceURL)
	}
	if first.stopCount() != 1 {
		t.Errorf("old consumer stopped %d times, want 1", first.stopCount())
	}

	cancel()
	if err := wait(t, errc); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunWatchSurvivesFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consumers.toml")
	writeConsumers(t, path, "udp://@:8554")

	b := newBuilder()
	b.failStarts(errors.New("device busy"))
	r := New(Options{
		Name:          "desk",
		Config:        loopbackConfig("udp://@:8554"),
		ConsumersFile: path,
		Watch:         true,
		Debounce:      30 * time.Millisecond,
		Build:         b.build,
		Logger:        discard(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, r)

	b.next(t)
	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-errc:
		t.Fatalf("Run returned %v despite watch", err)
	default:
	}

	b.failStarts(nil)
	writeConsumers(t, path, "udp://@:9001")
	if f := b.next(t); f.cfg.SourceURL != "udp://@:9001" {
		t.Errorf("restarted with %q", f.cfg.SourceURL)
	}

	cancel()
	if err := wait(t, errc); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunDetectsAutoFormat(t *testing.T) {
	cfg := consumer.DefaultConfig(consumer.KindGraph)
	cfg.SourceURL = "udp://@:5600"
	cfg.Graph.Format = consumer.FormatAuto

	var sniffed string
	b := newBuilder()
	r := New(Options{
		Config: cfg,
		Build:  b.build,
		Detect: func(_ context.Context, url string) (gst.Format, error) {
			sniffed = url
			return gst.FormatRTPMJPEG, nil
		},
		Logger: discard(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, r)

	f := b.next(t)
	if f.cfg.Graph.Format != string(gst.FormatRTPMJPEG) {
		t.Errorf("built with format %q", f.cfg.Graph.Format)
	}
	if sniffed != "udp://@:5600" {
		t.Errorf("sniffed %q", sniffed)
	}
	if cfg.Graph.Format != consumer.FormatAuto {
		t.Error("caller's config was modified")
	}

	cancel()
	if err := wait(t, errc); err != nil {
		t.Fatal(err)
	}
}

func TestRunDetectionFailure(t *testing.T) {
	cfg := consumer.DefaultConfig(consumer.KindGraph)
	cfg.SourceURL = "udp://@:5600"
	cfg.Graph.Format = consumer.FormatAuto

	b := newBuilder()
	r := New(Options{
		Config:        cfg,
		Build:         b.build,
		DetectTimeout: 10 * time.Millisecond,
		Detect: func(ctx context.Context, _ string) (gst.Format, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
		Logger: discard(),
	})

	err := r.Run(context.Background())
	if !consumer.IsKind(err, consumer.ErrGraphConstructionFailure) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v, want GRAPH_CONSTRUCTION_FAILURE from the timeout", err)
	}
	select {
	case <-b.built:
		t.Error("consumer built without a format")
	default:
	}
}

func TestRunWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camloop.prom")
	b := newBuilder()
	r := New(Options{
		Config:           loopbackConfig("udp://@:8554"),
		Build:            b.build,
		Textfile:         path,
		TextfileInterval: 20 * time.Millisecond,
		Logger:           discard(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, r)
	b.next(t)
	cancel()
	if err := wait(t, errc); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("textfile not written: %v", err)
	}
}
