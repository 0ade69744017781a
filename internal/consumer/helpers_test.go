package consumer

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camloop/internal/gst"
	"github.com/smazurov/camloop/internal/probe"
	"github.com/smazurov/camloop/internal/process"
)

// host is a probe.System answering from memory.
type host struct {
	tools   []string // binaries that answer -version / --version
	nodes   []string // paths that exist
	modules string   // /proc/modules content
	service bool
}

func (h *host) Run(_ context.Context, argv []string) ([]byte, error) {
	if slices.Contains(h.tools, argv[0]) {
		return nil, nil
	}
	return nil, errors.New("executable file not found")
}

func (h *host) ReadFile(p string) ([]byte, error) {
	if p == probe.ModulesFile {
		return []byte(h.modules), nil
	}
	return nil, fs.ErrNotExist
}

func (h *host) Stat(p string) (fs.FileInfo, error) {
	if slices.Contains(h.nodes, p) {
		return os.Stat(os.DevNull)
	}
	return nil, fs.ErrNotExist
}

func (h *host) Glob(string) ([]string, error) {
	return nil, nil
}

func (h *host) ServiceActive(context.Context, string) (bool, error) {
	return h.service, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProber(h *host, elements ...string) *probe.Prober {
	return probe.New(&probe.Options{
		System:   h,
		Registry: gst.NewStaticRegistry(elements...),
		Logger:   discardLogger(),
	})
}

// writeScript creates an executable shell script standing in for ffmpeg.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitForState(t *testing.T, c Consumer, want process.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.State(), want)
}

// fakeEngine records launched descriptions and hands out fakePipelines.
type fakeEngine struct {
	mu          sync.Mutex
	launched    []string
	pipelines   []*fakePipeline
	launchErr   error
	playErr     error
	eosOnSignal bool
}

func (e *fakeEngine) Launch(_ context.Context, desc string) (gst.Pipeline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.launchErr != nil {
		return nil, e.launchErr
	}
	e.launched = append(e.launched, desc)
	p := &fakePipeline{
		msgs:        make(chan gst.Message, 16),
		playErr:     e.playErr,
		eosOnSignal: e.eosOnSignal,
	}
	e.pipelines = append(e.pipelines, p)
	return p, nil
}

func (e *fakeEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.launched)
}

func (e *fakeEngine) last() *fakePipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pipelines) == 0 {
		return nil
	}
	return e.pipelines[len(e.pipelines)-1]
}

type fakePipeline struct {
	msgs        chan gst.Message
	playErr     error
	eosOnSignal bool

	mu        sync.Mutex
	played    int
	eos       int
	nulls     int
	closes    int
	closeOnce sync.Once
}

func (p *fakePipeline) Play(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played++
	return p.playErr
}

func (p *fakePipeline) SendEOS() error {
	p.mu.Lock()
	p.eos++
	p.mu.Unlock()
	if p.eosOnSignal {
		p.push(gst.Message{Type: gst.MessageEOS})
	}
	return nil
}

func (p *fakePipeline) Null() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nulls++
	return nil
}

func (p *fakePipeline) Messages() <-chan gst.Message {
	return p.msgs
}

func (p *fakePipeline) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	p.closeOnce.Do(func() { close(p.msgs) })
	return nil
}

func (p *fakePipeline) push(m gst.Message) {
	p.msgs <- m
}

func (p *fakePipeline) counts() (played, eos, nulls, closes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played, p.eos, p.nulls, p.closes
}
