package camera

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/smazurov/camloop/internal/consumer"
	"github.com/smazurov/camloop/internal/process"
)

type recordingCamera struct {
	calls      []string
	url        string
	connectErr error
}

func (c *recordingCamera) Connect(context.Context) error {
	c.calls = append(c.calls, "connect")
	return c.connectErr
}

func (c *recordingCamera) StartUpstream(context.Context, StreamSettings) error {
	c.calls = append(c.calls, "start")
	return nil
}

func (c *recordingCamera) StopUpstream(context.Context) error {
	c.calls = append(c.calls, "stop")
	return nil
}

func (c *recordingCamera) StreamURL() string { return c.url }

type stubConsumer struct {
	calls    *[]string
	startErr error
	state    process.State
}

func (s *stubConsumer) Start(context.Context) error {
	*s.calls = append(*s.calls, "consumer.start")
	if s.startErr != nil {
		s.state = process.StateFailed
		return s.startErr
	}
	s.state = process.StateRunning
	return nil
}

func (s *stubConsumer) Stop(context.Context) error {
	*s.calls = append(*s.calls, "consumer.stop")
	s.state = process.StateIdle
	return nil
}

func (s *stubConsumer) OutputInfo() consumer.OutputInfo { return consumer.OutputInfo{} }

func (s *stubConsumer) ValidateRequirements(context.Context) []string { return nil }

func (s *stubConsumer) State() process.State { return s.state }

func (s *stubConsumer) Err() error { return nil }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionOrder(t *testing.T) {
	cam := &recordingCamera{url: "udp://@:8554"}
	var gotURL string
	factory := func(url string) (consumer.Consumer, error) {
		gotURL = url
		return &stubConsumer{calls: &cam.calls}, nil
	}

	s := NewSession(cam, factory, StreamSettings{Port: 8554}, discard())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if gotURL != "udp://@:8554" {
		t.Errorf("consumer built for %q", gotURL)
	}
	if s.Consumer() == nil {
		t.Fatal("expected running consumer")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{"connect", "start", "consumer.start", "consumer.stop", "stop"}
	if diff := cmp.Diff(want, cam.calls); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionConsumerFailureStopsUpstream(t *testing.T) {
	cam := &recordingCamera{url: "udp://@:8554"}
	startErr := consumer.NewError(consumer.ErrMissingRequirement, "requirements not met", nil)
	factory := func(string) (consumer.Consumer, error) {
		return &stubConsumer{calls: &cam.calls, startErr: startErr}, nil
	}

	s := NewSession(cam, factory, StreamSettings{}, discard())
	err := s.Start(context.Background())
	if !consumer.IsKind(err, consumer.ErrMissingRequirement) {
		t.Fatalf("expected consumer error, got %v", err)
	}
	want := []string{"connect", "start", "consumer.start", "consumer.stop", "stop"}
	if diff := cmp.Diff(want, cam.calls); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	if s.Consumer() != nil {
		t.Error("failed consumer must not be kept")
	}
}

func TestSessionConnectFailure(t *testing.T) {
	cam := &recordingCamera{connectErr: errors.New("no route to host")}
	s := NewSession(cam, func(string) (consumer.Consumer, error) {
		t.Fatal("factory must not be called")
		return nil, nil
	}, StreamSettings{}, discard())

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if diff := cmp.Diff([]string{"connect"}, cam.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSessionNoStreamURL(t *testing.T) {
	cam := &recordingCamera{}
	s := NewSession(cam, nil, StreamSettings{}, discard())
	if err := s.Start(context.Background()); !errors.Is(err, ErrNoStream) {
		t.Fatalf("expected ErrNoStream, got %v", err)
	}
	if diff := cmp.Diff([]string{"connect", "start", "stop"}, cam.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestStatic(t *testing.T) {
	if err := (&Static{}).Connect(context.Background()); !errors.Is(err, ErrNoStream) {
		t.Errorf("expected ErrNoStream, got %v", err)
	}
	s := &Static{URL: "udp://@:8554"}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.StreamURL() != "udp://@:8554" {
		t.Errorf("StreamURL = %q", s.StreamURL())
	}
}
