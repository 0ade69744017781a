package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/camloop/internal/consumer"
)

// Factory builds a consumer for the URL the camera serves.
type Factory func(streamURL string) (consumer.Consumer, error)

// Session brings up a camera and a consumer in order and tears them down in
// reverse.
type Session struct {
	camera   Camera
	factory  Factory
	settings StreamSettings
	logger   *slog.Logger

	mu       sync.Mutex
	consumer consumer.Consumer
	upstream bool
}

// NewSession creates a session. logger may be nil.
func NewSession(cam Camera, factory Factory, settings StreamSettings, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{camera: cam, factory: factory, settings: settings, logger: logger}
}

// Start connects the camera, starts its stream and starts a consumer for the
// stream URL. On failure everything already started is stopped again.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumer != nil {
		return nil
	}

	if err := s.camera.Connect(ctx); err != nil {
		return fmt.Errorf("connect camera: %w", err)
	}
	if err := s.camera.StartUpstream(ctx, s.settings); err != nil {
		return fmt.Errorf("start camera stream: %w", err)
	}
	s.upstream = true

	url := s.camera.StreamURL()
	if url == "" {
		s.stopUpstream(ctx)
		return ErrNoStream
	}

	c, err := s.factory(url)
	if err != nil {
		s.stopUpstream(ctx)
		return err
	}
	if err := c.Start(ctx); err != nil {
		// A failed consumer is returned to idle so it can be discarded.
		_ = c.Stop(ctx)
		s.stopUpstream(ctx)
		return err
	}

	s.consumer = c
	s.logger.Info("Session started", "stream", url)
	return nil
}

// Stop stops the consumer and then the camera stream. Both are attempted
// even if the first fails.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		s.consumer = nil
	}
	if s.upstream {
		if err := s.camera.StopUpstream(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop camera stream: %w", err))
		}
		s.upstream = false
	}
	return errors.Join(errs...)
}

// Consumer returns the running consumer, or nil.
func (s *Session) Consumer() consumer.Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumer
}

func (s *Session) stopUpstream(ctx context.Context) {
	if err := s.camera.StopUpstream(ctx); err != nil {
		s.logger.Warn("Failed to stop camera stream", "error", err)
	}
	s.upstream = false
}
