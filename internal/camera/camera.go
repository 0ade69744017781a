// Package camera defines what the consumer side needs from a camera and
// runs a camera and a consumer together as one session.
package camera

import (
	"context"
	"errors"
)

// ErrNoStream is returned when a camera has no stream URL to offer.
var ErrNoStream = errors.New("camera has no stream URL")

// StreamSettings are passed to the camera when upstream streaming starts.
type StreamSettings struct {
	Resolution string // e.g. "1080", camera specific
	FOV        string
	Port       int
}

// Camera is the upstream side of a session. Implementations speak the
// camera's own control protocol.
type Camera interface {
	Connect(ctx context.Context) error
	StartUpstream(ctx context.Context, settings StreamSettings) error
	StopUpstream(ctx context.Context) error
	// StreamURL returns the URL the stream is served on, or "" before the
	// upstream has started.
	StreamURL() string
}

// Static is a camera that is already streaming to a known URL. Connecting
// and starting are no-ops.
type Static struct {
	URL string
}

// Connect implements Camera.
func (s *Static) Connect(context.Context) error {
	if s.URL == "" {
		return ErrNoStream
	}
	return nil
}

// StartUpstream implements Camera.
func (s *Static) StartUpstream(context.Context, StreamSettings) error { return nil }

// StopUpstream implements Camera.
func (s *Static) StopUpstream(context.Context) error { return nil }

// StreamURL implements Camera.
func (s *Static) StreamURL() string { return s.URL }
