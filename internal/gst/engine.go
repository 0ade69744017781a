package gst

import "context"

// Engine instantiates pipelines from gst-launch style descriptions.
type Engine interface {
	Launch(ctx context.Context, description string) (Pipeline, error)
}

// Pipeline is one instantiated graph.
//
// Messages is closed once the pipeline has fully stopped; a reader that
// drains it until close observes every error and end-of-stream message.
type Pipeline interface {
	// Play moves the graph to PLAYING.
	Play(ctx context.Context) error

	// SendEOS injects end-of-stream so sinks can drain.
	SendEOS() error

	// Null forces the graph to the NULL state regardless of progress.
	Null() error

	Messages() <-chan Message

	// Close releases engine resources. Implies Null.
	Close() error
}
