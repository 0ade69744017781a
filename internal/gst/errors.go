package gst

import "errors"

var (
	// ErrUnsupportedFormat is returned for a stream format the graph builder does not know.
	ErrUnsupportedFormat = errors.New("unsupported stream format")

	// ErrNoDecoder is returned when no H.264 decoder element is installed.
	ErrNoDecoder = errors.New("no H.264 decoder available")

	// ErrInvalidParams is returned for out-of-range pipeline parameters.
	ErrInvalidParams = errors.New("invalid pipeline parameters")

	// ErrInvalidPipeline is returned when the engine rejects a pipeline description.
	ErrInvalidPipeline = errors.New("invalid pipeline description")
)
