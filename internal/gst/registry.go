package gst

import (
	"context"
	"os/exec"
	"sync"
	"time"
)

// DefaultInspectBinary is the element lookup tool.
const DefaultInspectBinary = "gst-inspect-1.0"

// CapabilityRegistry answers whether a named graph element is installed.
type CapabilityRegistry interface {
	Has(name string) bool
}

// CommandRunner runs argv and returns its combined output.
type CommandRunner func(ctx context.Context, argv []string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, argv []string) ([]byte, error) {
	return exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
}

// InspectRegistry looks elements up with `gst-inspect-1.0 --exists` and
// caches every answer. Safe for concurrent use.
type InspectRegistry struct {
	binary  string
	run     CommandRunner
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]bool
}

// NewInspectRegistry creates a registry. Empty binary and nil run select the defaults.
func NewInspectRegistry(binary string, run CommandRunner) *InspectRegistry {
	if binary == "" {
		binary = DefaultInspectBinary
	}
	if run == nil {
		run = ExecRunner
	}
	return &InspectRegistry{
		binary:  binary,
		run:     run,
		timeout: 5 * time.Second,
		cache:   make(map[string]bool),
	}
}

// Has reports whether the element exists. A missing inspect tool means no
// element exists.
func (r *InspectRegistry) Has(name string) bool {
	r.mu.Lock()
	found, ok := r.cache[name]
	r.mu.Unlock()
	if ok {
		return found
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	_, err := r.run(ctx, []string{r.binary, "--exists", name})
	found = err == nil

	r.mu.Lock()
	r.cache[name] = found
	r.mu.Unlock()
	return found
}

// StaticRegistry is a fixed set of element names.
type StaticRegistry map[string]struct{}

// NewStaticRegistry creates a registry holding names.
func NewStaticRegistry(names ...string) StaticRegistry {
	r := make(StaticRegistry, len(names))
	for _, n := range names {
		r[n] = struct{}{}
	}
	return r
}

// Has reports whether name is in the set.
func (r StaticRegistry) Has(name string) bool {
	_, ok := r[name]
	return ok
}
