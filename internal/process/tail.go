package process

import (
	"strings"
	"sync"
)

const defaultTailLines = 64

// lineRing keeps the last N output lines of a worker for failure reports.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	head  int
	count int
}

func newLineRing(capacity int) *lineRing {
	if capacity < 1 {
		capacity = defaultTailLines
	}
	return &lineRing{lines: make([]string, capacity)}
}

func (r *lineRing) add(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	r.mu.Lock()
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
	r.mu.Unlock()
}

// snapshot returns the retained lines, oldest first.
func (r *lineRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, r.count)
	start := (r.head - r.count + len(r.lines)) % len(r.lines)
	for i := 0; i < r.count; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}
