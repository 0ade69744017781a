package ffmpeg

import (
	"strconv"
	"strings"
	"sync"
)

// Progress is one block of `-progress` output.
type Progress struct {
	Frame           int64
	FPS             float64
	DroppedFrames   int64
	DuplicateFrames int64
	Speed           float64
	Ended           bool // progress=end
}

// ProgressParser assembles `-progress pipe:1` key=value lines into Progress
// blocks. It implements process.OutputHandler.
type ProgressParser struct {
	onProgress func(Progress)

	mu    sync.Mutex
	block map[string]string
}

// NewProgressParser calls onProgress for every completed block.
func NewProgressParser(onProgress func(Progress)) *ProgressParser {
	return &ProgressParser{
		onProgress: onProgress,
		block:      make(map[string]string),
	}
}

// HandleLine consumes one output line. Only stdout carries progress.
func (p *ProgressParser) HandleLine(source, line string) {
	if source != "stdout" {
		return
	}
	key, value, ok := progressField(line)
	if !ok {
		return
	}

	p.mu.Lock()
	p.block[key] = strings.TrimSpace(value)
	if key != "progress" {
		p.mu.Unlock()
		return
	}
	block := p.block
	p.block = make(map[string]string)
	p.mu.Unlock()

	if p.onProgress != nil {
		p.onProgress(parseProgress(block))
	}
}

func parseProgress(block map[string]string) Progress {
	var pr Progress
	pr.Frame, _ = strconv.ParseInt(block["frame"], 10, 64)
	pr.FPS, _ = strconv.ParseFloat(block["fps"], 64)
	pr.DroppedFrames, _ = strconv.ParseInt(block["drop_frames"], 10, 64)
	pr.DuplicateFrames, _ = strconv.ParseInt(block["dup_frames"], 10, 64)
	pr.Speed, _ = strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(block["speed"], "x")), 64)
	pr.Ended = block["progress"] == "end"
	return pr
}

// progressField splits a "key=value" progress line. Keys are lowercase
// identifiers and values hold no further '=', which keeps regular stats
// lines such as "frame=  10 fps=30 ..." out.
func progressField(line string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(strings.TrimSpace(line), "=")
	if !ok || key == "" || strings.Contains(value, "=") {
		return "", "", false
	}
	for _, r := range key {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return "", "", false
		}
	}
	return key, value, true
}
