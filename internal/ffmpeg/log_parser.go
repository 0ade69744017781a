package ffmpeg

import "strings"

// ffmpeg's -loglevel names mapped onto the levels the process supervisor logs at.
var logLevels = map[string]string{
	"quiet":   "fatal",
	"panic":   "fatal",
	"fatal":   "fatal",
	"error":   "error",
	"warning": "warning",
	"info":    "info",
	"verbose": "debug",
	"debug":   "debug",
	"trace":   "trace",
}

// ParseLogLevel reads the level tag ffmpeg prints with "-loglevel level+...".
// Lines look like "[info] msg" or "[udp @ 0x55] [warning] msg"; the level tag
// is removed and a component tag kept. Progress key=value lines are debug.
func ParseLogLevel(line string) (level, msg string) {
	if _, _, ok := progressField(line); ok {
		return "debug", line
	}

	if level, rest, ok := cutLevel(line); ok {
		return level, rest
	}

	// [component @ 0x...] [level] message
	if strings.HasPrefix(line, "[") {
		if end := strings.Index(line, "] "); end != -1 {
			component, rest := line[:end+2], line[end+2:]
			if level, rest, ok := cutLevel(rest); ok {
				return level, component + rest
			}
		}
	}
	return "info", line
}

func cutLevel(s string) (level, rest string, ok bool) {
	tag, rest, found := strings.Cut(s, "] ")
	if !found || !strings.HasPrefix(tag, "[") {
		return "", s, false
	}
	level, ok = logLevels[tag[1:]]
	return level, rest, ok
}
