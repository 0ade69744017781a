package gst

import (
	"regexp"
	"strings"
)

// MessageType classifies an engine bus message.
type MessageType int

// Message types the graph consumer reacts to.
const (
	MessageInfo MessageType = iota
	MessageWarning
	MessageError
	MessageEOS
	MessageStateChanged
)

func (t MessageType) String() string {
	switch t {
	case MessageWarning:
		return "warning"
	case MessageError:
		return "error"
	case MessageEOS:
		return "eos"
	case MessageStateChanged:
		return "state-changed"
	default:
		return "info"
	}
}

// State is a graph element state.
type State string

// Element states.
const (
	StateVoidPending State = "VOID_PENDING"
	StateNull        State = "NULL"
	StateReady       State = "READY"
	StatePaused      State = "PAUSED"
	StatePlaying     State = "PLAYING"
)

// Message is one bus message observed on a running pipeline.
type Message struct {
	Type     MessageType
	Source   string // element name, e.g. "pipeline0" or "udpsrc0"
	Text     string
	OldState State // state-changed only
	NewState State // state-changed only
}

var (
	errorFromRegex   = regexp.MustCompile(`^ERROR: from element (\S+): (.*)$`)
	warningFromRegex = regexp.MustCompile(`^WARNING: from element (\S+): (.*)$`)
	eosRegex         = regexp.MustCompile(`^Got EOS from element "([^"]+)"`)
	stateRegex       = regexp.MustCompile(`^Got message #\d+ from element "([^"]+)" \(state-changed\): .*old-state=\(GstState\)GST_STATE_(\w+), new-state=\(GstState\)GST_STATE_(\w+)`)
)

// ParseMessage turns one line of `gst-launch-1.0 -m` output into a Message.
// Lines that carry no bus message return false.
func ParseMessage(line string) (Message, bool) {
	line = strings.TrimSpace(line)

	if m := stateRegex.FindStringSubmatch(line); m != nil {
		return Message{Type: MessageStateChanged, Source: m[1], OldState: State(m[2]), NewState: State(m[3])}, true
	}
	if m := eosRegex.FindStringSubmatch(line); m != nil {
		return Message{Type: MessageEOS, Source: m[1]}, true
	}
	if m := errorFromRegex.FindStringSubmatch(line); m != nil {
		return Message{Type: MessageError, Source: elementName(m[1]), Text: m[2]}, true
	}
	if m := warningFromRegex.FindStringSubmatch(line); m != nil {
		return Message{Type: MessageWarning, Source: elementName(m[1]), Text: m[2]}, true
	}
	if text, ok := strings.CutPrefix(line, "ERROR: "); ok {
		return Message{Type: MessageError, Text: text}, true
	}
	if text, ok := strings.CutPrefix(line, "WARNING: "); ok {
		return Message{Type: MessageWarning, Text: text}, true
	}
	return Message{}, false
}

// elementName strips the object path from "/GstPipeline:pipeline0/GstUDPSrc:udpsrc0".
func elementName(path string) string {
	path = strings.TrimSuffix(path, ":")
	if i := strings.LastIndex(path, "/"); i != -1 {
		path = path[i+1:]
	}
	if i := strings.LastIndex(path, ":"); i != -1 {
		path = path[i+1:]
	}
	return path
}

// ParseLogLevel maps gst-launch output to a log level.
func ParseLogLevel(line string) (level, msg string) {
	switch {
	case strings.HasPrefix(line, "ERROR:"):
		return "error", line
	case strings.HasPrefix(line, "WARNING:"):
		return "warning", line
	case strings.HasPrefix(line, "Got message #"):
		return "debug", line
	}
	return "info", line
}
