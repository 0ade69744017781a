package events

// Event type constants for kelindar/event.
const (
	TypeConsumerStateChanged uint32 = iota + 1
	TypeRequirementsChecked
	TypeEngineMessage
	TypeLoopbackModule
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ConsumerStateChangedEvent is published on every consumer state transition.
type ConsumerStateChangedEvent struct {
	Consumer  string `json:"consumer"`
	Kind      string `json:"kind"`
	From      string `json:"from"`
	To        string `json:"to"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for ConsumerStateChangedEvent.
func (e ConsumerStateChangedEvent) Type() uint32 { return TypeConsumerStateChanged }

// RequirementsCheckedEvent reports the result of a requirement validation.
// An empty Missing list means the consumer can start.
type RequirementsCheckedEvent struct {
	Consumer  string   `json:"consumer"`
	Kind      string   `json:"kind"`
	Missing   []string `json:"missing"`
	Timestamp string   `json:"timestamp"`
}

// Type returns the event type identifier for RequirementsCheckedEvent.
func (e RequirementsCheckedEvent) Type() uint32 { return TypeRequirementsChecked }

// EngineMessageEvent carries a graph engine bus message.
type EngineMessageEvent struct {
	Consumer  string `json:"consumer"`
	Message   string `json:"message"` // error, warning, eos, state-changed, info
	Source    string `json:"source,omitempty"`
	Text      string `json:"text,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for EngineMessageEvent.
func (e EngineMessageEvent) Type() uint32 { return TypeEngineMessage }

// LoopbackModuleEvent reports loading or unloading v4l2loopback.
type LoopbackModuleEvent struct {
	Action     string `json:"action"` // loaded, removed
	DevicePath string `json:"device_path,omitempty"`
	Label      string `json:"label,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// Type returns the event type identifier for LoopbackModuleEvent.
func (e LoopbackModuleEvent) Type() uint32 { return TypeLoopbackModule }
