package gst

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smazurov/camloop/internal/process"
)

// DefaultLaunchBinary runs pipeline descriptions.
const DefaultLaunchBinary = "gst-launch-1.0"

const messageBuffer = 128

// LaunchEngine runs each pipeline as a `gst-launch-1.0 -e -m` worker under a
// process supervisor and turns its output into bus messages.
type LaunchEngine struct {
	Binary        string
	Logger        *slog.Logger
	ProcessLogger *slog.Logger
	StartupProbe  time.Duration // 0 = process.DefaultStartupProbe
	GracePeriod   time.Duration // time Null waits before killing
}

// Launch prepares a pipeline. The worker is started by Play.
func (e *LaunchEngine) Launch(ctx context.Context, description string) (Pipeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// gst-launch joins its arguments back into one description and escapes
	// the spaces inside each, so every token must be its own argument.
	tokens, err := SplitDescription(description)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty description", ErrInvalidPipeline)
	}

	binary := e.Binary
	if binary == "" {
		binary = DefaultLaunchBinary
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := e.GracePeriod
	if grace <= 0 {
		grace = time.Second
	}

	p := &launchPipeline{
		argv:     append([]string{binary, "-e", "-m"}, tokens...),
		logger:   logger,
		grace:    grace,
		messages: make(chan Message, messageBuffer),
		quit:     make(chan struct{}),
	}
	// gst-launch only handles SIGINT (as EOS with -e), so Null uses SIGTERM.
	p.sup = process.NewSupervisor(&process.Options{
		Logger:        logger,
		ProcessLogger: e.ProcessLogger,
		LogParser:     ParseLogLevel,
		Output:        process.OutputHandlerFunc(p.handleLine),
		StartupProbe:  e.StartupProbe,
		StopSignal:    syscall.SIGTERM,
	})
	return p, nil
}

type launchPipeline struct {
	argv   []string
	sup    *process.Supervisor
	logger *slog.Logger
	grace  time.Duration

	mu     sync.Mutex
	handle *process.Handle
	played bool

	messages  chan Message
	quit      chan struct{}
	quitOnce  sync.Once
	closeOnce sync.Once

	terminal atomic.Bool // an error or EOS message was delivered
	nulled   atomic.Bool
}

func (p *launchPipeline) Messages() <-chan Message {
	return p.messages
}

func (p *launchPipeline) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.played {
		return nil
	}
	if p.nulled.Load() {
		return errors.New("pipeline already stopped")
	}

	h, err := p.sup.Launch(ctx, p.argv)
	if err != nil {
		p.closeMessages()
		var launchErr *process.LaunchError
		if errors.As(err, &launchErr) && isParseFailure(launchErr.Output) {
			return fmt.Errorf("%w: %w", ErrInvalidPipeline, err)
		}
		return err
	}

	p.handle = h
	p.played = true
	go p.watch(h)
	return nil
}

// watch closes the message stream once the worker is gone, reporting an
// exit that nobody asked for as an error.
func (p *launchPipeline) watch(h *process.Handle) {
	<-h.Done()
	if !p.terminal.Load() && !p.nulled.Load() {
		p.deliver(Message{
			Type: MessageError,
			Text: fmt.Sprintf("engine exited unexpectedly (exit code %d)", h.ExitCode()),
		})
	}
	p.closeMessages()
}

func (p *launchPipeline) SendEOS() error {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Signal(syscall.SIGINT)
}

func (p *launchPipeline) Null() error {
	p.nulled.Store(true)
	p.quitOnce.Do(func() { close(p.quit) })

	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()

	return p.sup.Terminate(h, p.grace)
}

func (p *launchPipeline) Close() error {
	err := p.Null()
	p.mu.Lock()
	if !p.played {
		p.closeMessages()
	}
	p.mu.Unlock()
	return err
}

func (p *launchPipeline) closeMessages() {
	p.closeOnce.Do(func() { close(p.messages) })
}

func (p *launchPipeline) handleLine(_, line string) {
	msg, ok := ParseMessage(line)
	if !ok {
		return
	}
	if msg.Type == MessageError || msg.Type == MessageEOS {
		p.terminal.Store(true)
	}
	p.deliver(msg)
}

// deliver never drops error or EOS messages unless the pipeline is being
// torn down; informational messages are dropped when nobody keeps up.
func (p *launchPipeline) deliver(msg Message) {
	switch msg.Type {
	case MessageError, MessageEOS:
		select {
		case p.messages <- msg:
		case <-p.quit:
		}
	default:
		select {
		case p.messages <- msg:
		default:
			p.logger.Debug("Dropping bus message", "type", msg.Type.String(), "source", msg.Source)
		}
	}
}

func isParseFailure(output []string) bool {
	for _, line := range output {
		if strings.Contains(line, "erroneous pipeline") || strings.Contains(line, "no element") {
			return true
		}
	}
	return false
}
