package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/camloop/internal/events"
	"github.com/smazurov/camloop/internal/metrics"
	"github.com/smazurov/camloop/internal/process"
)

var allStates = []string{
	string(process.StateIdle),
	string(process.StateStarting),
	string(process.StateRunning),
	string(process.StateStopping),
	string(process.StateFailed),
}

// lifecycle holds the state shared by both backends. opMu serializes Start
// and Stop; mu guards the fields read by State and by background watchers.
type lifecycle struct {
	name   string
	kind   Kind
	bus    *events.Bus
	logger *slog.Logger

	opMu sync.Mutex

	mu    sync.Mutex
	state process.State
	err   error
}

func newLifecycle(name string, kind Kind, bus *events.Bus, logger *slog.Logger) lifecycle {
	metrics.SetConsumerState(name, string(kind), string(process.StateIdle), allStates)
	return lifecycle{
		name:   name,
		kind:   kind,
		bus:    bus,
		logger: logger,
		state:  process.StateIdle,
	}
}

func (l *lifecycle) State() process.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// setState moves to the next state. err is recorded when moving to failed.
func (l *lifecycle) setState(to process.State, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setStateLocked(to, err)
}

func (l *lifecycle) setStateLocked(to process.State, err error) {
	from := l.state
	if from == to {
		return
	}
	if !process.CanTransition(from, to) {
		l.logger.Warn("Invalid state transition", "from", from, "to", to)
		return
	}

	l.state = to
	switch to {
	case process.StateFailed:
		l.err = err
	case process.StateStarting:
		l.err = nil
	}

	ev := events.ConsumerStateChangedEvent{
		Consumer:  l.name,
		Kind:      string(l.kind),
		From:      string(from),
		To:        string(to),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
		metrics.IncFailures(l.name, string(l.kind), string(KindOf(err)))
	}
	metrics.SetConsumerState(l.name, string(l.kind), string(to), allStates)
	l.bus.Publish(ev)

	l.logger.Debug("Consumer state changed", "from", from, "to", to)
}

// fail records a start failure and returns err for the caller.
func (l *lifecycle) fail(err error) error {
	l.logger.Error("Consumer failed to start", "error", err)
	l.setState(process.StateFailed, err)
	return err
}

// reportRequirements publishes and records the result of a validation.
func (l *lifecycle) reportRequirements(missing []string) {
	metrics.SetRequirementsMissing(l.name, string(l.kind), len(missing))
	l.bus.Publish(events.RequirementsCheckedEvent{
		Consumer:  l.name,
		Kind:      string(l.kind),
		Missing:   missing,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if len(missing) > 0 {
		l.logger.Warn("Requirements missing", "missing", missing)
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration, done <-chan struct{}) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-done:
	}
}
