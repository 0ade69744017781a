package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/smazurov/camloop/internal/events"
	"github.com/smazurov/camloop/internal/gst"
	"github.com/smazurov/camloop/internal/logging"
	"github.com/smazurov/camloop/internal/metrics"
	"github.com/smazurov/camloop/internal/probe"
	"github.com/smazurov/camloop/internal/process"
)

// Graph teardown defaults.
const (
	DefaultDrainTimeout = 500 * time.Millisecond
	DefaultJoinTimeout  = 2 * time.Second
)

// GraphConsumer publishes the stream as a PipeWire video source through a
// GStreamer graph. Bus messages are observed on one background goroutine
// per running pipeline.
type GraphConsumer struct {
	lifecycle

	cfg          Config
	format       gst.Format
	prober       *probe.Prober
	engine       gst.Engine
	drainTimeout time.Duration
	joinTimeout  time.Duration

	// guarded by mu
	pipeline gst.Pipeline
	quit     chan struct{} // closed by Stop to release the bus loop
	loopDone chan struct{}
	decoder  string
}

// NewGraph creates a graph consumer. cfg.Graph must be set.
func NewGraph(cfg Config, opts *Options) (*GraphConsumer, error) {
	if opts == nil {
		opts = &Options{}
	}
	cfg.Kind = KindGraph
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DetectsFormat() {
		return nil, NewError(ErrInvalidConfig, "stream format must be detected before building the consumer", nil)
	}
	g := *cfg.Graph
	cfg.Graph = &g
	format, _ := gst.ParseFormat(g.Format)

	name := opts.name(KindGraph)
	logger := opts.logger().With("consumer", name)

	c := &GraphConsumer{
		lifecycle:    newLifecycle(name, KindGraph, opts.Events, logger),
		cfg:          cfg,
		format:       format,
		prober:       opts.prober(),
		engine:       opts.Engine,
		drainTimeout: opts.DrainTimeout,
		joinTimeout:  opts.JoinTimeout,
	}
	if c.engine == nil {
		processLogger := opts.ProcessLogger
		if processLogger == nil {
			processLogger = logging.GetLogger("gst")
		}
		c.engine = &gst.LaunchEngine{
			Logger:        logger,
			ProcessLogger: processLogger.With("consumer", name),
			StartupProbe:  opts.StartupProbe,
		}
	}
	if c.drainTimeout <= 0 {
		c.drainTimeout = DefaultDrainTimeout
	}
	if c.joinTimeout <= 0 {
		c.joinTimeout = DefaultJoinTimeout
	}
	return c, nil
}

// Config returns the consumer's configuration.
func (c *GraphConsumer) Config() Config {
	cfg := c.cfg
	g := *c.cfg.Graph
	cfg.Graph = &g
	return cfg
}

// Description renders the graph for decoder without starting anything.
func (c *GraphConsumer) Description(decoder string) (string, error) {
	desc, err := gst.BuildPipeline(pipelineParams(&c.cfg, c.format), decoder)
	if err != nil {
		return "", NewError(ErrGraphConstructionFailure, "cannot build graph", err)
	}
	return desc, nil
}

// ValidateRequirements implements Consumer.
func (c *GraphConsumer) ValidateRequirements(ctx context.Context) []string {
	missing := c.prober.Graph(ctx, probe.GraphRequirements{
		Format:         c.format,
		PreferHardware: c.cfg.Graph.PreferHardwareDecode,
	})
	c.reportRequirements(missing)
	return missing
}

// Start implements Consumer.
func (c *GraphConsumer) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.State() == process.StateRunning {
		c.logger.Debug("Consumer already running")
		return nil
	}
	c.setState(process.StateStarting, nil)

	if missing := c.ValidateRequirements(ctx); len(missing) > 0 {
		return c.fail(missingError(missing))
	}

	var decoder string
	if c.format.NeedsH264Decoder() {
		var err error
		decoder, err = gst.SelectDecoder(c.prober.Registry(), c.cfg.Graph.PreferHardwareDecode)
		if err != nil {
			return c.fail(missingError([]string{probe.MissingH264Decoder}))
		}
	}

	desc, err := c.Description(decoder)
	if err != nil {
		return c.fail(err)
	}
	c.logger.Info("Starting graph consumer", "source", c.cfg.SourceURL, "format", c.format, "decoder", decoder)
	c.logger.Debug("Graph description", "pipeline", desc)

	pl, err := c.engine.Launch(ctx, desc)
	if err != nil {
		return c.fail(engineError(err))
	}
	if err := pl.Play(ctx); err != nil {
		_ = pl.Close()
		return c.fail(engineError(err))
	}
	metrics.IncLaunches(c.name, string(c.kind))

	quit := make(chan struct{})
	done := make(chan struct{})

	c.mu.Lock()
	c.pipeline = pl
	c.quit = quit
	c.loopDone = done
	c.decoder = decoder
	c.setStateLocked(process.StateRunning, nil)
	c.mu.Unlock()

	go c.busLoop(pl, quit, done)
	c.logger.Info("Graph consumer running", "node", c.cfg.Graph.NodeName)
	return nil
}

// busLoop is the only reader of the pipeline's messages. It exits on an
// error, on end-of-stream, when the stream closes, or when Stop releases it.
func (c *GraphConsumer) busLoop(pl gst.Pipeline, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	msgs := pl.Messages()
	for {
		select {
		case <-quit:
			return

		case msg, ok := <-msgs:
			if !ok {
				c.detach(pl, &Error{Kind: ErrEngineRuntimeFailure, Message: "engine stopped without end-of-stream"})
				return
			}
			c.publishMessage(msg)

			switch msg.Type {
			case gst.MessageError:
				c.logger.Error("Graph error", "source", msg.Source, "error", msg.Text)
				if err := pl.Null(); err != nil {
					c.logger.Warn("Failed to stop graph after error", "error", err)
				}
				c.detach(pl, &Error{Kind: ErrEngineRuntimeFailure, Message: msg.Text, Detail: msg.Source})
				return

			case gst.MessageEOS:
				c.logger.Info("End of stream")
				c.detach(pl, nil)
				return

			case gst.MessageWarning:
				c.logger.Warn("Graph warning", "source", msg.Source, "warning", msg.Text)

			case gst.MessageStateChanged:
				c.logger.Debug("Graph state changed", "source", msg.Source, "old", msg.OldState, "new", msg.NewState)

			default:
				c.logger.Debug("Graph message", "source", msg.Source, "text", msg.Text)
			}
		}
	}
}

// detach handles a pipeline that ended on its own while running. With err
// the consumer fails, without it the stream ended normally and the consumer
// returns to idle. Nothing happens when Stop is already tearing pl down.
func (c *GraphConsumer) detach(pl gst.Pipeline, err *Error) {
	c.mu.Lock()
	if c.pipeline != pl || c.state != process.StateRunning {
		c.mu.Unlock()
		return
	}
	c.pipeline = nil
	if err != nil {
		c.setStateLocked(process.StateFailed, err)
	} else {
		c.setStateLocked(process.StateStopping, nil)
		c.setStateLocked(process.StateIdle, nil)
	}
	c.mu.Unlock()

	if closeErr := pl.Close(); closeErr != nil {
		c.logger.Warn("Failed to release graph", "error", closeErr)
	}
}

func (c *GraphConsumer) publishMessage(msg gst.Message) {
	if msg.Type == gst.MessageInfo {
		return
	}
	c.bus.Publish(events.EngineMessageEvent{
		Consumer:  c.name,
		Message:   msg.Type.String(),
		Source:    msg.Source,
		Text:      msg.Text,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Stop implements Consumer. It sends end-of-stream, gives the graph a short
// drain window, forces it to NULL and joins the bus loop with a bound.
func (c *GraphConsumer) Stop(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	pl, quit, done := c.pipeline, c.quit, c.loopDone
	if pl == nil {
		if c.state == process.StateFailed {
			c.setStateLocked(process.StateIdle, nil)
		}
		c.mu.Unlock()
		c.join(done)
		return nil
	}
	c.setStateLocked(process.StateStopping, nil)
	c.mu.Unlock()

	c.logger.Info("Stopping graph consumer")

	var errs []error
	if err := pl.SendEOS(); err != nil {
		c.logger.Warn("Failed to send end-of-stream", "error", err)
	} else {
		sleepCtx(ctx, c.drainTimeout, done)
	}

	if err := pl.Null(); err != nil {
		errs = append(errs, err)
	}
	close(quit)
	c.join(done)
	if err := pl.Close(); err != nil {
		errs = append(errs, err)
	}

	c.mu.Lock()
	c.pipeline = nil
	c.quit = nil
	c.loopDone = nil
	c.setStateLocked(process.StateIdle, nil)
	c.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		c.logger.Error("Graph did not stop cleanly", "error", err)
		return NewError(ErrTerminationFailure, "graph did not stop cleanly", err)
	}
	return nil
}

// join waits for the bus loop to exit, bounded by the join timeout.
func (c *GraphConsumer) join(done <-chan struct{}) {
	if done == nil {
		return
	}
	timer := time.NewTimer(c.joinTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.logger.Warn("Bus loop did not exit in time", "timeout", c.joinTimeout)
	}
}

// OutputInfo implements Consumer.
func (c *GraphConsumer) OutputInfo() OutputInfo {
	c.mu.Lock()
	running := c.state == process.StateRunning
	c.mu.Unlock()

	g := c.cfg.Graph
	return OutputInfo{
		Type:       string(KindGraph),
		Running:    running,
		NodeName:   g.NodeName,
		ClientName: g.ClientName,
		MediaClass: g.MediaClass,
		Width:      g.Width,
		Height:     g.Height,
		FPS:        g.FPS,
		Format:     string(c.format),
	}
}

// Decoder returns the H.264 decoder of the running graph, if any.
func (c *GraphConsumer) Decoder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decoder
}

// engineError maps engine failures: a graph the engine cannot parse is a
// construction failure, anything else a launch failure.
func engineError(err error) *Error {
	if errors.Is(err, gst.ErrInvalidPipeline) {
		e := launchError(err)
		e.Kind = ErrGraphConstructionFailure
		e.Message = "engine rejected graph"
		return e
	}
	return launchError(err)
}
