// Package runner keeps one named consumer running for the lifetime of a
// command: it builds the consumer, restarts it when its definition changes
// on disk and exports metrics while it runs.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/smazurov/camloop/internal/camera"
	"github.com/smazurov/camloop/internal/config"
	"github.com/smazurov/camloop/internal/consumer"
	"github.com/smazurov/camloop/internal/events"
	"github.com/smazurov/camloop/internal/gst"
	"github.com/smazurov/camloop/internal/metrics"
	"github.com/smazurov/camloop/internal/process"
	"github.com/smazurov/camloop/internal/streamprobe"
)

// Defaults applied by New.
const (
	DefaultDetectTimeout    = 5 * time.Second
	DefaultTextfileInterval = 15 * time.Second

	// stopTimeout bounds teardown; consumers enforce their own grace periods.
	stopTimeout = 30 * time.Second
)

// Options configures a Runner.
type Options struct {
	Name   string
	Config consumer.Config

	// ConsumersFile is reloaded when Watch is set; the entry called Name
	// replaces Config whenever it changes.
	ConsumersFile string
	Watch         bool
	Debounce      time.Duration // 0 = config.DefaultDebounce

	// Consumer is the template for every consumer built. Name and Events
	// are filled in.
	Consumer consumer.Options
	// Build creates the consumer. nil = consumer.New.
	Build func(cfg consumer.Config, opts *consumer.Options) (consumer.Consumer, error)

	// Camera feeds the consumer. nil = a static camera on Config.SourceURL.
	Camera   camera.Camera
	Settings camera.StreamSettings

	// Detect resolves an "auto" graph format. nil = sniff the UDP port.
	Detect        func(ctx context.Context, sourceURL string) (gst.Format, error)
	DetectTimeout time.Duration

	// Textfile, when set, receives the metrics every TextfileInterval and
	// once more on exit.
	Textfile         string
	TextfileInterval time.Duration

	Logger *slog.Logger
}

// Runner runs one consumer. It is not reusable.
type Runner struct {
	opts   Options
	bus    *events.Bus
	logger *slog.Logger
}

// New creates a runner.
func New(opts Options) *Runner {
	if opts.Name == "" {
		opts.Name = string(opts.Config.Kind)
	}
	if opts.Build == nil {
		opts.Build = consumer.New
	}
	if opts.Detect == nil {
		opts.Detect = SniffFormat
	}
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = DefaultDetectTimeout
	}
	if opts.Debounce <= 0 {
		opts.Debounce = config.DefaultDebounce
	}
	if opts.TextfileInterval <= 0 {
		opts.TextfileInterval = DefaultTextfileInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	bus := opts.Consumer.Events
	if bus == nil {
		bus = events.New()
	}
	return &Runner{
		opts:   opts,
		bus:    bus,
		logger: opts.Logger.With("consumer", opts.Name),
	}
}

// Events returns the bus consumers publish on.
func (r *Runner) Events() *events.Bus {
	return r.bus
}

// Run starts the consumer and blocks until ctx is done. Without Watch a
// consumer that fails, or whose stream ends, also ends Run; a failure is
// returned as an error. With Watch the runner waits for the next change of
// the consumers file instead.
func (r *Runner) Run(ctx context.Context) error {
	changes := make(chan any, 16)
	unsub := events.SubscribeToChannel[events.ConsumerStateChangedEvent](r.bus, changes)
	defer unsub()

	reloads, stopWatch := r.watch()
	defer stopWatch()
	stopExport := r.exportMetrics()
	defer stopExport()

	current := r.opts.Config
	session, err := r.start(ctx, current)
	if err != nil {
		if !r.opts.Watch {
			return err
		}
		r.logger.Error("Consumer failed to start, waiting for a config change", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return r.stop(session)

		case cfg := <-reloads:
			if reflect.DeepEqual(cfg, current) {
				r.logger.Debug("Config reloaded, consumer unchanged")
				continue
			}
			r.logger.Info("Consumer config changed, restarting")
			if stopErr := r.stop(session); stopErr != nil {
				r.logger.Warn("Failed to stop consumer", "error", stopErr)
			}
			current = cfg
			session, err = r.start(ctx, current)
			if err != nil {
				r.logger.Error("Consumer failed to start", "error", err)
			}

		case <-changes:
			c := session.Consumer()
			if c == nil {
				continue
			}
			switch c.State() {
			case process.StateFailed:
				cause := c.Err()
				if !r.opts.Watch {
					_ = r.stop(session)
					return fmt.Errorf("consumer %s failed: %w", r.opts.Name, cause)
				}
				r.logger.Error("Consumer failed, waiting for a config change", "error", cause)
			case process.StateIdle:
				if !r.opts.Watch {
					r.logger.Info("Stream ended")
					return r.stop(session)
				}
				r.logger.Info("Stream ended, waiting for a config change")
			}
		}
	}
}

// watch returns a channel of fresh definitions for the consumer and a
// function that stops watching. The channel is nil when watching is off.
func (r *Runner) watch() (<-chan consumer.Config, func()) {
	if !r.opts.Watch || r.opts.ConsumersFile == "" {
		return nil, func() {}
	}

	reloads := make(chan consumer.Config, 1)
	w := config.NewConfigWatcher(
		r.opts.ConsumersFile,
		config.LoadConsumers,
		r.logger,
		config.WithDebounce[map[string]consumer.Config](r.opts.Debounce),
	)
	w.OnReload(func(all map[string]consumer.Config) {
		cfg, err := config.Lookup(all, r.opts.Name)
		if err != nil {
			r.logger.Warn("Consumer missing from reloaded config", "error", err)
			return
		}
		// Only the latest definition matters.
		select {
		case <-reloads:
		default:
		}
		reloads <- cfg
	})
	if err := w.Start(); err != nil {
		r.logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
		return nil, func() {}
	}
	return reloads, func() { _ = w.Stop() }
}

// start brings up a session for cfg. The returned session is never nil.
func (r *Runner) start(ctx context.Context, cfg consumer.Config) (*camera.Session, error) {
	cam := r.opts.Camera
	if cam == nil {
		cam = &camera.Static{URL: cfg.SourceURL}
	}
	build := func(url string) (consumer.Consumer, error) {
		cfg.SourceURL = url
		if cfg.DetectsFormat() {
			resolved, err := r.detect(ctx, cfg)
			if err != nil {
				return nil, err
			}
			cfg = resolved
		}
		opts := r.opts.Consumer
		opts.Name = r.opts.Name
		opts.Events = r.bus
		return r.opts.Build(cfg, &opts)
	}

	session := camera.NewSession(cam, build, r.opts.Settings, r.logger)
	return session, session.Start(ctx)
}

// detect replaces an "auto" graph format with the one seen on the wire.
func (r *Runner) detect(ctx context.Context, cfg consumer.Config) (consumer.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.DetectTimeout)
	defer cancel()

	r.logger.Info("Detecting stream format", "source", cfg.SourceURL, "timeout", r.opts.DetectTimeout)
	format, err := r.opts.Detect(ctx, cfg.SourceURL)
	if err != nil {
		return cfg, consumer.NewError(consumer.ErrGraphConstructionFailure, "stream format detection failed", err)
	}
	r.logger.Info("Detected stream format", "format", format)

	g := *cfg.Graph
	g.Format = string(format)
	cfg.Graph = &g
	return cfg, nil
}

func (r *Runner) stop(session *camera.Session) error {
	if session == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return session.Stop(ctx)
}

// exportMetrics writes the textfile periodically and returns a function
// that stops the writer after a final write.
func (r *Runner) exportMetrics() func() {
	path := r.opts.Textfile
	if path == "" {
		return func() {}
	}

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.opts.TextfileInterval)
		defer ticker.Stop()
		for {
			r.writeTextfile(path)
			select {
			case <-quit:
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		close(quit)
		<-done
		r.writeTextfile(path)
	}
}

func (r *Runner) writeTextfile(path string) {
	if err := metrics.WriteTextfile(path); err != nil {
		r.logger.Warn("Failed to write metrics textfile", "path", path, "error", err)
	}
}

// SniffFormat detects the format of the stream arriving on the URL's port.
func SniffFormat(ctx context.Context, sourceURL string) (gst.Format, error) {
	res, err := streamprobe.Sniff(ctx, gst.ParsePort(sourceURL))
	if err != nil {
		return "", err
	}
	return res.Format, nil
}
