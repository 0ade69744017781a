package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/camloop/internal/devices"
	"github.com/smazurov/camloop/internal/ffmpeg"
	"github.com/smazurov/camloop/internal/logging"
	"github.com/smazurov/camloop/internal/metrics"
	"github.com/smazurov/camloop/internal/probe"
	"github.com/smazurov/camloop/internal/process"
)

// LoopbackConsumer writes the stream into a v4l2loopback device with ffmpeg.
type LoopbackConsumer struct {
	lifecycle

	cfg         Config
	transcoder  string
	prober      *probe.Prober
	sup         *process.Supervisor
	checkDevice func(string) error
	grace       time.Duration
	logLevel    string
	progress    bool

	handle *process.Handle // guarded by mu
}

// NewLoopback creates a loopback consumer. cfg.Loopback must be set.
func NewLoopback(cfg Config, opts *Options) (*LoopbackConsumer, error) {
	if opts == nil {
		opts = &Options{}
	}
	cfg.Kind = KindLoopback
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := *cfg.Loopback
	cfg.Loopback = &l

	name := opts.name(KindLoopback)
	logger := opts.logger().With("consumer", name)

	c := &LoopbackConsumer{
		lifecycle:   newLifecycle(name, KindLoopback, opts.Events, logger),
		cfg:         cfg,
		transcoder:  opts.Transcoder,
		prober:      opts.prober(),
		checkDevice: opts.CheckDevice,
		grace:       opts.GracePeriod,
		logLevel:    opts.TranscoderLogLevel,
		progress:    opts.Progress,
	}
	if c.transcoder == "" {
		c.transcoder = ffmpeg.DefaultBinary
	}
	if c.checkDevice == nil {
		c.checkDevice = devices.CheckAccess
	}

	processLogger := opts.ProcessLogger
	if processLogger == nil {
		processLogger = logging.GetLogger("ffmpeg")
	}
	supOpts := &process.Options{
		Logger:        logger,
		ProcessLogger: processLogger.With("consumer", name),
		LogParser:     ffmpeg.ParseLogLevel,
		StartupProbe:  opts.StartupProbe,
	}
	if c.progress {
		supOpts.Output = ffmpeg.NewProgressParser(c.recordProgress)
	}
	c.sup = process.NewSupervisor(supOpts)
	return c, nil
}

// Config returns the consumer's configuration.
func (c *LoopbackConsumer) Config() Config {
	cfg := c.cfg
	l := *c.cfg.Loopback
	cfg.Loopback = &l
	return cfg
}

// Command returns the transcoder argv Start would launch.
func (c *LoopbackConsumer) Command() []string {
	p := loopbackParams(&c.cfg, c.transcoder)
	p.LogLevel = c.logLevel
	p.Progress = c.progress
	return ffmpeg.BuildLoopbackArgs(p)
}

// ValidateRequirements implements Consumer.
func (c *LoopbackConsumer) ValidateRequirements(ctx context.Context) []string {
	missing := c.prober.Loopback(ctx, probe.LoopbackRequirements{
		Transcoder: c.transcoder,
		VideoCodec: c.cfg.VideoCodec,
		DevicePath: c.cfg.Loopback.DevicePath,
	})
	c.reportRequirements(missing)
	return missing
}

// Start implements Consumer.
func (c *LoopbackConsumer) Start(ctx context.Context) error {
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

	device := c.cfg.Loopback.DevicePath
	if err := c.checkDevice(device); err != nil {
		return c.fail(NewError(ErrDeviceAccessFailure, "cannot write to "+device, err))
	}

	argv := c.Command()
	c.logger.Info("Starting loopback consumer", "source", c.cfg.SourceURL, "device", device)
	c.logger.Debug("Transcoder command", "command", ffmpeg.CommandString(argv))

	h, err := c.sup.Launch(ctx, argv)
	if err != nil {
		return c.fail(launchError(err))
	}
	metrics.IncLaunches(c.name, string(c.kind))

	c.mu.Lock()
	c.handle = h
	c.setStateLocked(process.StateRunning, nil)
	c.mu.Unlock()

	go c.watchExit(h)
	c.logger.Info("Loopback consumer running", "pid", h.PID(), "device", device)
	return nil
}

// watchExit marks the consumer failed when the worker dies on its own.
func (c *LoopbackConsumer) watchExit(h *process.Handle) {
	<-h.Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != h || c.state != process.StateRunning {
		return
	}
	c.handle = nil
	err := &Error{
		Kind:    ErrWorkerExited,
		Message: fmt.Sprintf("transcoder exited unexpectedly (exit code %d)", h.ExitCode()),
		Detail:  strings.Join(h.Output(), "\n"),
	}
	c.logger.Error("Transcoder exited", "exit_code", h.ExitCode())
	c.setStateLocked(process.StateFailed, err)
	if c.progress {
		metrics.DeleteTranscoderProgress(c.name)
	}
}

// Stop implements Consumer.
func (c *LoopbackConsumer) Stop(_ context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	h := c.handle
	if h == nil {
		if c.state == process.StateFailed {
			c.setStateLocked(process.StateIdle, nil)
		}
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(process.StateStopping, nil)
	c.mu.Unlock()

	c.logger.Info("Stopping loopback consumer", "pid", h.PID())
	err := c.sup.Terminate(h, c.grace)

	c.mu.Lock()
	c.handle = nil
	c.setStateLocked(process.StateIdle, nil)
	c.mu.Unlock()

	if c.progress {
		metrics.DeleteTranscoderProgress(c.name)
	}
	if err != nil {
		c.logger.Error("Failed to terminate transcoder", "error", err)
		return NewError(ErrTerminationFailure, "transcoder did not stop cleanly", err)
	}
	return nil
}

// OutputInfo implements Consumer.
func (c *LoopbackConsumer) OutputInfo() OutputInfo {
	c.mu.Lock()
	h := c.handle
	running := c.state == process.StateRunning
	c.mu.Unlock()

	info := OutputInfo{
		Type:        string(KindLoopback),
		Running:     running,
		DevicePath:  c.cfg.Loopback.DevicePath,
		DeviceLabel: c.cfg.Loopback.DeviceLabel,
		VideoSize:   c.cfg.Loopback.VideoSize,
		FrameRate:   c.cfg.Loopback.FrameRate,
	}
	if h != nil && running {
		info.PID = h.PID()
	}
	return info
}

// Worker returns a snapshot of the running worker.
func (c *LoopbackConsumer) Worker() (process.Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return process.Info{}, false
	}
	return c.handle.Info(), true
}

func (c *LoopbackConsumer) recordProgress(p ffmpeg.Progress) {
	if p.Ended {
		return
	}
	metrics.SetTranscoderProgress(c.name, metrics.TranscoderProgress{
		Frames:          float64(p.Frame),
		FPS:             p.FPS,
		DroppedFrames:   float64(p.DroppedFrames),
		DuplicateFrames: float64(p.DuplicateFrames),
		Speed:           p.Speed,
	})
}

// launchError maps a supervisor launch failure, keeping the captured output.
func launchError(err error) *Error {
	e := NewError(ErrLaunchFailure, "worker failed to start", err)
	var le *process.LaunchError
	if errors.As(err, &le) {
		e.Detail = strings.Join(le.Output, "\n")
	}
	return e
}
