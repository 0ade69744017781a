package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"slices"
	"sync"
	"syscall"
	"time"
)

// Defaults applied by NewSupervisor.
const (
	DefaultStartupProbe = time.Second
	DefaultGracePeriod  = 5 * time.Second
)

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// OutputHandlerFunc adapts a function to OutputHandler.
type OutputHandlerFunc func(source, line string)

// HandleLine calls f(source, line).
func (f OutputHandlerFunc) HandleLine(source, line string) {
	f(source, line)
}

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from process output (ffmpeg, gstreamer, etc.)
type LogParser func(line string) (level, msg string)

// Options configures a Supervisor. Zero values select the defaults.
type Options struct {
	// Logger for supervisor events. If nil, uses slog.Default().
	Logger *slog.Logger

	// ProcessLogger receives worker output (e.g. module="ffmpeg"). Falls back to Logger.
	ProcessLogger *slog.Logger

	// LogParser extracts the level of each output line.
	LogParser LogParser

	// Output receives every output line in addition to logging.
	Output OutputHandler

	// StartupProbe is how long Launch waits before checking the worker is still alive.
	StartupProbe time.Duration

	// StopSignal is sent to the worker's process group by Terminate. Default SIGINT.
	StopSignal syscall.Signal

	// TailLines bounds the captured output kept for failure reports.
	TailLines int
}

// Supervisor launches external workers and tears them down with a graceful
// signal followed by a forced kill.
type Supervisor struct {
	logger        *slog.Logger
	processLogger *slog.Logger
	logParser     LogParser
	output        OutputHandler
	startupProbe  time.Duration
	stopSignal    syscall.Signal
	tailLines     int
}

// NewSupervisor creates a supervisor. opts may be nil.
func NewSupervisor(opts *Options) *Supervisor {
	if opts == nil {
		opts = &Options{}
	}
	s := &Supervisor{
		logger:        opts.Logger,
		processLogger: opts.ProcessLogger,
		logParser:     opts.LogParser,
		output:        opts.Output,
		startupProbe:  opts.StartupProbe,
		stopSignal:    opts.StopSignal,
		tailLines:     opts.TailLines,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.processLogger == nil {
		s.processLogger = s.logger
	}
	if s.startupProbe <= 0 {
		s.startupProbe = DefaultStartupProbe
	}
	if s.stopSignal == 0 {
		s.stopSignal = syscall.SIGINT
	}
	if s.tailLines <= 0 {
		s.tailLines = defaultTailLines
	}
	return s
}

// Handle is a launched worker. All methods are safe for concurrent use.
type Handle struct {
	cmd        *exec.Cmd
	argv       []string
	startedAt  time.Time
	stopSignal syscall.Signal
	logger     *slog.Logger
	tail       *lineRing

	done    chan struct{}
	waitErr error // valid once done is closed

	termMu sync.Mutex
}

// PID returns the worker's process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Done is closed once the worker has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited reports whether the worker has exited.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err returns the wait error once the worker has exited, nil before.
func (h *Handle) Err() error {
	if !h.Exited() {
		return nil
	}
	return h.waitErr
}

// ExitCode returns the worker's exit code, or -1 while it is running.
// A worker terminated by a signal reports 128+signal.
func (h *Handle) ExitCode() int {
	if !h.Exited() {
		return -1
	}
	return exitCodeFromError(h.waitErr)
}

// Output returns the last captured output lines, oldest first.
func (h *Handle) Output() []string {
	return h.tail.snapshot()
}

// Info returns a snapshot of the worker.
func (h *Handle) Info() Info {
	info := Info{
		PID:       h.PID(),
		Argv:      slices.Clone(h.argv),
		StartedAt: h.startedAt,
		ExitCode:  -1,
	}
	if h.Exited() {
		info.Exited = true
		info.ExitCode = exitCodeFromError(h.waitErr)
	}
	return info
}

// Signal delivers sig to the worker's process group. Signalling an exited
// worker is a no-op.
func (h *Handle) Signal(sig syscall.Signal) error {
	if h.Exited() {
		return nil
	}
	return signalGroup(h.PID(), sig)
}

// Launch starts argv as a new process group with stdout and stderr captured,
// waits for the startup probe period, and fails with a *LaunchError if the
// worker has already exited by then. Cancelling ctx during the probe stops
// the worker and returns the context error.
func (s *Supervisor) Launch(ctx context.Context, argv []string) (*Handle, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Argv: argv, ExitCode: -1, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Argv: argv, ExitCode: -1, Err: err}
	}

	if err := cmd.Start(); err != nil {
		s.logger.Error("Failed to start process", "error", err, "command", argv[0])
		return nil, &LaunchError{Argv: argv, ExitCode: -1, Err: err}
	}

	h := &Handle{
		cmd:        cmd,
		argv:       slices.Clone(argv),
		startedAt:  time.Now(),
		stopSignal: s.stopSignal,
		logger:     s.logger.With("pid", cmd.Process.Pid),
		tail:       newLineRing(s.tailLines),
		done:       make(chan struct{}),
	}
	h.logger.Info("Process started", "command", argv[0], "args", len(argv)-1)

	outputDone := make(chan struct{}, 2)
	go func() {
		s.streamOutput(h, stdout, "stdout")
		outputDone <- struct{}{}
	}()
	go func() {
		s.streamOutput(h, stderr, "stderr")
		outputDone <- struct{}{}
	}()

	// Wait must not run until both pipes are drained.
	go func() {
		<-outputDone
		<-outputDone
		h.waitErr = cmd.Wait()
		close(h.done)
		h.logger.Info("Process exited", "exit_code", exitCodeFromError(h.waitErr))
	}()

	timer := time.NewTimer(s.startupProbe)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil, &LaunchError{
			Argv:     h.argv,
			ExitCode: exitCodeFromError(h.waitErr),
			Output:   h.Output(),
			Err:      waitErrCause(h.waitErr),
		}
	case <-ctx.Done():
		h.logger.Info("Launch cancelled, stopping process")
		_ = s.Terminate(h, DefaultGracePeriod)
		return nil, fmt.Errorf("launch %s: %w", argv[0], ctx.Err())
	case <-timer.C:
		return h, nil
	}
}

// Terminate sends the stop signal to the worker's process group, waits up
// to grace for it to exit, then kills the group and waits for the exit
// without bound. Terminating an exited or nil handle succeeds.
func (s *Supervisor) Terminate(h *Handle, grace time.Duration) error {
	if h == nil {
		return nil
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	h.termMu.Lock()
	defer h.termMu.Unlock()

	if h.Exited() {
		return nil
	}

	pid := h.PID()
	h.logger.Info("Sending stop signal to process", "signal", h.stopSignal.String())
	if err := signalGroup(pid, h.stopSignal); err != nil {
		h.logger.Warn("Failed to send stop signal", "error", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil
	case <-timer.C:
	}

	h.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", grace)
	if err := signalGroup(pid, syscall.SIGKILL); err != nil {
		// The only way the kill cannot land is a permission problem, and
		// then waiting would never return.
		if !h.Exited() {
			return &TerminateError{PID: pid, Forced: true, Err: err}
		}
	}
	<-h.done
	return nil
}

// signalGroup signals the whole process group led by pid.
// A group that no longer exists is not an error.
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// streamOutput scans one output stream of the worker, logging each line at
// the parsed level and keeping it in the handle's tail.
func (s *Supervisor) streamOutput(h *Handle, reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		h.tail.add(line)

		if s.output != nil {
			s.output.HandleLine(source, line)
		}

		level, msg := "info", line
		if s.logParser != nil {
			level, msg = s.logParser(line)
		}

		switch level {
		case "fatal", "error":
			s.processLogger.Error(msg)
		case "warning":
			s.processLogger.Warn(msg)
		case "debug", "trace":
			s.processLogger.Debug(msg)
		default:
			s.processLogger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		h.logger.Warn("Error reading output", "source", source, "error", err)
	}
}

// exitCodeFromError extracts the exit code from a wait error.
// Returns 0 for nil, 128+signal for a signalled process, the exit code for
// ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

// waitErrCause drops plain non-zero exit errors, which the exit code
// already describes.
func waitErrCause(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
