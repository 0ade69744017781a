// Package process supervises a single external worker process.
//
// Supervisor.Launch starts the worker in its own process group, streams its
// stdout and stderr line by line into a logger (optionally through a
// LogParser) and a bounded tail, then waits for a short startup probe. A
// worker that is already gone by then is reported as a *LaunchError that
// carries the captured output.
//
// Supervisor.Terminate stops the worker:
//   - the stop signal (SIGINT by default) goes to the whole process group
//   - after the grace period the group is sent SIGKILL
//   - the exit is then awaited without a bound
//
// Terminate is idempotent. Nothing in this package retries a failed launch.
//
//	sup := process.NewSupervisor(&process.Options{
//		Logger:        logging.GetLogger("process"),
//		ProcessLogger: logging.GetLogger("ffmpeg"),
//		LogParser:     ffmpeg.ParseLogLevel,
//	})
//	h, err := sup.Launch(ctx, argv)
//	if err != nil {
//		return err
//	}
//	defer sup.Terminate(h, process.DefaultGracePeriod)
package process
