// Package logging provides structured logging with per-module log level configuration.
//
// Output goes to the systemd journal when journald is reachable and to
// stdout when a terminal, pipe or file is attached. With both available every
// record goes to each.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"gst":    "debug",
//			"ffmpeg": "warn",
//		},
//	})
//
// Then fetch a logger per module:
//
//	logger := logging.GetLogger("consumer").With("consumer", name)
//	logger.Info("Consumer started", "device", dev)
//
// Loggers handed out before Initialize share a LevelVar with the module,
// so a later Initialize or SetModuleLevel call takes effect on them too.
//
// # Viewing Logs
//
//	journalctl -t camloop -f
//	journalctl -t camloop MODULE=gst
//	journalctl -t camloop CONSUMER=gopro -p err
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	consumer = "debug"
//	process = "warn"
package logging
