package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/camloop/cmd"
	"github.com/smazurov/camloop/internal/config"
	"github.com/smazurov/camloop/internal/consumer"
	"github.com/smazurov/camloop/internal/logging"
	"github.com/smazurov/camloop/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"camloop.toml"`

	// Consumer selection. A name picks an entry of the consumers file;
	// without one the consumer is described by the settings below.
	ConsumersFile string `help:"Consumer definitions file" default:"consumers.toml" toml:"consumers.file" env:"CONSUMERS_FILE"`
	Consumer      string `help:"Consumer to run from the consumers file" toml:"run.consumer" env:"RUN_CONSUMER"`
	Watch         bool   `help:"Restart the consumer when its definition changes" toml:"run.watch" env:"RUN_WATCH"`

	// Ad-hoc consumer
	Kind      string `help:"Consumer kind (loopback, graph)" default:"loopback" toml:"consumer.kind" env:"CONSUMER_KIND"`
	SourceURL string `help:"Stream URL the camera sends to" default:"udp://@:8554" toml:"consumer.source_url" env:"CONSUMER_SOURCE_URL"`
	Codec     string `help:"Transcoder video codec (loopback)" toml:"consumer.video_codec" env:"CONSUMER_VIDEO_CODEC"`

	LoopbackDevice    string `help:"Loopback device" default:"/dev/video42" toml:"loopback.device" env:"LOOPBACK_DEVICE"`
	LoopbackVideoSize string `help:"Output size WxH, empty keeps the source" toml:"loopback.video_size" env:"LOOPBACK_VIDEO_SIZE"`
	LoopbackFrameRate int    `help:"Output frame rate" default:"30" toml:"loopback.frame_rate" env:"LOOPBACK_FRAME_RATE"`

	GraphFormat         string `help:"Stream format (mpegts-h264, rtp-h264, rtp-mjpeg, auto)" default:"mpegts-h264" toml:"graph.format" env:"GRAPH_FORMAT"`
	GraphNodeName       string `help:"PipeWire node name" default:"GoPro Camera" toml:"graph.node_name" env:"GRAPH_NODE_NAME"`
	GraphHardwareDecode bool   `help:"Prefer hardware H.264 decoders" default:"true" toml:"graph.prefer_hardware_decode" env:"GRAPH_HARDWARE_DECODE"`

	// Worker settings
	Transcoder         string `help:"ffmpeg binary" default:"ffmpeg" toml:"transcoder.binary" env:"TRANSCODER_BINARY"`
	TranscoderLogLevel string `help:"ffmpeg log level" default:"info" toml:"transcoder.log_level" env:"TRANSCODER_LOG_LEVEL"`
	GracePeriod        string `help:"Time a worker gets to exit before it is killed" default:"5s" toml:"transcoder.grace_period" env:"TRANSCODER_GRACE_PERIOD"`

	// Metrics settings
	MetricsProgress bool   `help:"Export ffmpeg progress as metrics" default:"true" toml:"metrics.progress" env:"METRICS_PROGRESS"`
	MetricsTextfile string `help:"Write metrics to this file for the node exporter" toml:"metrics.textfile" env:"METRICS_TEXTFILE"`
	MetricsInterval string `help:"Metrics textfile refresh interval" default:"15s" toml:"metrics.interval" env:"METRICS_INTERVAL"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingConsumer string `help:"Consumer logging level" default:"info" toml:"logging.consumer" env:"LOGGING_CONSUMER"`
	LoggingProbe    string `help:"Requirement probe logging level" default:"info" toml:"logging.probe" env:"LOGGING_PROBE"`
	LoggingDevices  string `help:"Devices logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingFFmpeg   string `help:"ffmpeg output logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingGst      string `help:"GStreamer output logging level" default:"info" toml:"logging.gst" env:"LOGGING_GST"`
}

// consumerConfig describes the consumer to run.
func consumerConfig(opts *Options) (consumer.Config, error) {
	if opts.Consumer != "" {
		return cmd.LoadNamedConsumer(opts.ConsumersFile, opts.Consumer)
	}

	kind, err := consumer.ParseKind(opts.Kind)
	if err != nil {
		return consumer.Config{}, err
	}
	cfg := consumer.DefaultConfig(kind)
	cfg.SourceURL = opts.SourceURL
	cfg.VideoCodec = opts.Codec
	if l := cfg.Loopback; l != nil {
		l.DevicePath = opts.LoopbackDevice
		l.VideoSize = opts.LoopbackVideoSize
		l.FrameRate = opts.LoopbackFrameRate
	}
	if g := cfg.Graph; g != nil {
		g.Format = opts.GraphFormat
		g.NodeName = opts.GraphNodeName
		g.PreferHardwareDecode = opts.GraphHardwareDecode
	}
	return cfg, cfg.Validate()
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"consumer": opts.LoggingConsumer,
				"runner":   opts.LoggingConsumer,
				"probe":    opts.LoggingProbe,
				"devices":  opts.LoggingDevices,
				"ffmpeg":   opts.LoggingFFmpeg,
				"gst":      opts.LoggingGst,
			},
		})
		logger := logging.GetLogger("main")

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		hooks.OnStart(func() {
			defer close(done)

			cfg, err := consumerConfig(opts)
			if err != nil {
				logger.Error("Invalid consumer configuration", "error", err)
				os.Exit(1)
			}

			name := opts.Consumer
			if name == "" {
				name = string(cfg.Kind)
			}
			r := cmd.NewRunner(cfg, cmd.RunOptions{
				Name:               name,
				ConsumersFile:      opts.ConsumersFile,
				Watch:              opts.Watch && opts.Consumer != "",
				Transcoder:         opts.Transcoder,
				TranscoderLogLevel: opts.TranscoderLogLevel,
				Progress:           opts.MetricsProgress,
				GracePeriod:        parseDuration(opts.GracePeriod, 0),
				Textfile:           opts.MetricsTextfile,
				TextfileInterval:   parseDuration(opts.MetricsInterval, 0),
			})

			logger.Info("Starting consumer", "consumer", name, "kind", cfg.Kind, "source", cfg.SourceURL)
			if runErr := r.Run(ctx); runErr != nil {
				logger.Error("Consumer stopped", "error", runErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			cancel()
			<-done
		})
	})

	cli.Root().Use = "camloop"
	cli.Root().Short = "Expose a network camera stream as a virtual webcam"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(
		cmd.CreateCheckCmd(),
		cmd.CreateDevicesCmd(),
		cmd.CreateLoopbackCmd(),
		cmd.CreateDecodersCmd(),
		cmd.CreateEncodersCmd(),
		cmd.CreateProbeStreamCmd(),
		cmd.CreateRunCmd(),
		cmd.CreateInitCmd(),
		cmd.CreateVersionCmd(),
	)

	// Run the CLI
	cli.Run()
}
