package cmd

import (
	"github.com/spf13/cobra"

	"github.com/smazurov/camloop/internal/consumer"
	"github.com/smazurov/camloop/internal/logging"
)

// CreateRunCmd creates the run command.
func CreateRunCmd() *cobra.Command {
	var o RunOptions

	cmd := &cobra.Command{
		Use:   "run [consumer]",
		Short: "Run a consumer from the consumers file",
		Long: `Starts the named consumer from the consumers file and keeps it running until ` +
			`SIGINT or SIGTERM. With --watch the consumer is restarted whenever its definition ` +
			`changes; a consumer that fails then waits for the next change instead of exiting.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			o.Name = args[0]
			logger := logging.GetLogger("runner").With("consumer", o.Name)

			cfg, err := LoadNamedConsumer(o.ConsumersFile, o.Name)
			if err != nil {
				exitError(cmd, err)
			}
			logger.Info("Starting consumer", "kind", cfg.Kind, "source", cfg.SourceURL, "config", o.ConsumersFile)

			ctx, stop := signalContext()
			defer stop()

			if err := NewRunner(cfg, o).Run(ctx); err != nil {
				if kind := consumer.KindOf(err); kind != "" {
					logger.Error("Consumer stopped", "kind", kind, "error", err)
				}
				stop()
				exitError(cmd, err)
			}
			logger.Info("Consumer stopped")
		},
	}

	cmd.Flags().StringVar(&o.ConsumersFile, "consumers", "consumers.toml", "Path to consumers file")
	cmd.Flags().BoolVar(&o.Watch, "watch", false, "Restart the consumer when its definition changes")
	cmd.Flags().StringVar(&o.Transcoder, "transcoder", "", "ffmpeg binary for loopback consumers")
	cmd.Flags().StringVar(&o.TranscoderLogLevel, "transcoder-log-level", "info", "ffmpeg log level")
	cmd.Flags().BoolVar(&o.Progress, "progress", true, "Export ffmpeg progress as metrics")
	cmd.Flags().DurationVar(&o.GracePeriod, "grace-period", 0, "Time a worker gets to exit before it is killed")
	cmd.Flags().StringVar(&o.Textfile, "metrics-textfile", "", "Write metrics to this file for the node exporter")
	cmd.Flags().DurationVar(&o.TextfileInterval, "metrics-interval", 0, "Metrics textfile refresh interval")

	return cmd
}
