package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smazurov/camloop/internal/consumer"
	"github.com/smazurov/camloop/internal/gst"
	"github.com/smazurov/camloop/internal/probe"
)

type checkReport struct {
	Consumer string         `json:"consumer,omitempty"`
	Kind     consumer.Kind  `json:"kind"`
	Ready    bool           `json:"ready"`
	Missing  []string       `json:"missing"`
	Graph    *probe.Support `json:"graph,omitempty"`
}

// CreateCheckCmd creates the check command.
func CreateCheckCmd() *cobra.Command {
	var (
		consumersFile string
		kindName      string
		device        string
		codec         string
		format        string
		transcoder    string
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "check [consumer]",
		Short: "Check that the host can run a consumer",
		Long: `Lists what the host is missing to run a consumer. With a name the consumer is ` +
			`read from the consumers file; otherwise the flags describe it. Exits non-zero when ` +
			`anything is missing.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var cfg consumer.Config
			var name string
			if len(args) == 1 {
				name = args[0]
				var err error
				if cfg, err = LoadNamedConsumer(consumersFile, name); err != nil {
					exitError(cmd, err)
				}
			} else {
				kind, err := consumer.ParseKind(kindName)
				if err != nil {
					exitError(cmd, err)
				}
				cfg = consumer.DefaultConfig(kind)
				cfg.SourceURL = "udp://@:8554"
				cfg.VideoCodec = codec
				if cfg.Loopback != nil && device != "" {
					cfg.Loopback.DevicePath = device
				}
				if cfg.Graph != nil && format != "" {
					cfg.Graph.Format = format
				}
			}

			if cfg.DetectsFormat() {
				// Requirements depend on the format; check the default one.
				g := *cfg.Graph
				g.Format = string(gst.FormatMPEGTSH264)
				cfg.Graph = &g
			}

			c, err := consumer.New(cfg, &consumer.Options{
				Name:       name,
				Prober:     newProber(),
				Transcoder: transcoder,
			})
			if err != nil {
				exitError(cmd, err)
			}

			ctx, stop := signalContext()
			defer stop()

			report := checkReport{Consumer: name, Kind: cfg.Kind, Missing: c.ValidateRequirements(ctx)}
			report.Ready = len(report.Missing) == 0
			if cfg.Kind == consumer.KindGraph {
				support := newProber().GraphSupport(ctx)
				report.Graph = &support
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, report); err != nil {
					exitError(cmd, err)
				}
			} else {
				printCheck(cmd, report)
			}
			if !report.Ready {
				stop()
				exitError(cmd, fmt.Errorf("%d requirement(s) missing", len(report.Missing)))
			}
		},
	}

	cmd.Flags().StringVar(&consumersFile, "consumers", "consumers.toml", "Path to consumers file")
	cmd.Flags().StringVar(&kindName, "kind", string(consumer.KindLoopback), "Consumer kind (loopback, graph)")
	cmd.Flags().StringVar(&device, "device", "", "Loopback device path")
	cmd.Flags().StringVar(&codec, "codec", "", "Video codec the transcoder must provide")
	cmd.Flags().StringVar(&format, "format", "", "Graph stream format (mpegts-h264, rtp-h264, rtp-mjpeg)")
	cmd.Flags().StringVar(&transcoder, "transcoder", "", "ffmpeg binary")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}

func printCheck(cmd *cobra.Command, r checkReport) {
	out := cmd.OutOrStdout()
	label := string(r.Kind)
	if r.Consumer != "" {
		label = r.Consumer + " (" + label + ")"
	}
	if r.Ready {
		fmt.Fprintf(out, "%s: ready\n", label)
	} else {
		fmt.Fprintf(out, "%s: missing\n", label)
		for _, m := range r.Missing {
			fmt.Fprintf(out, "  - %s\n", m)
		}
	}
	if g := r.Graph; g != nil {
		fmt.Fprintf(out, "graph runtime:    %t\n", g.RuntimeAvailable)
		fmt.Fprintf(out, "pipewiresink:     %t\n", g.PipeWireSinkAvailable)
		fmt.Fprintf(out, "PipeWire service: %t\n", g.ServiceRunning)
		decoders := "none"
		if len(g.H264Decoders) > 0 {
			decoders = strings.Join(g.H264Decoders, ", ")
		}
		fmt.Fprintf(out, "H.264 decoders:   %s\n", decoders)
	}
}
