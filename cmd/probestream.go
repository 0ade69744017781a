package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camloop/internal/gst"
	"github.com/smazurov/camloop/internal/streamprobe"
)

type probeReport struct {
	Port        int    `json:"port"`
	Format      string `json:"format"`
	Codec       string `json:"codec"`
	ClockRate   uint32 `json:"clock_rate,omitempty"`
	PayloadType uint8  `json:"payload_type,omitempty"`
}

// CreateProbeStreamCmd creates the probe-stream command.
func CreateProbeStreamCmd() *cobra.Command {
	var (
		port    int
		timeout time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "probe-stream",
		Short: "Detect the format of a UDP stream",
		Long: `Listens on the UDP port until a packet arrives and reports whether the camera sends ` +
			`MPEG-TS, RTP H.264 or RTP JPEG. Nothing else may be bound to the port.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, stop := signalContext()
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res, err := streamprobe.Sniff(ctx, port)
			if err != nil {
				cancel()
				stop()
				exitError(cmd, err)
			}

			report := probeReport{Port: port, Format: string(res.Format), PayloadType: res.PayloadType}
			if res.Codec != nil {
				report.Codec = res.Codec.Name
				report.ClockRate = res.Codec.ClockRate
			}
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					exitError(cmd, err)
				}
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "port %d: %s (%s)\n", port, report.Format, report.Codec)
		},
	}

	cmd.Flags().IntVar(&port, "port", gst.DefaultPort, "UDP port the camera streams to")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for traffic")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
