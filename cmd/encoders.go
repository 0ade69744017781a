package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camloop/internal/ffmpeg"
	"github.com/smazurov/camloop/internal/probe"
)

// CreateEncodersCmd creates the encoders command.
func CreateEncodersCmd() *cobra.Command {
	var (
		transcoder string
		hwOnly     bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "encoders",
		Short: "List the transcoder's video encoders",
		Long:  `Lists the video encoders ffmpeg was built with, flagging hardware accelerated ones.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			out, err := probe.OS{}.Run(ctx, ffmpeg.EncodersArgs(transcoder))
			if err != nil {
				cancel()
				exitError(cmd, fmt.Errorf("failed to list encoders: %w", err))
			}

			var list []ffmpeg.Encoder
			for _, e := range ffmpeg.ParseEncoders(string(out)) {
				if !hwOnly || e.HWAccel {
					list = append(list, e)
				}
			}

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), list); err != nil {
					exitError(cmd, err)
				}
				return
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tHW\tDESCRIPTION")
			for _, e := range list {
				fmt.Fprintf(tw, "%s\t%t\t%s\n", e.Name, e.HWAccel, e.Description)
			}
			_ = tw.Flush()
		},
	}

	cmd.Flags().StringVar(&transcoder, "transcoder", ffmpeg.DefaultBinary, "ffmpeg binary")
	cmd.Flags().BoolVar(&hwOnly, "hw-only", false, "Only list hardware accelerated encoders")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
