package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/camloop/internal/gst"
)

type decodersReport struct {
	Available []string `json:"available"`
	Selected  string   `json:"selected,omitempty"`
}

// CreateDecodersCmd creates the decoders command.
func CreateDecodersCmd() *cobra.Command {
	var (
		preferHardware bool
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "decoders",
		Short: "List installed H.264 decoders",
		Long:  `Lists the H.264 decoder elements GStreamer provides and the one a graph consumer would pick.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			reg := newProber().Registry()
			report := decodersReport{Available: gst.AvailableDecoders(reg)}
			if selected, err := gst.SelectDecoder(reg, preferHardware); err == nil {
				report.Selected = selected
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, report); err != nil {
					exitError(cmd, err)
				}
				return
			}
			if len(report.Available) == 0 {
				exitError(cmd, gst.ErrNoDecoder)
			}
			for _, name := range report.Available {
				marker := " "
				if name == report.Selected {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, name)
			}
		},
	}

	cmd.Flags().BoolVar(&preferHardware, "prefer-hardware", true, "Prefer hardware decoders")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
