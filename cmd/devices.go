package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/camloop/internal/devices"
	"github.com/smazurov/camloop/internal/logging"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List video device nodes",
		Long:  `Lists V4L2 device nodes with their driver and card, marking v4l2loopback outputs.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, stop := signalContext()
			defer stop()

			mgr := devices.NewManager(&devices.Options{Logger: logging.GetLogger("devices")})
			list, err := mgr.List(ctx)
			if err != nil {
				stop()
				exitError(cmd, err)
			}

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), list); err != nil {
					stop()
					exitError(cmd, err)
				}
				return
			}

			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no video devices")
				return
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tNAME\tDRIVER\tLOOPBACK")
			for _, d := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", d.Path, d.Name, d.Driver, d.Loopback)
			}
			_ = tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print devices as JSON")
	return cmd
}
