package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/camloop/internal/version"
)

// CreateVersionCmd prints build information.
func CreateVersionCmd() *cobra.Command {
	var asJSON bool

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := version.Get()
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), info); err != nil {
					exitError(cmd, err)
				}
				return
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "camloop %s\n", info.Version)
			fmt.Fprintf(out, "commit:   %s\n", info.GitCommit)
			fmt.Fprintf(out, "built:    %s\n", info.BuildDate)
			fmt.Fprintf(out, "go:       %s %s\n", info.GoVersion, info.Platform)
		},
	}

	versionCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return versionCmd
}
