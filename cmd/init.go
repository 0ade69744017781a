package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/camloop/internal/config"
	"github.com/smazurov/camloop/internal/consumer"
)

// SampleConsumers returns the definitions written by `init`: one consumer
// per backend, both fed by a camera streaming MPEG-TS to port 8554.
func SampleConsumers() map[string]consumer.Config {
	webcam := consumer.DefaultConfig(consumer.KindLoopback)
	webcam.SourceURL = "udp://@:8554"

	pipewire := consumer.DefaultConfig(consumer.KindGraph)
	pipewire.SourceURL = "udp://@:8554"

	return map[string]consumer.Config{
		"webcam":   webcam,
		"pipewire": pipewire,
	}
}

// CreateInitCmd creates the init command.
func CreateInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample consumers file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if _, err := os.Stat(path); err == nil && !force {
				exitError(cmd, fmt.Errorf("%s exists, use --force to overwrite", path))
			}
			if err := config.SaveConsumers(path, SampleConsumers()); err != nil {
				exitError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		},
	}

	cmd.Flags().StringVar(&path, "consumers", "consumers.toml", "Path to consumers file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
