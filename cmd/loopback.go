package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camloop/internal/devices"
	"github.com/smazurov/camloop/internal/events"
	"github.com/smazurov/camloop/internal/logging"
)

// CreateLoopbackCmd creates the loopback command with its setup and remove
// subcommands.
func CreateLoopbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loopback",
		Short: "Manage the v4l2loopback module",
	}
	cmd.AddCommand(createLoopbackSetupCmd(), createLoopbackRemoveCmd())
	return cmd
}

func newDeviceManager(sudo bool) *devices.Manager {
	logger := logging.GetLogger("devices")
	bus := events.New()
	bus.Subscribe(func(e events.LoopbackModuleEvent) {
		logger.Debug("Loopback module event", "action", e.Action, "device", e.DevicePath, "label", e.Label)
	})
	return devices.NewManager(&devices.Options{Sudo: sudo, Events: bus, Logger: logger})
}

func createLoopbackSetupCmd() *cobra.Command {
	var (
		device        string
		label         string
		exclusiveCaps bool
		sudo          bool
		wait          time.Duration
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Load v4l2loopback and wait for the device node",
		Long: `Loads v4l2loopback with the device number taken from --device and waits for the ` +
			`node to appear. Loading needs root; use --sudo when not running as root.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			path, err := devices.ResolveDevicePath(device)
			if err != nil {
				exitError(cmd, err)
			}
			number, err := devices.DeviceNumber(path)
			if err != nil {
				exitError(cmd, err)
			}

			ctx, stop := signalContext()
			defer stop()

			mgr := newDeviceManager(sudo)
			spec := devices.LoopbackSpec{Number: number, Label: label, ExclusiveCaps: exclusiveCaps}
			if err := mgr.Provision(ctx, spec); err != nil {
				stop()
				exitError(cmd, err)
			}

			waitCtx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()
			if err := devices.WaitForNode(waitCtx, path); err != nil {
				cancel()
				stop()
				exitError(cmd, fmt.Errorf("module loaded but %s did not appear: %w", path, err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ready (%s)\n", path, label)
		},
	}

	cmd.Flags().StringVar(&device, "device", devices.DefaultDevice, "Device to create (path, number or videoN)")
	cmd.Flags().StringVar(&label, "label", devices.DefaultLabel, "Card label shown to applications")
	cmd.Flags().BoolVar(&exclusiveCaps, "exclusive-caps", true, "Advertise capture only once a writer is attached")
	cmd.Flags().BoolVar(&sudo, "sudo", false, "Run modprobe through sudo")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "How long to wait for the device node")
	return cmd
}

func createLoopbackRemoveCmd() *cobra.Command {
	var sudo bool

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Unload v4l2loopback",
		Long:  `Unloads v4l2loopback. Every loopback device disappears with it.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, stop := signalContext()
			defer stop()

			if err := newDeviceManager(sudo).Remove(ctx); err != nil {
				stop()
				exitError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "v4l2loopback unloaded")
		},
	}

	cmd.Flags().BoolVar(&sudo, "sudo", false, "Run modprobe through sudo")
	return cmd
}
