// Package cmd holds the camloop subcommands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camloop/internal/config"
	"github.com/smazurov/camloop/internal/consumer"
	"github.com/smazurov/camloop/internal/logging"
	"github.com/smazurov/camloop/internal/metrics"
	"github.com/smazurov/camloop/internal/probe"
	"github.com/smazurov/camloop/internal/runner"
	"github.com/smazurov/camloop/internal/version"
)

// RunOptions are the settings shared by the root command and `run`.
type RunOptions struct {
	Name          string
	ConsumersFile string
	Watch         bool

	Transcoder         string
	TranscoderLogLevel string
	Progress           bool
	GracePeriod        time.Duration

	Textfile         string
	TextfileInterval time.Duration
}

// NewRunner builds a runner for cfg with the host collaborators.
func NewRunner(cfg consumer.Config, o RunOptions) *runner.Runner {
	info := version.Get()
	metrics.SetBuildInfo(info.Version, info.GitCommit, info.GoVersion)

	return runner.New(runner.Options{
		Name:          o.Name,
		Config:        cfg,
		ConsumersFile: o.ConsumersFile,
		Watch:         o.Watch,
		Consumer: consumer.Options{
			Prober:             newProber(),
			Logger:             logging.GetLogger("consumer"),
			Transcoder:         o.Transcoder,
			TranscoderLogLevel: o.TranscoderLogLevel,
			Progress:           o.Progress,
			GracePeriod:        o.GracePeriod,
		},
		Textfile:         o.Textfile,
		TextfileInterval: o.TextfileInterval,
		Logger:           logging.GetLogger("runner"),
	})
}

// LoadNamedConsumer reads the consumers file and returns the named entry.
func LoadNamedConsumer(path, name string) (consumer.Config, error) {
	all, err := config.LoadConsumers(path)
	if err != nil {
		return consumer.Config{}, err
	}
	return config.Lookup(all, name)
}

func newProber() *probe.Prober {
	return probe.New(&probe.Options{Logger: logging.GetLogger("probe")})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitError reports err on the command's error stream and exits non-zero.
func exitError(cmd *cobra.Command, err error) {
	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	os.Exit(1)
}
