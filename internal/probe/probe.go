package probe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smazurov/camloop/internal/ffmpeg"
	"github.com/smazurov/camloop/internal/gst"
)

// Locations inspected on the host.
const (
	ModulesFile           = "/proc/modules"
	LoopbackModule        = "v4l2loopback"
	VideoDeviceGlob       = "/dev/video*"
	PipeWireUnit          = "pipewire"
	PipeWireSocketGlob    = "/run/user/*/pipewire-0"
	MissingH264Decoder    = "H.264 decoder (avdec_h264 or hardware decoder)"
	MissingLoopbackModule = "v4l2loopback kernel module"
	MissingPipeWire       = "PipeWire service"
)

const toolTimeout = 5 * time.Second

// Options configures a Prober.
type Options struct {
	System        System                 // nil = OS{}
	Registry      gst.CapabilityRegistry // nil = gst-inspect backed by System
	LaunchBinary  string                 // gst-launch-1.0
	InspectBinary string                 // gst-inspect-1.0
	Logger        *slog.Logger
}

// Prober checks whether the host can run a consumer. Checks never change
// host state, so repeated calls on an unchanged host agree.
type Prober struct {
	sys          System
	registry     gst.CapabilityRegistry
	launchBinary string
	logger       *slog.Logger
}

// New creates a Prober. opts may be nil.
func New(opts *Options) *Prober {
	if opts == nil {
		opts = &Options{}
	}
	p := &Prober{
		sys:          opts.System,
		registry:     opts.Registry,
		launchBinary: opts.LaunchBinary,
		logger:       opts.Logger,
	}
	if p.sys == nil {
		p.sys = OS{}
	}
	if p.registry == nil {
		p.registry = gst.NewInspectRegistry(opts.InspectBinary, p.sys.Run)
	}
	if p.launchBinary == "" {
		p.launchBinary = gst.DefaultLaunchBinary
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Registry returns the element registry the prober consults.
func (p *Prober) Registry() gst.CapabilityRegistry {
	return p.registry
}

// LoopbackRequirements names what a loopback consumer needs.
type LoopbackRequirements struct {
	Transcoder string // ffmpeg binary
	VideoCodec string // checked against the transcoder's encoders when set
	DevicePath string
}

// Loopback returns the missing requirements of a loopback consumer. An empty
// result means ready.
func (p *Prober) Loopback(ctx context.Context, req LoopbackRequirements) []string {
	var missing []string

	transcoder := req.Transcoder
	if transcoder == "" {
		transcoder = ffmpeg.DefaultBinary
	}
	if p.toolAvailable(ctx, transcoder, "-version") {
		if codec := req.VideoCodec; codec != "" && codec != "copy" && !p.hasEncoder(ctx, transcoder, codec) {
			missing = append(missing, fmt.Sprintf("%s encoder %s", transcoder, codec))
		}
	} else {
		missing = append(missing, transcoder)
	}

	if !p.LoopbackModuleLoaded() {
		missing = append(missing, MissingLoopbackModule)
	}

	if req.DevicePath == "" {
		missing = append(missing, "V4L2 device path")
	} else if _, err := p.sys.Stat(req.DevicePath); err != nil {
		missing = append(missing, "V4L2 device "+req.DevicePath)
	}

	p.logger.Debug("Loopback requirements checked", "missing", len(missing))
	return missing
}

// LoopbackModuleLoaded reports whether v4l2loopback is loaded. When the
// module list is unreadable any video device node counts.
func (p *Prober) LoopbackModuleLoaded() bool {
	data, err := p.sys.ReadFile(ModulesFile)
	if err == nil {
		return strings.Contains(string(data), LoopbackModule)
	}
	matches, _ := p.sys.Glob(VideoDeviceGlob)
	return len(matches) > 0
}

// GraphRequirements names what a graph consumer needs.
type GraphRequirements struct {
	Format         gst.Format
	PreferHardware bool
}

// Graph returns the missing requirements of a graph consumer. An empty
// result means ready.
func (p *Prober) Graph(ctx context.Context, req GraphRequirements) []string {
	var missing []string

	if p.RuntimeAvailable(ctx) {
		elements := gst.RequiredElements(req.Format)
		found := p.lookupElements(elements)
		for i, name := range elements {
			if !found[i] {
				missing = append(missing, "GStreamer element: "+name)
			}
		}

		if req.Format.NeedsH264Decoder() {
			if _, err := gst.SelectDecoder(p.registry, req.PreferHardware); err != nil {
				missing = append(missing, MissingH264Decoder)
			}
		}
	} else {
		missing = append(missing, fmt.Sprintf("GStreamer runtime (%s)", p.launchBinary))
	}

	if !p.ServiceRunning(ctx) {
		missing = append(missing, MissingPipeWire)
	}

	p.logger.Debug("Graph requirements checked", "format", req.Format, "missing", len(missing))
	return missing
}

// RuntimeAvailable reports whether the graph engine can be run.
func (p *Prober) RuntimeAvailable(ctx context.Context) bool {
	return p.toolAvailable(ctx, p.launchBinary, "--version")
}

// ServiceRunning reports whether PipeWire is up. The service manager is
// asked first; when it cannot be reached the socket file decides.
func (p *Prober) ServiceRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	active, err := p.sys.ServiceActive(ctx, PipeWireUnit)
	if err == nil {
		return active
	}
	p.logger.Debug("Service manager unavailable, checking socket", "error", err)
	matches, _ := p.sys.Glob(PipeWireSocketGlob)
	return len(matches) > 0
}

// Support summarises graph backend readiness independent of a stream format.
type Support struct {
	RuntimeAvailable      bool     `json:"runtime_available"`
	ServiceRunning        bool     `json:"service_running"`
	PipeWireSinkAvailable bool     `json:"pipewiresink_available"`
	H264Decoders          []string `json:"h264_decoders"`
}

// GraphSupport reports what the graph backend can use on this host.
func (p *Prober) GraphSupport(ctx context.Context) Support {
	s := Support{
		RuntimeAvailable: p.RuntimeAvailable(ctx),
		ServiceRunning:   p.ServiceRunning(ctx),
	}
	if s.RuntimeAvailable {
		s.PipeWireSinkAvailable = p.registry.Has("pipewiresink")
		s.H264Decoders = gst.AvailableDecoders(p.registry)
	}
	return s
}

// lookupElements checks elements concurrently; found[i] matches elements[i].
func (p *Prober) lookupElements(elements []string) []bool {
	found := make([]bool, len(elements))
	var g errgroup.Group
	g.SetLimit(4)
	for i, name := range elements {
		g.Go(func() error {
			found[i] = p.registry.Has(name)
			return nil
		})
	}
	_ = g.Wait()
	return found
}

func (p *Prober) toolAvailable(ctx context.Context, binary string, flag string) bool {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	_, err := p.sys.Run(ctx, []string{binary, flag})
	return err == nil
}

func (p *Prober) hasEncoder(ctx context.Context, binary, codec string) bool {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	out, err := p.sys.Run(ctx, ffmpeg.EncodersArgs(binary))
	if err != nil {
		// Unknown is not missing.
		return true
	}
	return ffmpeg.HasEncoder(ffmpeg.ParseEncoders(string(out)), codec)
}
