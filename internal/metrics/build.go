package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "build_info",
	Help:      "Build metadata, always 1",
}, []string{"version", "revision", "go_version"})

// SetBuildInfo records the running build.
func SetBuildInfo(version, revision, goVersion string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, revision, goVersion).Set(1)
}
