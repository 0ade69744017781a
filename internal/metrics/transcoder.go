// Package metrics provides Prometheus metrics for stream consumers.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "camloop"

var (
	transcoderFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transcoder",
		Name:      "fps",
		Help:      "Current transcoder output FPS",
	}, []string{"consumer"})

	transcoderDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transcoder",
		Name:      "dropped_frames_total",
		Help:      "Total dropped frames",
	}, []string{"consumer"})

	transcoderDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transcoder",
		Name:      "duplicate_frames_total",
		Help:      "Total duplicate frames",
	}, []string{"consumer"})

	transcoderSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transcoder",
		Name:      "processing_speed",
		Help:      "Transcoder processing speed multiplier",
	}, []string{"consumer"})

	progressCache   = make(map[string]*TranscoderProgress)
	progressCacheMu sync.RWMutex
)

// TranscoderProgress holds the latest progress values of a consumer.
type TranscoderProgress struct {
	Frames          float64
	FPS             float64
	DroppedFrames   float64
	DuplicateFrames float64
	Speed           float64
}

// SetTranscoderProgress records a progress report for a consumer.
func SetTranscoderProgress(consumer string, p TranscoderProgress) {
	transcoderFPS.WithLabelValues(consumer).Set(p.FPS)
	transcoderDroppedFrames.WithLabelValues(consumer).Set(p.DroppedFrames)
	transcoderDuplicateFrames.WithLabelValues(consumer).Set(p.DuplicateFrames)
	transcoderSpeed.WithLabelValues(consumer).Set(p.Speed)

	progressCacheMu.Lock()
	progressCache[consumer] = &p
	progressCacheMu.Unlock()
}

// DeleteTranscoderProgress removes all progress metrics for a consumer.
func DeleteTranscoderProgress(consumer string) {
	transcoderFPS.DeleteLabelValues(consumer)
	transcoderDroppedFrames.DeleteLabelValues(consumer)
	transcoderDuplicateFrames.DeleteLabelValues(consumer)
	transcoderSpeed.DeleteLabelValues(consumer)

	progressCacheMu.Lock()
	delete(progressCache, consumer)
	progressCacheMu.Unlock()
}

// GetTranscoderProgress returns the latest progress of a consumer, or nil.
func GetTranscoderProgress(consumer string) *TranscoderProgress {
	progressCacheMu.RLock()
	defer progressCacheMu.RUnlock()
	if p, ok := progressCache[consumer]; ok {
		dup := *p
		return &dup
	}
	return nil
}
