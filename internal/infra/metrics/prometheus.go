package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VideosProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_videos_processed_total",
		Help: "Total number of pipeline runs, by stage and outcome",
	}, []string{"stage", "status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vision_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vision_frames_extracted_total",
		Help: "Total number of frames stored across all videos",
	})

	FramesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vision_frames_skipped_total",
		Help: "Samples dropped because the frame was past the end or unreadable",
	})

	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_detections_total",
		Help: "Objects detected on analyzed frames, by label",
	}, []string{"label"})

	ActiveWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vision_active_workers",
		Help: "Number of workers currently handling a message",
	}, []string{"stage"})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_retry_total",
		Help: "Total number of retries",
	}, []string{"stage", "attempt"})
)
