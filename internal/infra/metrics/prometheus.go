package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "highlight_runs_total",
		Help: "Total number of summarize runs, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "highlight_stage_duration_seconds",
		Help:    "Duration of each summarize pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "highlight_frames_sampled_total",
		Help: "Total number of frames sampled across all runs",
	})

	FrameScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "highlight_frame_score",
		Help:    "Distribution of per-frame detection scores",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	MissingFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "highlight_missing_frames_total",
		Help: "Selected frames left out of a summary because the file was gone",
	})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "highlight_active_runs",
		Help: "Number of summarize runs currently in progress",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "highlight_retry_total",
		Help: "Total number of queued request retries",
	}, []string{"attempt"})
)
