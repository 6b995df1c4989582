// Package monitoring exposes engine metrics and profiling over HTTP.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "viz"

var (
	FramesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_rendered_total",
		Help:      "Frames presented.",
	})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_dropped_total",
		Help:      "Frames skipped because a tick came late.",
	})
	CalcSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "calc_seconds",
		Help:      "Time the program spends computing a frame.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
	MixSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "mix_seconds",
		Help:      "Time spent in one mixer per frame.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"mixer"})
	Reloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reloads_total",
		Help:      "Program loads by result.",
	}, []string{"result"})
	RenderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "render_errors_total",
		Help:      "Render specs that failed, by kind.",
	}, []string{"kind"})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_errors_total",
		Help:      "Video packets that failed to decode, by stream.",
	}, []string{"stream"})
	Programs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "program_loaded",
		Help:      "1 while a program is running.",
	})
)

// Since observes the seconds elapsed from start.
func Since(o prometheus.Observer, start time.Time) { o.Observe(time.Since(start).Seconds()) }
