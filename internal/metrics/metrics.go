package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Recorder holds the run counters on a private registry. A nil *Recorder
// is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	segments       *prometheus.CounterVec
	stillsCaptured prometheus.Counter
	transcodes     *prometheus.CounterVec
	mirrorDirs     *prometheus.CounterVec
	framesSampled  prometheus.Counter
	videosSampled  *prometheus.CounterVec
	lastRun        prometheus.Gauge
}

// New registers the kitchencam collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		segments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kitchencam_capture_segments_total",
			Help: "Capture segments attempted, by result",
		}, []string{"format", "result"}),
		stillsCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "kitchencam_stills_captured_total",
			Help: "Stills written by the camera during capture",
		}),
		transcodes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kitchencam_transcodes_total",
			Help: "Raw videos seen by the transcode sweep, by result",
		}, []string{"result"}),
		mirrorDirs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kitchencam_mirror_dirs_total",
			Help: "Stills directories handled by the mirror, by result",
		}, []string{"result"}),
		framesSampled: factory.NewCounter(prometheus.CounterOpts{
			Name: "kitchencam_frames_sampled_total",
			Help: "Stills written by the frame sampler",
		}),
		videosSampled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kitchencam_videos_sampled_total",
			Help: "Compressed videos walked by the frame sampler, by result",
		}, []string{"result"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kitchencam_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
}

func (r *Recorder) Segment(format, result string) {
	if r == nil {
		return
	}
	r.segments.WithLabelValues(format, result).Inc()
}

func (r *Recorder) StillCaptured() {
	if r == nil {
		return
	}
	r.stillsCaptured.Inc()
}

func (r *Recorder) Transcode(result string) {
	if r == nil {
		return
	}
	r.transcodes.WithLabelValues(result).Inc()
}

func (r *Recorder) MirrorDir(result string) {
	if r == nil {
		return
	}
	r.mirrorDirs.WithLabelValues(result).Inc()
}

func (r *Recorder) FrameSampled() {
	if r == nil {
		return
	}
	r.framesSampled.Inc()
}

func (r *Recorder) VideoSampled(result string) {
	if r == nil {
		return
	}
	r.videosSampled.WithLabelValues(result).Inc()
}

// Gatherer exposes the registry, mainly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// WriteTextfile stamps the run time and writes every collector to path in
// the node-exporter textfile format. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	r.lastRun.SetToCurrentTime()
	return prometheus.WriteToTextfile(path, r.registry)
}
