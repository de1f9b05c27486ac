package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects the counters of one run. A batch process has nothing to
// scrape, so the registry is written out as a node_exporter textfile instead.
type Recorder struct {
	registry *prometheus.Registry

	FramesExtracted prometheus.Counter
	EdgesProcessed  prometheus.Counter
	FramesSkipped   prometheus.Counter
	StageDuration   *prometheus.HistogramVec
	Runs            *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		FramesExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "videoedges_frames_extracted_total",
			Help: "Frames decoded from the input video",
		}),
		EdgesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "videoedges_edges_processed_total",
			Help: "Edge maps written",
		}),
		FramesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "videoedges_frames_skipped_total",
			Help: "Frames that could not be decoded for edge detection",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "videoedges_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videoedges_runs_total",
			Help: "Pipeline runs, by outcome",
		}, []string{"status"}),
	}
}

// ObserveStage records the time elapsed since start under stage.
func (r *Recorder) ObserveStage(stage string, start time.Time) {
	r.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile atomically writes the registry in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
