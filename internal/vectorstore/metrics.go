package vectorstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters of one vectorizer run on a private registry,
// so a run can be exported as a node-exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	files     prometheus.Counter
	documents prometheus.Counter
	fragments prometheus.Counter
	skipped   prometheus.Counter
	points    *prometheus.CounterVec
	stages    *prometheus.HistogramVec
	lastRun   prometheus.Gauge
}

// NewMetrics registers the run metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vectorizer",
			Subsystem: "index",
			Name:      "files_total",
			Help:      "Files accepted by traversal",
		}),
		documents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vectorizer",
			Subsystem: "index",
			Name:      "documents_total",
			Help:      "Documents built from accepted files",
		}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vectorizer",
			Subsystem: "index",
			Name:      "fragments_total",
			Help:      "Fragments produced across all documents",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vectorizer",
			Subsystem: "index",
			Name:      "skipped_files_total",
			Help:      "Accepted files that produced no document (unreadable, not UTF-8 or empty)",
		}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vectorizer",
			Subsystem: "vectorstore",
			Name:      "points_upserted_total",
			Help:      "Points written, by collection",
		}, []string{"collection"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vectorizer",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage (index, embed, upsert, search)",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"stage"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vectorizer",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run finished",
		}),
	}
	m.registry.MustRegister(m.files, m.documents, m.fragments, m.skipped, m.points, m.stages, m.lastRun)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveIndex records the outcome of building the index. A nil receiver
// is a no-op, as for every Metrics method.
func (m *Metrics) ObserveIndex(files, documents, fragments, skipped int) {
	if m == nil {
		return
	}
	m.files.Add(float64(files))
	m.documents.Add(float64(documents))
	m.fragments.Add(float64(fragments))
	m.skipped.Add(float64(skipped))
}

// ObserveUpsert records points written to collection.
func (m *Metrics) ObserveUpsert(collection string, points int, d time.Duration) {
	if m == nil {
		return
	}
	m.points.WithLabelValues(collection).Add(float64(points))
	m.stages.WithLabelValues("upsert").Observe(d.Seconds())
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteMetrics stamps the run time and writes every metric to path in the
// Prometheus text exposition format.
func (m *Metrics) WriteMetrics(path string) error {
	if m == nil {
		return nil
	}
	m.lastRun.SetToCurrentTime()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
