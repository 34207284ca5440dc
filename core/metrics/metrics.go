// Package metrics holds the Prometheus collectors termsync updates while it
// flattens, reconstructs, deletes and copies documents.
//
// A nil *Metrics is valid and records nothing, so library code never has to
// check whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsDeleted  *prometheus.CounterVec
	DeleteFailures    *prometheus.CounterVec
	DeletionOutcomes  *prometheus.CounterVec
	DeleteDuration    prometheus.Histogram
	FlattenedEntities *prometheus.CounterVec
	Orphans           *prometheus.CounterVec
	Applied           *prometheus.CounterVec
	Rejected          *prometheus.CounterVec
	SnapshotDocuments *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		DocumentsDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_documents_deleted_total",
			Help: "Documents deleted, including descendants, by top-level collection",
		}, []string{"collection"}),
		DeleteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_delete_failures_total",
			Help: "Documents whose deletion failed with an I/O error",
		}, []string{"collection"}),
		DeletionOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_deletion_outcomes_total",
			Help: "Terminal deletion states reached per collection",
		}, []string{"state"}),
		DeleteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "termsync_delete_duration_seconds",
			Help:    "Duration of one top-level collection deletion",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		FlattenedEntities: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_flattened_entities_total",
			Help: "Entities produced by flattening, by kind",
		}, []string{"kind"}),
		Orphans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_orphans_total",
			Help: "Unresolved records preserved as orphans, by kind",
		}, []string{"kind"}),
		Applied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_reconstruct_applied_total",
			Help: "Records applied to the domain model, by phase",
		}, []string{"phase"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_reconstruct_rejected_total",
			Help: "Records rejected by the domain model, by kind",
		}, []string{"kind"}),
		SnapshotDocuments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termsync_snapshot_documents_total",
			Help: "Documents copied between a store and a snapshot",
		}, []string{"direction"}),
	}
}

// Registry exposes the registry for HTTP handlers and textfile export.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// AddDeleted records n deleted documents under collection.
func (m *Metrics) AddDeleted(collection string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DocumentsDeleted.WithLabelValues(collection).Add(float64(n))
}

// AddDeleteFailures records n failed document deletions.
func (m *Metrics) AddDeleteFailures(collection string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DeleteFailures.WithLabelValues(collection).Add(float64(n))
}

// ObserveDeletion records a finished collection deletion.
// Call with time.Now() taken before the deletion started.
func (m *Metrics) ObserveDeletion(state string, start time.Time) {
	if m == nil {
		return
	}
	m.DeletionOutcomes.WithLabelValues(state).Inc()
	m.DeleteDuration.Observe(time.Since(start).Seconds())
}

// AddFlattened records n flattened entities of kind.
func (m *Metrics) AddFlattened(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.FlattenedEntities.WithLabelValues(kind).Add(float64(n))
}

// AddOrphans records n orphans of kind.
func (m *Metrics) AddOrphans(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Orphans.WithLabelValues(kind).Add(float64(n))
}

// IncApplied records one applied record in phase.
func (m *Metrics) IncApplied(phase string) {
	if m == nil {
		return
	}
	m.Applied.WithLabelValues(phase).Inc()
}

// IncRejected records one rejected record of kind.
func (m *Metrics) IncRejected(kind string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(kind).Inc()
}

// AddSnapshotDocuments records n documents copied in direction ("export" or "import").
func (m *Metrics) AddSnapshotDocuments(direction string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SnapshotDocuments.WithLabelValues(direction).Add(float64(n))
}

// WriteTextfile writes the current values in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Config controls metric export for CLI runs.
type Config struct {
	// Textfile is written after every command when set.
	Textfile string `mapstructure:"textfile" default:""`
}
