// Package metrics exposes reconciliation and lifecycle counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reconcile paths.
const (
	PathMerge   = "merge"
	PathRebuild = "rebuild"
	PathFresh   = "fresh"
)

// Metrics holds the application collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	Reconciles   *prometheus.CounterVec
	Archivals    prometheus.Counter
	MoveFailures prometheus.Counter
	Restores     prometheus.Counter
	Skipped      prometheus.Counter
	Notes        *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Reconciles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleeting_reconciles_total",
			Help: "Reconciliation passes by path taken.",
		}, []string{"path"}),
		Archivals: f.NewCounter(prometheus.CounterOpts{
			Name: "fleeting_archivals_total",
			Help: "Notes moved from active to archived by the expire pass.",
		}),
		MoveFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "fleeting_archive_move_failures_total",
			Help: "Archivals whose backing file could not be relocated.",
		}),
		Restores: f.NewCounter(prometheus.CounterOpts{
			Name: "fleeting_restores_total",
			Help: "Archived notes restored to active.",
		}),
		Skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "fleeting_skipped_files_total",
			Help: "Note files skipped by the scanner.",
		}),
		Notes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleeting_notes",
			Help: "Indexed notes by status.",
		}, []string{"status"}),
	}
}

// Reconciled counts one pass along path.
func (m *Metrics) Reconciled(path string) {
	if m == nil {
		return
	}
	m.Reconciles.WithLabelValues(path).Inc()
}

// Archived counts n archivals, failed of which could not move their file.
func (m *Metrics) Archived(n, failed int) {
	if m == nil {
		return
	}
	m.Archivals.Add(float64(n))
	m.MoveFailures.Add(float64(failed))
}

// Restored counts one restore.
func (m *Metrics) Restored() {
	if m == nil {
		return
	}
	m.Restores.Inc()
}

// SkippedFiles counts files the scanner could not use.
func (m *Metrics) SkippedFiles(n int) {
	if m == nil {
		return
	}
	m.Skipped.Add(float64(n))
}

// SetNotes records the current index population.
func (m *Metrics) SetNotes(active, archived int) {
	if m == nil {
		return
	}
	m.Notes.WithLabelValues("active").Set(float64(active))
	m.Notes.WithLabelValues("archived").Set(float64(archived))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
