// Package metrics exposes the studio's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voice_studio"

// Pipeline stages used as the failure label.
const (
	StageGenerate = "generate"
	StageDecode   = "decode"
	StageEncode   = "encode"
	StageAnalyze  = "analyze"
	StageStore    = "store"
	StageLedger   = "ledger"
)

// Metrics holds every instrument. A nil *Metrics records nothing.
type Metrics struct {
	artifactsCreated   *prometheus.CounterVec
	artifactsDeleted   *prometheus.CounterVec
	hydratedRecords    *prometheus.CounterVec
	pipelineFailures   *prometheus.CounterVec
	leakedBlobsRemoved prometheus.Counter
	handlesOutstanding prometheus.Gauge
	generationDuration prometheus.Histogram
}

// New creates the instruments and registers them on registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		artifactsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_created_total",
				Help:      "Artifacts persisted, by record kind.",
			},
			[]string{"kind"},
		),
		artifactsDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_deleted_total",
				Help:      "Artifacts deleted, by record kind.",
			},
			[]string{"kind"},
		),
		hydratedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hydrated_records_total",
				Help:      "Records resolved during hydration, by kind and resulting state.",
			},
			[]string{"kind", "state"},
		),
		pipelineFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_failures_total",
				Help:      "Failed pipeline runs, by stage.",
			},
			[]string{"stage"},
		),
		leakedBlobsRemoved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "leaked_blobs_removed_total",
				Help:      "Blobs without a ledger record removed by reconciliation.",
			},
		),
		handlesOutstanding: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "handles_outstanding",
				Help:      "Live audio handles held by the process.",
			},
		),
		generationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Time spent in the generation backend.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
	}

	collectors := []prometheus.Collector{
		m.artifactsCreated,
		m.artifactsDeleted,
		m.hydratedRecords,
		m.pipelineFailures,
		m.leakedBlobsRemoved,
		m.handlesOutstanding,
		m.generationDuration,
	}

	for _, collector := range collectors {
		err := registerer.Register(collector)
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ArtifactCreated counts a persisted record.
func (m *Metrics) ArtifactCreated(kind string) {
	if m == nil {
		return
	}

	m.artifactsCreated.WithLabelValues(kind).Inc()
}

// ArtifactDeleted counts a deleted record.
func (m *Metrics) ArtifactDeleted(kind string) {
	if m == nil {
		return
	}

	m.artifactsDeleted.WithLabelValues(kind).Inc()
}

// RecordHydrated counts one hydrated record.
func (m *Metrics) RecordHydrated(kind, state string) {
	if m == nil {
		return
	}

	m.hydratedRecords.WithLabelValues(kind, state).Inc()
}

// PipelineFailed counts a failure at stage.
func (m *Metrics) PipelineFailed(stage string) {
	if m == nil {
		return
	}

	m.pipelineFailures.WithLabelValues(stage).Inc()
}

// LeakedBlobsRemoved counts blobs removed by reconciliation.
func (m *Metrics) LeakedBlobsRemoved(count int) {
	if m == nil || count <= 0 {
		return
	}

	m.leakedBlobsRemoved.Add(float64(count))
}

// HandlesChanged moves the outstanding handle gauge by delta.
func (m *Metrics) HandlesChanged(delta int) {
	if m == nil {
		return
	}

	m.handlesOutstanding.Add(float64(delta))
}

// ObserveGeneration records one backend call duration.
func (m *Metrics) ObserveGeneration(duration time.Duration) {
	if m == nil {
		return
	}

	m.generationDuration.Observe(duration.Seconds())
}

// Handler serves the metrics of gatherer in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// HealthHandler reports that the service is up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","service":"voice-studio"}`))
}
