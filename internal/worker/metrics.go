package worker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics 嵌入管道指标
type PipelineMetrics struct {
	documentsTotal   *prometheus.CounterVec
	embeddingBatches prometheus.Counter
	chunksEmbedded   prometheus.Counter
	processDuration  prometheus.Histogram
	inFlight         prometheus.Gauge
	queueDepth       prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *PipelineMetrics
)

// NewPipelineMetrics 注册并返回管道指标，重复调用返回同一实例
func NewPipelineMetrics() *PipelineMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &PipelineMetrics{
			documentsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docchat_pipeline_documents_total",
					Help: "Documents processed by the embedding pipeline, by outcome",
				},
				[]string{"outcome"}, // completed | failed | retried | discarded
			),
			embeddingBatches: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "docchat_pipeline_embedding_batches_total",
					Help: "Embedding batch calls issued",
				},
			),
			chunksEmbedded: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "docchat_pipeline_chunks_embedded_total",
					Help: "Chunks embedded and persisted",
				},
			),
			processDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "docchat_pipeline_document_duration_seconds",
					Help:    "End to end duration of one document embedding attempt",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
				},
			),
			inFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "docchat_pipeline_in_flight_documents",
					Help: "Documents currently being embedded",
				},
			),
			queueDepth: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "docchat_pipeline_queue_depth",
					Help: "Tasks waiting in the embedding queue",
				},
			),
		}
	})
	return metricsInstance
}

func (m *PipelineMetrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) RecordBatch(chunks int) {
	if m == nil {
		return
	}
	m.embeddingBatches.Inc()
	m.chunksEmbedded.Add(float64(chunks))
}

func (m *PipelineMetrics) ObserveDuration(seconds float64) {
	if m == nil {
		return
	}
	m.processDuration.Observe(seconds)
}

func (m *PipelineMetrics) SetInFlight(delta float64) {
	if m == nil {
		return
	}
	m.inFlight.Add(delta)
}

func (m *PipelineMetrics) SetQueueDepth(depth int) {
	if m == nil || depth < 0 {
		return
	}
	m.queueDepth.Set(float64(depth))
}
