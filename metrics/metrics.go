package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	processedEventCount       *prometheus.CounterVec
	processedBlockGauge       *prometheus.GaugeVec
	processedBatchCount       prometheus.Counter
	unmatchedCorrelationCount prometheus.Counter
	nullifierReuseCount       prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	m := Metrics{
		processedEventCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_processed_event_count", namespace),
			Help: "The total number of processed events per kind",
		}, []string{"kind"}),
		processedBlockGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_processed_block", namespace),
			Help: "The latest processed block number per network",
		}, []string{"network"}),
		processedBatchCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_processed_batch_count", namespace),
			Help: "The total number of consumed event batches",
		}),
		unmatchedCorrelationCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_unmatched_correlation_count", namespace),
			Help: "The total number of correlation events without a counterpart",
		}),
		nullifierReuseCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_nullifier_reuse_count", namespace),
			Help: "The total number of nullifier reuses detected under a single-use policy",
		}),
	}
	return &m
}

func (m *Metrics) IncProcessedEvents(kind string) {
	m.processedEventCount.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetProcessedBlock(network string, block uint64) {
	m.processedBlockGauge.WithLabelValues(network).Set(float64(block))
}

func (m *Metrics) IncProcessedBatches() {
	m.processedBatchCount.Inc()
}

func (m *Metrics) IncUnmatchedCorrelations() {
	m.unmatchedCorrelationCount.Inc()
}

func (m *Metrics) IncNullifierReuses() {
	m.nullifierReuseCount.Inc()
}
