package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweepMetrics содержит метрики фоновой уборки истёкших записей.
type SweepMetrics struct {
	processed *prometheus.CounterVec
	released  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	runs      prometheus.Counter
	lastRun   prometheus.Gauge
}

// NewSweepMetrics создаёт метрики sweep'а с регистрацией в default registerer.
func NewSweepMetrics() *SweepMetrics {
	return newSweepMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSweepMetricsWithRegisterer(registerer prometheus.Registerer) *SweepMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SweepMetrics{
		processed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_sweep_processed_total",
			Help: "Total number of expired records processed by the sweeper",
		}, []string{"source"}),
		released: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_sweep_released_total",
			Help: "Total number of inventory releases performed by the sweeper",
		}, []string{"source"}),
		failures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_sweep_failures_total",
			Help: "Total number of records the sweeper failed to process",
		}, []string{"source"}),
		runs: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_sweep_runs_total",
			Help: "Total number of sweep cycles executed",
		}),
		lastRun: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ledger_sweep_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed sweep cycle",
		}),
	}
}

// RecordProcessed учитывает обработанные записи источника.
func (m *SweepMetrics) RecordProcessed(source string, n int) {
	m.processed.WithLabelValues(source).Add(float64(n))
}

// RecordReleased учитывает возвраты вместимости по источнику.
func (m *SweepMetrics) RecordReleased(source string, n int) {
	m.released.WithLabelValues(source).Add(float64(n))
}

// RecordFailure учитывает запись, которую не удалось обработать.
func (m *SweepMetrics) RecordFailure(source string) {
	m.failures.WithLabelValues(source).Inc()
}

// RecordRun фиксирует завершение цикла sweep'а.
func (m *SweepMetrics) RecordRun(at time.Time) {
	m.runs.Inc()
	m.lastRun.Set(float64(at.Unix()))
}
