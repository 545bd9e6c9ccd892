package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "royalty_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	playCalculationTotal   *prometheus.CounterVec
	playCalculationLatency *prometheus.HistogramVec

	batchRunTotal   *prometheus.CounterVec
	batchRunLatency *prometheus.HistogramVec
	batchPlays      *prometheus.CounterVec

	cycleLockTotal   *prometheus.CounterVec
	cycleLockLatency *prometheus.HistogramVec

	settlementTotal   *prometheus.CounterVec
	settlementLatency *prometheus.HistogramVec

	reportExportTotal   *prometheus.CounterVec
	reportExportLatency *prometheus.HistogramVec

	fxFallbackTotal *prometheus.CounterVec

	consumerLag *prometheus.GaugeVec

	outboxPublishTotal   *prometheus.CounterVec
	outboxPublishLatency *prometheus.HistogramVec
	outboxDispatchTotal  *prometheus.CounterVec
	outboxDispatchEvents *prometheus.CounterVec
)

// Init registers royalty metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		playCalculationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "play_calculations_total",
				Help: "Total per-play royalty calculations by result",
			},
			[]string{"result"},
		)
		playCalculationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "play_calculation_latency_seconds",
				Help:    "Per-play calculation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		batchRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batch_runs_total",
				Help: "Total batch calculation runs by result",
			},
			[]string{"result"},
		)
		batchRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "batch_run_latency_seconds",
				Help:    "Batch calculation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		batchPlays = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batch_plays_total",
				Help: "Plays processed in batch runs by outcome",
			},
			[]string{"outcome"},
		)

		cycleLockTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycle_lock_total",
				Help: "Total cycle lock operations by result",
			},
			[]string{"result"},
		)
		cycleLockLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cycle_lock_latency_seconds",
				Help:    "Cycle lock latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		settlementTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_total",
				Help: "Total reciprocal settlement runs by result",
			},
			[]string{"result"},
		)
		settlementLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_latency_seconds",
				Help:    "Reciprocal settlement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total partner report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Partner report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		fxFallbackTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fx_fallback_total",
				Help: "Conversions that fell back to the identity rate",
			},
			[]string{"pair"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		outboxPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Total outbox writes by result",
			},
			[]string{"result"},
		)
		outboxPublishLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_publish_latency_seconds",
				Help:    "Outbox write latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Total outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_events_total",
				Help: "Outbox records handled by outcome",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			playCalculationTotal,
			playCalculationLatency,
			batchRunTotal,
			batchRunLatency,
			batchPlays,
			cycleLockTotal,
			cycleLockLatency,
			settlementTotal,
			settlementLatency,
			reportExportTotal,
			reportExportLatency,
			fxFallbackTotal,
			consumerLag,
			outboxPublishTotal,
			outboxPublishLatency,
			outboxDispatchTotal,
			outboxDispatchEvents,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

func observe(total *prometheus.CounterVec, latency *prometheus.HistogramVec, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if total != nil {
		total.WithLabelValues(result).Inc()
	}
	if latency != nil {
		latency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObservePlayCalculation records a single play calculation.
func ObservePlayCalculation(result string, duration time.Duration) {
	observe(playCalculationTotal, playCalculationLatency, result, duration)
}

// ObserveBatch records a batch run and its per-play outcomes.
func ObserveBatch(result string, duration time.Duration, succeeded, failed int) {
	observe(batchRunTotal, batchRunLatency, result, duration)
	if batchPlays == nil {
		return
	}
	if succeeded > 0 {
		batchPlays.WithLabelValues("succeeded").Add(float64(succeeded))
	}
	if failed > 0 {
		batchPlays.WithLabelValues("failed").Add(float64(failed))
	}
}

// ObserveCycleLock records a cycle lock.
func ObserveCycleLock(result string, duration time.Duration) {
	observe(cycleLockTotal, cycleLockLatency, result, duration)
}

// ObserveSettlement records a reciprocal settlement run.
func ObserveSettlement(result string, duration time.Duration) {
	observe(settlementTotal, settlementLatency, result, duration)
}

// ObserveReportExport records export latency and result.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncFXFallback counts identity-rate conversions.
func IncFXFallback(from, to string) {
	if fxFallbackTotal != nil {
		fxFallbackTotal.WithLabelValues(from + "_" + to).Inc()
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// ObserveOutboxPublish records an outbox write.
func ObserveOutboxPublish(result string, duration time.Duration) {
	observe(outboxPublishTotal, outboxPublishLatency, result, duration)
}

// ObserveOutboxDispatch records a dispatch run.
func ObserveOutboxDispatch(result string, sent, failed, dlq int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchEvents == nil {
		return
	}
	if sent > 0 {
		outboxDispatchEvents.WithLabelValues("sent").Add(float64(sent))
	}
	if failed > 0 {
		outboxDispatchEvents.WithLabelValues("failed").Add(float64(failed))
	}
	if dlq > 0 {
		outboxDispatchEvents.WithLabelValues("dlq").Add(float64(dlq))
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
