// Package metrics provides the Prometheus instrumentation surfaced by
// the estimation toolkit's long-running services: live EKF diagnostics
// and timeseries record accounting.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all usvtwin Prometheus metrics.
type Metrics struct {
	// EKF metrics
	EKFPredictTotal    prometheus.Counter
	EKFUpdateTotal     *prometheus.CounterVec
	EKFUpdateErrors    *prometheus.CounterVec
	EKFCovarianceTrace prometheus.Gauge
	EKFInnovationNorm  *prometheus.HistogramVec

	// Codec metrics
	CodecRecordsWritten *prometheus.CounterVec
	CodecRecordsDecoded *prometheus.CounterVec
	CodecUnknownRecords prometheus.Counter
	CodecDecodeErrors   *prometheus.CounterVec

	// Simulator metrics
	SimStepsRun prometheus.Counter
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// Get returns the process-wide metrics instance, registering collectors
// on the default Prometheus registry on first use.
func Get() *Metrics {
	globalOnce.Do(func() {
		global = newMetrics()
	})
	return global
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.EKFPredictTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "usvtwin",
			Subsystem: "ekf",
			Name:      "predict_total",
			Help:      "Total number of EKF predict calls.",
		},
	)

	m.EKFUpdateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usvtwin",
			Subsystem: "ekf",
			Name:      "update_total",
			Help:      "Total number of EKF update calls, by measurement model.",
		},
		[]string{"model"},
	)

	m.EKFUpdateErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usvtwin",
			Subsystem: "ekf",
			Name:      "update_errors_total",
			Help:      "Total number of failed EKF update calls, by measurement model and error kind.",
		},
		[]string{"model", "kind"},
	)

	m.EKFCovarianceTrace = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "usvtwin",
			Subsystem: "ekf",
			Name:      "covariance_trace",
			Help:      "Trace of the current state covariance P.",
		},
	)

	m.EKFInnovationNorm = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "usvtwin",
			Subsystem: "ekf",
			Name:      "innovation_norm",
			Help:      "Euclidean norm of the innovation vector per update, by measurement model.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	m.CodecRecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usvtwin",
			Subsystem: "codec",
			Name:      "records_written_total",
			Help:      "Total timeseries records written, by record name.",
		},
		[]string{"record"},
	)

	m.CodecRecordsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usvtwin",
			Subsystem: "codec",
			Name:      "records_decoded_total",
			Help:      "Total timeseries records decoded, by record name.",
		},
		[]string{"record"},
	)

	m.CodecUnknownRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "usvtwin",
			Subsystem: "codec",
			Name:      "unknown_records_total",
			Help:      "Total records skipped during decode because their type id was not in the registry.",
		},
	)

	m.CodecDecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usvtwin",
			Subsystem: "codec",
			Name:      "decode_errors_total",
			Help:      "Total fatal decode errors, by error kind.",
		},
		[]string{"kind"},
	)

	m.SimStepsRun = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "usvtwin",
			Subsystem: "sim",
			Name:      "steps_total",
			Help:      "Total simulator steps executed.",
		},
	)

	return m
}
