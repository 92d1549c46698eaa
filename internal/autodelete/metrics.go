package autodelete

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - Prometheus-метрики конвейера автоудаления.
type Metrics struct {
	deletions     *prometheus.CounterVec
	rateLimits    *prometheus.CounterVec
	bootstraps    *prometheus.CounterVec
	windowSize    *prometheus.GaugeVec
	pendingSize   *prometheus.GaugeVec
	deleteDelay   prometheus.Gauge
	sweepDuration prometheus.Histogram
	sweepSkipped  *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики. Если reg nil, используется
// prometheus.DefaultRegisterer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		deletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "autodelete_deletions_total",
				Help:      "Messages processed by the deletion executor",
			},
			[]string{"platform", "mode", "outcome"},
		),
		rateLimits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "autodelete_rate_limits_total",
				Help:      "Rate limit responses received from platforms",
			},
			[]string{"platform"},
		),
		bootstraps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "autodelete_bootstraps_total",
				Help:      "Channel bootstraps from history",
			},
			[]string{"outcome"},
		),
		windowSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "autodelete_window_size",
				Help:      "Tracked recent messages per channel",
			},
			[]string{"channel"},
		),
		pendingSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "autodelete_pending_size",
				Help:      "Messages waiting for deletion per channel",
			},
			[]string{"channel"},
		),
		deleteDelay: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "autodelete_delete_delay_seconds",
				Help:      "Current adaptive delay between single deletes",
			},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "autodelete_sweep_duration_seconds",
				Help:      "Duration of one channel sweep pass",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
		),
		sweepSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "autodelete_sweeps_skipped_total",
				Help:      "Sweep passes skipped, by reason",
			},
			[]string{"reason"},
		),
	}

	reg.MustRegister(
		m.deletions,
		m.rateLimits,
		m.bootstraps,
		m.windowSize,
		m.pendingSize,
		m.deleteDelay,
		m.sweepDuration,
		m.sweepSkipped,
	)

	return m
}

// Все методы допускают nil-получатель: сервис без метрик просто их не пишет.

func (m *Metrics) recordDeletion(platform, mode string, err error, count int) {
	if m == nil || count == 0 {
		return
	}
	m.deletions.WithLabelValues(platform, mode, outcome(err)).Add(float64(count))
}

func (m *Metrics) recordRateLimit(platform string) {
	if m == nil {
		return
	}
	m.rateLimits.WithLabelValues(platform).Inc()
}

func (m *Metrics) recordBootstrap(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = outcome(err)
	}
	m.bootstraps.WithLabelValues(result).Inc()
}

func (m *Metrics) setSizes(channel string, window, pending int) {
	if m == nil {
		return
	}
	m.windowSize.WithLabelValues(channel).Set(float64(window))
	m.pendingSize.WithLabelValues(channel).Set(float64(pending))
}

func (m *Metrics) forgetChannel(channel string) {
	if m == nil {
		return
	}
	m.windowSize.DeleteLabelValues(channel)
	m.pendingSize.DeleteLabelValues(channel)
}

func (m *Metrics) setDelay(d time.Duration) {
	if m == nil {
		return
	}
	m.deleteDelay.Set(d.Seconds())
}

func (m *Metrics) observeSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) recordSkip(reason string) {
	if m == nil {
		return
	}
	m.sweepSkipped.WithLabelValues(reason).Inc()
}
