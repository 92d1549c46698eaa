package app

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aatumaykin/modbot/internal/logger"
	"github.com/aatumaykin/modbot/internal/workers"
)

// registerPoolMetrics публикует счётчики пула как Prometheus-метрики.
// Вызывается до pool.Start: OnResult нельзя менять у работающего пула.
func registerPoolMetrics(reg prometheus.Registerer, namespace string, pool *workers.WorkerPool) {
	counter := func(name, help string, value func(workers.PoolMetrics) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workers",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(pool.Metrics())) })
	}

	reg.MustRegister(
		counter("tasks_submitted_total", "Tasks accepted by the worker pool",
			func(m workers.PoolMetrics) uint64 { return m.TasksSubmitted }),
		counter("tasks_rejected_total", "Tasks rejected because the queue was full",
			func(m workers.PoolMetrics) uint64 { return m.TasksRejected }),
		counter("tasks_completed_total", "Tasks finished without error",
			func(m workers.PoolMetrics) uint64 { return m.TasksCompleted }),
		counter("tasks_failed_total", "Tasks finished with an error",
			func(m workers.PoolMetrics) uint64 { return m.TasksFailed }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workers",
			Name:      "queue_length",
			Help:      "Tasks waiting in the worker pool queue",
		}, func() float64 { return float64(pool.QueueSize()) }),
	)

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "workers",
		Name:      "task_duration_seconds",
		Help:      "Task run time by task type",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"type"})
	reg.MustRegister(durations)
	pool.OnResult(func(r workers.Result) {
		durations.WithLabelValues(r.Type).Observe(r.Duration.Seconds())
	})
}

// startMetricsServer слушает адрес синхронно, чтобы ошибка привязки
// вернулась из Initialize.
func (a *App) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	ln, err := net.Listen("tcp", a.config.Metrics.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics address %s: %w", a.config.Metrics.Listen, err)
	}

	a.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", err)
		}
	}()

	a.metricsAddr = ln.Addr().String()
	a.logger.Info("metrics endpoint started",
		logger.Field{Key: "listen", Value: a.metricsAddr})
	return nil
}
