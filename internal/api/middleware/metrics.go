// metrics.go — Prometheus HTTP метрики Gaia Hub.
// Регистрирует метрики: hub_http_requests_total, hub_http_request_duration_seconds
// и бизнес-метрику hub_operations_total (обновляется из обработчиков).
// Метрики кэшей регистрируются в пакете cache.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_http_requests_total",
			Help: "Общее количество HTTP-запросов к Gaia Hub",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hub_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Gaia Hub в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из обработчиков)
var (
	// OperationsTotal — общее количество операций hub.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_operations_total",
			Help: "Общее количество операций Gaia Hub",
		},
		[]string{"operation", "result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (адрес и путь объекта схлопываются для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath схлопывает адрес bucket'а и путь объекта в {address}
// для предотвращения взрывного роста кардинальности метрик.
// /store/1HvJ.../notes/a.txt → /store/{address}
func normalizePath(path string) string {
	switch {
	case path == "/", path == "/metrics", path == "/hub_info", path == "/hub_info/":
		return path
	case path == "/health/live", path == "/health/ready":
		return path
	}

	for _, prefix := range []string{"/store/", "/delete/", "/list-files/", "/perform-files/", "/revoke-all/"} {
		if strings.HasPrefix(path, prefix) {
			return strings.TrimSuffix(prefix, "/") + "/{address}"
		}
	}
	return path
}
