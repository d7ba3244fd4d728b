package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики сервера мониторинга
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trail_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Метрики источников высот
	ElevationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_elevation_requests_total",
			Help: "Total number of elevation batch requests",
		},
		[]string{"supplier", "status"},
	)

	ElevationRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trail_elevation_request_duration_seconds",
			Help:    "Duration of elevation batch requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"supplier"},
	)

	ElevationPointsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_elevation_points_resolved_total",
			Help: "Total number of points with resolved elevation",
		},
		[]string{"supplier"},
	)

	ElevationDegradedFetches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trail_elevation_degraded_fetches_total",
			Help: "Number of fetches that fell back to zero elevation",
		},
	)

	ElevationCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_elevation_cache_hits_total",
			Help: "Total number of elevation cache hits",
		},
		[]string{"cache"},
	)

	ElevationCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_elevation_cache_misses_total",
			Help: "Total number of elevation cache misses",
		},
		[]string{"cache"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trail_circuit_breaker_state",
			Help: "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Уведомления об изменении статистики
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trail_notifications_total",
			Help: "Total number of track stats change notifications",
		},
		[]string{"channel", "status"},
	)

	// WebSocket поток событий
	EventStreamConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trail_event_stream_connections",
			Help: "Number of active event stream WebSocket connections",
		},
	)

	EventStreamDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trail_event_stream_dropped_total",
			Help: "Total number of events dropped for slow WebSocket clients",
		},
	)

	// Database connection status
	DatabaseConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trail_database_connection_status",
			Help: "Database connection status (1 = connected, 0 = disconnected)",
		},
	)

	RedisConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trail_redis_connection_status",
			Help: "Redis connection status (1 = connected, 0 = disconnected)",
		},
	)

	MQTTConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trail_mqtt_connection_status",
			Help: "MQTT connection status (1 = connected, 0 = disconnected)",
		},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trail_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetAppInfo устанавливает информацию о версии приложения
func SetAppInfo(version, commit, buildTime string) {
	AppInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
