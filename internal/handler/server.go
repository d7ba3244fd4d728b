package handler

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/flybeeper/trail-stats/internal/config"
	"github.com/flybeeper/trail-stats/internal/metrics"
)

// HealthChecker компонент, доступность которого проверяет /health
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server HTTP сервер мониторинга: /health, /metrics и поток событий /ws/events
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *logrus.Logger
	config     *config.Config
	version    string
	events     *EventStream

	mu     sync.RWMutex
	checks map[string]HealthChecker
}

// NewServer создает сервер мониторинга
func NewServer(cfg *config.Config, version string, logger *logrus.Logger) *Server {
	// Production mode для Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(LoggerMiddleware(logger))
	router.Use(gin.Recovery())
	router.Use(metrics.HTTPMetricsMiddleware())
	router.Use(RateLimitMiddleware())
	router.Use(SecurityHeadersMiddleware())
	router.Use(CORSMiddleware(cfg.Monitoring.CORSOrigins))

	server := &Server{
		router:  router,
		logger:  logger,
		config:  cfg,
		checks:  make(map[string]HealthChecker),
		version: version,
		events:  NewEventStream(cfg.Monitoring.CORSOrigins, logger),
	}

	server.httpServer = &http.Server{
		Addr:         cfg.Monitoring.MetricsAddress,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	server.setupRoutes()

	return server
}

// AddHealthCheck регистрирует компонент для проверки в /health
func (s *Server) AddHealthCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	s.checks[name] = checker
	s.mu.Unlock()
}

// Events поток событий пересчета статистики
func (s *Server) Events() *EventStream {
	return s.events
}

// Handler возвращает http.Handler сервера
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws/events", s.events.HandleWebSocket)
}

// Start запускает HTTP сервер; возвращает http.ErrServerClosed после Shutdown
func (s *Server) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address": s.httpServer.Addr,
		"mode":    gin.Mode(),
	}).Info("Starting monitoring server")

	return s.httpServer.ListenAndServe()
}

// Shutdown корректное завершение сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down monitoring server")
	// Shutdown не закрывает перехваченные WebSocket соединения
	s.events.Close()
	return s.httpServer.Shutdown(ctx)
}

// Health check endpoint
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	s.mu.RLock()
	checks := make(map[string]HealthChecker, len(s.checks))
	names := make([]string, 0, len(s.checks))
	for name, checker := range s.checks {
		checks[name] = checker
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	status := http.StatusOK
	components := make(gin.H, len(names))
	for _, name := range names {
		if err := checks[name].Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}

	c.JSON(status, gin.H{
		"status":     state,
		"timestamp":  time.Now().Unix(),
		"version":    s.version,
		"components": components,
	})
}

// ==================== Middleware ====================

// LoggerMiddleware логирование запросов
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Обработка запроса
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}).Debug("HTTP request completed")
	}
}

// CORSMiddleware настройка CORS; мониторинг доступен только на чтение
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			break
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
	}
	if !cfg.AllowAllOrigins && len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	}

	return cors.New(cfg)
}

// RateLimitMiddleware ограничение частоты запросов
func RateLimitMiddleware() gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(50), 100) // 50 req/sec, burst 100

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    "rate_limit_exceeded",
				"message": "Too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware заголовки безопасности
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}
