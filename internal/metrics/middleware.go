package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// UnmatchedRoute метка для запросов к незарегистрированным путям
const UnmatchedRoute = "unmatched"

// HTTPMetricsMiddleware считает запросы к серверу мониторинга по шаблону маршрута.
// Подключения к потоку событий попадают только в счетчик со статусом 101:
// время жизни WebSocket соединения не является задержкой запроса.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = UnmatchedRoute
		}
		upgrade := c.IsWebsocket()
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		// После Hijack gin не видит ответ 101, записанный напрямую в соединение
		if upgrade && status == http.StatusOK {
			status = http.StatusSwitchingProtocols
		}
		code := strconv.Itoa(status)
		method := c.Request.Method

		HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
		if status == http.StatusSwitchingProtocols {
			return
		}
		HTTPRequestDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
	}
}
