package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func setupMetricsRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPMetricsMiddleware())
	router.GET("/tracks/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	// Имитация успешного upgrade: обработчик ничего не пишет через gin
	router.GET("/ws/stream", func(c *gin.Context) {})
	return router
}

func TestHTTPMetricsMiddleware_RouteTemplate(t *testing.T) {
	router := setupMetricsRouter()
	counter := HTTPRequestsTotal.WithLabelValues("GET", "/tracks/:id", "200")
	before := testutil.ToFloat64(counter)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/tracks/1", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/tracks/2", nil))

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestHTTPMetricsMiddleware_UnmatchedRoute(t *testing.T) {
	router := setupMetricsRouter()
	counter := HTTPRequestsTotal.WithLabelValues("GET", UnmatchedRoute, "404")
	before := testutil.ToFloat64(counter)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/random/path", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestHTTPMetricsMiddleware_WebSocketUpgrade(t *testing.T) {
	router := setupMetricsRouter()
	counter := HTTPRequestsTotal.WithLabelValues("GET", "/ws/stream", "101")
	before := testutil.ToFloat64(counter)
	series := testutil.CollectAndCount(HTTPRequestDuration)

	req := httptest.NewRequest("GET", "/ws/stream", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
	// Длительность соединения не попадает в гистограмму задержек
	assert.Equal(t, series, testutil.CollectAndCount(HTTPRequestDuration))
}
