package elevation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/trail-stats/internal/models"
	"github.com/flybeeper/trail-stats/pkg/utils"
)

func newAPISupplier(url string, failures uint32) *APISupplier {
	return NewAPISupplier(APIConfig{
		URL:     url,
		Timeout: 2 * time.Second,
		Breaker: BreakerConfig{Failures: failures, Timeout: time.Minute},
	}, utils.NewDiscardLogger())
}

func TestAPISupplier_Elevations(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		lats := strings.Split(r.URL.Query().Get("latitude"), ",")
		lngs := strings.Split(r.URL.Query().Get("longitude"), ",")
		if len(lats) != len(lngs) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"elevation":[512.0,1024.5]}`))
	}))
	defer server.Close()

	supplier := newAPISupplier(server.URL, 5)
	points := []models.Point{models.NewPoint(46.5, 8.25), models.NewPoint(46.6, 8.3)}

	elevations, err := supplier.Elevations(context.Background(), points)

	require.NoError(t, err)
	assert.Equal(t, []float64{512.0, 1024.5}, elevations)
	assert.Contains(t, query, "latitude=46.500000%2C46.600000")
	assert.Contains(t, query, "longitude=8.250000%2C8.300000")
	assert.Equal(t, "api", supplier.Name())
}

func TestAPISupplier_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", message: "status 500"},
		{name: "invalid json", status: http.StatusOK, body: "{", message: "decode"},
		{name: "size mismatch", status: http.StatusOK, body: `{"elevation":[1]}`, message: "size mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			supplier := newAPISupplier(server.URL, 5)
			_, err := supplier.Elevations(context.Background(), []models.Point{models.NewPoint(1, 1), models.NewPoint(2, 2)})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestAPISupplier_CircuitBreaker(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	supplier := newAPISupplier(server.URL, 2)
	points := []models.Point{models.NewPoint(1, 1)}

	for i := 0; i < 2; i++ {
		_, err := supplier.Elevations(context.Background(), points)
		require.Error(t, err)
	}

	_, err := supplier.Elevations(context.Background(), points)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestAPISupplier_EmptyBatch(t *testing.T) {
	supplier := newAPISupplier("http://127.0.0.1:1", 5)

	elevations, err := supplier.Elevations(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, elevations)
}

func TestResolver_WithAPISupplierFailureDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	resolver := NewResolver(newAPISupplier(server.URL, 5), ResolverConfig{}, utils.NewDiscardLogger())
	points := linePoints(3)

	samples, err := resolver.FetchElevations(context.Background(), points)

	require.Error(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, models.ZeroSamples(points), samples)
}
