package elevation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/flybeeper/trail-stats/internal/metrics"
	"github.com/flybeeper/trail-stats/internal/models"
)

// APIConfig конфигурация сервиса поиска высот
type APIConfig struct {
	URL     string
	Timeout time.Duration
	Breaker BreakerConfig
}

// APISupplier получает высоты из HTTP сервиса в формате open-meteo:
// GET ?latitude=a,b&longitude=c,d -> {"elevation":[...]}
type APISupplier struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]float64]
	logger  *logrus.Logger
}

type apiResponse struct {
	Elevation []float64 `json:"elevation"`
	Reason    string    `json:"reason,omitempty"`
}

// NewAPISupplier создает поставщика высот из HTTP сервиса
func NewAPISupplier(cfg APIConfig, logger *logrus.Logger) *APISupplier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &APISupplier{
		baseURL: cfg.URL,
		client:  &http.Client{Timeout: timeout},
		breaker: newBreaker[[]float64]("elevation-api", cfg.Breaker, logger),
		logger:  logger,
	}
}

// Name возвращает имя поставщика
func (s *APISupplier) Name() string {
	return string(SourceAPI)
}

// Elevations запрашивает высоты одним запросом
func (s *APISupplier) Elevations(ctx context.Context, points []models.Point) ([]float64, error) {
	if len(points) == 0 {
		return []float64{}, nil
	}

	start := time.Now()
	elevations, err := s.breaker.Execute(func() ([]float64, error) {
		return s.fetch(ctx, points)
	})
	metrics.ElevationRequestDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ElevationRequests.WithLabelValues(s.Name(), "error").Inc()
		return nil, err
	}

	metrics.ElevationRequests.WithLabelValues(s.Name(), "success").Inc()
	metrics.ElevationPointsResolved.WithLabelValues(s.Name()).Add(float64(len(elevations)))
	return elevations, nil
}

func (s *APISupplier) fetch(ctx context.Context, points []models.Point) ([]float64, error) {
	lats := make([]string, len(points))
	lngs := make([]string, len(points))
	for i, p := range points {
		lats[i] = strconv.FormatFloat(p.Latitude, 'f', 6, 64)
		lngs[i] = strconv.FormatFloat(p.Longitude, 'f', 6, 64)
	}

	query := url.Values{}
	query.Set("latitude", strings.Join(lats, ","))
	query.Set("longitude", strings.Join(lngs, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create elevation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read elevation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevation service returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode elevation response: %w", err)
	}

	if len(decoded.Elevation) != len(points) {
		return nil, fmt.Errorf("elevation response size mismatch: requested %d, got %d", len(points), len(decoded.Elevation))
	}

	s.logger.WithField("points", len(points)).Debug("Fetched elevation batch from API")

	return decoded.Elevation, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
