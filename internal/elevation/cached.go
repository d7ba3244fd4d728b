package elevation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flybeeper/trail-stats/internal/metrics"
	"github.com/flybeeper/trail-stats/internal/models"
)

// Cache хранилище высот по ячейкам geohash
type Cache interface {
	// GetElevations возвращает найденные высоты; отсутствующие ячейки в результат не попадают
	GetElevations(ctx context.Context, supplier string, cells []string) (map[string]float64, error)
	SetElevations(ctx context.Context, supplier string, values map[string]float64, ttl time.Duration) error
}

// CachedSupplier запрашивает у источника только точки, которых нет в кеше.
// Ошибки кеша не прерывают запрос: точки запрашиваются у источника напрямую.
type CachedSupplier struct {
	upstream  Supplier
	cache     Cache
	precision int
	ttl       time.Duration
	logger    *logrus.Logger
}

// NewCachedSupplier оборачивает поставщика кешем
func NewCachedSupplier(upstream Supplier, cache Cache, precision int, ttl time.Duration, logger *logrus.Logger) *CachedSupplier {
	if precision <= 0 {
		precision = 9
	}
	return &CachedSupplier{
		upstream:  upstream,
		cache:     cache,
		precision: precision,
		ttl:       ttl,
		logger:    logger,
	}
}

// Name возвращает имя исходного поставщика
func (s *CachedSupplier) Name() string {
	return s.upstream.Name()
}

// Elevations возвращает высоты из кеша, дозапрашивая недостающие
func (s *CachedSupplier) Elevations(ctx context.Context, points []models.Point) ([]float64, error) {
	if len(points) == 0 {
		return []float64{}, nil
	}

	cells := make([]string, len(points))
	for i, p := range points {
		cells[i] = p.Geohash(s.precision)
	}

	cached, err := s.cache.GetElevations(ctx, s.Name(), cells)
	if err != nil {
		s.logger.WithField("error", err).Warn("Elevation cache read failed, querying supplier directly")
		cached = nil
	}

	elevations := make([]float64, len(points))
	var missing []int
	for i, cell := range cells {
		if v, ok := cached[cell]; ok {
			elevations[i] = v
			continue
		}
		missing = append(missing, i)
	}

	metrics.ElevationCacheHits.WithLabelValues("redis").Add(float64(len(points) - len(missing)))
	metrics.ElevationCacheMisses.WithLabelValues("redis").Add(float64(len(missing)))

	if len(missing) == 0 {
		return elevations, nil
	}

	query := make([]models.Point, len(missing))
	for j, i := range missing {
		query[j] = points[i]
	}

	fetched, err := s.upstream.Elevations(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(query) {
		return nil, fmt.Errorf("%s returned %d elevations for %d points", s.Name(), len(fetched), len(query))
	}

	fresh := make(map[string]float64, len(missing))
	for j, i := range missing {
		elevations[i] = fetched[j]
		fresh[cells[i]] = fetched[j]
	}

	if err := s.cache.SetElevations(ctx, s.Name(), fresh, s.ttl); err != nil {
		s.logger.WithField("error", err).Warn("Failed to write elevations to cache")
	}

	s.logger.WithFields(logrus.Fields{
		"points": len(points),
		"cached": len(points) - len(missing),
	}).Debug("Resolved elevation batch through cache")

	return elevations, nil
}
