package elevation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flybeeper/trail-stats/internal/metrics"
	"github.com/flybeeper/trail-stats/internal/models"
)

const (
	// DefaultBatchSize максимальный размер пакета у внешних сервисов высот
	DefaultBatchSize = 100
	// DefaultBatchDelay пауза между пакетами
	DefaultBatchDelay = 500 * time.Millisecond
)

// ResolverConfig параметры пакетной загрузки высот
type ResolverConfig struct {
	BatchSize  int
	BatchDelay time.Duration
}

// Resolver загружает высоты пакетами последовательно, с паузой между запросами.
// Один Resolver не предназначен для одновременного использования из нескольких горутин.
type Resolver struct {
	supplier   Supplier
	batchSize  int
	batchDelay time.Duration
	logger     *logrus.Logger
}

// NewResolver создает загрузчик высот поверх поставщика
func NewResolver(supplier Supplier, cfg ResolverConfig, logger *logrus.Logger) *Resolver {
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}

	return &Resolver{
		supplier:   supplier,
		batchSize:  batchSize,
		batchDelay: cfg.BatchDelay,
		logger:     logger,
	}
}

// Supplier возвращает используемого поставщика
func (r *Resolver) Supplier() Supplier {
	return r.supplier
}

// FetchElevations возвращает по образцу высоты на каждую точку в исходном порядке.
//
// При ошибке любого пакета возвращаются образцы с нулевой высотой для всех точек
// и сама ошибка: результат пригоден для использования, ошибка сообщает о деградации.
func (r *Resolver) FetchElevations(ctx context.Context, points []models.Point) ([]models.ElevationSample, error) {
	samples := make([]models.ElevationSample, 0, len(points))
	if len(points) == 0 {
		return samples, nil
	}

	batches := (len(points) + r.batchSize - 1) / r.batchSize

	for b := 0; b < batches; b++ {
		from := b * r.batchSize
		to := from + r.batchSize
		if to > len(points) {
			to = len(points)
		}
		batch := points[from:to]

		// Пауза отсчитывается от завершения предыдущего запроса
		if b > 0 && r.batchDelay > 0 {
			if err := sleepContext(ctx, r.batchDelay); err != nil {
				return r.degrade(points, b, fmt.Errorf("batch %d/%d: %w", b+1, batches, err))
			}
		}
		if err := ctx.Err(); err != nil {
			return r.degrade(points, b, fmt.Errorf("batch %d/%d: %w", b+1, batches, err))
		}

		elevations, err := r.supplier.Elevations(ctx, batch)
		if err != nil {
			return r.degrade(points, b, fmt.Errorf("batch %d/%d: %w", b+1, batches, err))
		}
		if len(elevations) != len(batch) {
			return r.degrade(points, b, fmt.Errorf("batch %d/%d: supplier returned %d elevations for %d points",
				b+1, batches, len(elevations), len(batch)))
		}

		for i, p := range batch {
			samples = append(samples, models.ElevationSample{
				Latitude:  p.Latitude,
				Longitude: p.Longitude,
				Elevation: elevations[i],
			})
		}

		r.logger.WithFields(logrus.Fields{
			"supplier": r.supplier.Name(),
			"batch":    b + 1,
			"batches":  batches,
			"points":   len(batch),
		}).Debug("Elevation batch resolved")
	}

	return samples, nil
}

// sleepContext ждет d или отмены контекста
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Resolver) degrade(points []models.Point, batch int, err error) ([]models.ElevationSample, error) {
	metrics.ElevationDegradedFetches.Inc()

	r.logger.WithFields(logrus.Fields{
		"supplier": r.supplier.Name(),
		"points":   len(points),
		"batch":    batch + 1,
		"error":    err,
	}).Warn("Elevation fetch failed, falling back to zero elevation")

	return models.ZeroSamples(points), fmt.Errorf("elevation unavailable from %s: %w", r.supplier.Name(), err)
}
