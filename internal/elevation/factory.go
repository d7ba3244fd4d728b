package elevation

import (
	"github.com/sirupsen/logrus"

	"github.com/flybeeper/trail-stats/internal/config"
)

// NewRegistryFromConfig создает реестр поставщиков по конфигурации.
// API регистрируется всегда и является источником по умолчанию, Terrain-RGB при
// заданном шаблоне URL. При cache != nil каждый поставщик оборачивается кешем.
func NewRegistryFromConfig(cfg config.ElevationConfig, cache Cache, logger *logrus.Logger) *Registry {
	breaker := BreakerConfig{
		Failures: cfg.BreakerFailures,
		Timeout:  cfg.BreakerTimeout,
	}

	registry := NewRegistry(SourceAPI)

	var api Supplier = NewAPISupplier(APIConfig{
		URL:     cfg.APIURL,
		Timeout: cfg.RequestTimeout,
		Breaker: breaker,
	}, logger)
	registry.Register(SourceAPI, withCache(api, cache, cfg, logger))

	if cfg.TerrainRGBURL != "" {
		var terrain Supplier = NewTerrainRGBSupplier(TerrainRGBConfig{
			URLTemplate: cfg.TerrainRGBURL,
			Zoom:        cfg.TerrainZoom,
			Timeout:     cfg.RequestTimeout,
			CacheSize:   cfg.TileCacheSize,
			CacheTTL:    cfg.CacheTTL,
			Breaker:     breaker,
		}, logger)
		registry.Register(SourceTerrainRGB, withCache(terrain, cache, cfg, logger))
	}

	logger.WithFields(logrus.Fields{
		"sources": registry.Sources(),
		"cached":  cache != nil,
	}).Info("Elevation suppliers configured")

	return registry
}

// ResolverConfigFrom возвращает параметры пакетной загрузки из конфигурации
func ResolverConfigFrom(cfg config.ElevationConfig) ResolverConfig {
	return ResolverConfig{
		BatchSize:  cfg.BatchSize,
		BatchDelay: cfg.BatchDelay,
	}
}

func withCache(supplier Supplier, cache Cache, cfg config.ElevationConfig, logger *logrus.Logger) Supplier {
	if cache == nil {
		return supplier
	}
	return NewCachedSupplier(supplier, cache, cfg.GeohashPrecision, cfg.CacheTTL, logger)
}
