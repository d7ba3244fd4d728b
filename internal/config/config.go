package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string
	Database    DatabaseConfig
	Redis       RedisConfig
	MQTT        MQTTConfig
	Elevation   ElevationConfig
	Simplify    SimplifyConfig
	Audit       AuditConfig
	Monitoring  MonitoringConfig
}

// DatabaseConfig конфигурация хранилища треков (mysql или sqlite)
type DatabaseConfig struct {
	Driver       string
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
}

// RedisConfig конфигурация Redis (кеш высот и уведомления)
type RedisConfig struct {
	Enabled      bool
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// MQTTConfig конфигурация MQTT для уведомлений об изменениях
type MQTTConfig struct {
	Enabled     bool
	URL         string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// ElevationConfig конфигурация источников высот
type ElevationConfig struct {
	Source           string // auto, api, terrainrgb
	APIURL           string
	TerrainRGBURL    string
	TerrainZoom      int
	BatchSize        int
	BatchDelay       time.Duration
	RequestTimeout   time.Duration
	CacheTTL         time.Duration
	GeohashPrecision int
	BreakerFailures  uint32
	BreakerTimeout   time.Duration
	TileCacheSize    int
}

// SimplifyConfig параметры упрощения треков при импорте GPX
type SimplifyConfig struct {
	ToleranceMeters float64
	MaxPoints       int
}

// AuditConfig параметры пересчета статистики
type AuditConfig struct {
	MaxTracks        int
	ForceRecalculate bool
	MinDiffMeters    float64
	MinDiffPercent   float64
	UpdateStorage    bool
	BatchDelay       time.Duration
	Tuning           string // JSON с переопределениями фильтра
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	MetricsEnabled bool
	MetricsAddress string
	CORSOrigins    []string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "sqlite"),
			DSN:          getEnv("DB_DSN", "trails.db"),
			MaxIdleConns: getInt("DB_MAX_IDLE_CONNS", 2),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 4),
		},
		Redis: RedisConfig{
			Enabled:      getBool("REDIS_ENABLED", false),
			URL:          getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getInt("REDIS_DB", 0),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 1),
		},
		MQTT: MQTTConfig{
			Enabled:     getBool("MQTT_ENABLED", false),
			URL:         getEnv("MQTT_URL", "tcp://localhost:1883"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "trail-stats"),
			Username:    getEnv("MQTT_USERNAME", ""),
			Password:    getEnv("MQTT_PASSWORD", ""),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "trails"),
		},
		Elevation: ElevationConfig{
			Source:           getEnv("ELEVATION_SOURCE", "auto"),
			APIURL:           getEnv("ELEVATION_API_URL", "https://api.open-meteo.com/v1/elevation"),
			TerrainRGBURL:    getEnv("ELEVATION_TERRAINRGB_URL", ""),
			TerrainZoom:      getInt("ELEVATION_TERRAINRGB_ZOOM", 14),
			BatchSize:        getInt("ELEVATION_BATCH_SIZE", 100),
			BatchDelay:       getDuration("ELEVATION_BATCH_DELAY", 500*time.Millisecond),
			RequestTimeout:   getDuration("ELEVATION_REQUEST_TIMEOUT", 15*time.Second),
			CacheTTL:         getDuration("ELEVATION_CACHE_TTL", 30*24*time.Hour),
			GeohashPrecision: getInt("ELEVATION_GEOHASH_PRECISION", 9),
			BreakerFailures:  uint32(getInt("ELEVATION_BREAKER_FAILURES", 5)),
			BreakerTimeout:   getDuration("ELEVATION_BREAKER_TIMEOUT", 30*time.Second),
			TileCacheSize:    getInt("ELEVATION_TILE_CACHE_SIZE", 256),
		},
		Simplify: SimplifyConfig{
			ToleranceMeters: getFloat("SIMPLIFY_TOLERANCE_METERS", 10),
			MaxPoints:       getInt("SIMPLIFY_MAX_POINTS", 0),
		},
		Audit: AuditConfig{
			MaxTracks:        getInt("AUDIT_MAX_TRACKS", 0),
			ForceRecalculate: getBool("AUDIT_FORCE_RECALCULATE", false),
			MinDiffMeters:    getFloat("AUDIT_MIN_DIFF_METERS", 10),
			MinDiffPercent:   getFloat("AUDIT_MIN_DIFF_PERCENT", 5),
			UpdateStorage:    getBool("AUDIT_UPDATE_STORAGE", false),
			BatchDelay:       getDuration("AUDIT_BATCH_DELAY", time.Second),
			Tuning:           getEnv("AUDIT_TUNING", ""),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", false),
			MetricsAddress: getEnv("METRICS_ADDRESS", ":9090"),
			CORSOrigins:    getList("METRICS_CORS_ORIGINS", []string{"*"}),
		},
	}

	// Валидация
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be mysql or sqlite, got %q", c.Database.Driver)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when Redis is enabled")
	}

	if c.MQTT.Enabled && c.MQTT.URL == "" {
		return fmt.Errorf("MQTT_URL is required when MQTT is enabled")
	}

	switch strings.ToLower(c.Elevation.Source) {
	case "auto", "api", "terrainrgb":
	default:
		return fmt.Errorf("ELEVATION_SOURCE must be auto, api or terrainrgb, got %q", c.Elevation.Source)
	}

	if strings.EqualFold(c.Elevation.Source, "terrainrgb") && c.Elevation.TerrainRGBURL == "" {
		return fmt.Errorf("ELEVATION_TERRAINRGB_URL is required for terrainrgb source")
	}

	// Провайдеры высот принимают не больше 100 точек за запрос
	if c.Elevation.BatchSize <= 0 || c.Elevation.BatchSize > 100 {
		return fmt.Errorf("ELEVATION_BATCH_SIZE must be between 1 and 100")
	}

	if c.Elevation.GeohashPrecision < 1 || c.Elevation.GeohashPrecision > 12 {
		return fmt.Errorf("ELEVATION_GEOHASH_PRECISION must be between 1 and 12")
	}

	if c.Elevation.TerrainZoom < 0 || c.Elevation.TerrainZoom > 22 {
		return fmt.Errorf("ELEVATION_TERRAINRGB_ZOOM must be between 0 and 22")
	}

	if c.Audit.MaxTracks < 0 {
		return fmt.Errorf("AUDIT_MAX_TRACKS must not be negative")
	}

	return nil
}

// Helper функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// LogLevel возвращает уровень логирования
func LogLevel() string {
	return getEnv("LOG_LEVEL", "info")
}

// LogFormat возвращает формат логирования
func LogFormat() string {
	return getEnv("LOG_FORMAT", "text")
}

// IsProduction проверяет, запущено ли приложение в production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
