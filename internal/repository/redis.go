package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/flybeeper/trail-stats/internal/config"
	"github.com/flybeeper/trail-stats/internal/metrics"
	"github.com/flybeeper/trail-stats/internal/models"
)

const (
	// ElevationPrefix префикс ключей кеша высот: elev:{supplier}:{geohash}
	ElevationPrefix = "elev:"

	// TrackStatsChannel канал уведомлений об обновлении статистики треков
	TrackStatsChannel = "tracks:stats"

	// DefaultElevationTTL срок хранения высот; рельеф не меняется
	DefaultElevationTTL = 30 * 24 * time.Hour
)

// RedisClient используемое подмножество команд Redis
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisRepository кеш высот и канал уведомлений в Redis
type RedisRepository struct {
	client RedisClient
	logger *logrus.Logger
}

// NewRedisRepository создает новый Redis репозиторий
func NewRedisRepository(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisRepository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	// Парсим Redis URL
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Дополнительные настройки
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.ConnMaxIdleTime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	return NewRedisRepositoryWithClient(redis.NewClient(opt), logger), nil
}

// NewRedisRepositoryWithClient создает репозиторий поверх готового клиента
func NewRedisRepositoryWithClient(client RedisClient, logger *logrus.Logger) *RedisRepository {
	return &RedisRepository{
		client: client,
		logger: logger,
	}
}

// Ping проверяет соединение с Redis
func (r *RedisRepository) Ping(ctx context.Context) error {
	if _, err := r.client.Ping(ctx).Result(); err != nil {
		metrics.RedisConnectionStatus.Set(0)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	metrics.RedisConnectionStatus.Set(1)
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// ElevationKey ключ высоты ячейки для поставщика
func ElevationKey(supplier, cell string) string {
	return ElevationPrefix + supplier + ":" + cell
}

// GetElevations читает высоты ячеек одним MGET; отсутствующие ячейки пропускаются
func (r *RedisRepository) GetElevations(ctx context.Context, supplier string, cells []string) (map[string]float64, error) {
	found := make(map[string]float64)
	if len(cells) == 0 {
		return found, nil
	}

	keys := make([]string, len(cells))
	for i, cell := range cells {
		keys[i] = ElevationKey(supplier, cell)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read elevations: %w", err)
	}

	for i, v := range values {
		if i >= len(cells) || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		elevation, err := strconv.ParseFloat(s, 64)
		if err != nil {
			r.logger.WithField("key", keys[i]).WithField("error", err).Warn("Invalid cached elevation value")
			continue
		}
		found[cells[i]] = elevation
	}

	return found, nil
}

// SetElevations записывает высоты ячеек с TTL одним pipeline
func (r *RedisRepository) SetElevations(ctx context.Context, supplier string, values map[string]float64, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultElevationTTL
	}

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for cell, elevation := range values {
			pipe.Set(ctx, ElevationKey(supplier, cell), strconv.FormatFloat(elevation, 'f', -1, 64), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write elevations: %w", err)
	}

	return nil
}

// TrackStatsUpdated публикует событие обновления статистики в канал tracks:stats
func (r *RedisRepository) TrackStatsUpdated(ctx context.Context, event models.TrackStatsEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode track stats event: %w", err)
	}

	if err := r.client.Publish(ctx, TrackStatsChannel, payload).Err(); err != nil {
		metrics.NotificationsSent.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("failed to publish track stats event: %w", err)
	}

	metrics.NotificationsSent.WithLabelValues("redis", "success").Inc()
	r.logger.WithField("track_id", event.TrackID).Debug("Published track stats event to Redis")

	return nil
}
