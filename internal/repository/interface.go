package repository

import (
	"context"
	"time"

	"github.com/flybeeper/trail-stats/internal/models"
)

// TrackRepository хранилище треков
type TrackRepository interface {
	// Проверка соединения
	Ping(ctx context.Context) error
	Close() error

	// Схема
	Migrate(ctx context.Context) error

	// Операции с треками
	InsertTrack(ctx context.Context, track *models.SavedTrack) (int64, error)
	GetTrack(ctx context.Context, id int64) (*models.SavedTrack, error)
	ListTracks(ctx context.Context, limit int) ([]models.SavedTrack, error)
	UpdateTrackStats(ctx context.Context, id int64, stats models.TrackStats) error
}

// ElevationCache кеш высот по ячейкам geohash
type ElevationCache interface {
	GetElevations(ctx context.Context, supplier string, cells []string) (map[string]float64, error)
	SetElevations(ctx context.Context, supplier string, values map[string]float64, ttl time.Duration) error
}

// Ensure implementations
var _ TrackRepository = (*SQLTrackStore)(nil)
var _ ElevationCache = (*RedisRepository)(nil)
