package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/flybeeper/trail-stats/internal/config"
	"github.com/flybeeper/trail-stats/internal/metrics"
	"github.com/flybeeper/trail-stats/internal/models"
)

// ErrTrackNotFound трек с указанным id отсутствует
var ErrTrackNotFound = errors.New("track not found")

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Схема таблицы треков для каждого диалекта
var trackSchemas = map[string]string{
	DriverMySQL: `
		CREATE TABLE IF NOT EXISTS tracks (
			id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL DEFAULT '',
			points LONGTEXT NOT NULL,
			elevation_gain DOUBLE NULL,
			elevation_loss DOUBLE NULL,
			length_km DOUBLE NULL,
			min_elevation DOUBLE NULL,
			max_elevation DOUBLE NULL,
			updated_at BIGINT NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	DriverSQLite: `
		CREATE TABLE IF NOT EXISTS tracks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL DEFAULT '',
			points TEXT NOT NULL,
			elevation_gain REAL NULL,
			elevation_loss REAL NULL,
			length_km REAL NULL,
			min_elevation REAL NULL,
			max_elevation REAL NULL,
			updated_at INTEGER NOT NULL
		)`,
}

const trackColumns = `id, name, points, elevation_gain, elevation_loss, length_km, min_elevation, max_elevation, updated_at`

// SQLTrackStore хранилище треков поверх database/sql (MySQL или SQLite)
type SQLTrackStore struct {
	db     *sql.DB
	driver string
	logger *logrus.Logger
}

// NewSQLTrackStore открывает соединение с базой треков
func NewSQLTrackStore(cfg config.DatabaseConfig, logger *logrus.Logger) (*SQLTrackStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if _, ok := trackSchemas[cfg.Driver]; !ok {
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
	}

	// Настройки connection pool
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(1 * time.Hour)

	return &SQLTrackStore{
		db:     db,
		driver: cfg.Driver,
		logger: logger,
	}, nil
}

// Ping проверяет соединение с базой
func (s *SQLTrackStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		metrics.DatabaseConnectionStatus.Set(0)
		return fmt.Errorf("%s ping failed: %w", s.driver, err)
	}
	metrics.DatabaseConnectionStatus.Set(1)
	return nil
}

// Close закрывает соединение с базой
func (s *SQLTrackStore) Close() error {
	return s.db.Close()
}

// Migrate создает таблицу треков, если ее нет
func (s *SQLTrackStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, trackSchemas[s.driver]); err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	return nil
}

// InsertTrack сохраняет трек и возвращает его id
func (s *SQLTrackStore) InsertTrack(ctx context.Context, track *models.SavedTrack) (int64, error) {
	points, err := json.Marshal(track.Points)
	if err != nil {
		return 0, fmt.Errorf("failed to encode track points: %w", err)
	}

	updatedAt := track.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tracks (name, points, elevation_gain, elevation_loss, length_km, min_elevation, max_elevation, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		track.Name, string(points),
		nullFloat(track.ElevationGain), nullFloat(track.ElevationLoss), nullFloat(track.LengthKm),
		nullFloat(track.MinElevation), nullFloat(track.MaxElevation),
		updatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert track: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted track id: %w", err)
	}

	track.ID = id
	return id, nil
}

// GetTrack возвращает трек по id
func (s *SQLTrackStore) GetTrack(ctx context.Context, id int64) (*models.SavedTrack, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)

	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track %d: %w", id, err)
	}
	return track, nil
}

// ListTracks возвращает треки в порядке id; limit <= 0 означает все
func (s *SQLTrackStore) ListTracks(ctx context.Context, limit int) ([]models.SavedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks ORDER BY id`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.SavedTrack
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			s.logger.WithField("error", err).Warn("Failed to scan track row")
			continue
		}
		tracks = append(tracks, *track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating track rows: %w", err)
	}

	return tracks, nil
}

// UpdateTrackStats записывает пересчитанную статистику трека
func (s *SQLTrackStore) UpdateTrackStats(ctx context.Context, id int64, stats models.TrackStats) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracks
		SET elevation_gain = ?, elevation_loss = ?, length_km = ?, min_elevation = ?, max_elevation = ?, updated_at = ?
		WHERE id = ?`,
		stats.ElevationGain, stats.ElevationLoss, stats.LengthKm, stats.MinElevation, stats.MaxElevation,
		time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update track %d stats: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	// MySQL не считает строки, в которых значения не изменились
	if affected == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tracks WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTrackNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check track %d: %w", id, err)
		}
	}

	s.logger.WithField("track_id", id).
		WithField("gain", stats.ElevationGain).
		WithField("loss", stats.ElevationLoss).
		Debug("Track stats updated")

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrack(row rowScanner) (*models.SavedTrack, error) {
	var (
		track                      models.SavedTrack
		points                     string
		gain, loss, length         sql.NullFloat64
		minElevation, maxElevation sql.NullFloat64
		updatedAt                  int64
	)

	if err := row.Scan(&track.ID, &track.Name, &points, &gain, &loss, &length, &minElevation, &maxElevation, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(points), &track.Points); err != nil {
		return nil, fmt.Errorf("failed to decode points of track %d: %w", track.ID, err)
	}

	track.ElevationGain = floatPtr(gain)
	track.ElevationLoss = floatPtr(loss)
	track.LengthKm = floatPtr(length)
	track.MinElevation = floatPtr(minElevation)
	track.MaxElevation = floatPtr(maxElevation)
	track.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	return &track, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
