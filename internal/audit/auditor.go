package audit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/flybeeper/trail-stats/internal/config"
	"github.com/flybeeper/trail-stats/internal/metrics"
	"github.com/flybeeper/trail-stats/internal/models"
	"github.com/flybeeper/trail-stats/internal/stats"
)

// Причины пропуска и итоги обработки трека
const (
	ReasonTooFewPoints         = "too few points"
	ReasonAlreadyComputed      = "already computed"
	ReasonElevationUnavailable = "elevation unavailable"
	ReasonUpdateFailed         = "update failed"
	ReasonBelowThreshold       = "below threshold"
	ReasonUpdated              = "updated"
	ReasonStorageDisabled      = "threshold met, storage update disabled"
)

// TrackStore хранилище сохраненных треков
type TrackStore interface {
	ListTracks(ctx context.Context, limit int) ([]models.SavedTrack, error)
	UpdateTrackStats(ctx context.Context, id int64, stats models.TrackStats) error
}

// ElevationFetcher загружает высоты для точек трека.
// При недоступности источника возвращает нулевые образцы и ошибку.
type ElevationFetcher interface {
	FetchElevations(ctx context.Context, points []models.Point) ([]models.ElevationSample, error)
}

// Notifier получает уведомления об обновлении статистики трека
type Notifier interface {
	TrackStatsUpdated(ctx context.Context, event models.TrackStatsEvent) error
}

// Options параметры запуска аудита
type Options struct {
	MaxTracks        int // 0 = все треки
	ForceRecalculate bool
	MinDiffMeters    float64
	MinDiffPercent   float64
	UpdateStorage    bool
	BatchDelay       time.Duration // пауза между загрузками высот для соседних треков
	Tuning           *models.TuningOverrides
}

// DefaultOptions возвращает параметры по умолчанию (без записи в хранилище)
func DefaultOptions() Options {
	return Options{
		MinDiffMeters:  10,
		MinDiffPercent: 5,
		BatchDelay:     time.Second,
	}
}

// OptionsFromConfig собирает параметры аудита из конфигурации
func OptionsFromConfig(cfg config.AuditConfig) (Options, error) {
	tuning, err := models.ParseTuningOverrides(cfg.Tuning)
	if err != nil {
		return Options{}, err
	}

	return Options{
		MaxTracks:        cfg.MaxTracks,
		ForceRecalculate: cfg.ForceRecalculate,
		MinDiffMeters:    cfg.MinDiffMeters,
		MinDiffPercent:   cfg.MinDiffPercent,
		UpdateStorage:    cfg.UpdateStorage,
		BatchDelay:       cfg.BatchDelay,
		Tuning:           tuning,
	}, nil
}

// Row результат аудита одного трека
type Row struct {
	TrackID         int64              `json:"track_id"`
	Name            string             `json:"name"`
	PointCount      int                `json:"point_count"`
	Before          models.TrackStats  `json:"before"`
	After           *models.TrackStats `json:"after,omitempty"`
	GainDiff        float64            `json:"gain_diff_m"`
	LossDiff        float64            `json:"loss_diff_m"`
	GainDiffPercent float64            `json:"gain_diff_percent"`
	LossDiffPercent float64            `json:"loss_diff_percent"`
	Updated         bool               `json:"updated"`
	Skipped         bool               `json:"skipped"`
	Reason          string             `json:"reason"`
}

// Summary итоги запуска аудита.
// Total = Processed + Skipped: трек с ошибкой записи считается пропущенным.
type Summary struct {
	RunID     uuid.UUID     `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Rows      []Row         `json:"rows"`
}

func (s *Summary) add(row Row) {
	s.Rows = append(s.Rows, row)
	if row.Skipped {
		s.Skipped++
		return
	}
	s.Processed++
	if row.Updated {
		s.Updated++
	}
}

// Auditor пересчитывает статистику сохраненных треков и сверяет ее с сохраненной
type Auditor struct {
	store    TrackStore
	fetcher  ElevationFetcher
	engine   *stats.Engine
	notifier Notifier
	logger   *logrus.Logger
}

// NewAuditor создает аудитор. notifier может быть nil.
func NewAuditor(store TrackStore, fetcher ElevationFetcher, engine *stats.Engine, notifier Notifier, logger *logrus.Logger) *Auditor {
	return &Auditor{
		store:    store,
		fetcher:  fetcher,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
	}
}

// Run обрабатывает треки строго по одному.
//
// Ошибка отдельного трека фиксируется в строке отчета и не прерывает запуск.
// Run возвращает ошибку только если не удалось получить список треков или
// контекст отменен; во втором случае возвращается и частичный отчет.
func (a *Auditor) Run(ctx context.Context, opts Options) (*Summary, error) {
	tracks, err := a.store.ListTracks(ctx, opts.MaxTracks)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}

	tuning := opts.Tuning.Resolve()

	summary := &Summary{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		Total:     len(tracks),
		Rows:      make([]Row, 0, len(tracks)),
	}

	a.logger.WithFields(logrus.Fields{
		"run_id":         summary.RunID,
		"tracks":         len(tracks),
		"method":         tuning.Method,
		"force":          opts.ForceRecalculate,
		"update_storage": opts.UpdateStorage,
	}).Info("Starting elevation audit")

	fetched := false
	for i := range tracks {
		track := &tracks[i]

		if skip, reason := skipReason(track, opts); skip {
			summary.add(a.skipped(track, reason))
			continue
		}

		// Пауза после предыдущей загрузки высот, а не между ее началами
		if err := a.pace(ctx, fetched, opts.BatchDelay); err != nil {
			summary.Duration = time.Since(summary.StartedAt)
			return summary, fmt.Errorf("audit interrupted: %w", err)
		}
		fetched = true

		row := a.auditTrack(ctx, summary.RunID, track, opts, &tuning)
		summary.add(row)
	}

	summary.Duration = time.Since(summary.StartedAt)
	metrics.AuditRuns.Inc()

	a.logger.WithFields(logrus.Fields{
		"run_id":    summary.RunID,
		"total":     summary.Total,
		"processed": summary.Processed,
		"updated":   summary.Updated,
		"skipped":   summary.Skipped,
		"duration":  summary.Duration,
	}).Info("Elevation audit completed")

	return summary, nil
}

func (a *Auditor) pace(ctx context.Context, fetched bool, delay time.Duration) error {
	if fetched && delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func skipReason(track *models.SavedTrack, opts Options) (bool, string) {
	if len(track.Points) < 2 {
		return true, ReasonTooFewPoints
	}
	if !opts.ForceRecalculate && track.HasElevationStats() {
		return true, ReasonAlreadyComputed
	}
	return false, ""
}

func (a *Auditor) skipped(track *models.SavedTrack, reason string) Row {
	metrics.AuditTracks.WithLabelValues("skipped").Inc()
	metrics.AuditSkips.WithLabelValues(reason).Inc()

	a.logger.WithFields(logrus.Fields{
		"track_id": track.ID,
		"reason":   reason,
	}).Debug("Track skipped")

	return Row{
		TrackID:    track.ID,
		Name:       track.Name,
		PointCount: len(track.Points),
		Before:     storedStats(track),
		Skipped:    true,
		Reason:     reason,
	}
}

func (a *Auditor) auditTrack(ctx context.Context, runID uuid.UUID, track *models.SavedTrack, opts Options, tuning *models.Tuning) Row {
	start := time.Now()
	defer func() {
		metrics.AuditTrackDuration.Observe(time.Since(start).Seconds())
	}()

	samples, err := a.fetcher.FetchElevations(ctx, track.Points)
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"track_id": track.ID,
			"error":    err,
		}).Warn("Elevation unavailable, track skipped")
		return a.skipped(track, ReasonElevationUnavailable)
	}

	before := storedStats(track)
	after := a.engine.ComputeStats(track.Points, samples, tuning)

	row := Row{
		TrackID:         track.ID,
		Name:            track.Name,
		PointCount:      len(track.Points),
		Before:          before,
		After:           &after,
		GainDiff:        math.Abs(after.ElevationGain - before.ElevationGain),
		LossDiff:        math.Abs(after.ElevationLoss - before.ElevationLoss),
		GainDiffPercent: PercentDiff(before.ElevationGain, after.ElevationGain),
		LossDiffPercent: PercentDiff(before.ElevationLoss, after.ElevationLoss),
		Reason:          ReasonBelowThreshold,
	}
	metrics.AuditGainDelta.Observe(row.GainDiff)

	if !exceedsThreshold(row, opts) {
		metrics.AuditTracks.WithLabelValues("unchanged").Inc()
		return row
	}

	if !opts.UpdateStorage {
		row.Reason = ReasonStorageDisabled
		metrics.AuditTracks.WithLabelValues("unchanged").Inc()
		return row
	}

	if err := a.store.UpdateTrackStats(ctx, track.ID, after); err != nil {
		a.logger.WithFields(logrus.Fields{
			"track_id": track.ID,
			"error":    err,
		}).Error("Failed to update track stats")

		row.Skipped = true
		row.Reason = ReasonUpdateFailed
		metrics.AuditTracks.WithLabelValues("skipped").Inc()
		metrics.AuditSkips.WithLabelValues(ReasonUpdateFailed).Inc()
		return row
	}

	track.ApplyStats(after, time.Now())
	row.Updated = true
	row.Reason = ReasonUpdated
	metrics.AuditTracks.WithLabelValues("updated").Inc()

	a.logger.WithFields(logrus.Fields{
		"track_id":  track.ID,
		"gain":      fmt.Sprintf("%.0f -> %.0f", before.ElevationGain, after.ElevationGain),
		"loss":      fmt.Sprintf("%.0f -> %.0f", before.ElevationLoss, after.ElevationLoss),
		"length_km": after.LengthKm,
	}).Info("Track stats updated")

	a.notify(ctx, models.TrackStatsEvent{
		TrackID:   track.ID,
		RunID:     runID.String(),
		Previous:  before,
		Stats:     after,
		UpdatedAt: track.UpdatedAt,
	})

	return row
}

// notify ошибки уведомления не влияют на результат аудита
func (a *Auditor) notify(ctx context.Context, event models.TrackStatsEvent) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.TrackStatsUpdated(ctx, event); err != nil {
		a.logger.WithFields(logrus.Fields{
			"track_id": event.TrackID,
			"error":    err,
		}).Warn("Failed to send track stats notification")
	}
}

func exceedsThreshold(row Row, opts Options) bool {
	return row.GainDiff >= opts.MinDiffMeters ||
		row.LossDiff >= opts.MinDiffMeters ||
		row.GainDiffPercent >= opts.MinDiffPercent ||
		row.LossDiffPercent >= opts.MinDiffPercent
}

// PercentDiff относительное изменение в процентах от сохраненного значения.
// Для сохраненного нуля: 0%, если новое значение тоже 0, иначе 100%.
func PercentDiff(stored, fresh float64) float64 {
	if stored == 0 {
		if fresh == 0 {
			return 0
		}
		return 100
	}
	return math.Abs(fresh-stored) / math.Abs(stored) * 100
}

// storedStats сохраненная статистика трека; отсутствующие поля равны 0
func storedStats(track *models.SavedTrack) models.TrackStats {
	s := models.TrackStats{
		ElevationGain: track.StoredGain(),
		ElevationLoss: track.StoredLoss(),
	}
	if track.LengthKm != nil {
		s.LengthKm = *track.LengthKm
	}
	if track.MinElevation != nil {
		s.MinElevation = *track.MinElevation
	}
	if track.MaxElevation != nil {
		s.MaxElevation = *track.MaxElevation
	}
	return s
}
