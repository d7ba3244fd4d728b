package models

import (
	"math"
	"time"
)

// ElevationSample высота для точки трека; индекс совпадает с индексом точки
type ElevationSample struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Elevation float64 `json:"elevation"`
}

// Point возвращает координаты сэмпла как точку
func (s ElevationSample) Point() Point {
	return Point{Latitude: s.Latitude, Longitude: s.Longitude}
}

// ZeroSamples возвращает сэмплы с нулевой высотой для каждой точки
func ZeroSamples(points []Point) []ElevationSample {
	samples := make([]ElevationSample, len(points))
	for i, p := range points {
		samples[i] = ElevationSample{Latitude: p.Latitude, Longitude: p.Longitude}
	}
	return samples
}

// TrackStats вычисленная статистика трека
type TrackStats struct {
	LengthKm      float64 `json:"length_km"`
	ElevationGain float64 `json:"elevation_gain_m"`
	ElevationLoss float64 `json:"elevation_loss_m"`
	MinElevation  float64 `json:"min_elevation_m"`
	MaxElevation  float64 `json:"max_elevation_m"`
}

// Rounded округляет высоты до метра, длину до сотых километра
func (s TrackStats) Rounded() TrackStats {
	return TrackStats{
		LengthKm:      math.Round(s.LengthKm*100) / 100,
		ElevationGain: math.Round(s.ElevationGain),
		ElevationLoss: math.Round(s.ElevationLoss),
		MinElevation:  math.Round(s.MinElevation),
		MaxElevation:  math.Round(s.MaxElevation),
	}
}

// SavedTrack сохраненный трек. Жизненным циклом управляет внешнее хранилище,
// здесь читаются только точки и кешированная статистика.
type SavedTrack struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Points        []Point   `json:"points"`
	ElevationGain *float64  `json:"elevation_gain,omitempty"`
	ElevationLoss *float64  `json:"elevation_loss,omitempty"`
	LengthKm      *float64  `json:"length_km,omitempty"`
	MinElevation  *float64  `json:"min_elevation,omitempty"`
	MaxElevation  *float64  `json:"max_elevation,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasElevationStats проверяет, сохранены ли и набор, и сброс высоты
func (t *SavedTrack) HasElevationStats() bool {
	return t.ElevationGain != nil && t.ElevationLoss != nil
}

// StoredGain возвращает сохраненный набор высоты или 0
func (t *SavedTrack) StoredGain() float64 {
	if t.ElevationGain == nil {
		return 0
	}
	return *t.ElevationGain
}

// StoredLoss возвращает сохраненный сброс высоты или 0
func (t *SavedTrack) StoredLoss() float64 {
	if t.ElevationLoss == nil {
		return 0
	}
	return *t.ElevationLoss
}

// ApplyStats записывает статистику в поля трека
func (t *SavedTrack) ApplyStats(stats TrackStats, at time.Time) {
	gain, loss, length := stats.ElevationGain, stats.ElevationLoss, stats.LengthKm
	minEle, maxEle := stats.MinElevation, stats.MaxElevation
	t.ElevationGain = &gain
	t.ElevationLoss = &loss
	t.LengthKm = &length
	t.MinElevation = &minEle
	t.MaxElevation = &maxEle
	t.UpdatedAt = at
}

// TrackStatsEvent уведомление об обновлении статистики трека
type TrackStatsEvent struct {
	TrackID   int64      `json:"track_id"`
	RunID     string     `json:"run_id,omitempty"`
	Previous  TrackStats `json:"previous"`
	Stats     TrackStats `json:"stats"`
	UpdatedAt time.Time  `json:"updated_at"`
}
