package stats

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/flybeeper/trail-stats/internal/filter"
	"github.com/flybeeper/trail-stats/internal/models"
)

// Report статистика трека с диагностикой фильтрации
type Report struct {
	Stats               models.TrackStats `json:"stats"`
	Method              string            `json:"method"`
	SampleCount         int               `json:"sample_count"`
	MedianSegmentMeters float64           `json:"median_segment_m"`
	SegmentMADMeters    float64           `json:"segment_mad_m"`
	Counts              filter.Counts     `json:"counts"`
}

// Engine вычисляет длину трека, набор и сброс высоты
type Engine struct {
	logger *logrus.Logger
}

// NewEngine создает движок статистики
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{logger: logger}
}

// ComputeStats вычисляет округленную статистику трека.
// tuning == nil означает параметры по умолчанию.
func (e *Engine) ComputeStats(points []models.Point, samples []models.ElevationSample, tuning *models.Tuning) models.TrackStats {
	return e.Compute(points, samples, tuning).Stats
}

// Compute вычисляет статистику в два прохода.
//
// Первый проход считает медианную длину отрезка между точками трека и ее MAD (только
// для диагностики). Второй проход накапливает перепады высот выбранным методом
// фильтрации. Длина считается по точкам всегда, min/max по всем исходным высотам.
// При менее чем двух образцах высоты все высотные поля равны нулю.
func (e *Engine) Compute(points []models.Point, samples []models.ElevationSample, tuning *models.Tuning) Report {
	t := models.DefaultTuning()
	if tuning != nil {
		t = *tuning
	}
	f := filter.New(t)

	segments := SegmentMeters(points)
	median := filter.Median(segments)

	report := Report{
		Method:              f.Name(),
		SampleCount:         len(samples),
		MedianSegmentMeters: median,
		SegmentMADMeters:    filter.MAD(segments, median),
	}

	stats := models.TrackStats{LengthKm: models.PathLength(points)}

	if len(samples) >= 2 {
		profile := ProfileOf(samples)
		result := f.Accumulate(profile)

		stats.ElevationGain = result.Gain
		stats.ElevationLoss = result.Loss
		stats.MinElevation, stats.MaxElevation = elevationRange(profile.Elevations)
		report.Counts = result.Counts
	}

	report.Stats = stats.Rounded()

	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{
			"method":           report.Method,
			"points":           len(points),
			"samples":          len(samples),
			"median_segment_m": report.MedianSegmentMeters,
			"accepted":         report.Counts.Accepted,
			"discarded":        report.Counts.Discarded(),
		}).Debug("Computed track stats")
	}

	return report
}

// SegmentMeters расстояния в метрах между соседними точками
func SegmentMeters(points []models.Point) []float64 {
	if len(points) < 2 {
		return nil
	}
	segments := make([]float64, len(points)-1)
	for i := 1; i < len(points); i++ {
		segments[i-1] = models.DistanceMeters(points[i-1], points[i])
	}
	return segments
}

// ProfileOf строит профиль высот по образцам; отрезки считаются по координатам образцов
func ProfileOf(samples []models.ElevationSample) filter.Profile {
	profile := filter.Profile{
		Elevations: make([]float64, len(samples)),
	}
	for i, s := range samples {
		profile.Elevations[i] = s.Elevation
	}
	if len(samples) > 1 {
		profile.Segments = make([]float64, len(samples)-1)
		for i := 1; i < len(samples); i++ {
			profile.Segments[i-1] = models.DistanceMeters(samples[i-1].Point(), samples[i].Point())
		}
	}
	return profile
}

func elevationRange(elevations []float64) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, e := range elevations {
		min = math.Min(min, e)
		max = math.Max(max, e)
	}
	return min, max
}
