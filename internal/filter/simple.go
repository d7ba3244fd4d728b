package filter

import (
	"math"

	"github.com/flybeeper/trail-stats/internal/models"
)

// SimpleFilter отбрасывает выбросы, нереалистичные уклоны и шум,
// остальные перепады суммирует без сглаживания
type SimpleFilter struct {
	tuning models.Tuning
}

// NewSimpleFilter создает фильтр simple
func NewSimpleFilter(tuning models.Tuning) *SimpleFilter {
	return &SimpleFilter{tuning: tuning}
}

// Accumulate применяет правила по порядку: выброс, уклон, шум
func (f *SimpleFilter) Accumulate(profile Profile) Result {
	var result Result

	for i := 0; i < profile.Len(); i++ {
		delta := profile.Elevations[i+1] - profile.Elevations[i]
		seg := profile.Segments[i]

		if isSpike(delta, seg, f.tuning) {
			result.Counts.Spikes++
			continue
		}
		if slope(delta, seg) > f.tuning.MaxSlope {
			result.Counts.Slopes++
			continue
		}
		if abs(delta) < f.tuning.NoiseThresholdM {
			result.Counts.Noise++
			continue
		}

		result.Counts.Accepted++
		if delta > 0 {
			result.Gain += delta
		} else {
			result.Loss += -delta
		}
	}

	return result
}

// Name возвращает имя метода
func (f *SimpleFilter) Name() string {
	return string(models.MethodSimple)
}

// Description возвращает описание метода
func (f *SimpleFilter) Description() string {
	return "Discards spikes, unrealistic slopes and sub-threshold noise, sums the rest"
}

// slope уклон перепада; нулевой отрезок с ненулевым перепадом дает +Inf
func slope(delta, segmentMeters float64) float64 {
	if segmentMeters <= 0 {
		if delta == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return abs(delta) / segmentMeters
}
