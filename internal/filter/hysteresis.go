package filter

import (
	"github.com/flybeeper/trail-stats/internal/models"
)

// HysteresisFilter сглаживает профиль скользящим средним и засчитывает
// подъем или спуск только после накопления HysteresisFloorM в одном направлении.
//
// Перепады сглаженного профиля больше HysteresisCapM отбрасываются целиком,
// выбросы определяются по исходным высотам. Смена направления обнуляет
// незасчитанный остаток.
type HysteresisFilter struct {
	tuning models.Tuning
}

// NewHysteresisFilter создает фильтр hysteresis
func NewHysteresisFilter(tuning models.Tuning) *HysteresisFilter {
	return &HysteresisFilter{tuning: tuning}
}

// Accumulate суммирует набор и сброс по сглаженному профилю
func (f *HysteresisFilter) Accumulate(profile Profile) Result {
	var result Result

	steps := profile.Len()
	if steps == 0 {
		return result
	}

	smoothed := MovingAverage(profile.Elevations[:steps+1], f.tuning.SmoothingWindow)
	pending := 0.0

	for i := 0; i < steps; i++ {
		raw := profile.Elevations[i+1] - profile.Elevations[i]
		seg := profile.Segments[i]

		if isSpike(raw, seg, f.tuning) {
			result.Counts.Spikes++
			continue
		}

		delta := smoothed[i+1] - smoothed[i]
		if abs(delta) > f.tuning.HysteresisCapM {
			result.Counts.Capped++
			continue
		}
		if delta == 0 {
			result.Counts.Noise++
			continue
		}

		// Смена направления: незасчитанный остаток считается шумом
		if pending != 0 && (pending > 0) != (delta > 0) {
			pending = 0
		}
		pending += delta

		if abs(pending) < f.tuning.HysteresisFloorM {
			result.Counts.Noise++
			continue
		}

		result.Counts.Accepted++
		if pending > 0 {
			result.Gain += pending
		} else {
			result.Loss += -pending
		}
		pending = 0
	}

	return result
}

// Name возвращает имя метода
func (f *HysteresisFilter) Name() string {
	return string(models.MethodHysteresis)
}

// Description возвращает описание метода
func (f *HysteresisFilter) Description() string {
	return "Smooths the profile with a moving average and commits climbs only past the floor threshold"
}

// MovingAverage центрированное скользящее среднее; у краев окно усекается.
// window <= 1 возвращает копию исходных значений.
func MovingAverage(values []float64, window int) []float64 {
	result := make([]float64, len(values))
	if window <= 1 {
		copy(result, values)
		return result
	}

	half := window / 2
	for i := range values {
		from := i - half
		if from < 0 {
			from = 0
		}
		to := i + (window - 1 - half)
		if to > len(values)-1 {
			to = len(values) - 1
		}

		sum := 0.0
		for j := from; j <= to; j++ {
			sum += values[j]
		}
		result[i] = sum / float64(to-from+1)
	}
	return result
}
