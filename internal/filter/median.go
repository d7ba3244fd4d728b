package filter

import (
	"math"
	"sort"
)

// Median вычисляет медиану; для четного количества - среднее двух центральных
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	// Копируем, чтобы не менять порядок исходных значений
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// MAD вычисляет Median Absolute Deviation
func MAD(values []float64, median float64) float64 {
	if len(values) == 0 {
		return 0
	}

	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - median)
	}

	return Median(deviations)
}
