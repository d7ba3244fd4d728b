package geo

import (
	"math"

	"github.com/flybeeper/trail-stats/internal/models"
)

// MetersPerDegree приблизительное число метров в градусе.
// Плоское приближение: на высоких широтах долгота сжимается и точность упрощения падает.
const MetersPerDegree = 111320.0

// ToleranceToDegrees переводит допуск в метрах в допуск в градусах
func ToleranceToDegrees(toleranceMeters float64) float64 {
	return toleranceMeters / MetersPerDegree
}

// Simplify упрощает трек алгоритмом Рамера-Дугласа-Пекера.
// Расстояние до хорды считается в плоских координатах (lat, lng), результат
// всегда содержит первую и последнюю точки и сохраняет порядок.
func Simplify(points []models.Point, toleranceMeters float64) []models.Point {
	if len(points) <= 2 {
		return points
	}

	epsilon := ToleranceToDegrees(toleranceMeters)

	keep := make([]bool, len(points))
	keep[0] = true
	keep[len(points)-1] = true
	douglasPeucker(points, 0, len(points)-1, epsilon, keep)

	result := make([]models.Point, 0, countKept(keep))
	for i, k := range keep {
		if k {
			result = append(result, points[i])
		}
	}
	return result
}

// douglasPeucker помечает сохраняемые точки в диапазоне [first, last]
func douglasPeucker(points []models.Point, first, last int, epsilon float64, keep []bool) {
	if last-first < 2 {
		return
	}

	maxDistance := 0.0
	index := first
	for i := first + 1; i < last; i++ {
		d := PerpendicularDistance(points[i], points[first], points[last])
		if d > maxDistance {
			maxDistance = d
			index = i
		}
	}

	// Все промежуточные точки достаточно близко к хорде - остаются только концы
	if maxDistance <= epsilon {
		return
	}

	keep[index] = true
	douglasPeucker(points, first, index, epsilon, keep)
	douglasPeucker(points, index, last, epsilon, keep)
}

// PerpendicularDistance расстояние от точки до отрезка [start, end] в градусах
func PerpendicularDistance(p, start, end models.Point) float64 {
	x, y := p.Latitude, p.Longitude
	x1, y1 := start.Latitude, start.Longitude
	x2, y2 := end.Latitude, end.Longitude

	dx := x2 - x1
	dy := y2 - y1

	lengthSq := dx*dx + dy*dy
	if lengthSq == 0 {
		// Вырожденная хорда: расстояние до точки
		return math.Hypot(x-x1, y-y1)
	}

	// Проекция точки на отрезок с ограничением параметра в [0, 1]
	t := ((x-x1)*dx + (y-y1)*dy) / lengthSq
	t = math.Max(0, math.Min(1, t))

	projX := x1 + t*dx
	projY := y1 + t*dy

	return math.Hypot(x-projX, y-projY)
}

// ReduceToMaxPoints ограничивает число точек равномерной выборкой по индексам.
// Первая и последняя точки сохраняются всегда. maxPoints <= 0 означает без ограничения.
func ReduceToMaxPoints(points []models.Point, maxPoints int) []models.Point {
	if maxPoints <= 0 {
		return points
	}
	if maxPoints < 2 {
		maxPoints = 2
	}
	if len(points) <= maxPoints {
		return points
	}

	n := len(points)
	step := float64(n-1) / float64(maxPoints-1)

	result := make([]models.Point, 0, maxPoints)
	result = append(result, points[0])
	for i := 1; i <= maxPoints-2; i++ {
		idx := int(math.Round(float64(i) * step))
		result = append(result, points[idx])
	}
	result = append(result, points[n-1])

	return result
}

func countKept(keep []bool) int {
	count := 0
	for _, k := range keep {
		if k {
			count++
		}
	}
	return count
}
