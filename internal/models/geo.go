package models

import (
	"fmt"
	"math"
	"time"

	"github.com/mmcloughlin/geohash"
)

// EarthRadiusKm радиус Земли для формулы Haversine
const EarthRadiusKm = 6371.0

// Point представляет точку трека. Высота и время опциональны.
type Point struct {
	Latitude  float64    `json:"lat"`
	Longitude float64    `json:"lng"`
	Elevation *float64   `json:"ele,omitempty"`
	Time      *time.Time `json:"time,omitempty"`
}

// NewPoint создает точку без высоты и времени
func NewPoint(lat, lng float64) Point {
	return Point{Latitude: lat, Longitude: lng}
}

// WithElevation возвращает копию точки с заданной высотой
func (p Point) WithElevation(elevation float64) Point {
	p.Elevation = &elevation
	return p
}

// HasElevation проверяет, есть ли у точки высота
func (p Point) HasElevation() bool {
	return p.Elevation != nil
}

// Validate проверяет корректность координат
func (p Point) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("invalid latitude: %f", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("invalid longitude: %f", p.Longitude)
	}
	return nil
}

// DistanceTo вычисляет расстояние до другой точки в километрах (формула Haversine)
func (p Point) DistanceTo(other Point) float64 {
	return Distance(p, other)
}

// Geohash возвращает geohash для точки с заданной точностью
func (p Point) Geohash(precision int) string {
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, uint(precision))
}

// Distance вычисляет расстояние между точками в километрах (формула Haversine).
// Координаты вне допустимого диапазона не проверяются.
func Distance(p1, p2 Point) float64 {
	lat1Rad := p1.Latitude * math.Pi / 180
	lat2Rad := p2.Latitude * math.Pi / 180
	deltaLat := (p2.Latitude - p1.Latitude) * math.Pi / 180
	deltaLon := (p2.Longitude - p1.Longitude) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// DistanceMeters то же, что Distance, но в метрах
func DistanceMeters(p1, p2 Point) float64 {
	return Distance(p1, p2) * 1000
}

// PathLength возвращает суммарную длину пути в километрах
func PathLength(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}

	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// Bounds представляет географические границы трека
type Bounds struct {
	Southwest Point `json:"sw"`
	Northeast Point `json:"ne"`
}

// BoundsOf вычисляет ограничивающий прямоугольник последовательности точек
func BoundsOf(points []Point) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}

	b := Bounds{
		Southwest: NewPoint(points[0].Latitude, points[0].Longitude),
		Northeast: NewPoint(points[0].Latitude, points[0].Longitude),
	}
	for _, p := range points[1:] {
		b.Southwest.Latitude = math.Min(b.Southwest.Latitude, p.Latitude)
		b.Southwest.Longitude = math.Min(b.Southwest.Longitude, p.Longitude)
		b.Northeast.Latitude = math.Max(b.Northeast.Latitude, p.Latitude)
		b.Northeast.Longitude = math.Max(b.Northeast.Longitude, p.Longitude)
	}
	return b, true
}

// Contains проверяет, содержится ли точка в границах
func (b Bounds) Contains(point Point) bool {
	return point.Latitude >= b.Southwest.Latitude && point.Latitude <= b.Northeast.Latitude &&
		point.Longitude >= b.Southwest.Longitude && point.Longitude <= b.Northeast.Longitude
}

// DiagonalKm возвращает диагональ границ в километрах
func (b Bounds) DiagonalKm() float64 {
	return b.Southwest.DistanceTo(b.Northeast)
}
