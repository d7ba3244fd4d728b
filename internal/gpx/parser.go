package gpx

import (
	"fmt"
	"io"
	"time"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/flybeeper/trail-stats/internal/geo"
	"github.com/flybeeper/trail-stats/internal/models"
)

// DefaultToleranceMeters допуск упрощения по умолчанию
const DefaultToleranceMeters = 10.0

// ParseError документ не является корректным GPX
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid GPX document: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// EmptyTrackError в документе нет ни одной точки трека
type EmptyTrackError struct{}

func (e *EmptyTrackError) Error() string {
	return "GPX document contains no track points"
}

// InvalidPointError точка трека вне допустимого диапазона координат.
// Возвращается только при Options.ValidateCoordinates.
type InvalidPointError struct {
	Index int
	Err   error
}

func (e *InvalidPointError) Error() string {
	return fmt.Sprintf("track point %d: %v", e.Index, e.Err)
}

func (e *InvalidPointError) Unwrap() error {
	return e.Err
}

// Options параметры разбора
type Options struct {
	Simplify        *bool   // nil означает true
	ToleranceMeters float64 // <= 0 означает DefaultToleranceMeters
	MaxPoints       int     // 0 - без ограничения

	// ValidateCoordinates проверять широту и долготу точек; по умолчанию точки не проверяются
	ValidateCoordinates bool
}

// Result результат разбора GPX
type Result struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Points      []models.Point `json:"points"`

	OriginalPointCount int     `json:"original_point_count"`
	DistanceKm         float64 `json:"distance_km"`     // по итоговой последовательности
	RawDistanceKm      float64 `json:"raw_distance_km"` // до упрощения
	ElevationGainNaive float64 `json:"elevation_gain_naive"`

	StartTime *time.Time    `json:"start_time,omitempty"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Bounds    models.Bounds `json:"bounds"`
}

func (o Options) simplifyEnabled() bool {
	return o.Simplify == nil || *o.Simplify
}

func (o Options) tolerance() float64 {
	if o.ToleranceMeters <= 0 {
		return DefaultToleranceMeters
	}
	return o.ToleranceMeters
}

// ParseReader читает документ целиком и разбирает его
func ParseReader(r io.Reader, opts Options) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GPX document: %w", err)
	}
	return Parse(data, opts)
}

// Parse разбирает GPX документ в последовательность точек.
// Точки всех треков и сегментов собираются в порядке документа, затем
// последовательность упрощается и ограничивается по количеству согласно opts.
func Parse(document []byte, opts Options) (*Result, error) {
	doc, err := gpx.ParseBytes(document)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	points := extractPoints(doc)
	if len(points) == 0 {
		return nil, &EmptyTrackError{}
	}
	if opts.ValidateCoordinates {
		for i := range points {
			if err := points[i].Validate(); err != nil {
				return nil, &InvalidPointError{Index: i, Err: err}
			}
		}
	}

	result := &Result{
		Name:               trackName(doc),
		Description:        trackDescription(doc),
		OriginalPointCount: len(points),
		RawDistanceKm:      models.PathLength(points),
	}
	result.StartTime, result.EndTime = timeRange(points)
	result.Bounds, _ = models.BoundsOf(points)

	if opts.simplifyEnabled() && len(points) > 2 {
		points = geo.Simplify(points, opts.tolerance())
	}
	if opts.MaxPoints > 0 && len(points) > opts.MaxPoints {
		points = geo.ReduceToMaxPoints(points, opts.MaxPoints)
	}

	result.Points = points
	result.DistanceKm = models.PathLength(points)
	result.ElevationGainNaive = NaiveGain(points)

	return result, nil
}

// NaiveGain сумма положительных перепадов между соседними точками с высотой.
// Без фильтрации, только для предварительного просмотра.
func NaiveGain(points []models.Point) float64 {
	gain := 0.0
	for i := 1; i < len(points); i++ {
		prev, curr := points[i-1], points[i]
		if !prev.HasElevation() || !curr.HasElevation() {
			continue
		}
		if delta := *curr.Elevation - *prev.Elevation; delta > 0 {
			gain += delta
		}
	}
	return gain
}

func extractPoints(doc *gpx.GPX) []models.Point {
	var points []models.Point
	for _, track := range doc.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				point := models.NewPoint(p.Latitude, p.Longitude)
				if p.Elevation.NotNull() {
					point = point.WithElevation(p.Elevation.Value())
				}
				if !p.Timestamp.IsZero() {
					ts := p.Timestamp.UTC()
					point.Time = &ts
				}
				points = append(points, point)
			}
		}
	}
	return points
}

func trackName(doc *gpx.GPX) string {
	for _, track := range doc.Tracks {
		if track.Name != "" {
			return track.Name
		}
	}
	return doc.Name
}

func trackDescription(doc *gpx.GPX) string {
	for _, track := range doc.Tracks {
		if track.Description != "" {
			return track.Description
		}
	}
	return doc.Description
}

func timeRange(points []models.Point) (start, end *time.Time) {
	for i := range points {
		if points[i].Time != nil {
			start = points[i].Time
			break
		}
	}
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Time != nil {
			end = points[i].Time
			break
		}
	}
	return start, end
}
