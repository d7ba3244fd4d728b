package audit

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/flybeeper/trail-stats/internal/elevation"
	"github.com/flybeeper/trail-stats/internal/filter"
	"github.com/flybeeper/trail-stats/internal/models"
	"github.com/flybeeper/trail-stats/internal/stats"
)

// DiagnosticRow статистика одного сочетания источника высот и метода фильтрации
type DiagnosticRow struct {
	Source   string            `json:"source"`
	Method   string            `json:"method"`
	Stats    models.TrackStats `json:"stats"`
	Counts   filter.Counts     `json:"counts"`
	Degraded bool              `json:"degraded"`
	Error    string            `json:"error,omitempty"`
}

// Spread разброс значения между строками диагностики
type Spread struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Range разница между максимумом и минимумом
func (s Spread) Range() float64 {
	return s.Max - s.Min
}

// DivergenceSummary расхождение набора и сброса высоты между сочетаниями
type DivergenceSummary struct {
	Rows int    `json:"rows"`
	Gain Spread `json:"gain"`
	Loss Spread `json:"loss"`
}

// Diagnostics сравнивает источники высот и методы фильтрации на одном треке.
// В запись статистики не вмешивается, используется для подбора порогов.
type Diagnostics struct {
	engine *stats.Engine
	logger *logrus.Logger
}

// NewDiagnostics создает диагностику поверх движка статистики
func NewDiagnostics(engine *stats.Engine, logger *logrus.Logger) *Diagnostics {
	return &Diagnostics{engine: engine, logger: logger}
}

// CompareSources считает статистику трека по каждому источнику высот с одними параметрами
func (d *Diagnostics) CompareSources(ctx context.Context, points []models.Point, fetchers map[elevation.Source]ElevationFetcher, tuning models.Tuning) []DiagnosticRow {
	sources := make([]elevation.Source, 0, len(fetchers))
	for source := range fetchers {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	rows := make([]DiagnosticRow, 0, len(sources))
	for _, source := range sources {
		samples, err := fetchers[source].FetchElevations(ctx, points)
		report := d.engine.Compute(points, samples, &tuning)

		row := DiagnosticRow{
			Source: source.String(),
			Method: MethodLabel(tuning),
			Stats:  report.Stats,
			Counts: report.Counts,
		}
		if err != nil {
			row.Degraded = true
			row.Error = err.Error()
			d.logger.WithFields(logrus.Fields{
				"source": source,
				"error":  err,
			}).Warn("Elevation source degraded during comparison")
		}
		rows = append(rows, row)
	}

	return rows
}

// VerifyMethods считает статистику по одним образцам высот каждым набором параметров
func (d *Diagnostics) VerifyMethods(points []models.Point, samples []models.ElevationSample, tunings []models.Tuning) []DiagnosticRow {
	rows := make([]DiagnosticRow, 0, len(tunings))
	for i := range tunings {
		report := d.engine.Compute(points, samples, &tunings[i])
		rows = append(rows, DiagnosticRow{
			Method: MethodLabel(tunings[i]),
			Stats:  report.Stats,
			Counts: report.Counts,
		})
	}
	return rows
}

// MethodSet набор параметров для сверки методов: simple по умолчанию и несколько вариантов hysteresis
func MethodSet() []models.Tuning {
	simple := models.DefaultTuning()

	hysteresis := models.DefaultTuning()
	hysteresis.Method = models.MethodHysteresis

	wide := hysteresis
	wide.SmoothingWindow = 9
	wide.HysteresisFloorM = 5

	narrow := hysteresis
	narrow.SmoothingWindow = 3
	narrow.HysteresisFloorM = 2

	return []models.Tuning{simple, hysteresis, wide, narrow}
}

// MethodLabel краткое описание метода и его параметров
func MethodLabel(t models.Tuning) string {
	if t.Method == models.MethodHysteresis {
		return fmt.Sprintf("hysteresis(window=%d,floor=%g,cap=%g)", t.SmoothingWindow, t.HysteresisFloorM, t.HysteresisCapM)
	}
	return fmt.Sprintf("simple(noise=%g,slope=%g)", t.NoiseThresholdM, t.MaxSlope)
}

// Divergence сводит разброс набора и сброса высоты; деградированные строки не учитываются
func Divergence(rows []DiagnosticRow) DivergenceSummary {
	var gains, losses []float64
	for _, row := range rows {
		if row.Degraded {
			continue
		}
		gains = append(gains, row.Stats.ElevationGain)
		losses = append(losses, row.Stats.ElevationLoss)
	}

	return DivergenceSummary{
		Rows: len(gains),
		Gain: spreadOf(gains),
		Loss: spreadOf(losses),
	}
}

func spreadOf(values []float64) Spread {
	if len(values) == 0 {
		return Spread{}
	}

	s := Spread{
		Mean: stat.Mean(values, nil),
		Min:  floats.Min(values),
		Max:  floats.Max(values),
	}
	// Выборочное отклонение определено начиная с двух значений
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	return s
}
