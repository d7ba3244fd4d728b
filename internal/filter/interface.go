package filter

import (
	"github.com/flybeeper/trail-stats/internal/models"
)

// Profile профиль высот для фильтрации
type Profile struct {
	Elevations []float64 `json:"elevations"`
	// Segments горизонтальные расстояния в метрах между соседними образцами,
	// len(Segments) == len(Elevations)-1
	Segments   []float64 `json:"segments"`
}

// Len возвращает количество шагов (пар соседних образцов)
func (p Profile) Len() int {
	if len(p.Elevations) < 2 {
		return 0
	}
	steps := len(p.Elevations) - 1
	if len(p.Segments) < steps {
		steps = len(p.Segments)
	}
	return steps
}

// Counts количество перепадов по причине отбраковки
type Counts struct {
	Spikes   int `json:"spikes"`
	Slopes   int `json:"slopes"`
	Noise    int `json:"noise"`
	Capped   int `json:"capped,omitempty"` // только hysteresis
	Accepted int `json:"accepted"`
}

// Discarded общее число отброшенных перепадов
func (c Counts) Discarded() int {
	return c.Spikes + c.Slopes + c.Noise + c.Capped
}

// Result накопленные набор и сброс высоты
type Result struct {
	Gain   float64 `json:"gain"`
	Loss   float64 `json:"loss"`
	Counts Counts  `json:"counts"`
}

// ElevationFilter интерфейс метода фильтрации перепадов высоты
type ElevationFilter interface {
	// Accumulate суммирует набор и сброс по профилю, отбрасывая шум и выбросы
	Accumulate(profile Profile) Result

	// Name возвращает имя метода
	Name() string

	// Description возвращает описание метода
	Description() string
}

// New создает фильтр для метода из параметров.
// Неизвестный метод обрабатывается как simple.
func New(tuning models.Tuning) ElevationFilter {
	switch tuning.Method {
	case models.MethodHysteresis:
		return NewHysteresisFilter(tuning)
	default:
		return NewSimpleFilter(tuning)
	}
}

// isSpike резкий перепад почти без горизонтального перемещения
func isSpike(delta, segmentMeters float64, tuning models.Tuning) bool {
	return abs(delta) > tuning.SpikeDeltaM && segmentMeters < tuning.SpikeMaxSegmentM
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
