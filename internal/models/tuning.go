package models

import (
	"encoding/json"
	"fmt"
)

// FilterMethod метод фильтрации перепадов высоты
type FilterMethod string

const (
	MethodSimple     FilterMethod = "simple"
	MethodHysteresis FilterMethod = "hysteresis"
)

// Tuning параметры фильтрации высоты.
// Пороговые значения зависят от трассы и источника высот, поэтому они не зашиты в код.
type Tuning struct {
	Method FilterMethod `json:"method"`

	// Общие параметры
	NoiseThresholdM  float64 `json:"noise_threshold_m"`   // перепады меньше считаются шумом
	MaxSlope         float64 `json:"max_slope"`           // уклон больше считается ошибкой (1.0 = 100%)
	SpikeDeltaM      float64 `json:"spike_delta_m"`       // перепад больше ...
	SpikeMaxSegmentM float64 `json:"spike_max_segment_m"` // ... на отрезке короче считается выбросом

	// Параметры метода hysteresis
	SmoothingWindow  int     `json:"smoothing_window"`
	HysteresisFloorM float64 `json:"hysteresis_floor_m"`
	HysteresisCapM   float64 `json:"hysteresis_cap_m"`
}

// DefaultTuning возвращает параметры по умолчанию (метод simple)
func DefaultTuning() Tuning {
	return Tuning{
		Method:           MethodSimple,
		NoiseThresholdM:  2,
		MaxSlope:         1.0,
		SpikeDeltaM:      50,
		SpikeMaxSegmentM: 1,
		SmoothingWindow:  5,
		HysteresisFloorM: 3,
		HysteresisCapM:   30,
	}
}

// TuningOverrides частичное переопределение параметров; nil поля не меняются
type TuningOverrides struct {
	Method           *FilterMethod `json:"method,omitempty"`
	NoiseThresholdM  *float64      `json:"noise_threshold_m,omitempty"`
	MaxSlope         *float64      `json:"max_slope,omitempty"`
	SpikeDeltaM      *float64      `json:"spike_delta_m,omitempty"`
	SpikeMaxSegmentM *float64      `json:"spike_max_segment_m,omitempty"`
	SmoothingWindow  *int          `json:"smoothing_window,omitempty"`
	HysteresisFloorM *float64      `json:"hysteresis_floor_m,omitempty"`
	HysteresisCapM   *float64      `json:"hysteresis_cap_m,omitempty"`
}

// ParseTuningOverrides разбирает JSON с переопределениями. Пустая строка дает nil.
func ParseTuningOverrides(data string) (*TuningOverrides, error) {
	if data == "" {
		return nil, nil
	}

	var o TuningOverrides
	if err := json.Unmarshal([]byte(data), &o); err != nil {
		return nil, fmt.Errorf("failed to parse tuning overrides: %w", err)
	}
	return &o, nil
}

// Apply накладывает переопределения на базовые параметры
func (o *TuningOverrides) Apply(base Tuning) Tuning {
	if o == nil {
		return base
	}

	t := base
	if o.Method != nil {
		t.Method = *o.Method
	}
	if o.NoiseThresholdM != nil {
		t.NoiseThresholdM = *o.NoiseThresholdM
	}
	if o.MaxSlope != nil {
		t.MaxSlope = *o.MaxSlope
	}
	if o.SpikeDeltaM != nil {
		t.SpikeDeltaM = *o.SpikeDeltaM
	}
	if o.SpikeMaxSegmentM != nil {
		t.SpikeMaxSegmentM = *o.SpikeMaxSegmentM
	}
	if o.SmoothingWindow != nil {
		t.SmoothingWindow = *o.SmoothingWindow
	}
	if o.HysteresisFloorM != nil {
		t.HysteresisFloorM = *o.HysteresisFloorM
	}
	if o.HysteresisCapM != nil {
		t.HysteresisCapM = *o.HysteresisCapM
	}
	return t
}

// Resolve возвращает параметры по умолчанию с наложенными переопределениями
func (o *TuningOverrides) Resolve() Tuning {
	return o.Apply(DefaultTuning())
}
