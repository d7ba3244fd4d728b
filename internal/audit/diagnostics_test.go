package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/trail-stats/internal/elevation"
	"github.com/flybeeper/trail-stats/internal/models"
	"github.com/flybeeper/trail-stats/internal/stats"
	"github.com/flybeeper/trail-stats/pkg/utils"
)

func newTestDiagnostics() *Diagnostics {
	logger := utils.NewDiscardLogger()
	return NewDiagnostics(stats.NewEngine(logger), logger)
}

func samplesWith(points []models.Point, elevations ...float64) []models.ElevationSample {
	samples := models.ZeroSamples(points)
	for i := range samples {
		samples[i].Elevation = elevations[i]
	}
	return samples
}

func TestDiagnostics_CompareSources(t *testing.T) {
	points := trackPoints(46.0, 3)
	fetchers := map[elevation.Source]ElevationFetcher{
		elevation.SourceTerrainRGB: &fakeFetcher{elevations: map[float64][]float64{46.0: {500, 530, 520}}},
		elevation.SourceAPI:        &fakeFetcher{elevations: map[float64][]float64{46.0: {500, 540, 520}}},
	}

	rows := newTestDiagnostics().CompareSources(context.Background(), points, fetchers, models.DefaultTuning())

	require.Len(t, rows, 2)
	assert.Equal(t, "api", rows[0].Source)
	assert.Equal(t, 40.0, rows[0].Stats.ElevationGain)
	assert.Equal(t, 20.0, rows[0].Stats.ElevationLoss)
	assert.Equal(t, "terrainrgb", rows[1].Source)
	assert.Equal(t, 30.0, rows[1].Stats.ElevationGain)
	assert.Equal(t, 10.0, rows[1].Stats.ElevationLoss)
	assert.Contains(t, rows[0].Method, "simple")

	d := Divergence(rows)
	assert.Equal(t, 2, d.Rows)
	assert.Equal(t, 35.0, d.Gain.Mean)
	assert.Equal(t, 30.0, d.Gain.Min)
	assert.Equal(t, 40.0, d.Gain.Max)
	assert.Equal(t, 10.0, d.Gain.Range())
	assert.InDelta(t, 7.0710678, d.Gain.StdDev, 1e-6)
}

func TestDiagnostics_CompareSourcesDegraded(t *testing.T) {
	points := trackPoints(47.0, 2)
	fetchers := map[elevation.Source]ElevationFetcher{
		elevation.SourceAPI: &fakeFetcher{fail: map[float64]bool{47.0: true}},
	}

	rows := newTestDiagnostics().CompareSources(context.Background(), points, fetchers, models.DefaultTuning())

	require.Len(t, rows, 1)
	assert.True(t, rows[0].Degraded)
	assert.NotEmpty(t, rows[0].Error)
	assert.Equal(t, 0.0, rows[0].Stats.ElevationGain)

	// Деградированные строки не участвуют в расхождении
	assert.Equal(t, DivergenceSummary{}, Divergence(rows))
}

func TestDiagnostics_VerifyMethods(t *testing.T) {
	points := trackPoints(46.0, 5)
	samples := samplesWith(points, 100, 101, 102, 103, 104)

	rows := newTestDiagnostics().VerifyMethods(points, samples, MethodSet())

	require.Len(t, rows, 4)
	// Подъем по 1 м на шаг simple отбрасывает как шум
	assert.Equal(t, 0.0, rows[0].Stats.ElevationGain)
	assert.Equal(t, 4, rows[0].Counts.Noise)
	assert.Equal(t, 0, rows[0].Counts.Accepted)
	for _, row := range rows[1:] {
		assert.Contains(t, row.Method, "hysteresis")
		assert.Empty(t, row.Source)
	}
	for _, row := range rows {
		assert.Equal(t, 100.0, row.Stats.MinElevation)
		assert.Equal(t, 104.0, row.Stats.MaxElevation)
	}
}

func TestDivergence_SingleRow(t *testing.T) {
	d := Divergence([]DiagnosticRow{{Stats: models.TrackStats{ElevationGain: 12, ElevationLoss: 3}}})

	assert.Equal(t, 1, d.Rows)
	assert.Equal(t, Spread{Mean: 12, Min: 12, Max: 12}, d.Gain)
	assert.Equal(t, Spread{Mean: 3, Min: 3, Max: 3}, d.Loss)
}

func TestMethodLabel(t *testing.T) {
	assert.Equal(t, "simple(noise=2,slope=1)", MethodLabel(models.DefaultTuning()))

	h := models.DefaultTuning()
	h.Method = models.MethodHysteresis
	assert.Equal(t, "hysteresis(window=5,floor=3,cap=30)", MethodLabel(h))
}

func TestMultiNotifier(t *testing.T) {
	ctx := context.Background()
	first := NewChannelNotifier(1)
	second := NewChannelNotifier(1)
	failing := failingNotifier{err: errors.New("broker unavailable")}

	multi := MultiNotifier{first, nil, failing, second}
	err := multi.TrackStatsUpdated(ctx, models.TrackStatsEvent{TrackID: 9})

	assert.ErrorContains(t, err, "broker unavailable")
	assert.Equal(t, int64(9), (<-first.Events()).TrackID)
	assert.Equal(t, int64(9), (<-second.Events()).TrackID)
}

func TestChannelNotifier_ContextDone(t *testing.T) {
	n := NewChannelNotifier(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.TrackStatsUpdated(ctx, models.TrackStatsEvent{TrackID: 1})
	assert.ErrorIs(t, err, context.Canceled)

	n.Close()
	_, open := <-n.Events()
	assert.False(t, open)
}

type failingNotifier struct {
	err error
}

func (f failingNotifier) TrackStatsUpdated(context.Context, models.TrackStatsEvent) error {
	return f.err
}
