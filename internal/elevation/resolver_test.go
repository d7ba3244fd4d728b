package elevation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/trail-stats/internal/models"
	"github.com/flybeeper/trail-stats/pkg/utils"
)

// fakeSupplier возвращает высоту, равную широте*10, и запоминает пакеты
type fakeSupplier struct {
	name     string
	latency  time.Duration
	batches  [][]models.Point
	calls    []time.Time
	finished []time.Time
	failOn   int // номер вызова (с 1), на котором вернуть ошибку
}

func (f *fakeSupplier) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeSupplier) Elevations(_ context.Context, points []models.Point) ([]float64, error) {
	f.batches = append(f.batches, points)
	f.calls = append(f.calls, time.Now())
	if f.latency > 0 {
		time.Sleep(f.latency)
	}
	f.finished = append(f.finished, time.Now())
	if f.failOn == len(f.batches) {
		return nil, errors.New("provider unavailable")
	}

	elevations := make([]float64, len(points))
	for i, p := range points {
		elevations[i] = p.Latitude * 10
	}
	return elevations, nil
}

func linePoints(n int) []models.Point {
	points := make([]models.Point, n)
	for i := range points {
		points[i] = models.NewPoint(float64(i), 8)
	}
	return points
}

func TestResolver_EmptyInput(t *testing.T) {
	supplier := &fakeSupplier{}
	resolver := NewResolver(supplier, ResolverConfig{}, utils.NewDiscardLogger())

	samples, err := resolver.FetchElevations(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, samples)
	assert.Empty(t, supplier.batches)
}

func TestResolver_BatchesInOrder(t *testing.T) {
	supplier := &fakeSupplier{}
	resolver := NewResolver(supplier, ResolverConfig{BatchSize: 100}, utils.NewDiscardLogger())
	points := linePoints(250)

	samples, err := resolver.FetchElevations(context.Background(), points)

	require.NoError(t, err)
	require.Len(t, samples, 250)
	require.Len(t, supplier.batches, 3)
	assert.Len(t, supplier.batches[0], 100)
	assert.Len(t, supplier.batches[1], 100)
	assert.Len(t, supplier.batches[2], 50)
	assert.Equal(t, 100.0, supplier.batches[1][0].Latitude)

	for i, s := range samples {
		assert.Equal(t, points[i].Latitude, s.Latitude)
		assert.Equal(t, points[i].Longitude, s.Longitude)
		assert.Equal(t, points[i].Latitude*10, s.Elevation)
	}
}

func TestResolver_BatchSizeCappedAt100(t *testing.T) {
	supplier := &fakeSupplier{}
	resolver := NewResolver(supplier, ResolverConfig{BatchSize: 500}, utils.NewDiscardLogger())

	_, err := resolver.FetchElevations(context.Background(), linePoints(150))

	require.NoError(t, err)
	require.Len(t, supplier.batches, 2)
	assert.Len(t, supplier.batches[0], 100)
}

func TestResolver_DelayBetweenBatches(t *testing.T) {
	supplier := &fakeSupplier{}
	delay := 40 * time.Millisecond
	resolver := NewResolver(supplier, ResolverConfig{BatchSize: 10, BatchDelay: delay}, utils.NewDiscardLogger())

	_, err := resolver.FetchElevations(context.Background(), linePoints(30))

	require.NoError(t, err)
	require.Len(t, supplier.calls, 3)
	for i := 1; i < len(supplier.calls); i++ {
		// Небольшой допуск на точность таймера
		assert.GreaterOrEqual(t, supplier.calls[i].Sub(supplier.calls[i-1]), delay-5*time.Millisecond)
	}
}

func TestResolver_DelayAfterSlowBatch(t *testing.T) {
	supplier := &fakeSupplier{latency: 60 * time.Millisecond}
	delay := 50 * time.Millisecond
	resolver := NewResolver(supplier, ResolverConfig{BatchSize: 10, BatchDelay: delay}, utils.NewDiscardLogger())

	_, err := resolver.FetchElevations(context.Background(), linePoints(30))

	require.NoError(t, err)
	require.Len(t, supplier.calls, 3)
	for i := 1; i < len(supplier.calls); i++ {
		// Пауза не сокращается из-за долгого ответа поставщика
		assert.GreaterOrEqual(t, supplier.calls[i].Sub(supplier.finished[i-1]), delay-5*time.Millisecond)
	}
}

func TestResolver_DelayOnlyWithinOneFetch(t *testing.T) {
	supplier := &fakeSupplier{}
	resolver := NewResolver(supplier, ResolverConfig{BatchSize: 10, BatchDelay: time.Hour}, utils.NewDiscardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Одиночные пакеты соседних вызовов не ждут друг друга
	for i := 0; i < 3; i++ {
		_, err := resolver.FetchElevations(ctx, linePoints(5))
		require.NoError(t, err)
	}
	assert.Len(t, supplier.batches, 3)
}

func TestResolver_DegradesToZero(t *testing.T) {
	supplier := &fakeSupplier{failOn: 2}
	resolver := NewResolver(supplier, ResolverConfig{BatchSize: 10}, utils.NewDiscardLogger())
	points := linePoints(25)

	samples, err := resolver.FetchElevations(context.Background(), points)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unavailable")
	require.Len(t, samples, 25)
	for i, s := range samples {
		assert.Equal(t, points[i].Latitude, s.Latitude)
		assert.Equal(t, 0.0, s.Elevation)
	}
}

type shortSupplier struct{}

func (shortSupplier) Name() string { return "short" }

func (shortSupplier) Elevations(_ context.Context, points []models.Point) ([]float64, error) {
	return make([]float64, len(points)-1), nil
}

func TestResolver_LengthMismatchDegrades(t *testing.T) {
	resolver := NewResolver(shortSupplier{}, ResolverConfig{}, utils.NewDiscardLogger())

	samples, err := resolver.FetchElevations(context.Background(), linePoints(5))

	require.Error(t, err)
	assert.Len(t, samples, 5)
}

func TestResolver_CanceledContextDegrades(t *testing.T) {
	supplier := &fakeSupplier{}
	resolver := NewResolver(supplier, ResolverConfig{BatchSize: 1, BatchDelay: time.Hour}, utils.NewDiscardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	samples, err := resolver.FetchElevations(ctx, linePoints(2))

	require.Error(t, err)
	assert.Len(t, samples, 2)
	assert.Len(t, supplier.batches, 1)
}
