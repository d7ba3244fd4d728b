package elevation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/flybeeper/trail-stats/internal/models"
)

// Source источник высот
type Source string

const (
	SourceAuto       Source = "auto"
	SourceAPI        Source = "api"
	SourceTerrainRGB Source = "terrainrgb"
)

// ParseSource разбирает имя источника; пустая строка означает auto
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceAuto:
		return SourceAuto, nil
	case SourceAPI:
		return SourceAPI, nil
	case SourceTerrainRGB:
		return SourceTerrainRGB, nil
	default:
		return "", fmt.Errorf("unknown elevation source: %q", s)
	}
}

func (s Source) String() string {
	return string(s)
}

// Supplier поставщик высот для одного пакета точек.
// Возвращает по одной высоте на точку в том же порядке.
type Supplier interface {
	Name() string
	Elevations(ctx context.Context, points []models.Point) ([]float64, error)
}

// Registry набор сконфигурированных поставщиков.
// auto разрешается в поставщик по умолчанию при обращении к реестру.
type Registry struct {
	suppliers     map[Source]Supplier
	defaultSource Source
}

// NewRegistry создает реестр с источником по умолчанию
func NewRegistry(defaultSource Source) *Registry {
	return &Registry{
		suppliers:     make(map[Source]Supplier),
		defaultSource: defaultSource,
	}
}

// Register регистрирует поставщика для источника
func (r *Registry) Register(source Source, supplier Supplier) {
	r.suppliers[source] = supplier
}

// Resolve возвращает поставщика для источника
func (r *Registry) Resolve(source Source) (Supplier, error) {
	if source == SourceAuto {
		source = r.defaultSource
	}
	supplier, ok := r.suppliers[source]
	if !ok {
		return nil, fmt.Errorf("elevation source %q is not configured", source)
	}
	return supplier, nil
}

// Sources возвращает зарегистрированные источники в алфавитном порядке
func (r *Registry) Sources() []Source {
	sources := make([]Source, 0, len(r.suppliers))
	for s := range r.suppliers {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	return sources
}
