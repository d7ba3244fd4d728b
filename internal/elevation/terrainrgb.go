package elevation

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/flybeeper/trail-stats/internal/geo"
	"github.com/flybeeper/trail-stats/internal/metrics"
	"github.com/flybeeper/trail-stats/internal/models"
)

// TerrainRGBConfig конфигурация растрового источника высот
type TerrainRGBConfig struct {
	URLTemplate string // с подстановками {z}, {x}, {y}
	Zoom        int
	Timeout     time.Duration
	CacheSize   int
	CacheTTL    time.Duration
	Breaker     BreakerConfig
}

// TileKey координаты тайла в схеме slippy map
type TileKey struct {
	Z, X, Y int
}

// TerrainRGBSupplier декодирует высоты из PNG тайлов Terrain-RGB:
// elevation = -10000 + (R*65536 + G*256 + B) * 0.1
type TerrainRGBSupplier struct {
	urlTemplate string
	zoom        int
	client      *http.Client
	tiles       *geo.LRUCache[TileKey, image.Image]
	breaker     *gobreaker.CircuitBreaker[image.Image]
	logger      *logrus.Logger
}

// NewTerrainRGBSupplier создает растровый источник высот
func NewTerrainRGBSupplier(cfg TerrainRGBConfig, logger *logrus.Logger) *TerrainRGBSupplier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}

	return &TerrainRGBSupplier{
		urlTemplate: cfg.URLTemplate,
		zoom:        cfg.Zoom,
		client:      &http.Client{Timeout: timeout},
		tiles:       geo.NewLRUCache[TileKey, image.Image](cacheSize, cfg.CacheTTL),
		breaker:     newBreaker[image.Image]("elevation-terrainrgb", cfg.Breaker, logger),
		logger:      logger,
	}
}

// Name возвращает имя поставщика
func (s *TerrainRGBSupplier) Name() string {
	return string(SourceTerrainRGB)
}

// Elevations декодирует высоты точек; соседние точки обычно попадают в один тайл
func (s *TerrainRGBSupplier) Elevations(ctx context.Context, points []models.Point) ([]float64, error) {
	start := time.Now()
	defer func() {
		metrics.ElevationRequestDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
	}()

	elevations := make([]float64, len(points))
	for i, p := range points {
		key, fx, fy := TileCoordinates(p.Latitude, p.Longitude, s.zoom)

		tile, err := s.tile(ctx, key)
		if err != nil {
			metrics.ElevationRequests.WithLabelValues(s.Name(), "error").Inc()
			return nil, err
		}

		bounds := tile.Bounds()
		px := bounds.Min.X + clampPixel(int(fx*float64(bounds.Dx())), bounds.Dx())
		py := bounds.Min.Y + clampPixel(int(fy*float64(bounds.Dy())), bounds.Dy())
		elevations[i] = DecodeTerrainRGB(tile.At(px, py))
	}

	metrics.ElevationRequests.WithLabelValues(s.Name(), "success").Inc()
	metrics.ElevationPointsResolved.WithLabelValues(s.Name()).Add(float64(len(points)))
	return elevations, nil
}

func (s *TerrainRGBSupplier) tile(ctx context.Context, key TileKey) (image.Image, error) {
	if img, ok := s.tiles.Get(key); ok {
		metrics.ElevationCacheHits.WithLabelValues("tile").Inc()
		return img, nil
	}
	metrics.ElevationCacheMisses.WithLabelValues("tile").Inc()

	img, err := s.breaker.Execute(func() (image.Image, error) {
		return s.fetchTile(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	s.tiles.Set(key, img)
	return img, nil
}

func (s *TerrainRGBSupplier) fetchTile(ctx context.Context, key TileKey) (image.Image, error) {
	tileURL := TileURL(s.urlTemplate, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile server returned status %d for %d/%d/%d", resp.StatusCode, key.Z, key.X, key.Y)
	}

	img, err := png.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile %d/%d/%d: %w", key.Z, key.X, key.Y, err)
	}

	s.logger.WithFields(logrus.Fields{
		"z": key.Z,
		"x": key.X,
		"y": key.Y,
	}).Debug("Fetched terrain tile")

	return img, nil
}

// TileCoordinates возвращает тайл и относительное положение точки внутри него (0..1)
func TileCoordinates(lat, lng float64, zoom int) (TileKey, float64, float64) {
	n := math.Exp2(float64(zoom))
	latRad := lat * math.Pi / 180

	x := (lng + 180) / 360 * n
	y := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n

	maxTile := int(n) - 1
	tx := clampTile(int(math.Floor(x)), maxTile)
	ty := clampTile(int(math.Floor(y)), maxTile)

	return TileKey{Z: zoom, X: tx, Y: ty}, x - float64(tx), y - float64(ty)
}

// TileURL подставляет координаты тайла в шаблон
func TileURL(template string, key TileKey) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(key.Z),
		"{x}", strconv.Itoa(key.X),
		"{y}", strconv.Itoa(key.Y),
	)
	return r.Replace(template)
}

// DecodeTerrainRGB переводит цвет пикселя в высоту в метрах
func DecodeTerrainRGB(c color.Color) float64 {
	rgba := color.NRGBAModel.Convert(c).(color.NRGBA)
	value := float64(rgba.R)*65536 + float64(rgba.G)*256 + float64(rgba.B)
	return -10000 + value*0.1
}

// EncodeTerrainRGB обратное преобразование высоты в цвет пикселя
func EncodeTerrainRGB(elevation float64) color.NRGBA {
	value := int(math.Round((elevation + 10000) * 10))
	if value < 0 {
		value = 0
	}
	return color.NRGBA{
		R: uint8(value >> 16 & 0xff),
		G: uint8(value >> 8 & 0xff),
		B: uint8(value & 0xff),
		A: 0xff,
	}
}

func clampTile(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func clampPixel(v, size int) int {
	if v < 0 {
		return 0
	}
	if v >= size {
		return size - 1
	}
	return v
}
