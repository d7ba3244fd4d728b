package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/flybeeper/trail-stats/internal/audit"
	"github.com/flybeeper/trail-stats/internal/config"
	"github.com/flybeeper/trail-stats/internal/elevation"
	"github.com/flybeeper/trail-stats/internal/handler"
	"github.com/flybeeper/trail-stats/internal/metrics"
	"github.com/flybeeper/trail-stats/internal/models"
	"github.com/flybeeper/trail-stats/internal/mqtt"
	"github.com/flybeeper/trail-stats/internal/repository"
	"github.com/flybeeper/trail-stats/internal/stats"
	"github.com/flybeeper/trail-stats/pkg/utils"
)

// runtime собранные зависимости одной команды
type runtime struct {
	cfg      *config.Config
	logger   *logrus.Logger
	engine   *stats.Engine
	registry *elevation.Registry

	store     *repository.SQLTrackStore
	redis     *repository.RedisRepository
	publisher *mqtt.Publisher
	monitor   *handler.Server

	closers []func()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newRuntime подключает необязательные Redis и MQTT и запускает сервер мониторинга.
// Ошибки подключения к ним не фатальны: команда работает без кеша и уведомлений.
func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := utils.NewLogger(c.String("log-level"), c.String("log-format"))
	logger.WithFields(logrus.Fields{
		"version": Version,
		"command": c.Command.Name,
	}).Debug("Starting trail-audit")

	metrics.SetAppInfo(Version, Commit, BuildTime)

	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		engine: stats.NewEngine(logger),
	}

	ctx := c.Context

	if cfg.Redis.Enabled {
		rt.connectRedis(ctx)
	}
	if cfg.MQTT.Enabled {
		rt.connectMQTT(ctx)
	}

	// Передаем nil интерфейс, а не nil указатель, если Redis не подключен
	var cache elevation.Cache
	if rt.redis != nil {
		cache = rt.redis
	}
	rt.registry = elevation.NewRegistryFromConfig(cfg.Elevation, cache, logger)

	if cfg.Monitoring.MetricsEnabled {
		rt.startMonitoring()
	}

	return rt, nil
}

func (r *runtime) connectRedis(ctx context.Context) {
	repo, err := repository.NewRedisRepository(&r.cfg.Redis, r.logger)
	if err != nil {
		r.logger.WithField("error", err).Warn("Failed to initialize Redis repository")
		return
	}
	if err := repo.Ping(ctx); err != nil {
		r.logger.WithField("error", err).Warn("Failed to connect to Redis, elevation cache disabled")
		repo.Close()
		return
	}

	r.logger.Info("Connected to Redis")
	r.redis = repo
	r.closers = append(r.closers, func() { repo.Close() })
}

func (r *runtime) connectMQTT(ctx context.Context) {
	publisher, err := mqtt.NewPublisher(&r.cfg.MQTT, r.logger)
	if err != nil {
		r.logger.WithField("error", err).Warn("Failed to initialize MQTT publisher")
		return
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := publisher.Connect(connectCtx); err != nil {
		r.logger.WithField("error", err).Warn("Failed to connect to MQTT broker, notifications disabled")
		return
	}

	r.publisher = publisher
	r.closers = append(r.closers, publisher.Disconnect)
}

func (r *runtime) startMonitoring() {
	r.monitor = handler.NewServer(r.cfg, Version, r.logger)

	go func() {
		if err := r.monitor.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.WithField("error", err).Error("Monitoring server failed")
		}
	}()

	r.closers = append(r.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.monitor.Shutdown(ctx); err != nil {
			r.logger.WithField("error", err).Error("Monitoring server shutdown error")
		}
	})

	if r.redis != nil {
		r.monitor.AddHealthCheck("redis", r.redis)
	}
}

// openStore открывает хранилище треков и создает схему при необходимости
func (r *runtime) openStore(ctx context.Context) (*repository.SQLTrackStore, error) {
	if r.store != nil {
		return r.store, nil
	}

	store, err := repository.NewSQLTrackStore(r.cfg.Database, r.logger)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}

	r.logger.WithField("driver", r.cfg.Database.Driver).Info("Connected to track storage")
	r.store = store
	r.closers = append(r.closers, func() { store.Close() })
	if r.monitor != nil {
		r.monitor.AddHealthCheck("database", store)
	}

	return store, nil
}

// resolver создает загрузчик высот для источника; пустая строка берет источник из конфигурации
func (r *runtime) resolver(name string) (*elevation.Resolver, error) {
	if name == "" {
		name = r.cfg.Elevation.Source
	}
	source, err := elevation.ParseSource(name)
	if err != nil {
		return nil, err
	}
	supplier, err := r.registry.Resolve(source)
	if err != nil {
		return nil, err
	}
	return elevation.NewResolver(supplier, elevation.ResolverConfigFrom(r.cfg.Elevation), r.logger), nil
}

// notifier объединяет подключенные каналы уведомлений; nil если их нет
func (r *runtime) notifier() audit.Notifier {
	var notifiers audit.MultiNotifier
	if r.redis != nil {
		notifiers = append(notifiers, r.redis)
	}
	if r.publisher != nil {
		notifiers = append(notifiers, r.publisher)
	}
	if r.monitor != nil {
		notifiers = append(notifiers, r.monitor.Events())
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notifiers
}

// tuning параметры фильтра: флаг --tuning, иначе AUDIT_TUNING
func (r *runtime) tuning(c *cli.Context) (models.Tuning, error) {
	data := r.cfg.Audit.Tuning
	if c.IsSet("tuning") {
		data = c.String("tuning")
	}
	overrides, err := models.ParseTuningOverrides(data)
	if err != nil {
		return models.Tuning{}, err
	}
	return overrides.Resolve(), nil
}

// loadPoints точки трека из GPX файла или из хранилища
func (r *runtime) loadPoints(c *cli.Context) ([]models.Point, error) {
	switch {
	case c.IsSet("gpx-file"):
		result, err := parseFile(c.String("gpx-file"), gpxOptions(c, r.cfg.Simplify.ToleranceMeters, r.cfg.Simplify.MaxPoints))
		if err != nil {
			return nil, err
		}
		return result.Points, nil

	case c.IsSet("track-id"):
		store, err := r.openStore(c.Context)
		if err != nil {
			return nil, err
		}
		track, err := store.GetTrack(c.Context, c.Int64("track-id"))
		if err != nil {
			return nil, err
		}
		return track.Points, nil

	default:
		return nil, fmt.Errorf("either --gpx-file or --track-id is required")
	}
}

func (r *runtime) now() time.Time {
	return time.Now().UTC()
}

// Close освобождает ресурсы в обратном порядке
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}
