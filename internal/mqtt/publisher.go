package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/flybeeper/trail-stats/internal/config"
	"github.com/flybeeper/trail-stats/internal/metrics"
	"github.com/flybeeper/trail-stats/internal/models"
)

const (
	publishQoS     = 1
	publishTimeout = 5 * time.Second
)

// Publisher публикует уведомления об обновлении статистики треков в MQTT.
// Сообщения сохраняются брокером (retained), новый подписчик сразу получает
// последнюю статистику трека.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	logger      *logrus.Logger
	connected   bool
	mu          sync.RWMutex
}

// NewPublisher создает MQTT публикатор
func NewPublisher(cfg *config.MQTTConfig, logger *logrus.Logger) (*Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	p := &Publisher{
		topicPrefix: cfg.TopicPrefix,
		logger:      logger,
	}

	// Настройка MQTT клиента
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	// Callback при подключении
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		p.setConnected(true)
		p.logger.WithField("broker", cfg.URL).Info("Connected to MQTT broker")
		metrics.MQTTConnectionStatus.Set(1)
	})

	// Callback при потере соединения
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.WithField("error", err).Warn("Lost connection to MQTT broker")
		metrics.MQTTConnectionStatus.Set(0)
	})

	p.client = mqtt.NewClient(opts)

	return p, nil
}

// NewPublisherWithClient создает публикатор поверх готового клиента
func NewPublisherWithClient(client mqtt.Client, topicPrefix string, logger *logrus.Logger) *Publisher {
	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
		logger:      logger,
		connected:   client.IsConnected(),
	}
}

// Connect подключается к MQTT брокеру
func (p *Publisher) Connect(ctx context.Context) error {
	p.logger.Info("Connecting to MQTT broker")

	token := p.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return nil
}

// Disconnect отключается от MQTT брокера
func (p *Publisher) Disconnect() {
	p.logger.Info("Disconnecting from MQTT broker")

	if p.client.IsConnected() {
		p.client.Disconnect(1000) // 1 секунда на graceful disconnect
	}
	p.setConnected(false)
}

// IsConnected проверяет статус подключения
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client.IsConnected()
}

// Topic возвращает топик статистики трека: {prefix}/tracks/{id}/stats
func (p *Publisher) Topic(trackID int64) string {
	return fmt.Sprintf("%s/tracks/%d/stats", p.topicPrefix, trackID)
}

// TrackStatsUpdated публикует событие обновления статистики трека
func (p *Publisher) TrackStatsUpdated(ctx context.Context, event models.TrackStatsEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode track stats event: %w", err)
	}

	topic := p.Topic(event.TrackID)
	token := p.client.Publish(topic, publishQoS, true, payload)

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	if !token.WaitTimeout(timeout) {
		metrics.NotificationsSent.WithLabelValues("mqtt", "timeout").Inc()
		return fmt.Errorf("timeout publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		metrics.NotificationsSent.WithLabelValues("mqtt", "error").Inc()
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	metrics.NotificationsSent.WithLabelValues("mqtt", "success").Inc()
	p.logger.WithFields(logrus.Fields{
		"topic":    topic,
		"track_id": event.TrackID,
	}).Debug("Published track stats event to MQTT")

	return nil
}

func (p *Publisher) setConnected(connected bool) {
	p.mu.Lock()
	p.connected = connected
	p.mu.Unlock()
}
