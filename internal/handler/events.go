package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/flybeeper/trail-stats/internal/metrics"
	"github.com/flybeeper/trail-stats/internal/models"
)

const (
	eventSendBuffer = 256
	eventPingPeriod = 30 * time.Second
	eventPongWait   = 60 * time.Second
	eventWriteWait  = 10 * time.Second
)

// EventStream рассылает события пересчета статистики подключенным WebSocket клиентам.
// Медленный клиент с заполненным буфером пропускает событие, остальные его получают.
type EventStream struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader
	origins  []string

	mu      sync.RWMutex
	clients map[*eventClient]struct{}
}

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewEventStream создает поток событий; origins ограничивает заголовок Origin, "*" разрешает любой
func NewEventStream(origins []string, logger *logrus.Logger) *EventStream {
	s := &EventStream{
		logger:  logger,
		origins: origins,
		clients: make(map[*eventClient]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *EventStream) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ClientCount число подключенных клиентов
func (s *EventStream) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// TrackStatsUpdated отправляет событие всем клиентам без ожидания доставки
func (s *EventStream) TrackStatsUpdated(ctx context.Context, event models.TrackStatsEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("websocket", "error").Inc()
		return fmt.Errorf("failed to encode track stats event: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- payload:
		default:
			metrics.EventStreamDropped.Inc()
			s.logger.WithField("track_id", event.TrackID).Warn("Event stream client is too slow, event dropped")
		}
	}

	metrics.NotificationsSent.WithLabelValues("websocket", "success").Inc()
	return nil
}

// Close отключает всех клиентов
func (s *EventStream) Close() {
	s.mu.Lock()
	clients := make([]*eventClient, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.Unlock()

	for _, client := range clients {
		s.unregister(client)
	}
}

// HandleWebSocket обрабатывает подключение к /ws/events
func (s *EventStream) HandleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithField("error", err).Warn("Failed to upgrade event stream connection")
		return
	}

	client := &eventClient{
		conn: conn,
		send: make(chan []byte, eventSendBuffer),
	}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()
	metrics.EventStreamConnections.Inc()

	s.logger.WithFields(logrus.Fields{
		"client_ip": c.ClientIP(),
		"clients":   s.ClientCount(),
	}).Info("Event stream client connected")

	go s.writePump(client)
	go s.readPump(client)
}

// unregister удаляет клиента; повторный вызов ничего не делает
func (s *EventStream) unregister(client *eventClient) {
	s.mu.Lock()
	if _, ok := s.clients[client]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, client)
	close(client.send)
	s.mu.Unlock()

	metrics.EventStreamConnections.Dec()
	s.logger.Debug("Event stream client disconnected")
}

// readPump читает управляющие кадры до разрыва соединения; данные от клиента игнорируются
func (s *EventStream) readPump(client *eventClient) {
	defer func() {
		s.unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(eventPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(eventPongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WithField("error", err).Debug("Event stream read error")
			}
			return
		}
	}
}

// writePump отправляет события клиенту и ping каждые 30 секунд
func (s *EventStream) writePump(client *eventClient) {
	ticker := time.NewTicker(eventPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.WithField("error", err).Warn("Event stream write error")
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
