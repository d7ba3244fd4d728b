package audit

import (
	"context"
	"errors"

	"github.com/flybeeper/trail-stats/internal/metrics"
	"github.com/flybeeper/trail-stats/internal/models"
)

// ChannelNotifier передает события в канал внутри процесса
type ChannelNotifier struct {
	events chan models.TrackStatsEvent
}

// NewChannelNotifier создает уведомитель с буфером заданного размера
func NewChannelNotifier(buffer int) *ChannelNotifier {
	return &ChannelNotifier{events: make(chan models.TrackStatsEvent, buffer)}
}

// Events канал событий для подписчика
func (n *ChannelNotifier) Events() <-chan models.TrackStatsEvent {
	return n.events
}

// TrackStatsUpdated отправляет событие, ожидая свободного места в буфере
func (n *ChannelNotifier) TrackStatsUpdated(ctx context.Context, event models.TrackStatsEvent) error {
	select {
	case n.events <- event:
		metrics.NotificationsSent.WithLabelValues("channel", "success").Inc()
		return nil
	case <-ctx.Done():
		metrics.NotificationsSent.WithLabelValues("channel", "timeout").Inc()
		return ctx.Err()
	}
}

// Close закрывает канал событий
func (n *ChannelNotifier) Close() {
	close(n.events)
}

// MultiNotifier рассылает событие всем уведомителям
type MultiNotifier []Notifier

// TrackStatsUpdated уведомляет всех; ошибки объединяются
func (m MultiNotifier) TrackStatsUpdated(ctx context.Context, event models.TrackStatsEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.TrackStatsUpdated(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
