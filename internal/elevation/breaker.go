package elevation

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/flybeeper/trail-stats/internal/metrics"
)

// BreakerConfig параметры circuit breaker для внешних источников
type BreakerConfig struct {
	Failures uint32        // подряд идущих ошибок до размыкания
	Timeout  time.Duration // время в разомкнутом состоянии
}

// newBreaker создает circuit breaker, который размыкается после Failures ошибок подряд
func newBreaker[T any](name string, cfg BreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker[T] {
	failures := cfg.Failures
	if failures == 0 {
		failures = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
