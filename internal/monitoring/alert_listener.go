package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mvkaushik27/nalanda/internal/observability"
)

// AlertSubscriber receives messages published to an alert channel.
// The Redis cache client satisfies this.
type AlertSubscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Alert is a decoded high-error-rate notification.
type Alert struct {
	Type           string `json:"type"`
	ErrorsLastHour int    `json:"errors_last_hour"`
}

// AlertListener consumes alerts published by ErrorTracker instances and
// surfaces them as critical log entries, so any process subscribed to the
// channel sees error spikes from the whole deployment.
type AlertListener struct {
	logger  *observability.Logger
	sub     AlertSubscriber
	channel string

	// OnAlert, when set, is called for each decoded alert.
	OnAlert func(Alert)

	mu   sync.Mutex
	stop func()
}

// NewAlertListener creates a listener for the given channel.
func NewAlertListener(logger *observability.Logger, sub AlertSubscriber, channel string) *AlertListener {
	return &AlertListener{
		logger:  logger,
		sub:     sub,
		channel: channel,
	}
}

// Start subscribes and consumes alerts until Stop is called or the
// subscription channel closes.
func (l *AlertListener) Start(ctx context.Context) error {
	ch, unsubscribe, err := l.sub.Subscribe(ctx, l.channel)
	if err != nil {
		return fmt.Errorf("subscribe alerts: %w", err)
	}

	l.mu.Lock()
	l.stop = unsubscribe
	l.mu.Unlock()

	go func() {
		for payload := range ch {
			var alert Alert
			if err := json.Unmarshal(payload, &alert); err != nil {
				l.logger.Warn().Err(err).Msg("malformed alert payload")
				continue
			}
			l.logger.Error().
				Str("type", alert.Type).
				Int("errors_last_hour", alert.ErrorsLastHour).
				Msg("error-rate alert received")
			if l.OnAlert != nil {
				l.OnAlert(alert)
			}
		}
	}()
	return nil
}

// Stop unsubscribes and ends the consuming goroutine.
func (l *AlertListener) Stop() {
	l.mu.Lock()
	stop := l.stop
	l.stop = nil
	l.mu.Unlock()
	if stop != nil {
		stop()
	}
}
