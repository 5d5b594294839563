package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/mvkaushik27/nalanda/internal/observability"
)

// alertThreshold is the hourly error count above which a critical signal
// is raised.
const alertThreshold = 50

// recentErrorsKept bounds the ring of recent errors.
const recentErrorsKept = 10

// AlertPublisher pushes high-error-rate alerts to an external channel.
// The Redis cache client satisfies this.
type AlertPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// TrackedError is one recorded failure.
type TrackedError struct {
	Error     string    `json:"error"`
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorTracker keeps a rolling error count with hourly reset and a bounded
// ring of recent errors. Crossing the alert threshold logs a critical
// message and publishes to the alert channel when one is configured.
type ErrorTracker struct {
	logger       *observability.Logger
	publisher    AlertPublisher
	alertChannel string

	mu        sync.Mutex
	count     int
	lastReset time.Time
	recent    []TrackedError
	now       func() time.Time
}

// NewErrorTracker creates a tracker. publisher may be nil.
func NewErrorTracker(logger *observability.Logger, publisher AlertPublisher, alertChannel string) *ErrorTracker {
	return &ErrorTracker{
		logger:       logger,
		publisher:    publisher,
		alertChannel: alertChannel,
		lastReset:    time.Now(),
		now:          time.Now,
	}
}

// Track records an error with its origin context.
func (t *ErrorTracker) Track(err error, context string) {
	if err == nil {
		return
	}

	t.mu.Lock()
	now := t.now()

	if now.Sub(t.lastReset) > time.Hour {
		t.count = 0
		t.lastReset = now
	}

	t.count++
	t.recent = append(t.recent, TrackedError{
		Error:     err.Error(),
		Context:   context,
		Timestamp: now,
	})
	if len(t.recent) > recentErrorsKept {
		t.recent = t.recent[len(t.recent)-recentErrorsKept:]
	}

	count := t.count
	recent := make([]TrackedError, len(t.recent))
	copy(recent, t.recent)
	t.mu.Unlock()

	if count > alertThreshold {
		t.logger.Error().
			Int("errors_last_hour", count).
			Interface("recent", recent[max(0, len(recent)-3):]).
			Msg("high error rate detected")
		t.publishAlert(count)
	}
}

func (t *ErrorTracker) publishAlert(count int) {
	if t.publisher == nil || t.alertChannel == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.publisher.Publish(ctx, t.alertChannel, map[string]interface{}{
		"type":             "high_error_rate",
		"errors_last_hour": count,
	}); err != nil {
		t.logger.Warn().Err(err).Msg("alert publish failed")
	}
}

// Count returns the current hourly error count.
func (t *ErrorTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Recent returns a copy of the recent-error ring.
func (t *ErrorTracker) Recent() []TrackedError {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrackedError, len(t.recent))
	copy(out, t.recent)
	return out
}
