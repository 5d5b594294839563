package monitoring

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvkaushik27/nalanda/internal/observability"
)

func TestRateLimiterAdmitsUpToMax(t *testing.T) {
	l := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("client-a"), "request %d should be admitted", i+1)
	}
	assert.False(t, l.Allow("client-a"), "request over the limit must be denied")
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	l := NewRateLimiter(2, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("c"))
	require.True(t, l.Allow("c"))
	require.False(t, l.Allow("c"))

	now = now.Add(61 * time.Second)
	assert.True(t, l.Allow("c"), "client must be admitted after the window elapses")
}

func TestRateLimiterPerClientIsolation(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestRateLimiterReset(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))

	l.Reset()
	assert.True(t, l.Allow("a"))
}

type capturePublisher struct {
	channel  string
	messages int
}

func (p *capturePublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	p.channel = channel
	p.messages++
	return nil
}

func TestErrorTrackerCountsAndRing(t *testing.T) {
	tr := NewErrorTracker(observability.DefaultLogger(), nil, "")

	for i := 0; i < 15; i++ {
		tr.Track(errors.New("boom"), "test")
	}

	assert.Equal(t, 15, tr.Count())
	assert.Len(t, tr.Recent(), 10, "recent ring is bounded to the last 10")
}

func TestErrorTrackerHourlyReset(t *testing.T) {
	tr := NewErrorTracker(observability.DefaultLogger(), nil, "")
	now := time.Now()
	tr.now = func() time.Time { return now }
	tr.lastReset = now

	tr.Track(errors.New("one"), "ctx")
	require.Equal(t, 1, tr.Count())

	now = now.Add(2 * time.Hour)
	tr.Track(errors.New("two"), "ctx")
	assert.Equal(t, 1, tr.Count(), "count resets after an hour")
}

func TestErrorTrackerAlertsOverThreshold(t *testing.T) {
	pub := &capturePublisher{}
	tr := NewErrorTracker(observability.DefaultLogger(), pub, "errors.alerts")

	for i := 0; i < alertThreshold+1; i++ {
		tr.Track(errors.New("boom"), "test")
	}

	assert.Equal(t, "errors.alerts", pub.channel)
	assert.GreaterOrEqual(t, pub.messages, 1)
}

type stubSubscriber struct {
	channel      string
	messages     chan []byte
	unsubscribed bool
	err          error
}

func (s *stubSubscriber) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	s.channel = channel
	return s.messages, func() { s.unsubscribed = true }, nil
}

func TestAlertListenerDecodesPublishedAlerts(t *testing.T) {
	sub := &stubSubscriber{messages: make(chan []byte, 1)}
	l := NewAlertListener(observability.DefaultLogger(), sub, "errors.alerts")

	got := make(chan Alert, 1)
	l.OnAlert = func(a Alert) { got <- a }

	require.NoError(t, l.Start(context.Background()))
	require.Equal(t, "errors.alerts", sub.channel)

	sub.messages <- []byte(`{"type":"high_error_rate","errors_last_hour":61}`)

	select {
	case a := <-got:
		assert.Equal(t, "high_error_rate", a.Type)
		assert.Equal(t, 61, a.ErrorsLastHour)
	case <-time.After(time.Second):
		t.Fatal("alert was not delivered")
	}

	l.Stop()
	assert.True(t, sub.unsubscribed)
}

func TestAlertListenerSkipsMalformedPayload(t *testing.T) {
	sub := &stubSubscriber{messages: make(chan []byte, 2)}
	l := NewAlertListener(observability.DefaultLogger(), sub, "errors.alerts")

	got := make(chan Alert, 1)
	l.OnAlert = func(a Alert) { got <- a }

	require.NoError(t, l.Start(context.Background()))
	sub.messages <- []byte("not json")
	sub.messages <- []byte(`{"type":"high_error_rate","errors_last_hour":80}`)

	select {
	case a := <-got:
		assert.Equal(t, 80, a.ErrorsLastHour, "listener must survive a malformed payload")
	case <-time.After(time.Second):
		t.Fatal("alert was not delivered")
	}
	l.Stop()
}

func TestAlertListenerSubscribeError(t *testing.T) {
	sub := &stubSubscriber{err: errors.New("redis down")}
	l := NewAlertListener(observability.DefaultLogger(), sub, "errors.alerts")

	err := l.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe alerts")
}

func TestErrorTrackerIgnoresNil(t *testing.T) {
	tr := NewErrorTracker(observability.DefaultLogger(), nil, "")
	tr.Track(nil, "ctx")
	assert.Equal(t, 0, tr.Count())
}

func TestAuditLoggerQueryEntry(t *testing.T) {
	dir := t.TempDir()
	queryLog := filepath.Join(dir, "query_audit.jsonl")
	a := NewAuditLogger(observability.DefaultLogger(), queryLog, filepath.Join(dir, "admin.jsonl"))

	longQuery := ""
	for i := 0; i < 30; i++ {
		longQuery += "query "
	}
	a.LogQuery(longQuery, "a response", "203.0.113.77", 125*time.Millisecond, true)

	f, err := os.Open(queryLog)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var entry QueryAuditEntry
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))

	assert.LessOrEqual(t, len(entry.Query), 100)
	assert.Equal(t, "203.0.113.***", entry.ClientID)
	assert.Equal(t, len("a response"), entry.ResponseLength)
	assert.InDelta(t, 125.0, entry.ProcessingTimeMS, 1.0)
	assert.True(t, entry.Success)
}

func TestAuditLoggerDefaultClient(t *testing.T) {
	dir := t.TempDir()
	queryLog := filepath.Join(dir, "query_audit.jsonl")
	a := NewAuditLogger(observability.DefaultLogger(), queryLog, "")

	a.LogQuery("q", "r", "default", time.Millisecond, false)

	data, err := os.ReadFile(queryLog)
	require.NoError(t, err)

	var entry QueryAuditEntry
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &entry))
	assert.Equal(t, "default", entry.ClientID)
	assert.False(t, entry.Success)
}

func TestAuditLoggerAdminEntry(t *testing.T) {
	dir := t.TempDir()
	adminLog := filepath.Join(dir, "admin_activity.jsonl")
	a := NewAuditLogger(observability.DefaultLogger(), "", adminLog)

	a.LogAdmin("clear-cache", "classification + rate limiter")

	data, err := os.ReadFile(adminLog)
	require.NoError(t, err)

	var entry AdminAuditEntry
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &entry))
	assert.Equal(t, "clear-cache", entry.Action)
	assert.NotEmpty(t, entry.ID)
}

func TestAuditLoggerWriteFailureIsSilent(t *testing.T) {
	a := NewAuditLogger(observability.DefaultLogger(), filepath.Join(string(os.PathSeparator), "nonexistent-root-dir-for-test", "x.jsonl"), "")
	assert.NotPanics(t, func() {
		a.LogQuery("q", "r", "default", time.Millisecond, true)
	})
}
