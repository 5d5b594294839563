package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mvkaushik27/nalanda/internal/observability"
)

// QueryAuditEntry is one append-only record per answered query. Queries are
// truncated and client identifiers anonymized before writing.
type QueryAuditEntry struct {
	Timestamp        string  `json:"timestamp"`
	Query            string  `json:"query"`
	ResponseLength   int     `json:"response_length"`
	ClientID         string  `json:"client_id"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
	Success          bool    `json:"success"`
}

// AdminAuditEntry is one record per administrative action.
type AdminAuditEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	Detail    string `json:"detail,omitempty"`
}

// AuditLogger appends structured records to JSONL files. A write failure
// never fails the query being audited.
type AuditLogger struct {
	logger       *observability.Logger
	queryLogPath string
	adminLogPath string
	mu           sync.Mutex
}

// NewAuditLogger creates an audit logger writing to the given paths.
func NewAuditLogger(logger *observability.Logger, queryLogPath, adminLogPath string) *AuditLogger {
	return &AuditLogger{
		logger:       logger,
		queryLogPath: queryLogPath,
		adminLogPath: adminLogPath,
	}
}

// LogQuery records one query outcome.
func (a *AuditLogger) LogQuery(query, response, clientID string, elapsed time.Duration, success bool) {
	entry := QueryAuditEntry{
		Timestamp:        time.Now().UTC().Format(time.RFC3339Nano),
		Query:            truncate(query, 100),
		ResponseLength:   len(response),
		ClientID:         AnonymizeClient(clientID),
		ProcessingTimeMS: float64(elapsed.Microseconds()) / 1000,
		Success:          success,
	}
	a.append(a.queryLogPath, entry)
}

// LogAdmin records one administrative action.
func (a *AuditLogger) LogAdmin(action, detail string) {
	entry := AdminAuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Action:    action,
		Detail:    detail,
	}
	a.append(a.adminLogPath, entry)
}

func (a *AuditLogger) append(path string, entry interface{}) {
	if path == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		a.logger.Debug().Err(err).Msg("audit log directory create failed")
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		a.logger.Debug().Err(err).Msg("audit log open failed")
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		a.logger.Debug().Err(err).Msg("audit entry marshal failed")
		return
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		a.logger.Debug().Err(err).Msg("audit log write failed")
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// AnonymizeClient keeps only the first 10 characters of the client
// identifier. The literal "default" passes through for local callers.
func AnonymizeClient(clientID string) string {
	if clientID == "default" || clientID == "" {
		return "default"
	}
	return truncate(clientID, 10) + "***"
}
