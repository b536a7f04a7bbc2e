// Package auditlog keeps an append-only record of every API request.
//
// An entry is opened before validation starts and closed exactly once with
// the terminal outcome, whether that is a rejection code or a completed
// transaction. Logging is observability only: a disabled or failing log
// store never blocks the request it describes.
package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/reaktivstudios/external-purchase-api/internal/logging"
)

// ErrEntryNotFound is returned by stores when closing an unknown entry.
var ErrEntryNotFound = errors.New("log entry not found")

// Entry is one request record. Created with Result unset, updated exactly
// once at the terminal outcome, then immutable.
type Entry struct {
	ID        int64     `json:"id"`
	Time      time.Time `json:"time"`
	Type      string    `json:"type"` // transaction type as received
	TransID   int64     `json:"transId"`
	Info      string    `json:"info"` // serialized request params, secrets redacted
	Result    bool      `json:"result"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Closed    bool      `json:"closed"`
}

// Store persists log entries.
type Store interface {
	Create(ctx context.Context, e *Entry) error
	Close(ctx context.Context, id int64, typ string, transID int64, result bool, errorCode string) error
}

// Log is the best-effort audit logger.
type Log struct {
	store   Store
	enabled bool
}

// New creates an audit log. A nil store or enabled=false yields a no-op
// logger; every method still works and returns zero values.
func New(store Store, enabled bool) *Log {
	if store == nil {
		enabled = false
	}
	return &Log{store: store, enabled: enabled}
}

// Open records the arrival of a request and returns the entry id, or 0
// when logging is disabled or the write fails. Failures are logged at
// warn and swallowed.
func (l *Log) Open(ctx context.Context, typ string, rawParams map[string]string) int64 {
	if !l.enabled {
		return 0
	}
	e := &Entry{
		Time: time.Now(),
		Type: typ,
		Info: serializeParams(rawParams),
	}
	if err := l.store.Create(ctx, e); err != nil {
		logging.L(ctx).Warn("audit log open failed", "error", err)
		return 0
	}
	return e.ID
}

// CloseRejected finalizes an entry for a validation rejection.
func (l *Log) CloseRejected(ctx context.Context, id int64, typ, errorCode string) {
	l.close(ctx, id, typ, 0, false, errorCode)
}

// CloseSuccess finalizes an entry for a completed transaction.
func (l *Log) CloseSuccess(ctx context.Context, id int64, typ string, transID int64) {
	l.close(ctx, id, typ, transID, true, "")
}

// CloseFailed finalizes an entry for a handler-internal failure.
func (l *Log) CloseFailed(ctx context.Context, id int64, typ, errorCode string) {
	l.close(ctx, id, typ, 0, false, errorCode)
}

func (l *Log) close(ctx context.Context, id int64, typ string, transID int64, result bool, errorCode string) {
	if !l.enabled || id == 0 {
		return
	}
	if err := l.store.Close(ctx, id, typ, transID, result, errorCode); err != nil {
		logging.L(ctx).Warn("audit log close failed", "error", err, "log_id", id)
	}
}

// serializeParams renders the raw parameter bag as JSON with credentials
// redacted. The token never reaches the log; the key is kept since it is
// the public half of the pair.
func serializeParams(params map[string]string) string {
	if params == nil {
		return "{}"
	}
	redacted := make(map[string]string, len(params))
	for k, v := range params {
		if k == "token" {
			v = "[redacted]"
		}
		redacted[k] = v
	}
	b, err := json.Marshal(redacted)
	if err != nil {
		return "{}"
	}
	return string(b)
}
