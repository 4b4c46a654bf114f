package store

import (
	"context"
	"time"

	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/llmswitch", "store")

// DefaultMaxRecords is the number of records kept per session
const DefaultMaxRecords = 50

// Record is one invocation kept in the session history
type Record struct {
	ID        string `json:"id" yaml:"id"`
	SessionID string `json:"session_id" yaml:"session_id"`
	RequestID string `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	App       string `json:"app" yaml:"app"`
	Input     string `json:"input" yaml:"input"`
	Text      string `json:"text,omitempty" yaml:"text,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`

	// Keys of the variants used, per configurable field id
	Keys map[string]string `json:"keys,omitempty" yaml:"keys,omitempty"`

	Provider    string  `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	TotalTokens int64   `json:"total_tokens,omitempty" yaml:"total_tokens,omitempty"`
	Fingerprint string  `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`

	Duration  time.Duration `json:"duration" yaml:"duration"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
}

// SessionInfo describes a session with history
type SessionInfo struct {
	SessionID string    `json:"session_id" yaml:"session_id"`
	Count     int       `json:"count" yaml:"count"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// HistoryStore keeps the recent invocations per session
type HistoryStore interface {
	// Add appends the record to the history of rec.SessionID
	Add(ctx context.Context, rec *Record) error
	// History returns the records of the session, oldest first,
	// limit <= 0 returns all kept records.
	History(ctx context.Context, sessionID string, limit int) ([]*Record, error)
	// Reset removes the session history
	Reset(ctx context.Context, sessionID string) error
	// GetSessionInfo returns the session info, or nil if the session is not found
	GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error)
	// ListSessions returns the IDs of the sessions with history
	ListSessions(ctx context.Context) ([]string, error)
	// Cleanup removes sessions not updated within olderThan
	Cleanup(ctx context.Context, olderThan time.Duration) (uint32, error)
}

func tail(list []*Record, limit int) []*Record {
	if limit > 0 && len(list) > limit {
		return list[len(list)-limit:]
	}
	return list
}
