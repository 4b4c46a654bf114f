package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/session"
)

type inMemory struct {
	mu         sync.RWMutex
	maxRecords int
	records    map[string][]*Record
	info       map[string]*SessionInfo
}

// NewMemoryStore returns HistoryStore that keeps maxRecords per session in memory,
// DefaultMaxRecords is used when maxRecords is not positive.
func NewMemoryStore(maxRecords int) HistoryStore {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &inMemory{
		maxRecords: maxRecords,
		records:    make(map[string][]*Record),
		info:       make(map[string]*SessionInfo),
	}
}

func (m *inMemory) Add(_ context.Context, rec *Record) error {
	if rec == nil || rec.SessionID == "" {
		return errors.New("session ID is required")
	}
	if err := session.ValidateID(rec.SessionID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	list := append(m.records[rec.SessionID], rec)
	if len(list) > m.maxRecords {
		list = slices.Clone(list[len(list)-m.maxRecords:])
	}
	m.records[rec.SessionID] = list

	info := m.info[rec.SessionID]
	if info == nil {
		info = &SessionInfo{
			SessionID: rec.SessionID,
			CreatedAt: now,
		}
		m.info[rec.SessionID] = info
	}
	info.Count = len(list)
	info.UpdatedAt = now
	return nil
}

func (m *inMemory) History(_ context.Context, sessionID string, limit int) ([]*Record, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(tail(m.records[sessionID], limit)), nil
}

func (m *inMemory) Reset(_ context.Context, sessionID string) error {
	if err := session.ValidateID(sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	delete(m.info, sessionID)
	return nil
}

func (m *inMemory) GetSessionInfo(_ context.Context, sessionID string) (*SessionInfo, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := m.info[sessionID]
	if info == nil {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

func (m *inMemory) ListSessions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]string, 0, len(m.info))
	for id := range m.info {
		list = append(list, id)
	}
	slices.Sort(list)
	return list, nil
}

func (m *inMemory) Cleanup(_ context.Context, olderThan time.Duration) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := uint32(0)
	cutoff := time.Now().Add(-olderThan)
	for id, info := range m.info {
		if info.UpdatedAt.Before(cutoff) {
			delete(m.records, id)
			delete(m.info, id)
			deleted++
		}
	}
	return deleted, nil
}
