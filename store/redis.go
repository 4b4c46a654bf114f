package store

import (
	"context"
	"encoding/json"
	"path"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/session"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis store implements the HistoryStore interface using Redis as the backend.
// The keys namespace is organized as follows:
// - `/<prefix>/history/records/<sessionID>` list of the recent records
// - `/<prefix>/history/info/<sessionID>` session info
// - `/<prefix>/history/sessions` set of session IDs
// Session IDs are validated by session.ValidateID before used in a key,
// so an ID can not escape its namespace.

type redisStore struct {
	client     redis.UniversalClient
	prefix     string
	maxRecords int
}

// NewRedisStore returns HistoryStore backed by Redis,
// DefaultMaxRecords is used when maxRecords is not positive.
func NewRedisStore(client redis.UniversalClient, prefix string, maxRecords int) HistoryStore {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &redisStore{
		client:     client,
		prefix:     prefix,
		maxRecords: maxRecords,
	}
}

func (m *redisStore) recordsKey(sessionID string) string {
	return path.Join(m.prefix, "history", "records", sessionID)
}

func (m *redisStore) infoKey(sessionID string) string {
	return path.Join(m.prefix, "history", "info", sessionID)
}

func (m *redisStore) sessionsKey() string {
	return path.Join(m.prefix, "history", "sessions")
}

func (m *redisStore) Add(ctx context.Context, rec *Record) error {
	if rec == nil || rec.SessionID == "" {
		return errors.New("session ID is required")
	}
	if err := session.ValidateID(rec.SessionID); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal record")
	}

	info, err := m.GetSessionInfo(ctx, rec.SessionID)
	if err != nil {
		return err
	}
	isNew := info == nil
	if isNew {
		info = &SessionInfo{
			SessionID: rec.SessionID,
			CreatedAt: time.Now(),
		}
	}
	info.UpdatedAt = time.Now()
	info.Count = min(info.Count+1, m.maxRecords)

	infoData, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session info")
	}

	key := m.recordsKey(rec.SessionID)
	pipe := m.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-m.maxRecords), -1)
	pipe.Set(ctx, m.infoKey(rec.SessionID), infoData, 0)
	if isNew {
		pipe.SAdd(ctx, m.sessionsKey(), rec.SessionID)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to store record in Redis")
	}
	return nil
}

func (m *redisStore) History(ctx context.Context, sessionID string, limit int) ([]*Record, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	data, err := m.client.LRange(ctx, m.recordsKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get records from Redis")
	}

	list := make([]*Record, 0, len(data))
	for _, item := range data {
		rec := new(Record)
		if err := json.Unmarshal([]byte(item), rec); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal record", "err", err.Error())
			continue
		}
		list = append(list, rec)
	}
	return list, nil
}

func (m *redisStore) Reset(ctx context.Context, sessionID string) error {
	if err := session.ValidateID(sessionID); err != nil {
		return err
	}
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, m.recordsKey(sessionID))
	pipe.Del(ctx, m.infoKey(sessionID))
	pipe.SRem(ctx, m.sessionsKey(), sessionID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to reset session in Redis")
	}
	return nil
}

func (m *redisStore) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	data, err := m.client.Get(ctx, m.infoKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get session info from Redis")
	}

	info := new(SessionInfo)
	if err = json.Unmarshal([]byte(data), info); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal session info")
	}
	return info, nil
}

func (m *redisStore) ListSessions(ctx context.Context) ([]string, error) {
	ids, err := m.client.SMembers(ctx, m.sessionsKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list sessions from Redis")
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *redisStore) Cleanup(ctx context.Context, olderThan time.Duration) (uint32, error) {
	ids, err := m.ListSessions(ctx)
	if err != nil {
		return 0, err
	}

	deleted := uint32(0)
	cutoff := time.Now().Add(-olderThan)
	for _, id := range ids {
		info, err := m.GetSessionInfo(ctx, id)
		if err != nil {
			return deleted, err
		}
		if info == nil || info.UpdatedAt.Before(cutoff) {
			if err = m.Reset(ctx, id); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}
