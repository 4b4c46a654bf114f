package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/session"
	"github.com/effective-security/llmswitch/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHistoryStore(t *testing.T, st store.HistoryStore, maxRecords int) {
	ctx := context.Background()

	assert.Error(t, st.Add(ctx, nil))
	assert.Error(t, st.Add(ctx, &store.Record{App: "model_selector"}))

	info, err := st.GetSessionInfo(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, info)

	list, err := st.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	now := time.Now()
	for i := 0; i < maxRecords+2; i++ {
		require.NoError(t, st.Add(ctx, &store.Record{
			ID:          fmt.Sprintf("r%d", i),
			SessionID:   "s1",
			RequestID:   fmt.Sprintf("req%d", i),
			App:         "prompt_switcher",
			Input:       "Why is the sky blue?",
			Text:        fmt.Sprintf("answer %d", i),
			Keys:        map[string]string{"prompt_type": "concise"},
			Model:       "llama3.2",
			Temperature: 0.5,
			MaxTokens:   200,
		}))
	}
	require.NoError(t, st.Add(ctx, &store.Record{ID: "x", SessionID: "s2", App: "model_selector"}))

	// IDs that would escape the key namespace of another session
	for _, id := range []string{"../x", "../info/s2", "../records/s2", ".."} {
		err = st.Add(ctx, &store.Record{ID: "y", SessionID: id})
		assert.True(t, errors.Is(err, session.ErrInvalidSessionID), id)
		_, err = st.History(ctx, id, 0)
		assert.True(t, errors.Is(err, session.ErrInvalidSessionID), id)
		_, err = st.GetSessionInfo(ctx, id)
		assert.True(t, errors.Is(err, session.ErrInvalidSessionID), id)
		err = st.Reset(ctx, id)
		assert.True(t, errors.Is(err, session.ErrInvalidSessionID), id)
	}
	list, err = st.History(ctx, "s2", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "x", list[0].ID)

	list, err = st.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, list, maxRecords)
	// oldest records are trimmed
	assert.Equal(t, "r2", list[0].ID)
	assert.Equal(t, fmt.Sprintf("r%d", maxRecords+1), list[len(list)-1].ID)
	assert.Equal(t, "concise", list[0].Keys["prompt_type"])
	assert.Equal(t, "req2", list[0].RequestID)
	assert.Equal(t, 0.5, list[0].Temperature)
	assert.False(t, list[0].CreatedAt.Before(now.Add(-time.Second)))

	list, err = st.History(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, fmt.Sprintf("r%d", maxRecords), list[0].ID)

	info, err = st.GetSessionInfo(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "s1", info.SessionID)
	assert.Equal(t, maxRecords, info.Count)
	assert.False(t, info.UpdatedAt.Before(info.CreatedAt))

	sessions, err := st.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, sessions)

	require.NoError(t, st.Reset(ctx, "s2"))
	sessions, err = st.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, sessions)
	list, err = st.History(ctx, "s2", 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	deleted, err := st.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), deleted)

	time.Sleep(5 * time.Millisecond)
	deleted, err = st.Cleanup(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), deleted)

	sessions, err = st.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
