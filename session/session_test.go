package session_test

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession(t *testing.T) {
	t.Parallel()
	s := session.New("s1")
	require.NotNil(t, s)
	assert.Equal(t, "s1", s.GetSessionID())

	val, ok := s.GetMetadata("not-found")
	assert.Nil(t, val)
	assert.False(t, ok)
	s.SetMetadata("app", "model_selector")
	v, ok := s.GetMetadata("app")
	assert.True(t, ok)
	assert.Equal(t, "model_selector", v)
}

func TestNewID(t *testing.T) {
	t.Parallel()
	s1 := session.New("")
	s2 := session.New("")
	assert.NotEmpty(t, s1.GetSessionID())
	assert.NotEqual(t, s1.GetSessionID(), s2.GetSessionID())
}

func TestContextPlumbing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Nil(t, session.FromContext(ctx))
	assert.Empty(t, session.GetSessionID(ctx))
	_, err := session.MustSessionID(ctx)
	assert.True(t, errors.Is(err, session.ErrInvalidSession))

	s := session.New("abc")
	ctx = session.WithContext(ctx, s)
	assert.Equal(t, s, session.FromContext(ctx))
	assert.Equal(t, "abc", session.GetSessionID(ctx))
	id, err := session.MustSessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestParse(t *testing.T) {
	t.Parallel()
	s, err := session.Parse(" s1 ")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.GetSessionID())

	s, err = session.Parse("")
	require.NoError(t, err)
	assert.NotEmpty(t, s.GetSessionID())

	for _, id := range []string{
		"user-1",
		"7f9c1f2e-2b8b-4a55-9a57-2ef0a6a4c8f1",
		"team:alpha.user_2",
		session.NewID(),
	} {
		assert.NoError(t, session.ValidateID(id), id)
	}

	for _, id := range []string{
		"",
		"..",
		".",
		"../x",
		"../info/victim",
		"a/b",
		"-x",
		"a b",
		"a\nb",
		strings.Repeat("a", session.MaxIDLength+1),
	} {
		err := session.ValidateID(id)
		assert.True(t, errors.Is(err, session.ErrInvalidSessionID), id)
		assert.NotEmpty(t, errors.GetAllHints(err), id)
	}

	_, err = session.Parse("../x")
	assert.EqualError(t, err, `"../x": invalid session ID`)
}
