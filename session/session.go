package session

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// ErrInvalidSession is returned when the context has no session.
var ErrInvalidSession = errors.New("invalid session context")

// ErrInvalidSessionID is returned for a session ID that can not be used as a key
var ErrInvalidSessionID = errors.New("invalid session ID")

// MaxIDLength is the max length of a session ID
const MaxIDLength = 128

// MetadataRequestID is the metadata key of the request ID
// that started the invocation
const MetadataRequestID = "request_id"

// Context is the per user session that groups invocations,
// the invocation history is kept per session.
type Context interface {
	GetSessionID() string
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type sessionContext struct {
	sessionID string
	metadata  sync.Map
}

func (c *sessionContext) GetSessionID() string {
	return c.sessionID
}

func (c *sessionContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *sessionContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// New returns a session context, a new ID is generated
// when sessionID is empty.
func New(sessionID string) Context {
	return &sessionContext{
		sessionID: values.StringsCoalesce(sessionID, NewID()),
	}
}

// Parse returns a session context for the ID received from a client,
// a new ID is generated when id is empty.
func Parse(id string) (Context, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return New(""), nil
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return New(id), nil
}

// ValidateID checks the ID starts with a letter or a digit,
// followed by letters, digits, or one of "-_.:".
func ValidateID(id string) error {
	if id == "" || len(id) > MaxIDLength {
		return errors.WithHintf(errors.WithMessagef(ErrInvalidSessionID, "%q", truncate(id)),
			"session ID must be 1 to %d characters", MaxIDLength)
	}
	for i, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case i > 0 && strings.ContainsRune("-_.:", c):
		default:
			return errors.WithHint(errors.WithMessagef(ErrInvalidSessionID, "%q", truncate(id)),
				"session ID must start with a letter or a digit, followed by letters, digits, or one of -_.:")
		}
	}
	return nil
}

func truncate(id string) string {
	if len(id) > 32 {
		return id[:32] + "..."
	}
	return id
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithContext returns a new context with the session
func WithContext(ctx context.Context, s Context) context.Context {
	return context.WithValue(ctx, keyContext, s)
}

// FromContext returns the session from the context, or nil
func FromContext(ctx context.Context) Context {
	if v, ok := ctx.Value(keyContext).(Context); ok {
		return v
	}
	return nil
}

// GetSessionID returns the session ID from the context,
// or empty string if the context has no session.
func GetSessionID(ctx context.Context) string {
	if v := FromContext(ctx); v != nil {
		return v.GetSessionID()
	}
	return ""
}

// MustSessionID returns the session ID from the context,
// or ErrInvalidSession.
func MustSessionID(ctx context.Context) (string, error) {
	id := GetSessionID(ctx)
	if id == "" {
		return "", errors.WithStack(ErrInvalidSession)
	}
	return id, nil
}

// NewID generates a new session ID using the flake ID generator.
func NewID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
