package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// Config for the history store
type Config struct {
	// RedisURL is the redis://host:port/db URL,
	// the history is kept in memory when empty
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	// Prefix is the keys prefix in Redis
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// MaxRecords per session
	MaxRecords int `json:"max_records,omitempty" yaml:"max_records,omitempty"`
}

// New returns the history store described by cfg
func New(ctx context.Context, cfg *Config) (HistoryStore, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.RedisURL == "" {
		return NewMemoryStore(cfg.MaxRecords), nil
	}

	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis URL")
	}
	client := redis.NewClient(options)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WithHintf(errors.Wrap(err, "failed to connect to Redis"),
			"make sure Redis is running at %s", options.Addr)
	}

	logger.KV(xlog.INFO, "status", "connected", "redis", options.Addr, "prefix", cfg.Prefix)
	return NewRedisStore(client, cfg.Prefix, cfg.MaxRecords), nil
}
