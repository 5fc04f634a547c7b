package redisaudit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/authzkit/pkg/audit"
)

// Config holds the stream sink settings, loaded from the environment with
// pkg/config.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	// Stream is the stream key events append to. MaxLen caps its length
	// with approximate trimming; zero keeps the stream unbounded.
	Stream string `env:"AUDIT_STREAM" envDefault:"authz:audit"`
	MaxLen int64  `env:"AUDIT_STREAM_MAXLEN" envDefault:"0"`
}

// Connect establishes the Redis client, retrying until the server is ready
// or the connect timeout lapses.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseConnString, err)
	}

	for range cfg.RetryAttempts {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		default:
			time.Sleep(cfg.RetryInterval)
		}
	}
	return nil, ErrRedisNotReady
}

// Sink appends audit events to a Redis stream.
type Sink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewSink creates the sink over a connected client.
func NewSink(client *redis.Client, cfg Config) *Sink {
	if client == nil {
		panic("redisaudit: client cannot be nil")
	}
	return &Sink{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}
}

// Record appends one event. Field values are flat strings so stream
// entries stay greppable with redis-cli and consumable without a schema.
func (s *Sink) Record(ctx context.Context, e audit.Event) error {
	add := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":        e.ID,
			"time":      e.Time.UTC().Format(time.RFC3339Nano),
			"principal": e.Principal,
			"operation": e.Operation,
			"domain":    e.Domain,
			"entity":    e.Entity,
			"audit_ref": e.AuditRef,
		},
	}
	if s.maxLen > 0 {
		add.MaxLen = s.maxLen
		add.Approx = true
	}
	return s.client.XAdd(ctx, add).Err()
}
