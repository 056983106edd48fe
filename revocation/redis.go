package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces denylist keys
const DefaultKeyPrefix = "auth:revoked:"

var ErrEmptyTokenID = errors.New("revocation: empty token id")

// Redis keeps revoked token ids with a TTL equal to the time left on the
// token, so entries expire on their own.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{
		client: client,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
	}
}

// NewRedisFromURL dials the server described by a redis:// URL
func NewRedisFromURL(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("revocation: parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts)), nil
}

func (r *Redis) WithPrefix(prefix string) *Redis {
	if prefix != "" {
		r.prefix = prefix
	}
	return r
}

func (r *Redis) WithClock(now func() time.Time) *Redis {
	if now != nil {
		r.now = now
	}
	return r
}

// Ping checks connectivity
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Revoke stores jti until the given time. Tokens that already expired are
// not stored.
func (r *Redis) Revoke(ctx context.Context, jti string, until time.Time) error {
	if jti == "" {
		return ErrEmptyTokenID
	}

	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if ttl < time.Second {
		ttl = time.Second
	}

	if err := r.client.Set(ctx, r.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revocation: set %s: %w", jti, err)
	}
	return nil
}

func (r *Redis) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, r.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation: exists %s: %w", jti, err)
	}
	return n > 0, nil
}

func (r *Redis) key(jti string) string {
	return r.prefix + jti
}
