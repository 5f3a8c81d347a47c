package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository implements Repository using Redis as the backing store.
// Sessions are stored as JSON under key: "session:<id>" with TTL =
// expiresAt - now, so Redis itself evicts expired records and
// DeleteExpired has nothing to count.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based session repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(id string) string {
	return r.prefix + id
}

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	exp := time.Until(s.ExpiresAt)
	if exp <= 0 {
		// ensure a minimal TTL so Redis won't store expired sessions
		exp = time.Second
	}
	if err := r.client.Set(ctx, r.key(s.ID), b, exp).Err(); err != nil {
		return err
	}
	// secondary index for bulk invalidation on password change. The set
	// carries the TTL of the newest session so it cannot outlive evicted
	// members indefinitely.
	setKey := r.prefix + "user:" + s.UserID
	if err := r.client.SAdd(ctx, setKey, s.ID).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, setKey, exp).Err()
}

func (r *RedisRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	b, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	// If session expired from perspective of stored value, treat as missing
	if time.Now().UTC().After(s.ExpiresAt) {
		_ = r.client.Del(ctx, r.key(id)).Err()
		return nil, nil
	}
	return &s, nil
}

func (r *RedisRepository) DeleteByID(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

func (r *RedisRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	setKey := r.prefix + "user:" + userID
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	var n int64
	for _, id := range ids {
		deleted, err := r.client.Del(ctx, r.key(id)).Result()
		if err != nil {
			return n, err
		}
		n += deleted
	}
	_ = r.client.Del(ctx, setKey).Err()
	return n, nil
}

// DeleteExpired is a no-op for Redis: TTL eviction already removed them.
func (r *RedisRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
