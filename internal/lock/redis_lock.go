// Package lock provides expiring advisory edit locks over ideas, backed by
// Redis TTLs. A lock forecloses concurrent edits cooperatively; it is not a
// correctness mechanism; version checks on write are.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when an acquire or release collides with a lock owned
// by a different collaborator.
var ErrHeld = errors.New("lock held by another collaborator")

// Lock describes the holder of an advisory lock.
type Lock struct {
	OwnerID    string    `json:"owner_id"`
	OwnerName  string    `json:"owner_name"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// RedisService stores advisory locks in Redis, one key per idea, expiring
// via TTL so a crashed client can never wedge a card.
type RedisService struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisService connects to Redis and returns a lock service.
func NewRedisService(redisURL string, ttl time.Duration) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisServiceWithClient(client, ttl), nil
}

// NewRedisServiceWithClient wraps an existing Redis client.
func NewRedisServiceWithClient(client *redis.Client, ttl time.Duration) *RedisService {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisService{
		client: client,
		prefix: "idealock:",
		ttl:    ttl,
	}
}

func (s *RedisService) key(ideaID string) string {
	return s.prefix + ideaID
}

// Acquire claims the lock on an idea for ownerID. Re-acquiring a lock you
// already hold refreshes its TTL (heartbeat on focus); acquiring a lock held
// by someone else returns ErrHeld along with the current holder.
func (s *RedisService) Acquire(ctx context.Context, ideaID, ownerID, ownerName string) (Lock, error) {
	now := time.Now()
	lock := Lock{
		OwnerID:    ownerID,
		OwnerName:  ownerName,
		AcquiredAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}
	payload, err := json.Marshal(lock)
	if err != nil {
		return Lock{}, fmt.Errorf("marshal lock: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(ideaID), payload, s.ttl).Result()
	if err != nil {
		return Lock{}, fmt.Errorf("acquire lock: %w", err)
	}
	if ok {
		return lock, nil
	}

	current, err := s.Get(ctx, ideaID)
	if err != nil {
		return Lock{}, err
	}
	if current == nil {
		// Holder expired between SETNX and GET; one retry wins or loses cleanly.
		return s.Acquire(ctx, ideaID, ownerID, ownerName)
	}
	if current.OwnerID != ownerID {
		return *current, ErrHeld
	}

	// Same owner: refresh.
	if err := s.client.Set(ctx, s.key(ideaID), payload, s.ttl).Err(); err != nil {
		return Lock{}, fmt.Errorf("refresh lock: %w", err)
	}
	return lock, nil
}

// Heartbeat extends the TTL of a lock the owner already holds.
func (s *RedisService) Heartbeat(ctx context.Context, ideaID, ownerID string) (Lock, error) {
	current, err := s.Get(ctx, ideaID)
	if err != nil {
		return Lock{}, err
	}
	if current == nil || current.OwnerID != ownerID {
		return Lock{}, ErrHeld
	}

	current.ExpiresAt = time.Now().Add(s.ttl)
	payload, err := json.Marshal(current)
	if err != nil {
		return Lock{}, fmt.Errorf("marshal lock: %w", err)
	}
	if err := s.client.Set(ctx, s.key(ideaID), payload, s.ttl).Err(); err != nil {
		return Lock{}, fmt.Errorf("heartbeat lock: %w", err)
	}
	return *current, nil
}

// Release drops the lock if ownerID holds it. Releasing an absent lock is a
// no-op; releasing someone else's lock returns ErrHeld.
func (s *RedisService) Release(ctx context.Context, ideaID, ownerID string) error {
	current, err := s.Get(ctx, ideaID)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}
	if current.OwnerID != ownerID {
		return ErrHeld
	}
	if err := s.client.Del(ctx, s.key(ideaID)).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Get returns the current lock on an idea, or nil when unlocked. Expired
// locks are simply absent from Redis.
func (s *RedisService) Get(ctx context.Context, ideaID string) (*Lock, error) {
	payload, err := s.client.Get(ctx, s.key(ideaID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lock: %w", err)
	}

	var lock Lock
	if err := json.Unmarshal([]byte(payload), &lock); err != nil {
		return nil, fmt.Errorf("unmarshal lock: %w", err)
	}
	return &lock, nil
}

// Ping checks if Redis is reachable.
func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisService) Close() error {
	return s.client.Close()
}
