package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pysugar/service-interactor/internal/config"
	"github.com/redis/go-redis/v9"
)

// Store persists encoded sessions by ID.
type Store interface {
	Load(ctx context.Context, id string) ([]byte, bool, error)
	Save(ctx context.Context, id string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct{ c *gocache.Cache }

// NewMemoryStore creates a store whose entries expire after defaultTTL
// unless saved with their own TTL.
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *MemoryStore) Load(ctx context.Context, id string) ([]byte, bool, error) {
	v, ok := m.c.Get(id)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	return b, true, nil
}

func (m *MemoryStore) Save(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	m.c.Set(id, append([]byte(nil), data...), ttl)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.c.Delete(id)
	return nil
}

// RedisStore keeps sessions in Redis under a key prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	if s.prefix == "" {
		return id
	}
	return s.prefix + ":" + id
}

func (s *RedisStore) Load(ctx context.Context, id string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(id), data, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// Open builds the store selected by cfg. Redis is pinged before use.
func Open(ctx context.Context, cfg config.SessionConfig) (Store, error) {
	switch cfg.Backend {
	case config.SessionRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("session: redis ping failed: %w", err)
		}
		return NewRedisStore(client, "session"), nil
	case config.SessionMemory, "":
		return NewMemoryStore(cfg.TTL), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrInvalidSessionBackend, cfg.Backend)
}
