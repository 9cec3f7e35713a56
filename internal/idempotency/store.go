package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound means no result is stored under the key.
var ErrNotFound = errors.New("idempotency key not found")

// Store remembers the caller-visible result of a completed pipeline run so a
// retried order with the same idempotency key replays the stored result
// instead of settling twice.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, result []byte) error
}

// MemoryStore is the in-process implementation used when no Redis URL is
// configured, and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string][]byte)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[key]
	if !ok {
		return nil, ErrNotFound
	}
	return result, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = result
	return nil
}

// RedisStore shares idempotency state across gateway replicas.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.Get(ctx, "idem:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return result, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, result []byte) error {
	if err := s.client.Set(ctx, "idem:"+key, result, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Marshal normalizes any caller-visible result for storage.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal restores a stored result.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
