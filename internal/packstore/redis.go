package packstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Key holds the pack; auxiliary outputs live in the hash Key+":aux"
	Key string
}

// DefaultRedisConfig returns a default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr: "localhost:6379",
		Key:  "respack:pack",
	}
}

// RedisStore keeps the pack under one redis key so several machines can
// share a build
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects and pings the server
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisStoreWithClient(client, config.Key), nil
}

// NewRedisStoreWithClient creates a store over an existing client
func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisConfig().Key
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Open(ctx context.Context) (Pack, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return newBytesPack(data), nil
}

func (s *RedisStore) Write(ctx context.Context, write func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, buf.Bytes(), 0).Err()
}

func (s *RedisStore) WriteAux(ctx context.Context, name string, data []byte) error {
	return s.client.HSet(ctx, s.key+":aux", name, data).Err()
}

// Aux reads an auxiliary output back
func (s *RedisStore) Aux(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.key+":aux", name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *RedisStore) Describe() string { return "redis:" + s.key }

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
