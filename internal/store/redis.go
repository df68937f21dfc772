package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string

	// Password is the Redis password (empty if no auth)
	Password string

	// DB is the Redis database number
	DB int

	// PoolSize is the connection pool size
	PoolSize int

	// KeyPrefix is the prefix for all snapshot keys
	KeyPrefix string
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig(addr string) *RedisConfig {
	return &RedisConfig{
		Addr:      addr,
		PoolSize:  10,
		KeyPrefix: "objrt:object:",
	}
}

// RedisStore keeps one hash per snapshot. The type name is stored in the
// __type field and every property as a JSON encoded field.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects a new client
func NewRedisStore(config *RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return NewRedisStoreFromClient(client, config.KeyPrefix)
}

// NewRedisStoreFromClient creates a store from an existing client
func NewRedisStoreFromClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "objrt:object:"
	}
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (s *RedisStore) fields(snap *Snapshot) (map[string]any, error) {
	fields := make(map[string]any, len(snap.Properties)+1)
	fields[typeField] = snap.Type
	for name, v := range snap.Properties {
		enc, err := encodeJSON(v)
		if err != nil {
			return nil, fmt.Errorf("property '%s': %w", name, err)
		}
		fields[name] = enc
	}
	return fields, nil
}

// Put replaces the hash under key in one transaction
func (s *RedisStore) Put(ctx context.Context, key string, snap *Snapshot) error {
	fields, err := s.fields(snap)
	if err != nil {
		return err
	}
	k := s.key(key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, fields)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put error: %w", err)
	}
	return nil
}

// Merge sets the listed fields of the hash under key
func (s *RedisStore) Merge(ctx context.Context, key string, snap *Snapshot) error {
	fields, err := s.fields(snap)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key(key), fields).Err(); err != nil {
		return fmt.Errorf("redis merge error: %w", err)
	}
	return nil
}

// Get reads the hash under key
func (s *RedisStore) Get(ctx context.Context, key string) (*Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	snap := &Snapshot{Type: fields[typeField], Properties: make(map[string]any, len(fields))}
	for name, raw := range fields {
		if name == typeField {
			continue
		}
		v, err := decodeJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("property '%s': %w", name, err)
		}
		snap.Properties[name] = v
	}
	return snap, nil
}

// Delete removes the hash under key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del error: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}
