package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/kgqa/store"
)

// RedisRecordStore implements store.RecordStore using Redis. Records live under
// their own key; a sorted set scored by creation time indexes them.
type RedisRecordStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "kgqa:"
	TTL      time.Duration // Expiration for records, default 0 (no expiration)
}

// NewRedisRecordStore creates a new Redis record store
func NewRedisRecordStore(opts RedisOptions) *RedisRecordStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "kgqa:"
	}

	return &RedisRecordStore{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

// NewRedisRecordStoreFromURL parses a redis:// URL such as STORE_DSN.
func NewRedisRecordStoreFromURL(rawURL, prefix string, ttl time.Duration) (*RedisRecordStore, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisRecordStore(RedisOptions{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
		Prefix:   prefix,
		TTL:      ttl,
	}), nil
}

func (s *RedisRecordStore) recordKey(id string) string {
	return fmt.Sprintf("%srecord:%s", s.prefix, id)
}

func (s *RedisRecordStore) indexKey() string {
	return s.prefix + "records"
}

// Save stores a record
func (s *RedisRecordStore) Save(ctx context.Context, record *store.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(record.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(record.CreatedAt.UnixMilli()),
		Member: record.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save record to redis: %w", err)
	}
	return nil
}

// Load retrieves a record by ID
func (s *RedisRecordStore) Load(ctx context.Context, id string) (*store.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load record from redis: %w", err)
	}

	var record store.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &record, nil
}

// List returns records newest first. Index entries whose record expired are
// pruned from the index.
func (s *RedisRecordStore) List(ctx context.Context, opts store.ListOptions) ([]*store.Record, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if len(ids) == 0 {
		return []*store.Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}

	// MGet returns nil for missing keys.
	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}

	var stale []any
	records := make([]*store.Record, 0, len(results))
	for i, result := range results {
		data, ok := result.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var record store.Record
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			continue
		}
		records = append(records, &record)
	}

	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), stale...).Err()
	}

	return store.Sort(records, opts), nil
}

// Delete removes a record
func (s *RedisRecordStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.recordKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

// Clear removes all records
func (s *RedisRecordStore) Clear(ctx context.Context) error {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get records for clearing: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.recordKey(id))
	}
	pipe.Del(ctx, s.indexKey())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisRecordStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client
func (s *RedisRecordStore) Close() error {
	return s.client.Close()
}

var _ store.RecordStore = (*RedisRecordStore)(nil)
