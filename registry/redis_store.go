package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	redis "github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis; records are JSON values expiring after the idle TTL.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "mcpsession:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) keyRecord(key string) string { return s.prefix + "session:" + key }
func (s *RedisStore) keyIndex() string            { return s.prefix + "sessions" }

func (s *RedisStore) Put(ctx context.Context, r *Record) error {
	stamp(r, time.Now())
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keyRecord(r.Key), data, s.ttl)
	pipe.SAdd(ctx, s.keyIndex(), r.Key)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, s.keyRecord(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r := &Record{}
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("failed to decode session record %v: %w", key, err)
	}
	return r, nil
}

func (s *RedisStore) Touch(ctx context.Context, key string, at time.Time) error {
	r, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	r.LastUsedAt = at
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyRecord(key), data, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.keyRecord(key))
	pipe.SRem(ctx, s.keyIndex(), key)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns live records and prunes index entries whose record expired.
func (s *RedisStore) List(ctx context.Context) ([]*Record, error) {
	keys, err := s.rdb.SMembers(ctx, s.keyIndex()).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	sort.Strings(keys)
	var ret []*Record
	var stale []interface{}
	for _, key := range keys {
		r, err := s.Get(ctx, key)
		if err == ErrNotFound {
			stale = append(stale, key)
			continue
		}
		if err != nil {
			return nil, err
		}
		ret = append(ret, r)
	}
	if len(stale) > 0 {
		if err := s.rdb.SRem(ctx, s.keyIndex(), stale...).Err(); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// String returns a diagnostic representation of the store config.
func (s *RedisStore) String() string {
	return fmt.Sprintf("RedisStore{prefix=%s ttl=%s}", s.prefix, s.ttl)
}
