package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KamdynS/go-structured/transcript"
	rds "github.com/redis/go-redis/v9"
)

const listPageSize = 100

// Store keeps each record as a JSON string under prefix:record:<id> and
// indexes IDs in a sorted set scored by start time.
type Store struct {
	client rds.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewStore(client rds.UniversalClient, ttl time.Duration, prefix string) *Store {
	if prefix == "" {
		prefix = "structured"
	}
	return &Store{client: client, ttl: ttl, prefix: prefix}
}

func (s *Store) recordKey(id string) string { return s.prefix + ":record:" + id }
func (s *Store) indexKey() string          { return s.prefix + ":index" }

func (s *Store) Save(ctx context.Context, r transcript.Record) error {
	if r.ID == "" {
		r.ID = transcript.NewID()
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe rds.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(r.ID), b, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), rds.Z{Score: float64(r.StartedAt.UnixNano()), Member: r.ID})
		return nil
	})
	return err
}

func (s *Store) Get(ctx context.Context, id string) (transcript.Record, error) {
	val, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, rds.Nil) {
			return transcript.Record{}, transcript.ErrNotFound
		}
		return transcript.Record{}, err
	}
	var r transcript.Record
	if err := json.Unmarshal(val, &r); err != nil {
		return transcript.Record{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return r, nil
}

// List reads the index newest first. IDs whose record has expired are
// dropped from the index as they are found, and the index is read further so
// expired entries do not shorten the result below limit.
func (s *Store) List(ctx context.Context, limit int) ([]transcript.Record, error) {
	page := int64(limit)
	if limit <= 0 {
		page = listPageSize
	}

	var out []transcript.Record
	for start := int64(0); ; {
		ids, err := s.client.ZRevRange(ctx, s.indexKey(), start, start+page-1).Result()
		if err != nil {
			return nil, err
		}

		removed := int64(0)
		for _, id := range ids {
			r, err := s.Get(ctx, id)
			if errors.Is(err, transcript.ErrNotFound) {
				if s.client.ZRem(ctx, s.indexKey(), id).Err() == nil {
					removed++
				}
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}

		if int64(len(ids)) < page {
			return out, nil
		}
		start += int64(len(ids)) - removed
	}
}

// Clear removes every record under the store's prefix.
func (s *Store) Clear(ctx context.Context) error {
	var cursor uint64
	keys := []string{s.indexKey()}
	for {
		ks, cur, err := s.client.Scan(ctx, cursor, s.prefix+":record:*", 100).Result()
		if err != nil {
			return err
		}
		keys = append(keys, ks...)
		if cur == 0 {
			break
		}
		cursor = cur
	}
	return s.client.Del(ctx, keys...).Err()
}

var _ transcript.Store = (*Store)(nil)
