package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"mailscout/models"
)

const (
	batchKeyPrefix    = "mailscout:batch:"
	maxAppendAttempts = 20
)

// RedisBatchStore keeps batches as JSON values that expire after ttl of
// inactivity.
type RedisBatchStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBatchStore(client *redis.Client, ttl time.Duration) *RedisBatchStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisBatchStore{client: client, ttl: ttl}
}

func batchKey(id string) string {
	return batchKeyPrefix + id
}

func (s *RedisBatchStore) Create(ctx context.Context) (*models.BatchJob, error) {
	b := newBatch()
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, batchKey(b.ID), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store batch: %w", err)
	}
	return b, nil
}

func (s *RedisBatchStore) Get(ctx context.Context, id string) (*models.BatchJob, error) {
	return s.load(ctx, s.client, id)
}

// AppendEntries adds entries under optimistic locking so concurrent appends
// to one batch don't lose writes.
func (s *RedisBatchStore) AppendEntries(ctx context.Context, id string, entries []models.PersonIdentity) (*models.BatchJob, error) {
	key := batchKey(id)
	var updated *models.BatchJob

	txf := func(tx *redis.Tx) error {
		b, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		b.Entries = append(b.Entries, entries...)
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			updated = b
		}
		return err
	}

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("append to batch %s: too much contention", id)
}

func (s *RedisBatchStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, batchKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if n == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (s *RedisBatchStore) load(ctx context.Context, c redis.Cmdable, id string) (*models.BatchJob, error) {
	data, err := c.Get(ctx, batchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load batch: %w", err)
	}
	var b models.BatchJob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", id, err)
	}
	if b.Entries == nil {
		b.Entries = []models.PersonIdentity{}
	}
	return &b, nil
}
