package redis

import (
	"context"
	"errors"
	"fmt"

	"opd/opd-service/internal/kv"

	goredis "github.com/redis/go-redis/v9"
)

const maxTxRetries = 10

type Store struct {
	client *goredis.Client
	prefix string
}

func NewStore(client *goredis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Write(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

// Update watches every key and retries when another client commits first.
func (s *Store) Update(ctx context.Context, keys []string, fn func(tx kv.Tx) error) error {
	keys = kv.SortedKeys(keys)
	watched := make([]string, len(keys))
	for i, key := range keys {
		watched[i] = s.key(key)
	}

	txf := func(tx *goredis.Tx) error {
		values, err := tx.MGet(ctx, watched...).Result()
		if err != nil {
			return err
		}
		buf := kv.NewBuffer(keys)
		for i, raw := range values {
			if str, ok := raw.(string); ok {
				buf.Load(keys[i], []byte(str))
			}
		}
		if err := fn(buf); err != nil {
			return err
		}
		writes := buf.Writes()
		if len(writes) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, entry := range writes {
				pipe.Set(ctx, s.key(entry.Key), entry.Value, 0)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, watched...)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %v: %w", keys, goredis.TxFailedErr)
}

func (s *Store) Close() error {
	return s.client.Close()
}
