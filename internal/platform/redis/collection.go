package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// maxTxAttempts bounds optimistic-lock retries when a watched key changes
// between read and write.
const maxTxAttempts = 8

// ErrTxContention is returned when a collection kept changing under Mutate.
var ErrTxContention = errors.New("redis collection: too much write contention")

// Collection stores a whole list of T as one JSON document under a single key.
// Mutations run under WATCH/MULTI so a read-check-write sequence is atomic.
type Collection[T any] struct {
	client redis.UniversalClient
	key    string
}

// NewCollection binds a collection to key.
func NewCollection[T any](client redis.UniversalClient, key string) *Collection[T] {
	return &Collection[T]{client: client, key: key}
}

// Load returns the current items. A missing key is an empty collection.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	return c.read(ctx, c.client)
}

// Mutate applies fn to the current items and writes the result back, retrying
// when another writer modified the key concurrently. An error from fn aborts
// without writing.
func (c *Collection[T]) Mutate(ctx context.Context, fn func(items []T) ([]T, error)) error {
	txf := func(tx *redis.Tx) error {
		items, err := c.read(ctx, tx)
		if err != nil {
			return err
		}
		next, err := fn(items)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", c.key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key, payload, 0)
			return nil
		})
		return err
	}

	for range maxTxAttempts {
		err := c.client.Watch(ctx, txf, c.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTxContention
}

func (c *Collection[T]) read(ctx context.Context, cmd redis.Cmdable) ([]T, error) {
	raw, err := cmd.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.key, err)
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.key, err)
	}
	return items, nil
}
