/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix     = "plottwist:"
	defaultTxAttempts = 10
)

// Redis stores each document under its own key and announces every write
// on a pub/sub channel named after the path. A deletion is announced with
// an empty payload. Expiry is announced by Redis itself on the key's
// keyspace channel, see EnableExpiryEvents.
type Redis struct {
	rdb        *redis.Client
	prefix     string
	ttl        time.Duration
	txAttempts int
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithPrefix namespaces every key and channel.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithTTL expires documents that have not been written for ttl.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// NewRedis wraps an existing client. The caller keeps ownership of rdb
// until Close is called.
func NewRedis(rdb *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		rdb:        rdb,
		prefix:     defaultPrefix,
		txAttempts: defaultTxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(path string) string {
	return r.prefix + "doc:" + path
}

func (r *Redis) channel(path string) string {
	return r.prefix + "watch:" + path
}

// expiredChannel is the keyspace notification channel Redis uses for the
// document at path.
func (r *Redis) expiredChannel(path string) string {
	return fmt.Sprintf("__keyspace@%d__:%s", r.rdb.Options().DB, r.key(path))
}

// EnableExpiryEvents turns on the keyspace notifications Watch needs to see
// documents expire, keeping any flags already configured. Servers that
// refuse CONFIG return an error and expiry then goes unannounced.
func (r *Redis) EnableExpiryEvents(ctx context.Context) error {
	const param = "notify-keyspace-events"

	current, err := r.rdb.ConfigGet(ctx, param).Result()
	if err != nil {
		return err
	}

	flags := current[param]
	want := flags
	if !strings.Contains(want, "K") {
		want += "K"
	}
	if !strings.ContainsAny(want, "xA") {
		want += "x"
	}
	if want == flags {
		return nil
	}

	return r.rdb.ConfigSet(ctx, param, want).Err()
}

func (r *Redis) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := r.rdb.Get(ctx, r.key(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (r *Redis) Create(ctx context.Context, path string, data []byte) error {
	ok, err := r.rdb.SetNX(ctx, r.key(path), data, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return r.rdb.Publish(ctx, r.channel(path), data).Err()
}

func (r *Redis) Set(ctx context.Context, path string, data []byte) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(path), data, r.ttl)
		pipe.Publish(ctx, r.channel(path), data)
		return nil
	})
	return err
}

func (r *Redis) Update(ctx context.Context, path string, fn UpdateFunc) error {
	key := r.key(path)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, r.ttl)
			pipe.Publish(ctx, r.channel(path), next)
			return nil
		})
		return err
	}

	for i := 0; i < r.txAttempts; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return ErrConflict
}

func (r *Redis) Delete(ctx context.Context, path string) error {
	n, err := r.rdb.Del(ctx, r.key(path)).Result()
	if err != nil || n == 0 {
		return err
	}
	return r.rdb.Publish(ctx, r.channel(path), "").Err()
}

func (r *Redis) Watch(ctx context.Context, path string) (<-chan Snapshot, error) {
	expired := r.expiredChannel(path)
	pubsub := r.rdb.Subscribe(ctx, r.channel(path), expired)

	// Wait for both subscriptions to be confirmed so no write between here
	// and the initial read goes unnoticed.
	for i := 0; i < 2; i++ {
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return nil, err
		}
	}

	initial := Snapshot{Path: path}
	data, err := r.Get(ctx, path)
	switch {
	case err == nil:
		initial.Exists = true
		initial.Data = data
	case errors.Is(err, ErrNotFound):
	default:
		initial.Err = err
	}

	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)
		defer pubsub.Close()

		if !send(ctx, out, initial) || initial.Err != nil {
			return
		}

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					send(ctx, out, Snapshot{Path: path, Err: ErrClosed})
					return
				}
				snap := Snapshot{Path: path}
				if msg.Channel == expired {
					if msg.Payload != "expired" {
						continue
					}
				} else if msg.Payload != "" {
					snap.Exists = true
					snap.Data = []byte(msg.Payload)
				}
				if !send(ctx, out, snap) {
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
