// Package redis provides the Redis client and the vehicle read model
// the worker maintains from change events.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vehix/vehix/internal/config"
	"github.com/vehix/vehix/internal/domain"
)

// ErrNotCached indicates the vehicle is not present in the read model.
var ErrNotCached = errors.New("vehicle not cached")

// NewClient creates a Redis client and verifies connectivity.
func NewClient(cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Address()))
	return client, nil
}

const (
	vehicleKeyPrefix   = "vehix:readmodel:vehicle:"
	tombstoneKeyPrefix = "vehix:readmodel:deleted:"
)

// entry is a read-model record together with the occurredAt of the
// event that produced it, used for last-write-wins resolution.
type entry struct {
	Vehicle    domain.Vehicle `json:"vehicle"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// ReadModel stores the latest known state of each vehicle, keyed by
// id. Events can arrive out of commit order; every write is guarded by
// the event's occurredAt so an older event never overwrites newer
// state, and applying the same event twice is a no-op.
type ReadModel struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewReadModel creates a read model with the given entry TTL.
func NewReadModel(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ReadModel {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &ReadModel{
		client: client,
		ttl:    ttl,
		logger: logger.Named("read-model"),
	}
}

// maxTxRetries bounds the optimistic retries when concurrent handlers
// write the same vehicle. A loser that re-reads and finds newer state
// skips without writing, so contention drains fast.
const maxTxRetries = 5

// Upsert records the vehicle snapshot unless newer state (or a newer
// deletion) is already present. The compare and the write run in one
// WATCH/MULTI transaction so concurrent handlers for the same vehicle
// cannot interleave an older write over a newer one.
func (m *ReadModel) Upsert(ctx context.Context, v domain.Vehicle, occurredAt time.Time) error {
	key := vehicleKeyPrefix + v.ID
	tombKey := tombstoneKeyPrefix + v.ID

	txf := func(tx *redis.Tx) error {
		ts, err := m.tombstoneTime(ctx, tx, v.ID)
		if err != nil {
			return err
		}
		if !ts.IsZero() && !occurredAt.After(ts) {
			m.logger.Debug("Skipping upsert, vehicle deleted later", zap.String("id", v.ID))
			return nil
		}

		current, err := m.get(ctx, tx, v.ID)
		if err != nil && !errors.Is(err, ErrNotCached) {
			return err
		}
		if current != nil && !occurredAt.After(current.OccurredAt) {
			m.logger.Debug("Skipping upsert, newer state present", zap.String("id", v.ID))
			return nil
		}

		data, err := json.Marshal(entry{Vehicle: v, OccurredAt: occurredAt})
		if err != nil {
			return fmt.Errorf("failed to marshal read model entry: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, m.ttl)
			return nil
		})
		return err
	}

	if err := m.watch(ctx, txf, key, tombKey); err != nil {
		return fmt.Errorf("failed to store read model entry: %w", err)
	}
	return nil
}

// Delete removes the vehicle and records a tombstone so a late update
// event cannot resurrect it. Like Upsert, guard and write are one
// transaction.
func (m *ReadModel) Delete(ctx context.Context, id string, occurredAt time.Time) error {
	key := vehicleKeyPrefix + id
	tombKey := tombstoneKeyPrefix + id

	txf := func(tx *redis.Tx) error {
		ts, err := m.tombstoneTime(ctx, tx, id)
		if err != nil {
			return err
		}

		current, err := m.get(ctx, tx, id)
		if err != nil && !errors.Is(err, ErrNotCached) {
			return err
		}

		writeTombstone := occurredAt.After(ts)
		// A newer snapshot stays; everything else goes.
		removeEntry := current != nil && !current.OccurredAt.After(occurredAt)
		if !writeTombstone && !removeEntry {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if writeTombstone {
				stamp := occurredAt.UTC().Format(time.RFC3339Nano)
				pipe.Set(ctx, tombKey, stamp, m.ttl)
			}
			if removeEntry {
				pipe.Del(ctx, key)
			}
			return nil
		})
		return err
	}

	if err := m.watch(ctx, txf, key, tombKey); err != nil {
		return fmt.Errorf("failed to apply read model delete: %w", err)
	}
	return nil
}

// watch runs txf under WATCH on the given keys, retrying when a
// concurrent write invalidates the transaction.
func (m *ReadModel) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := m.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return errors.New("too many conflicting writes")
}

// Get returns the cached vehicle snapshot, ErrNotCached when absent.
func (m *ReadModel) Get(ctx context.Context, id string) (*domain.Vehicle, error) {
	e, err := m.get(ctx, m.client, id)
	if err != nil {
		return nil, err
	}
	return &e.Vehicle, nil
}

func (m *ReadModel) get(ctx context.Context, c redis.Cmdable, id string) (*entry, error) {
	val, err := c.Get(ctx, vehicleKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model entry: %w", err)
	}

	var e entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal read model entry: %w", err)
	}
	return &e, nil
}

func (m *ReadModel) tombstoneTime(ctx context.Context, c redis.Cmdable, id string) (time.Time, error) {
	val, err := c.Get(ctx, tombstoneKeyPrefix+id).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read tombstone: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse tombstone timestamp: %w", err)
	}
	return ts, nil
}
