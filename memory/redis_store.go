package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// RedisShortTermConfig configures the Redis-backed short-term store.
type RedisShortTermConfig struct {
	// Addr of the Redis server.
	Addr string `yaml:"addr" json:"addr"`
	// Password, empty for none.
	Password string `yaml:"password" json:"password"`
	// DB number.
	DB int `yaml:"db" json:"db"`
	// PoolSize caps the connection pool.
	PoolSize int `yaml:"pool_size" json:"pool_size"`
	// MinIdleConns keeps warm connections around.
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`
	// KeyPrefix namespaces the store's keys.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// RedisShortTerm is a ShortTermStore backed by Redis. Records live in a
// hash keyed by id; insertion order lives in a sorted set scored by a
// monotonic sequence counter. Re-putting an id keeps its original
// position.
type RedisShortTerm struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisShortTerm connects to Redis and verifies the connection.
func NewRedisShortTerm(config RedisShortTermConfig, logger *zap.Logger) (*RedisShortTerm, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "memflow"
	}

	return &RedisShortTerm{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("store", "short_term_redis")),
	}, nil
}

// Close releases the Redis connection pool.
func (s *RedisShortTerm) Close() error {
	return s.client.Close()
}

func (s *RedisShortTerm) recordsKey() string { return s.prefix + ":records" }
func (s *RedisShortTerm) orderKey() string   { return s.prefix + ":order" }
func (s *RedisShortTerm) seqKey() string     { return s.prefix + ":seq" }

func (s *RedisShortTerm) Put(ctx context.Context, rec *types.TaskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to advance sequence: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.recordsKey(), rec.ID, data)
	// NX keeps the original score, so updates do not reorder eviction.
	pipe.ZAddNX(ctx, s.orderKey(), redis.Z{Score: float64(seq), Member: rec.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

func (s *RedisShortTerm) Get(ctx context.Context, id string) (*types.TaskRecord, error) {
	data, err := s.client.HGet(ctx, s.recordsKey(), id).Bytes()
	if err == redis.Nil {
		return nil, types.NewRecordNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	var rec types.TaskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

func (s *RedisShortTerm) All(ctx context.Context) ([]*types.TaskRecord, error) {
	ids, err := s.client.ZRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list record ids: %w", err)
	}
	if len(ids) == 0 {
		return []*types.TaskRecord{}, nil
	}

	values, err := s.client.HMGet(ctx, s.recordsKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	out := make([]*types.TaskRecord, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec types.TaskRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.Warn("skipping undecodable record", zap.Error(err))
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (s *RedisShortTerm) Remove(ctx context.Context, id string) error {
	removed, err := s.client.HDel(ctx, s.recordsKey(), id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove record: %w", err)
	}
	if removed == 0 {
		return types.NewRecordNotFound(id)
	}
	if err := s.client.ZRem(ctx, s.orderKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to remove record from order: %w", err)
	}
	return nil
}

func (s *RedisShortTerm) EvictOldest(ctx context.Context) (*types.TaskRecord, error) {
	ids, err := s.client.ZRange(ctx, s.orderKey(), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to find oldest record: %w", err)
	}
	if len(ids) == 0 {
		return nil, types.NewRecordNotFound("")
	}

	rec, err := s.Get(ctx, ids[0])
	if err != nil {
		return nil, err
	}
	if err := s.Remove(ctx, ids[0]); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *RedisShortTerm) Size(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.recordsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(n), nil
}

func (s *RedisShortTerm) Clear(ctx context.Context) (int, error) {
	n, err := s.Size(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.client.Del(ctx, s.recordsKey(), s.orderKey(), s.seqKey()).Err(); err != nil {
		return 0, fmt.Errorf("failed to clear store: %w", err)
	}
	return n, nil
}
