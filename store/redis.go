package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL is how long run records are retained. Bridge runs are
// operational breadcrumbs, not an accounting system of record.
const DefaultTTL = 30 * 24 * time.Hour

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore persists run records in Redis. Each record lives as JSON
// at cctp:run:{id}; an index set per status at cctp:runs:{status} holds
// the ids, and records move between sets when their status changes.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection with a
// ping before returning.
func NewRedisStore(opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB))

	return &RedisStore{
		client: client,
		ttl:    opts.TTL,
		logger: logger,
	}, nil
}

func runKey(id uuid.UUID) string {
	return "cctp:run:" + id.String()
}

func statusKey(status string) string {
	return "cctp:runs:" + status
}

// SaveRun upserts rec. When the status changed since the last save, the
// id is moved from the old status index to the new one.
func (s *RedisStore) SaveRun(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	prev, err := s.GetRun(ctx, rec.ID)
	if err != nil && !errors.Is(err, ErrRunNotFound) {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, runKey(rec.ID), data, s.ttl)
	if prev != nil && prev.Status != rec.Status {
		pipe.SRem(ctx, statusKey(prev.Status), rec.ID.String())
	}
	pipe.SAdd(ctx, statusKey(rec.Status), rec.ID.String())
	pipe.Expire(ctx, statusKey(rec.Status), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateTransfer loads the run, applies fn to one transfer, and saves
// the record back. Not atomic across concurrent writers.
func (s *RedisStore) UpdateTransfer(ctx context.Context, runID uuid.UUID, index int, fn func(*TransferRecord)) error {
	rec, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(rec.Transfers) {
		return fmt.Errorf("transfer index %d out of range for run %s", index, runID)
	}
	fn(&rec.Transfers[index])
	rec.UpdatedAt = time.Now().UTC()
	return s.SaveRun(ctx, rec)
}

// GetRun loads the record for id.
func (s *RedisStore) GetRun(ctx context.Context, id uuid.UUID) (*Record, error) {
	data, err := s.client.Get(ctx, runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}
	return &rec, nil
}

// ListRunsByStatus loads every record indexed under status. Index
// entries whose record has expired are dropped from the set as they
// are encountered.
func (s *RedisStore) ListRunsByStatus(ctx context.Context, status string) ([]*Record, error) {
	ids, err := s.client.SMembers(ctx, statusKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs with status %q: %w", status, err)
	}

	var out []*Record
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.logger.Warn("Dropping malformed run id from status index",
				zap.String("id", raw),
				zap.String("status", status))
			s.client.SRem(ctx, statusKey(status), raw)
			continue
		}
		rec, err := s.GetRun(ctx, id)
		if errors.Is(err, ErrRunNotFound) {
			s.client.SRem(ctx, statusKey(status), raw)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
