package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iago/assessment-dispatch/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisSnapshotConfig struct {
	URL string
	Key string
}

// RedisSnapshotStore keeps the queue snapshot as a Redis list, one encoded job per element.
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
}

func NewRedisSnapshotStore(ctx context.Context, cfg RedisSnapshotConfig) (*RedisSnapshotStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}
	if cfg.Key == "" {
		cfg.Key = "assessment_dispatch:queue"
	}

	options, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisSnapshotStore{client: client, key: cfg.Key}, nil
}

// Save replaces the stored list atomically.
func (s *RedisSnapshotStore) Save(ctx context.Context, jobs []domain.Job) error {
	values := make([]any, 0, len(jobs))
	for _, job := range jobs {
		encoded, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("encode job %d: %w", job.ID, err)
		}
		values = append(values, string(encoded))
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.RPush(ctx, s.key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save queue snapshot: %w", err)
	}
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context) ([]domain.Job, error) {
	entries, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load queue snapshot: %w", err)
	}

	jobs := make([]domain.Job, 0, len(entries))
	for i, entry := range entries {
		var job domain.Job
		if err := json.Unmarshal([]byte(entry), &job); err != nil {
			return nil, fmt.Errorf("decode queue entry %d: %w", i, err)
		}
		jobs = append(jobs, job)
	}
	if err := checkOrder(jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
