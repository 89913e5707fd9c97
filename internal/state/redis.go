// Package state keeps the last decoded record per container in Redis,
// read back by the observability API.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/config"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

const keyPrefix = "container:"

// ErrNotFound reports that no record has been seen for a container.
var ErrNotFound = fmt.Errorf("container: no record")

type LastValueStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLastValueStore(cfg *config.Config) *LastValueStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &LastValueStore{rdb: rdb, ttl: cfg.RedisTTL}
}

func (s *LastValueStore) Close() error { return s.rdb.Close() }

// Set stores the record's textual form under its container id.
func (s *LastValueStore) Set(ctx context.Context, r *model.Record) error {
	value, err := json.Marshal(r.Fields())
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyPrefix+r.ISO6346, value, s.ttl).Err()
}

// Get returns the last stored field map for a container id.
func (s *LastValueStore) Get(ctx context.Context, iso6346 string) (map[string]string, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+iso6346).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
