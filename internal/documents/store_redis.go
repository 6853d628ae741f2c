package documents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tranchebook/pkg/platform/sentinel"
)

const docKeyPrefix = "tranchebook:documents:"

// RedisStore keeps documents in redis, for deployments that treat the
// registry as a cacheable mirror of an external source of truth.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, name string) (Document, error) {
	raw, err := s.client.Get(ctx, docKeyPrefix+name).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Document{}, sentinel.ErrNotFound
		}
		return Document{}, fmt.Errorf("get document %q: %w", name, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode document %q: %w", name, err)
	}
	return doc, nil
}

func (s *RedisStore) Set(ctx context.Context, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %q: %w", doc.Name, err)
	}
	if err := s.client.Set(ctx, docKeyPrefix+doc.Name, raw, 0).Err(); err != nil {
		return fmt.Errorf("set document %q: %w", doc.Name, err)
	}
	return nil
}
