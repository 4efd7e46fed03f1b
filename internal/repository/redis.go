package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pagepick/backend/internal/model"
)

const (
	redisSelectionKey = "pagepick:selection:%s"
	redisAllKey       = "pagepick:selections"
	redisByURLKey     = "pagepick:selections:url:%s"
)

// RedisStore keeps saved selections in Redis: one JSON value per selection
// plus sorted-set indexes scored by creation time.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// ConnectRedis opens a client and verifies it with PING.
func ConnectRedis(ctx context.Context, addr, password string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: timeout,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if pong != "PONG" {
		client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

// Save stores the selection and indexes it globally and by source URL.
func (s *RedisStore) Save(ctx context.Context, sel *model.SavedSelection) error {
	if err := validateForSave(sel); err != nil {
		return err
	}
	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("failed to serialize selection: %w", err)
	}

	score := float64(sel.CreatedAt.UnixNano())
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, fmt.Sprintf(redisSelectionKey, sel.ID), data, 0)
		pipe.ZAdd(ctx, redisAllKey, redis.Z{Score: score, Member: sel.ID})
		pipe.ZAdd(ctx, fmt.Sprintf(redisByURLKey, sel.SourceURL), redis.Z{Score: score, Member: sel.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save selection: %w", err)
	}
	return nil
}

// GetByID retrieves a selection by its ID.
func (s *RedisStore) GetByID(ctx context.Context, id string) (*model.SavedSelection, error) {
	val, err := s.client.Get(ctx, fmt.Sprintf(redisSelectionKey, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrSelectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get selection: %w", err)
	}

	sel := &model.SavedSelection{}
	if err := json.Unmarshal([]byte(val), sel); err != nil {
		return nil, fmt.Errorf("failed to parse selection: %w", err)
	}
	return sel, nil
}

// List returns selections newest first, only those for sourceURL when it is non-empty.
func (s *RedisStore) List(ctx context.Context, sourceURL string) ([]*model.SavedSelection, error) {
	index := redisAllKey
	if sourceURL != "" {
		index = fmt.Sprintf(redisByURLKey, sourceURL)
	}

	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list selections: %w", err)
	}
	selections := []*model.SavedSelection{}
	if len(ids) == 0 {
		return selections, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprintf(redisSelectionKey, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load selections: %w", err)
	}

	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// index entry without a value, skip
			continue
		}
		sel := &model.SavedSelection{}
		if err := json.Unmarshal([]byte(str), sel); err != nil {
			return nil, fmt.Errorf("failed to parse selection: %w", err)
		}
		selections = append(selections, sel)
	}
	return selections, nil
}

// Delete removes a selection and its index entries.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	sel, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, fmt.Sprintf(redisSelectionKey, id))
		pipe.ZRem(ctx, redisAllKey, id)
		pipe.ZRem(ctx, fmt.Sprintf(redisByURLKey, sel.SourceURL), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete selection: %w", err)
	}
	return nil
}
