package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"spc_monitor/internal/model"
)

const (
	recentKey   = "chains:recent"
	latestKey   = "chains:latest"
	recentLimit = 1000
	eventTTL    = time.Hour
)

// ChainStore keeps a log of trigger chain events in redis: the most recent
// events overall, the latest event per trigger and the last event per chain.
type ChainStore struct {
	client *redis.Client
}

func NewChainStore(addr, password string, db int) *ChainStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &ChainStore{client: client}
}

func (s *ChainStore) Check(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *ChainStore) Stop() error {
	return s.client.Close()
}

func latestTriggerKey(trigger string) string {
	return latestKey + ":" + trigger
}

func chainKey(id string) string {
	return "chains:chain:" + id
}

// Save records events in a single pipeline.
func (s *ChainStore) Save(ctx context.Context, events ...model.ChainEvent) error {
	if len(events) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal chain event: %w", err)
		}
		pipe.Set(ctx, latestKey, payload, eventTTL)
		pipe.Set(ctx, latestTriggerKey(ev.Trigger), payload, eventTTL)
		pipe.Set(ctx, chainKey(ev.ChainID), payload, eventTTL)
		pipe.LPush(ctx, recentKey, payload)
	}
	pipe.LTrim(ctx, recentKey, 0, recentLimit-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis exec: %w", err)
	}
	return nil
}

// FetchLatest returns the newest event for trigger, or across all triggers when
// trigger is empty. A missing key yields nil without error.
func (s *ChainStore) FetchLatest(ctx context.Context, trigger string) (*model.ChainEvent, error) {
	key := latestKey
	if trigger != "" {
		key = latestTriggerKey(trigger)
	}
	return s.fetch(ctx, key)
}

func (s *ChainStore) FetchChain(ctx context.Context, id string) (*model.ChainEvent, error) {
	return s.fetch(ctx, chainKey(id))
}

// Recent returns up to n events, newest first.
func (s *ChainStore) Recent(ctx context.Context, n int) ([]model.ChainEvent, error) {
	if n <= 0 || n > recentLimit {
		n = recentLimit
	}
	raw, err := s.client.LRange(ctx, recentKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	events := make([]model.ChainEvent, 0, len(raw))
	for _, r := range raw {
		var ev model.ChainEvent
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal chain event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *ChainStore) fetch(ctx context.Context, key string) (*model.ChainEvent, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var ev model.ChainEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal chain event: %w", err)
	}
	return &ev, nil
}
