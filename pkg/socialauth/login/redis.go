// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default Redis client settings
const (
	DefaultKeyPrefix    = "socialauth:login:"
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore is a Store shared by every replica through Redis. Entries
// expire with the key TTL and are removed atomically on Take.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStoreWithClient creates a RedisStore with a pre-configured client.
// Empty prefix and zero ttl take the defaults.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *RedisStore) key(state string) string {
	return s.keyPrefix + state
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, login *PendingLogin) error {
	if login == nil || login.State == "" {
		return errors.New("pending login requires a state")
	}
	data, err := json.Marshal(login)
	if err != nil {
		return fmt.Errorf("failed to marshal pending login: %w", err)
	}
	if err := s.client.Set(ctx, s.key(login.State), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store pending login: %w", err)
	}
	return nil
}

// Take implements Store with GETDEL, so concurrent callbacks for one state
// cannot both succeed.
func (s *RedisStore) Take(ctx context.Context, state string) (*PendingLogin, error) {
	data, err := s.client.GetDel(ctx, s.key(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to take pending login: %w", err)
	}

	var login PendingLogin
	if err := json.Unmarshal(data, &login); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending login: %w", err)
	}
	return &login, nil
}

// Health pings Redis.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
