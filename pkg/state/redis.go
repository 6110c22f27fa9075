package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/nodefleet/fleetview/pkg/config"
)

// RedisStore shares state between several viewers through Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "fleetview:state"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis state: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

func (s *RedisStore) selectedKey() string { return s.prefix + ":selected" }
func (s *RedisStore) reloadKey() string   { return s.prefix + ":reload" }

func (s *RedisStore) Selected(ctx context.Context) ([]string, error) {
	out, err := s.client.SMembers(ctx, s.selectedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read selection: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func (s *RedisStore) SetSelected(ctx context.Context, servers []string) error {
	servers = normalize(servers)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.selectedKey())
		if len(servers) > 0 {
			members := make([]interface{}, len(servers))
			for i, srv := range servers {
				members[i] = srv
			}
			pipe.SAdd(ctx, s.selectedKey(), members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write selection: %w", err)
	}
	return nil
}

func (s *RedisStore) NeedsReload(ctx context.Context) (bool, error) {
	v, err := s.client.Get(ctx, s.reloadKey()).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read reload flag: %w", err)
	}
	return v == "1", nil
}

func (s *RedisStore) SetNeedsReload(ctx context.Context, v bool) error {
	if !v {
		return s.client.Del(ctx, s.reloadKey()).Err()
	}
	return s.client.Set(ctx, s.reloadKey(), "1", 0).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
