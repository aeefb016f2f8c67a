// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisMirrorConfig configures a cross-instance session-count mirror. A
// single exstreamtv deployment can run more than one boundary process
// behind a load balancer; the mirror publishes each channel's open-session
// count to Redis. /healthz and the HDHomeRun tuner count do not read it.
type RedisMirrorConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisMirror publishes per-channel open-session counts to Redis under one
// key per channel, shared by every process in a deployment.
type RedisMirror struct {
	client *redis.Client
	logger zerolog.Logger
	ttl    time.Duration
}

// NewRedisMirror connects to cfg.Addr and verifies reachability with Ping.
func NewRedisMirror(cfg RedisMirrorConfig, logger zerolog.Logger) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis mirror connection failed: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("session: connected to redis mirror")
	return &RedisMirror{client: client, logger: logger, ttl: 2 * time.Minute}, nil
}

func (m *RedisMirror) key(channelID string) string {
	return "exstreamtv:sessions:" + channelID
}

// SetCount publishes the local process's open-session count for channelID.
// Failures are logged and swallowed: the mirror is an observability aid,
// never a source of truth for admission decisions.
func (m *RedisMirror) SetCount(channelID string, count int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.client.Set(ctx, m.key(channelID), count, m.ttl).Err(); err != nil {
		m.logger.Warn().Err(err).Str("channel", channelID).Msg("session: redis mirror set failed")
	}
}

// ClusterCount returns the count stored under this channel's key: the value
// most recently published by any process. Each SetCount overwrites that
// key, so counts from several processes are not summed.
func (m *RedisMirror) ClusterCount(channelID string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	val, err := m.client.Get(ctx, m.key(channelID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("session: redis mirror get failed: %w", err)
	}
	return val, nil
}

// Close releases the underlying Redis connection pool.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
