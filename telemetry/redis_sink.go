package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pathforge/pathforge/core"
)

// RedisSink keeps a bounded, expiring list of recent trace summaries and
// publishes each one on a channel for live consumers.
//
// Keys:
//   - <key>          LIST of JSON summaries, newest first, capped at MaxEntries
//   - <key>:events   pub/sub channel, one message per exported trace
type RedisSink struct {
	client     *redis.Client
	key        string
	channel    string
	maxEntries int64
	ttl        time.Duration
	logger     core.Logger
}

// RedisSinkOptions configures the redis sink
type RedisSinkOptions struct {
	RedisURL   string
	Key        string
	MaxEntries int64
	TTL        time.Duration
	Logger     core.Logger
}

// NewRedisSink connects to redis and verifies the connection with PING.
func NewRedisSink(ctx context.Context, opts RedisSinkOptions) (*RedisSink, error) {
	if opts.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", core.ErrMissingConfiguration)
	}
	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %v: %w", err, core.ErrInvalidConfiguration)
	}
	if opts.Key == "" {
		opts.Key = "pathforge:traces"
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1000
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}

	client := redis.NewClient(redisOpt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, &core.NetworkError{Target: "redis", Err: err}
	}

	logger := core.ComponentLogger(opts.Logger, "pathforge/telemetry")
	logger.Info("Redis trace sink connected", map[string]interface{}{
		"operation":   "redis_sink_connect",
		"key":         opts.Key,
		"max_entries": opts.MaxEntries,
		"ttl":         opts.TTL.String(),
	})

	return &RedisSink{
		client:     client,
		key:        opts.Key,
		channel:    opts.Key + ":events",
		maxEntries: opts.MaxEntries,
		ttl:        opts.TTL,
		logger:     logger,
	}, nil
}

func (s *RedisSink) Name() string { return "redis" }

// Export pushes the summary, trims the list and refreshes its expiry in
// one pipeline, then publishes it.
func (s *RedisSink) Export(ctx context.Context, summary Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal trace summary: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, data)
		pipe.LTrim(ctx, s.key, 0, s.maxEntries-1)
		pipe.Expire(ctx, s.key, s.ttl)
		return nil
	})
	if err != nil {
		return &core.NetworkError{Target: "redis", Err: err}
	}

	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return &core.NetworkError{Target: "redis", Err: err}
	}
	return nil
}

// Recent returns up to n of the newest stored summaries.
func (s *RedisSink) Recent(ctx context.Context, n int64) ([]Summary, error) {
	if n <= 0 {
		return nil, nil
	}
	items, err := s.client.LRange(ctx, s.key, 0, n-1).Result()
	if err != nil {
		return nil, &core.NetworkError{Target: "redis", Err: err}
	}
	out := make([]Summary, 0, len(items))
	for _, item := range items {
		var summary Summary
		if err := json.Unmarshal([]byte(item), &summary); err != nil {
			s.logger.Warn("Skipping unreadable trace summary", map[string]interface{}{
				"operation": "redis_sink_recent",
				"error":     err.Error(),
			})
			continue
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *RedisSink) Close(context.Context) error {
	return s.client.Close()
}
