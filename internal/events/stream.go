package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	streamKey    = "nuka:world:events"
	streamMaxLen = 10000
)

// StreamPublisher appends world events to a Redis Stream.
type StreamPublisher struct {
	rdb     *redis.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewStreamPublisher connects to Redis and verifies the connection.
func NewStreamPublisher(ctx context.Context, redisURL string, logger *zap.Logger) (*StreamPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &StreamPublisher{rdb: rdb, timeout: 2 * time.Second, logger: logger}, nil
}

// Publish implements Publisher.
func (p *StreamPublisher) Publish(ctx context.Context, ev *WorldEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("encode world event", zap.String("id", ev.ID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type": string(ev.Type),
			"data": string(data),
		},
	}).Err()
	if err != nil {
		p.logger.Warn("publish world event",
			zap.String("id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
		return
	}
	p.logger.Debug("published world event",
		zap.String("type", string(ev.Type)),
		zap.String("summary", ev.Summary))
}

// Recent reads up to count of the newest events, oldest first.
func (p *StreamPublisher) Recent(ctx context.Context, count int64) ([]*WorldEvent, error) {
	msgs, err := p.rdb.XRevRangeN(ctx, streamKey, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", streamKey, err)
	}
	out := make([]*WorldEvent, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var ev WorldEvent
		if json.Unmarshal([]byte(data), &ev) == nil {
			out = append(out, &ev)
		}
	}
	return out, nil
}

// Close shuts down the Redis connection.
func (p *StreamPublisher) Close() error {
	return p.rdb.Close()
}
