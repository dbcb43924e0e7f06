package publish

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisConfig configures the Redis publisher.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string

	// HistoryLen is how many recent samples per run are kept in a list next
	// to the pub/sub stream. Zero disables the list.
	HistoryLen int64
}

// Redis publishes samples as JSON to a pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
	history int64
	log     logrus.FieldLogger
}

var _ Publisher = &Redis{}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig, log logrus.FieldLogger) (*Redis, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	log.WithField("addr", cfg.Addr).WithField("channel", cfg.Channel).Info("redis publisher connected")

	return &Redis{
		client:  client,
		channel: cfg.Channel,
		history: cfg.HistoryLen,
		log:     log,
	}, nil
}

func historyKey(runID string) string { return fmt.Sprintf("echem:run:%s:samples", runID) }

// Publish sends s to the channel and, if enabled, appends it to the run's
// history list.
func (r *Redis) Publish(ctx context.Context, s Sample) error {
	data, err := s.Encode()
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if r.history <= 0 {
		return nil
	}

	key := historyKey(s.RunID)
	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -r.history, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("append sample history")
	}
	return nil
}

// Close closes the connection.
func (r *Redis) Close() error { return r.client.Close() }
