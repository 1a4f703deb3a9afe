package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"hashwatch/internal/core"
	"hashwatch/internal/utils"
)

type RedisConfig struct {
	Name     string
	Addr     string
	Password string
	DB       int
	Stream   string
	// MaxLen trims the stream approximately; zero keeps every entry.
	MaxLen int64
	Logger *slog.Logger
}

// RedisStream appends each stored item to a Redis stream so other processes
// can follow new matches without polling the database.
type RedisStream struct {
	name   string
	stream string
	maxLen int64
	client *redis.Client
	logger *slog.Logger
}

var _ core.Notifier = (*RedisStream)(nil)

func NewRedisStream(cfg RedisConfig) *RedisStream {
	if cfg.Name == "" {
		cfg.Name = "redis"
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Stream == "" {
		cfg.Stream = "hashwatch:items"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	return &RedisStream{
		name:   cfg.Name,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
		client: client,
		logger: cfg.Logger,
	}
}

func (r *RedisStream) Name() string {
	return r.name
}

func (r *RedisStream) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: ping failed: %w", r.name, err)
	}
	return nil
}

func (r *RedisStream) Notify(ctx context.Context, term string, items []core.Item) error {
	if len(items) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, item := range items {
		args := &redis.XAddArgs{
			Stream: r.stream,
			Values: messageValues(term, item),
		}
		if r.maxLen > 0 {
			args.MaxLen = r.maxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis %s: failed to publish %d items for %s: %w", r.name, len(items), term, err)
	}

	r.logger.Debug("Published items", "notifier", r.name, "stream", r.stream, "term", term, "count", len(items))
	return nil
}

func (r *RedisStream) Close() error {
	return r.client.Close()
}

func messageValues(term string, item core.Item) map[string]any {
	ts := strconv.FormatInt(item.Timestamp, 10)
	return map[string]any{
		"id":      utils.Fingerprint(term, ts, item.Author, item.Body),
		"term":    term,
		"time":    ts,
		"author":  item.Author,
		"message": item.Body,
		"tags":    strings.Join(item.Tags, " "),
	}
}
