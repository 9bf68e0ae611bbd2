package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ppiankov/scitrue/internal/model"
)

// RedisOptions configures the redis-backed log
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisLog keeps entries in a single list; RPUSH preserves storage order
// and Lookup scans from the head
type RedisLog struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

const redisScanPage = 256

// OpenRedis connects and pings the server
func OpenRedis(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisLog, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("activity.redis_addr is required for the redis backend")
	}
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisLog(client, opts.Key, logger), nil
}

// NewRedisLog wraps an existing client
func NewRedisLog(client *redis.Client, key string, logger *zap.Logger) *RedisLog {
	if key == "" {
		key = "scitrue:activity"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLog{client: client, key: key, logger: logger}
}

func (r *RedisLog) Append(ctx context.Context, entry model.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := r.client.RPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	r.logger.Debug("activity appended", zap.String("key", r.key))
	return nil
}

// scan walks the list head to tail until visit returns false
func (r *RedisLog) scan(ctx context.Context, visit func(model.CacheEntry) bool) error {
	for start := int64(0); ; start += redisScanPage {
		page, err := r.client.LRange(ctx, r.key, start, start+redisScanPage-1).Result()
		if err != nil {
			return fmt.Errorf("read activity: %w", err)
		}
		for _, raw := range page {
			var entry model.CacheEntry
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				return fmt.Errorf("decode entry: %w", err)
			}
			if !visit(entry) {
				return nil
			}
		}
		if len(page) < redisScanPage {
			return nil
		}
	}
}

func (r *RedisLog) Lookup(ctx context.Context, claim string, articles int) (*model.CacheEntry, bool, error) {
	var found *model.CacheEntry
	err := r.scan(ctx, func(e model.CacheEntry) bool {
		if e.Fingerprint().Matches(claim, articles) {
			found = &e
			return false
		}
		return true
	})
	if err != nil {
		return nil, false, err
	}
	return found, found != nil, nil
}

func (r *RedisLog) History(ctx context.Context, email string) ([]model.CacheEntry, error) {
	var all []model.CacheEntry
	err := r.scan(ctx, func(e model.CacheEntry) bool {
		all = append(all, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return byEmail(all, email), nil
}

func (r *RedisLog) Close() error {
	return r.client.Close()
}
