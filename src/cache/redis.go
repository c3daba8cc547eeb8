package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"credit-observer/src/logger"
	"credit-observer/src/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "credit-observer:score:latest:"

// RedisCache keeps the latest score per issuer in redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	Logger *logger.Logger
}

// NewRedisCache connects to the configured redis and verifies it answers.
func NewRedisCache(cfg *models.MConfig, log *logger.Logger) (*RedisCache, error) {
	if log == nil {
		log = logger.NewLogger(cfg, "ScoreCache")
	}
	cc := cfg.Cache
	client := redis.NewClient(&redis.Options{
		Addr:     cc.Addr,
		Password: cc.Password,
		DB:       cc.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cc.Addr, err)
	}

	ttl := time.Duration(cc.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	log.Info("Redis score cache at %s (ttl %v)", cc.Addr, ttl)
	return &RedisCache{client: client, ttl: ttl, Logger: log}, nil
}

// -----------------------------------------------------------------------------

func latestKey(symbol string) string {
	return keyPrefix + symbol
}

// GetLatestScore reports ok=false on a miss.
func (r *RedisCache) GetLatestScore(ctx context.Context, symbol string) (models.MCreditScore, bool, error) {
	var s models.MCreditScore
	raw, err := r.client.Get(ctx, latestKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s, false, nil
	}
	if err != nil {
		return s, false, err
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, false, fmt.Errorf("decode cached score for %s: %w", symbol, err)
	}
	return s, true, nil
}

// SetLatestScore stores s unless a newer score for the issuer is cached.
func (r *RedisCache) SetLatestScore(ctx context.Context, s models.MCreditScore) error {
	cur, ok, err := r.GetLatestScore(ctx, s.Symbol)
	if err == nil && ok && cur.Timestamp > s.Timestamp {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, latestKey(s.Symbol), data, r.ttl).Err()
}

// Invalidate drops the cached score of symbol.
func (r *RedisCache) Invalidate(ctx context.Context, symbol string) error {
	return r.client.Del(ctx, latestKey(symbol)).Err()
}

func (r *RedisCache) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
