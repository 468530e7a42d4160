package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"
)

const redisTimeout = 2 * time.Second

// RedisConfig configures the redis audit backend.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	Key        string
	MaxEntries int
}

// RedisLog keeps the audit trail in a redis list, newest at the head.
type RedisLog struct {
	client *redis.Client
	key    string
	max    int
}

// NewRedisLog connects to redis and verifies the connection.
func NewRedisLog(cfg RedisConfig) (*RedisLog, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.Key) == "" {
		cfg.Key = "gonguard:response_log"
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis audit log: %w", err)
	}

	return &RedisLog{client: client, key: cfg.Key, max: cfg.MaxEntries}, nil
}

// Append pushes entry and trims the list to the cap.
func (r *RedisLog) Append(entry model.AuditEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		logger.Warnf("Audit log encode error: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, 0, int64(r.max-1))
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warnf("Audit log write error: %v", err)
	}
}

// Recent returns up to limit entries, newest first.
func (r *RedisLog) Recent(limit int) []model.AuditEntry {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	raw, err := r.client.LRange(ctx, r.key, 0, stop).Result()
	if err != nil {
		logger.Warnf("Audit log read error: %v", err)
		return []model.AuditEntry{}
	}
	return decodeEntries(raw)
}

// Close releases the redis connection.
func (r *RedisLog) Close() error {
	return r.client.Close()
}

func decodeEntries(raw []string) []model.AuditEntry {
	out := make([]model.AuditEntry, 0, len(raw))
	for _, item := range raw {
		var e model.AuditEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			logger.Debugf("Skipping undecodable audit entry: %v", err)
			continue
		}
		out = append(out, e)
	}
	return out
}
